package model

// OrphanAction is the outcome recorded for one orphan candidate
type OrphanAction string

const (
	OrphanDeleted      OrphanAction = "deleted"
	OrphanDeleteFailed OrphanAction = "delete_failed"
	OrphanSkipped      OrphanAction = "skipped"
)

// OrphanOutcome is the per-asset result of reconciliation
type OrphanOutcome struct {
	Path     string       `json:"path"`
	Category string       `json:"category"`
	Key      string       `json:"key"`
	Outcome  OrphanAction `json:"outcome"`
	Error    string       `json:"error,omitempty"`
}

// ReconciliationReport is the output of an orphan reconciliation pass
type ReconciliationReport struct {
	DryRun       bool                `json:"dryRun"`
	LiveKeys     map[string][]string `json:"liveKeys"`
	Scanned      int                 `json:"scanned"`
	Retained     int                 `json:"retained"`
	Placeholders int                 `json:"placeholders"`
	Ambiguous    []string            `json:"ambiguous,omitempty"`
	Orphans      []OrphanOutcome     `json:"orphans"`
}

// Count returns the number of orphans with the given outcome
func (r *ReconciliationReport) Count(action OrphanAction) int {
	n := 0
	for _, o := range r.Orphans {
		if o.Outcome == action {
			n++
		}
	}
	return n
}

// OrphanPaths lists every path classified as orphaned
func (r *ReconciliationReport) OrphanPaths() []string {
	paths := make([]string, 0, len(r.Orphans))
	for _, o := range r.Orphans {
		paths = append(paths, o.Path)
	}
	return paths
}
