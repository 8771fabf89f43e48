package model

import "time"

// Outcome is the terminal state of a seeding run
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialFailure Outcome = "partial_failure"
	OutcomeFatalFailure   Outcome = "fatal_failure"
)

// SourceStatus is the terminal state of one data source within a run
type SourceStatus string

const (
	SourceCompleted SourceStatus = "completed"
	SourceFailed    SourceStatus = "failed"
	SourceAborted   SourceStatus = "aborted"
	SourceSkipped   SourceStatus = "skipped"
	SourceDisabled  SourceStatus = "disabled"
)

// SourceSummary counts what happened to one data source
type SourceSummary struct {
	Name           string        `json:"name"`
	Collection     string        `json:"collection"`
	Priority       Priority      `json:"priority"`
	Status         SourceStatus  `json:"status"`
	Total          int           `json:"total"`
	Inserted       int64         `json:"inserted"`
	Updated        int64         `json:"updated"`
	Unchanged      int64         `json:"unchanged"`
	Deduplicated   int64         `json:"deduplicated"`
	Skipped        int           `json:"skipped"`
	Batches        int           `json:"batches"`
	FailedBatches  int           `json:"failedBatches"`
	Errors         int           `json:"errors"`
	AssetsUploaded int           `json:"assetsUploaded"`
	AssetsFailed   int           `json:"assetsFailed"`
	IndexesCreated []string      `json:"indexesCreated,omitempty"`
	IndexesExisted []string      `json:"indexesExisted,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// RunSummary is the externally consumed artifact of a seeding run
type RunSummary struct {
	RunID          string                `json:"runId"`
	DryRun         bool                  `json:"dryRun"`
	StartedAt      time.Time             `json:"startedAt"`
	FinishedAt     time.Time             `json:"finishedAt"`
	Duration       time.Duration         `json:"duration"`
	Outcome        Outcome               `json:"outcome"`
	AbortReason    string                `json:"abortReason,omitempty"`
	Sources        []SourceSummary       `json:"sources"`
	TotalErrors    int                   `json:"totalErrors"`
	ErrorsByKind   map[string]int        `json:"errorsByKind"`
	ErrorsBySource map[string]int        `json:"errorsBySource"`
	Errors         []LedgerEntry         `json:"errors"`
	Reconciliation *ReconciliationReport `json:"reconciliation,omitempty"`
	Backups        []BackupSnapshot      `json:"backups,omitempty"`
}

// Source returns the summary for the named source
func (s *RunSummary) Source(name string) (SourceSummary, bool) {
	for _, src := range s.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return SourceSummary{}, false
}

// ApplyLedger copies the ledger totals into the summary
func (s *RunSummary) ApplyLedger(l *ErrorLedger) {
	s.Errors = l.Entries()
	s.TotalErrors = len(s.Errors)
	s.ErrorsByKind = l.ByKind()
	s.ErrorsBySource = l.BySource()
	for i := range s.Sources {
		s.Sources[i].Errors = s.ErrorsBySource[s.Sources[i].Name]
	}
}
