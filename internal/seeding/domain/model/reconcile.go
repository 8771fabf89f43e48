package model

// DuplicateGroup lists the ids sharing one natural key value, earliest first
type DuplicateGroup struct {
	Key   interface{}   `json:"key" bson:"_id"`
	IDs   []interface{} `json:"ids" bson:"ids"`
	Count int           `json:"count" bson:"count"`
}

// Redundant returns every id except the one to keep
func (g DuplicateGroup) Redundant() []interface{} {
	if len(g.IDs) < 2 {
		return nil
	}
	return g.IDs[1:]
}

// DedupResult is the outcome of the dedup phase for one collection
type DedupResult struct {
	Groups  int   `json:"groups"`
	Deleted int64 `json:"deleted"`
	Err     error `json:"-"`
}

// IndexResult is the outcome of ensuring one index
type IndexResult struct {
	Name    string `json:"name"`
	Created bool   `json:"created"`
	Existed bool   `json:"existed"`
	Err     error  `json:"-"`
}

// CollectionReconcileResult groups both phases. Indexes is empty when the
// index phase was skipped because dedup failed.
type CollectionReconcileResult struct {
	Collection   string        `json:"collection"`
	Dedup        DedupResult   `json:"dedup"`
	Indexes      []IndexResult `json:"indexes"`
	IndexSkipped bool          `json:"indexSkipped"`
}

// Err returns the first failure of either phase
func (r CollectionReconcileResult) Err() error {
	if r.Dedup.Err != nil {
		return r.Dedup.Err
	}
	for _, ix := range r.Indexes {
		if ix.Err != nil {
			return ix.Err
		}
	}
	return nil
}

// UpsertResult counts the effect of one upsert batch
type UpsertResult struct {
	Inserted  int64 `json:"inserted"`
	Updated   int64 `json:"updated"`
	Unchanged int64 `json:"unchanged"`
}

// Add accumulates other into r
func (r *UpsertResult) Add(other UpsertResult) {
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
}
