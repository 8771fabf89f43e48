package usecase

import (
	"context"

	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/seeding/domain/repository"
	apperrors "refdata-seeder/internal/shared/errors"
	"refdata-seeder/internal/shared/logger"
)

// CollectionReconciler prepares a collection for upserts in two phases:
// duplicate natural keys are collapsed first, then indexes are ensured.
// The index phase never runs over a collection whose dedup failed.
type CollectionReconciler struct {
	store  repository.DocumentStore
	logger logger.Logger
}

// NewCollectionReconciler creates a reconciler over store
func NewCollectionReconciler(store repository.DocumentStore, log logger.Logger) *CollectionReconciler {
	if log == nil {
		log = logger.NewNop()
	}
	return &CollectionReconciler{store: store, logger: log.WithComponent("collection-reconciler")}
}

// Reconcile runs both phases for one collection. Running it again on a
// reconciled collection deletes nothing and reports every index as existing.
func (r *CollectionReconciler) Reconcile(ctx context.Context, collection string, key model.NaturalKey, indexes []model.IndexSpec) model.CollectionReconcileResult {
	log := r.logger.WithContext(ctx).WithFields(map[string]interface{}{"collection": collection, "key": key.String()})

	res := model.CollectionReconcileResult{Collection: collection}
	res.Dedup = r.Deduplicate(ctx, collection, key)
	if res.Dedup.Err != nil {
		res.IndexSkipped = true
		log.Errorf("Dedup failed, index phase skipped: %v", res.Dedup.Err)
		return res
	}
	if res.Dedup.Deleted > 0 {
		log.Infof("Removed %d duplicate documents across %d keys", res.Dedup.Deleted, res.Dedup.Groups)
	}

	res.Indexes = r.EnsureIndexes(ctx, collection, key, indexes)
	for _, ix := range res.Indexes {
		if ix.Err != nil {
			log.Errorf("Index %s failed: %v", ix.Name, ix.Err)
		}
	}
	return res
}

// Deduplicate keeps the earliest document of every natural-key group and deletes the rest
func (r *CollectionReconciler) Deduplicate(ctx context.Context, collection string, key model.NaturalKey) model.DedupResult {
	groups, err := r.store.FindDuplicates(ctx, collection, key)
	if err != nil {
		return model.DedupResult{Err: err}
	}

	var redundant []interface{}
	for _, g := range groups {
		redundant = append(redundant, g.Redundant()...)
	}
	res := model.DedupResult{Groups: len(groups)}
	if len(redundant) == 0 {
		return res
	}

	res.Deleted, res.Err = r.store.DeleteByIDs(ctx, collection, redundant)
	return res
}

// EnsureIndexes creates the unique natural-key index and the declared
// secondary indexes. An index that already exists counts as success.
func (r *CollectionReconciler) EnsureIndexes(ctx context.Context, collection string, key model.NaturalKey, indexes []model.IndexSpec) []model.IndexResult {
	specs := make([]model.IndexSpec, 0, len(indexes)+1)
	if len(key) > 0 {
		specs = append(specs, model.UniqueKeyIndex(key))
	}
	specs = append(specs, indexes...)

	results := make([]model.IndexResult, 0, len(specs))
	for _, spec := range specs {
		name, err := r.store.CreateIndex(ctx, collection, spec)
		if name == "" {
			name = spec.IndexName()
		}
		switch {
		case err == nil:
			results = append(results, model.IndexResult{Name: name, Created: true})
		case apperrors.IsIndexAlreadyExists(err):
			results = append(results, model.IndexResult{Name: name, Existed: true})
		default:
			results = append(results, model.IndexResult{Name: name, Err: err})
		}
	}
	return results
}
