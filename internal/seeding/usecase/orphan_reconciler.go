package usecase

import (
	"context"
	"sort"

	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/seeding/domain/repository"
	apperrors "refdata-seeder/internal/shared/errors"
	"refdata-seeder/internal/shared/eventbus"
	"refdata-seeder/internal/shared/logger"
)

// OrphanReconciler removes stored assets whose logical key no longer exists
// in the document store. Only categories present in the live-key set are
// reconciled, and paths that cannot be reversed into a key are retained.
type OrphanReconciler struct {
	blobs        repository.BlobStore
	placeholders []string
	logger       logger.Logger
	events       publisher
}

// NewOrphanReconciler creates a reconciler. nil placeholders selects the defaults.
func NewOrphanReconciler(blobs repository.BlobStore, placeholders []string, bus eventbus.EventBusInterface, log logger.Logger) *OrphanReconciler {
	if log == nil {
		log = logger.NewNop()
	}
	if placeholders == nil {
		placeholders = model.DefaultPlaceholderNames
	}
	log = log.WithComponent("orphan-reconciler")
	return &OrphanReconciler{
		blobs:        blobs,
		placeholders: placeholders,
		logger:       log,
		events:       publisher{bus: bus, logger: log},
	}
}

// Reconcile classifies every stored asset against liveKeys (category name to
// raw logical keys) and deletes the orphans unless dryRun is set. A failed
// delete is recorded and does not stop the remaining deletes. A listing
// failure returns before anything is deleted.
func (o *OrphanReconciler) Reconcile(ctx context.Context, liveKeys map[string][]string, dryRun bool) (*model.ReconciliationReport, error) {
	live := make(map[string]map[string]bool, len(liveKeys))
	report := &model.ReconciliationReport{
		DryRun:   dryRun,
		LiveKeys: make(map[string][]string, len(liveKeys)),
	}
	for category, keys := range liveKeys {
		set := make(map[string]bool, len(keys))
		for _, k := range keys {
			if slug := model.Slugify(k); slug != "" {
				set[slug] = true
			}
		}
		live[category] = set
		report.LiveKeys[category] = sortedKeys(set)
	}

	objects, err := o.blobs.List(ctx, "")
	if err != nil {
		return nil, err
	}

	var orphans []model.OrphanOutcome
	for _, obj := range objects {
		report.Scanned++
		if model.IsPlaceholder(obj.Key, o.placeholders) {
			report.Placeholders++
			continue
		}
		parsed, ok := model.ParseAssetPath(obj.Key)
		if !ok {
			report.Ambiguous = append(report.Ambiguous, obj.Key)
			report.Retained++
			continue
		}
		set, reconciled := live[parsed.Category.Name]
		slug := model.Slugify(parsed.Slug)
		if !reconciled || set[slug] {
			report.Retained++
			continue
		}
		orphans = append(orphans, model.OrphanOutcome{
			Path:     obj.Key,
			Category: parsed.Category.Name,
			Key:      slug,
		})
	}

	log := o.logger.WithContext(ctx)
	for _, orphan := range orphans {
		switch {
		case dryRun:
			orphan.Outcome = model.OrphanSkipped
		default:
			err := o.blobs.Delete(ctx, orphan.Path)
			if err != nil && !apperrors.IsNotFound(err) {
				orphan.Outcome = model.OrphanDeleteFailed
				orphan.Error = err.Error()
				log.Warnf("Orphan %s not deleted: %v", orphan.Path, err)
			} else {
				orphan.Outcome = model.OrphanDeleted
			}
		}
		report.Orphans = append(report.Orphans, orphan)
		o.events.publish(ctx, eventbus.EventTypeOrphanProcessed, orphan.Category, orphan)
	}

	log.WithFields(map[string]interface{}{
		"scanned":      report.Scanned,
		"retained":     report.Retained,
		"placeholders": report.Placeholders,
		"ambiguous":    len(report.Ambiguous),
		"orphans":      len(report.Orphans),
		"dry_run":      dryRun,
	}).Info("Asset reconciliation finished")
	return report, nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
