package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/seeding/domain/repository"
	apperrors "refdata-seeder/internal/shared/errors"
	"refdata-seeder/internal/shared/eventbus"
	"refdata-seeder/internal/shared/logger"
	"refdata-seeder/internal/shared/utils"

	"go.uber.org/multierr"
)

// BackupManager snapshots collections into sibling backup collections and restores them
type BackupManager struct {
	store  repository.DocumentStore
	logger logger.Logger
	events publisher
	now    func() time.Time
}

// NewBackupManager creates a backup manager. bus may be nil.
func NewBackupManager(store repository.DocumentStore, bus eventbus.EventBusInterface, log logger.Logger) *BackupManager {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.WithComponent("backup-manager")
	return &BackupManager{
		store:  store,
		logger: log,
		events: publisher{bus: bus, logger: log},
		now:    time.Now,
	}
}

// Backup copies source into backupName, or into a timestamped name when
// backupName is empty. An empty source yields a snapshot of zero documents.
func (b *BackupManager) Backup(ctx context.Context, source, backupName string) (*model.BackupSnapshot, error) {
	exists, err := b.store.CollectionExists(ctx, source)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NewSourceNotFoundError(source)
	}

	at := b.now().UTC()
	if backupName == "" {
		backupName = model.BackupName(source, at)
	}
	taken, err := b.store.CollectionExists(ctx, backupName)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.NewValidationError(fmt.Sprintf("backup collection %q already exists", backupName))
	}

	expected, err := b.store.Count(ctx, source)
	if err != nil {
		return nil, err
	}
	copied, err := b.store.CopyCollection(ctx, source, backupName)
	if err != nil {
		return nil, err
	}
	if copied != expected {
		return nil, apperrors.NewInternalError(fmt.Sprintf("backup %s holds %d documents, source had %d", backupName, copied, expected)).
			WithDetail("backup", backupName)
	}

	snapshot := &model.BackupSnapshot{
		Name:          backupName,
		Source:        source,
		DocumentCount: copied,
		CreatedAt:     at,
		RunID:         utils.GetRunIDOrDefault(ctx, ""),
	}
	if err := b.store.InsertOne(ctx, model.BackupCatalogName, snapshot); err != nil {
		b.logger.WithContext(ctx).Warnf("Backup %s taken but not recorded in catalog: %v", backupName, err)
	}

	b.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"backup":    backupName,
		"documents": copied,
	}).Info("Backup created")
	b.events.publish(ctx, eventbus.EventTypeBackupCreated, source, *snapshot)
	return snapshot, nil
}

// Restore replaces target with the contents of backupName and returns the
// number of documents restored. An empty target restores into the backup's source.
// A backup cannot be restored onto itself.
func (b *BackupManager) Restore(ctx context.Context, backupName, target string) (int64, error) {
	if target == backupName {
		return 0, apperrors.NewValidationError(fmt.Sprintf("cannot restore %q onto itself", backupName)).
			WithDetail("backup", backupName)
	}
	exists, err := b.store.CollectionExists(ctx, backupName)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, apperrors.NewBackupNotFoundError(backupName)
	}
	if target == "" {
		source, _, ok := model.ParseBackupName(backupName)
		if !ok {
			return 0, apperrors.NewValidationError(fmt.Sprintf("cannot infer restore target from %q", backupName))
		}
		target = source
	}

	if _, err := b.store.ClearCollection(ctx, target); err != nil {
		return 0, err
	}
	restored, err := b.store.CopyCollection(ctx, backupName, target)
	if err != nil {
		return 0, err
	}

	b.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"backup":    backupName,
		"target":    target,
		"documents": restored,
	}).Info("Backup restored")
	return restored, nil
}

// ListBackups returns the generated backups of source, oldest first
func (b *BackupManager) ListBackups(ctx context.Context, source string) ([]model.BackupSnapshot, error) {
	names, err := b.store.ListCollections(ctx, model.BackupPrefix(source))
	if err != nil {
		return nil, err
	}
	recorded, err := b.catalog(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.BackupSnapshot
	for _, name := range names {
		src, at, ok := model.ParseBackupName(name)
		if !ok || src != source {
			continue
		}
		snap, found := recorded[name]
		if !found {
			count, err := b.store.Count(ctx, name)
			if err != nil {
				return nil, err
			}
			snap = model.BackupSnapshot{Name: name, Source: src, DocumentCount: count}
		}
		snap.CreatedAt = at
		out = append(out, snap)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (b *BackupManager) catalog(ctx context.Context) (map[string]model.BackupSnapshot, error) {
	docs, err := b.store.FindAll(ctx, model.BackupCatalogName)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.BackupSnapshot, len(docs))
	for _, d := range docs {
		name, _ := d[model.FieldID].(string)
		if name == "" {
			continue
		}
		out[name] = model.BackupSnapshot{
			Name:          name,
			Source:        d.GetString("source"),
			DocumentCount: toInt64(d["documentCount"]),
			RunID:         d.GetString("runId"),
		}
	}
	return out, nil
}

// PruneBackups drops the oldest generated backups of source beyond keep.
// keep <= 0 disables pruning. Returns the dropped names.
func (b *BackupManager) PruneBackups(ctx context.Context, source string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	backups, err := b.ListBackups(ctx, source)
	if err != nil {
		return nil, err
	}
	if len(backups) <= keep {
		return nil, nil
	}

	var (
		dropped []string
		errs    error
	)
	for _, snap := range backups[:len(backups)-keep] {
		if err := b.store.DropCollection(ctx, snap.Name); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := b.store.DeleteOne(ctx, model.BackupCatalogName, snap.Name); err != nil && !apperrors.IsNotFound(err) {
			errs = multierr.Append(errs, err)
		}
		dropped = append(dropped, snap.Name)
	}
	if len(dropped) > 0 {
		b.logger.WithContext(ctx).Infof("Pruned %d backups of %s", len(dropped), source)
	}
	return dropped, errs
}

// VerifyBackup checks that the backup still holds the recorded number of documents
func (b *BackupManager) VerifyBackup(ctx context.Context, snapshot model.BackupSnapshot) error {
	exists, err := b.store.CollectionExists(ctx, snapshot.Name)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NewBackupNotFoundError(snapshot.Name)
	}
	count, err := b.store.Count(ctx, snapshot.Name)
	if err != nil {
		return err
	}
	if count != snapshot.DocumentCount {
		return apperrors.NewValidationError(fmt.Sprintf("backup %s holds %d documents, expected %d", snapshot.Name, count, snapshot.DocumentCount)).
			WithDetail("backup", snapshot.Name).
			WithDetail("expected", snapshot.DocumentCount).
			WithDetail("actual", count)
	}
	return nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
