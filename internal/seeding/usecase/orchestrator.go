package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/seeding/domain/repository"
	apperrors "refdata-seeder/internal/shared/errors"
	"refdata-seeder/internal/shared/eventbus"
	"refdata-seeder/internal/shared/logger"
	"refdata-seeder/internal/shared/utils"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// errNoLogoSource marks records that carry no logo source URL
var errNoLogoSource = errors.New("record has no logo source url")

// LogoOptions controls asset handling during a run
type LogoOptions struct {
	Enabled bool
	Sizes   []int
}

// BackupOptions controls snapshots around a run
type BackupOptions struct {
	Enabled        bool
	BeforeSeed     bool
	AfterSeed      bool
	RetentionCount int
}

// OrphanOptions controls the reconciliation pass after the sources
type OrphanOptions struct {
	Enabled bool
	DryRun  bool
}

// OrchestratorConfig is the run policy
type OrchestratorConfig struct {
	ContinueOnError    bool
	MaxErrors          int
	StrictValidation   bool
	MaxInFlightBatches int
	Logo               LogoOptions
	Backup             BackupOptions
	Orphans            OrphanOptions
}

// OrchestratorDeps are the collaborators of a run. Validator, Fetcher,
// Reporter and Bus are optional.
type OrchestratorDeps struct {
	Store      repository.DocumentStore
	Loader     repository.DatasetLoader
	Reconciler *CollectionReconciler
	Assets     *AssetManager
	Fetcher    repository.LogoFetcher
	Backups    *BackupManager
	Orphans    *OrphanReconciler
	Validator  repository.RecordValidator
	Reporter   repository.RunReporter
	Bus        eventbus.EventBusInterface
}

// Orchestrator drives a seeding run over the configured sources
type Orchestrator struct {
	deps   OrchestratorDeps
	config OrchestratorConfig
	logger logger.Logger
	events publisher
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.MaxInFlightBatches <= 0 {
		cfg.MaxInFlightBatches = 1
	}
	log = log.WithComponent("orchestrator")
	return &Orchestrator{
		deps:   deps,
		config: cfg,
		logger: log,
		events: publisher{bus: deps.Bus, logger: log},
		now:    time.Now,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// run is the mutable state of one seeding run
type run struct {
	ledger  *model.ErrorLedger
	summary *model.RunSummary
	fatal   bool
}

func (r *run) abort(reason string) {
	if !r.fatal {
		r.fatal = true
		r.summary.AbortReason = reason
	}
}

// Run seeds every enabled source in priority order, reconciles assets and
// returns the run summary. The error is reserved for runs that could not start.
func (o *Orchestrator) Run(ctx context.Context, sources []model.DataSource) (*model.RunSummary, error) {
	if err := checkSourceNames(sources); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = utils.WithRunID(ctx, runID)
	log := o.logger.WithContext(ctx)

	r := &run{
		ledger: model.NewErrorLedger(),
		summary: &model.RunSummary{
			RunID:     runID,
			DryRun:    o.config.Orphans.DryRun,
			StartedAt: o.now().UTC(),
		},
	}
	ordered := model.SortByPriority(sources)
	log.Infof("Seeding run started with %d sources", len(ordered))

	if o.backupsEnabled() && o.config.Backup.BeforeSeed {
		o.backupSources(ctx, r, ordered, false)
	}

	for _, src := range ordered {
		switch {
		case r.fatal:
			r.summary.Sources = append(r.summary.Sources, idleSummary(src, model.SourceAborted))
			continue
		case !src.Enabled:
			r.summary.Sources = append(r.summary.Sources, idleSummary(src, model.SourceDisabled))
			continue
		}

		ss, err := o.runSource(ctx, r, src)
		r.summary.Sources = append(r.summary.Sources, ss)
		o.events.publish(ctx, eventbus.EventTypeSourceCompleted, src.Name, ss)

		switch {
		case o.budgetExceeded(r):
			r.abort(fmt.Sprintf("error budget exceeded: %d errors > %d", r.ledger.Count(), o.config.MaxErrors))
		case err != nil:
			r.abort(err.Error())
		case ss.Status != model.SourceCompleted && !o.config.ContinueOnError:
			r.abort(fmt.Sprintf("source %s %s and continueOnError is disabled", src.Name, ss.Status))
		}
	}

	if !r.fatal {
		o.afterSources(ctx, r, ordered)
	}
	return o.finish(ctx, r), nil
}

func (o *Orchestrator) afterSources(ctx context.Context, r *run, sources []model.DataSource) {
	if o.config.Orphans.Enabled && o.deps.Orphans != nil {
		o.reconcileAssets(ctx, r, sources)
	}
	if o.backupsEnabled() && o.config.Backup.AfterSeed {
		o.backupSources(ctx, r, sources, true)
	}
	if o.backupsEnabled() && o.config.Backup.RetentionCount > 0 {
		for _, src := range sources {
			if !src.Enabled {
				continue
			}
			if _, err := o.deps.Backups.PruneBackups(ctx, src.Collection, o.config.Backup.RetentionCount); err != nil {
				r.ledger.Record(src.Name, "", err)
			}
		}
	}
	if o.budgetExceeded(r) {
		r.abort(fmt.Sprintf("error budget exceeded: %d errors > %d", r.ledger.Count(), o.config.MaxErrors))
	}
}

func (o *Orchestrator) finish(ctx context.Context, r *run) *model.RunSummary {
	s := r.summary
	s.FinishedAt = o.now().UTC()
	s.Duration = s.FinishedAt.Sub(s.StartedAt)
	s.ApplyLedger(r.ledger)
	switch {
	case r.fatal:
		s.Outcome = model.OutcomeFatalFailure
	case s.TotalErrors > 0:
		s.Outcome = model.OutcomePartialFailure
	default:
		s.Outcome = model.OutcomeSuccess
	}

	log := o.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"outcome":  s.Outcome,
		"errors":   s.TotalErrors,
		"duration": s.Duration.String(),
	})
	if s.AbortReason != "" {
		log = log.WithFields(map[string]interface{}{"abort_reason": s.AbortReason})
	}
	log.Info("Seeding run finished")

	if o.deps.Reporter != nil {
		if err := o.deps.Reporter.Publish(ctx, s); err != nil {
			log.Warnf("Run summary not persisted: %v", err)
		}
	}
	o.events.publish(ctx, eventbus.EventTypeRunCompleted, "orchestrator", s)
	return s
}

func (o *Orchestrator) budgetExceeded(r *run) bool {
	return r.ledger.Exceeds(o.config.MaxErrors)
}

func (o *Orchestrator) backupsEnabled() bool {
	return o.config.Backup.Enabled && o.deps.Backups != nil
}

// backupSources snapshots every enabled source. A source collection that does
// not exist yet has nothing to protect and is skipped.
func (o *Orchestrator) backupSources(ctx context.Context, r *run, sources []model.DataSource, verify bool) {
	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		snap, err := o.deps.Backups.Backup(ctx, src.Collection, "")
		if apperrors.IsSourceNotFound(err) {
			continue
		}
		if err != nil {
			r.ledger.Record(src.Name, "", err)
			continue
		}
		if verify {
			if err := o.deps.Backups.VerifyBackup(ctx, *snap); err != nil {
				r.ledger.Record(src.Name, snap.Name, err)
			}
		}
		r.summary.Backups = append(r.summary.Backups, *snap)
	}
}

// sourceRun accumulates one source's counters; batches may update it concurrently
type sourceRun struct {
	mu      sync.Mutex
	summary model.SourceSummary
	stop    atomic.Bool
}

func (sr *sourceRun) update(fn func(s *model.SourceSummary)) {
	sr.mu.Lock()
	fn(&sr.summary)
	sr.mu.Unlock()
}

func idleSummary(src model.DataSource, status model.SourceStatus) model.SourceSummary {
	return model.SourceSummary{Name: src.Name, Collection: src.Collection, Priority: src.Priority, Status: status}
}

// runSource seeds one source. The error is non-nil only for failures that
// must abort the whole run.
func (o *Orchestrator) runSource(ctx context.Context, r *run, src model.DataSource) (model.SourceSummary, error) {
	start := o.now()
	ctx = utils.WithCollection(utils.WithSource(ctx, src.Name), src.Collection)
	log := o.logger.WithContext(ctx)
	sr := &sourceRun{summary: idleSummary(src, model.SourceCompleted)}
	finish := func(status model.SourceStatus) model.SourceSummary {
		sr.summary.Status = status
		sr.summary.Duration = o.now().Sub(start)
		return sr.summary
	}

	docs, err := o.deps.Loader.Load(ctx, src.Dataset)
	if err != nil {
		r.ledger.Record(src.Name, src.Dataset, err)
		log.Errorf("Dataset %s not loaded: %v", src.Dataset, err)
		return finish(model.SourceFailed), nil
	}
	sr.summary.Total = len(docs)

	rec := o.deps.Reconciler.Reconcile(ctx, src.Collection, src.NaturalKey, src.Indexes)
	sr.summary.Deduplicated = rec.Dedup.Deleted
	for _, ix := range rec.Indexes {
		switch {
		case ix.Created:
			sr.summary.IndexesCreated = append(sr.summary.IndexesCreated, ix.Name)
		case ix.Existed:
			sr.summary.IndexesExisted = append(sr.summary.IndexesExisted, ix.Name)
		}
	}
	if err := rec.Err(); err != nil {
		r.ledger.Record(src.Name, "", err)
		return finish(model.SourceFailed), nil
	}

	records, err := o.prepareRecords(ctx, r, src, docs, sr)
	if err != nil {
		return finish(model.SourceAborted), err
	}
	if o.budgetExceeded(r) {
		return finish(model.SourceAborted), nil
	}

	if src.Asset != nil {
		o.attachAssets(ctx, r, src, records, sr)
		if o.budgetExceeded(r) {
			return finish(model.SourceAborted), nil
		}
	}

	o.writeBatches(ctx, r, src, records, sr)

	switch {
	case sr.stop.Load():
		return finish(model.SourceAborted), nil
	case sr.summary.FailedBatches > 0:
		return finish(model.SourceFailed), nil
	}
	log.WithFields(map[string]interface{}{
		"inserted":  sr.summary.Inserted,
		"updated":   sr.summary.Updated,
		"unchanged": sr.summary.Unchanged,
		"skipped":   sr.summary.Skipped,
	}).Info("Source seeded")
	return finish(model.SourceCompleted), nil
}

// prepareRecords trims natural-key values, drops records without a usable key
// or failing validation and drops repeated keys within the dataset. With strict
// validation the first rejected record aborts the run.
func (o *Orchestrator) prepareRecords(ctx context.Context, r *run, src model.DataSource, docs []model.Document, sr *sourceRun) ([]model.Document, error) {
	out := make([]model.Document, 0, len(docs))
	seen := make(map[string]bool, len(docs))

	reject := func(key string, err error) error {
		r.ledger.Record(src.Name, key, err)
		sr.summary.Skipped++
		if o.config.StrictValidation {
			return apperrors.NewFatalFailureError(fmt.Sprintf("strict validation: %s", err.Error())).WithCause(err)
		}
		return nil
	}

	for i, raw := range docs {
		doc := trimKeyFields(raw, src.NaturalKey)
		key, ok := doc.KeyValue(src.NaturalKey)
		if !ok {
			err := apperrors.NewValidationError(fmt.Sprintf("record %d of %s has no value for natural key %s", i, src.Name, src.NaturalKey))
			if fatal := reject(fmt.Sprintf("#%d", i), err); fatal != nil {
				return nil, fatal
			}
			continue
		}
		if o.deps.Validator != nil {
			if err := o.deps.Validator.Validate(src.Name, doc); err != nil {
				if fatal := reject(key, err); fatal != nil {
					return nil, fatal
				}
				continue
			}
		}
		if seen[key] {
			o.logger.WithContext(ctx).Warnf("Repeated key %q in dataset %s, keeping the first record", key, src.Dataset)
			sr.summary.Skipped++
			continue
		}
		seen[key] = true
		out = append(out, doc)
	}
	return out, nil
}

func trimKeyFields(doc model.Document, key model.NaturalKey) model.Document {
	out := doc.Clone()
	for _, f := range key {
		if s, ok := out[f].(string); ok {
			out[f] = strings.TrimSpace(s)
		}
	}
	return out
}

// attachAssets ensures the logo variants of every record and writes the
// public URL into the record. When uploads are disabled or fail, the record
// keeps its source URL.
func (o *Orchestrator) attachAssets(ctx context.Context, r *run, src model.DataSource, records []model.Document, sr *sourceRun) {
	binding := src.Asset
	category, ok := model.CategoryByName(binding.Category)
	if !ok {
		r.ledger.Record(src.Name, binding.Category, apperrors.NewValidationError("unknown asset category "+binding.Category))
		return
	}

	for _, doc := range records {
		if o.budgetExceeded(r) {
			return
		}
		key := doc.GetString(binding.KeyField)
		sourceURL := ""
		if binding.SourceURLField != "" {
			sourceURL = doc.GetString(binding.SourceURLField)
		}
		if key == "" {
			continue
		}
		if !o.config.Logo.Enabled || o.deps.Assets == nil {
			setURL(doc, binding.URLField, sourceURL)
			continue
		}

		results, err := o.deps.Assets.EnsureVariants(ctx, key, category, o.config.Logo.Sizes, func(ctx context.Context) ([]byte, error) {
			if sourceURL == "" || o.deps.Fetcher == nil {
				return nil, errNoLogoSource
			}
			return o.deps.Fetcher.Fetch(ctx, sourceURL)
		})
		if err != nil {
			r.ledger.Record(src.Name, key, err)
			setURL(doc, binding.URLField, sourceURL)
			continue
		}

		url, uploaded, failed, firstErr := summarizeVariants(results)
		if errors.Is(firstErr, errNoLogoSource) {
			// nothing to fetch; keep whatever variants are already stored
			setURL(doc, binding.URLField, url)
			continue
		}
		sr.summary.AssetsUploaded += uploaded
		sr.summary.AssetsFailed += failed
		if failed > 0 {
			r.ledger.Record(src.Name, key, apperrors.NewStorageError(
				fmt.Sprintf("%d of %d logo variants of %q failed", failed, len(results), key)).WithCause(firstErr))
		}
		if url == "" {
			url = sourceURL
		}
		setURL(doc, binding.URLField, url)
	}
}

// summarizeVariants picks the URL of the largest stored variant and counts outcomes
func summarizeVariants(results map[int]VariantResult) (url string, uploaded, failed int, firstErr error) {
	sizes := make([]int, 0, len(results))
	for size := range results {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)
	for _, size := range sizes {
		res := results[size]
		if res.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = res.Err
			}
			continue
		}
		if !res.Skipped {
			uploaded++
		}
		url = res.URL
	}
	return url, uploaded, failed, firstErr
}

func setURL(doc model.Document, field, url string) {
	if field == "" || url == "" {
		return
	}
	doc[field] = url
}

// writeBatches upserts records in batches, keeping up to MaxInFlightBatches
// in flight. Once the error budget is exceeded no further batch starts;
// batches already in flight complete.
func (o *Orchestrator) writeBatches(ctx context.Context, r *run, src model.DataSource, records []model.Document, sr *sourceRun) {
	size := src.BatchSize
	if size <= 0 {
		size = len(records)
	}

	var g errgroup.Group
	g.SetLimit(o.config.MaxInFlightBatches)
	for n, start := 0, 0; start < len(records); n, start = n+1, start+size {
		if sr.stop.Load() {
			break
		}
		if n > 0 {
			if err := o.sleep(ctx, src.BatchDelay); err != nil {
				r.ledger.Record(src.Name, "", apperrors.NewConnectionError("run interrupted").WithCause(err))
				sr.stop.Store(true)
				break
			}
		}
		end := min(start+size, len(records))
		batch := records[start:end]
		number := n + 1
		g.Go(func() error {
			o.writeBatch(ctx, r, src, number, batch, sr)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) writeBatch(ctx context.Context, r *run, src model.DataSource, number int, batch []model.Document, sr *sourceRun) {
	start := o.now()
	attempts := 0
	var result model.UpsertResult

	err := retry.Do(
		func() error {
			attempts++
			res, err := o.deps.Store.UpsertBatch(ctx, src.Collection, src.NaturalKey, batch)
			if err != nil {
				return err
			}
			result = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(src.Retries()+1)),
		retry.Delay(src.RetryBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			o.logger.WithContext(ctx).Warnf("Batch %d of %s failed (attempt %d): %v", number, src.Name, n+1, err)
		}),
	)

	event := model.BatchEvent{
		RunID:      utils.GetRunIDOrDefault(ctx, ""),
		Source:     src.Name,
		Collection: src.Collection,
		Batch:      number,
		Size:       len(batch),
		Attempts:   attempts,
		Result:     result,
		Duration:   o.now().Sub(start),
	}

	if err != nil {
		batchErr := err
		if !apperrors.IsConnection(err) {
			batchErr = apperrors.NewStorageError(fmt.Sprintf("batch %d of %s failed after %d attempts", number, src.Name, attempts)).WithCause(err)
		}
		r.ledger.Record(src.Name, fmt.Sprintf("batch %d", number), batchErr)
		sr.update(func(s *model.SourceSummary) {
			s.Batches++
			s.FailedBatches++
		})
		if o.budgetExceeded(r) {
			sr.stop.Store(true)
		}
		event.Error = batchErr.Error()
		o.events.publish(ctx, eventbus.EventTypeBatchFailed, src.Name, event)
		return
	}

	sr.update(func(s *model.SourceSummary) {
		s.Batches++
		s.Inserted += result.Inserted
		s.Updated += result.Updated
		s.Unchanged += result.Unchanged
	})
	o.events.publish(ctx, eventbus.EventTypeBatchCompleted, src.Name, event)
}

// retryable reports whether a batch failure may succeed on a later attempt
func retryable(err error) bool {
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeDuplicateKey, apperrors.ErrorTypeFatalFailure:
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// reconcileAssets builds the live-key set from the store and removes orphaned
// assets. Categories fed by a source that did not complete are not touched and
// an incomplete live-key set skips the pass entirely.
func (o *Orchestrator) reconcileAssets(ctx context.Context, r *run, sources []model.DataSource) {
	settled := settledAssetSources(r.summary.Sources, sources)
	for _, src := range sources {
		if src.Enabled && src.Asset != nil && !containsSource(settled, src.Name) {
			o.logger.WithContext(ctx).Warnf("Assets of category %s retained: source %s did not complete", src.Asset.Category, src.Name)
		}
	}
	liveKeys, err := o.LiveKeys(ctx, settled)
	if err != nil {
		r.ledger.Record("assets", "", err)
		o.logger.WithContext(ctx).Errorf("Asset reconciliation skipped: %v", err)
		return
	}
	if len(liveKeys) == 0 {
		return
	}

	report, err := o.deps.Orphans.Reconcile(ctx, liveKeys, o.config.Orphans.DryRun)
	if err != nil {
		r.ledger.Record("assets", "", err)
		return
	}
	for _, orphan := range report.Orphans {
		if orphan.Outcome == model.OrphanDeleteFailed {
			r.ledger.Record("assets", orphan.Path, apperrors.NewStorageError("orphan delete failed: "+orphan.Error))
		}
	}
	r.summary.Reconciliation = report
}

// settledAssetSources keeps the asset-bound sources whose category can be
// reconciled: every source bound to the same category completed in this run.
func settledAssetSources(summaries []model.SourceSummary, sources []model.DataSource) []model.DataSource {
	completed := make(map[string]bool, len(summaries))
	for _, ss := range summaries {
		completed[ss.Name] = ss.Status == model.SourceCompleted
	}
	unsettled := make(map[string]bool)
	for _, src := range sources {
		if src.Enabled && src.Asset != nil && !completed[src.Name] {
			unsettled[src.Asset.Category] = true
		}
	}
	out := make([]model.DataSource, 0, len(sources))
	for _, src := range sources {
		if src.Enabled && src.Asset != nil && !unsettled[src.Asset.Category] {
			out = append(out, src)
		}
	}
	return out
}

func containsSource(sources []model.DataSource, name string) bool {
	for _, src := range sources {
		if src.Name == name {
			return true
		}
	}
	return false
}

// LiveKeys reads the current logical asset keys per category from every
// enabled source with an asset binding. A category is left out when any of
// its sources holds no keys, so its assets are retained rather than all
// treated as orphans.
func (o *Orchestrator) LiveKeys(ctx context.Context, sources []model.DataSource) (map[string][]string, error) {
	live := make(map[string][]string)
	empty := make(map[string]bool)
	for _, src := range sources {
		if !src.Enabled || src.Asset == nil {
			continue
		}
		keys, err := o.deps.Store.DistinctStrings(ctx, src.Collection, src.Asset.KeyField)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			empty[src.Asset.Category] = true
			continue
		}
		live[src.Asset.Category] = append(live[src.Asset.Category], keys...)
	}
	for category := range empty {
		delete(live, category)
	}
	return live, nil
}

func checkSourceNames(sources []model.DataSource) error {
	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		if src.Name == "" {
			return apperrors.NewValidationError("data source without a name")
		}
		if seen[src.Name] {
			return apperrors.NewValidationError(fmt.Sprintf("data source %q declared twice", src.Name))
		}
		seen[src.Name] = true
	}
	return nil
}
