package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"refdata-seeder/internal/seeding/adapter/logo"
	"refdata-seeder/internal/seeding/adapter/persistence/memory"
	"refdata-seeder/internal/seeding/domain/model"
	apperrors "refdata-seeder/internal/shared/errors"
	"refdata-seeder/internal/shared/eventbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackingStore records upsert order and concurrency
type trackingStore struct {
	*memory.DocumentStore
	delay time.Duration

	mu    sync.Mutex
	order []string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (s *trackingStore) UpsertBatch(ctx context.Context, collection string, key model.NaturalKey, docs []model.Document) (model.UpsertResult, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		cur := s.maxInFlight.Load()
		if n <= cur || s.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	s.mu.Lock()
	if len(s.order) == 0 || s.order[len(s.order)-1] != collection {
		s.order = append(s.order, collection)
	}
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.DocumentStore.UpsertBatch(ctx, collection, key, docs)
}

type harness struct {
	store    *trackingStore
	blobs    *flakyBlobs
	loader   *fakeLoader
	fetcher  *fakeFetcher
	reporter *memory.RunReporter
	backups  *BackupManager
	bus      *eventbus.EventBus

	sleeps []time.Duration
}

func newHarness(t *testing.T) *harness {
	store := &trackingStore{DocumentStore: memory.NewDocumentStore()}
	backups := NewBackupManager(store, nil, nil)
	backups.now = steppingClock(backupEpoch, time.Second)
	return &harness{
		store:    store,
		blobs:    &flakyBlobs{BlobStore: newMemBlobs(t)},
		loader:   &fakeLoader{datasets: make(map[string][]model.Document)},
		fetcher:  &fakeFetcher{content: []byte("logo")},
		reporter: memory.NewRunReporter(),
		backups:  backups,
		bus:      eventbus.NewEventBus(nil),
	}
}

func (h *harness) orchestrator(cfg OrchestratorConfig, validator func(string, model.Document) error) *Orchestrator {
	deps := OrchestratorDeps{
		Store:      h.store,
		Loader:     h.loader,
		Reconciler: NewCollectionReconciler(h.store, nil),
		Assets:     NewAssetManager(h.blobs, logo.PassthroughRenderer{}, AssetManagerConfig{}, h.bus, nil),
		Fetcher:    h.fetcher,
		Backups:    h.backups,
		Orphans:    NewOrphanReconciler(h.blobs, nil, h.bus, nil),
		Reporter:   h.reporter,
		Bus:        h.bus,
	}
	if validator != nil {
		deps.Validator = validatorFunc(validator)
	}
	o := NewOrchestrator(deps, cfg, nil)
	o.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return o
}

func (h *harness) docs(t *testing.T, collection string) []model.Document {
	t.Helper()
	docs, err := h.store.FindAll(context.Background(), collection)
	require.NoError(t, err)
	return docs
}

func (h *harness) find(t *testing.T, collection, field, value string) model.Document {
	t.Helper()
	for _, d := range h.docs(t, collection) {
		if d.GetString(field) == value {
			return d
		}
	}
	t.Fatalf("%s: no document with %s=%q", collection, field, value)
	return nil
}

func baseConfig() OrchestratorConfig {
	return OrchestratorConfig{ContinueOnError: true, MaxErrors: 100, MaxInFlightBatches: 1}
}

func testSource(name string, p model.Priority, key ...string) model.DataSource {
	return model.DataSource{
		Name:       name,
		Collection: name,
		Enabled:    true,
		Priority:   p,
		NaturalKey: key,
		Dataset:    name + ".json",
		BatchSize:  100,
	}
}

func brandSource() model.DataSource {
	src := testSource("carbrands", model.PriorityCritical, "name")
	src.Indexes = []model.IndexSpec{{Fields: model.ParseIndexFields("country")}}
	src.Asset = &model.AssetBinding{Category: "brands", KeyField: "name", SourceURLField: "logoUrl", URLField: "logo"}
	return src
}

func brandDocs() []model.Document {
	return []model.Document{
		{"name": "Toyota", "country": "Japan", "logoUrl": "https://logos.test/toyota.png"},
		{"name": "BMW", "country": "Germany", "logoUrl": "https://logos.test/bmw.png"},
		{"name": "Kia", "country": "South Korea", "logoUrl": "https://logos.test/kia.png"},
	}
}

func numberedDocs(n int, field string) []model.Document {
	docs := make([]model.Document, n)
	for i := range docs {
		docs[i] = model.Document{field: fmt.Sprintf("%s-%03d", field, i), "rank": int64(i)}
	}
	return docs
}

func TestOrchestrator_SeedsInPriorityOrder(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["carbrands.json"] = brandDocs()
	h.loader.datasets["areas.json"] = []model.Document{{"city": "Cairo", "name": "Zamalek"}, {"city": "Giza", "name": "Dokki"}}
	h.loader.datasets["cities.json"] = []model.Document{{"name": "Cairo"}, {"name": "Giza"}}
	sources := []model.DataSource{
		testSource("areas", model.PriorityLow, "city", "name"),
		brandSource(),
		testSource("cities", model.PriorityMedium, "name"),
	}

	summary, err := h.orchestrator(baseConfig(), nil).Run(context.Background(), sources)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSuccess, summary.Outcome)
	assert.NotEmpty(t, summary.RunID)
	assert.Zero(t, summary.TotalErrors)
	assert.Equal(t, []string{"carbrands", "cities", "areas"}, h.store.order)
	require.Len(t, summary.Sources, 3)
	for i, name := range []string{"carbrands", "cities", "areas"} {
		assert.Equal(t, name, summary.Sources[i].Name)
		assert.Equal(t, model.SourceCompleted, summary.Sources[i].Status)
	}

	brands, _ := summary.Source("carbrands")
	assert.Equal(t, int64(3), brands.Inserted)
	assert.Equal(t, []string{"name_1", "country_1"}, brands.IndexesCreated)
	assert.Len(t, h.docs(t, "areas"), 2)

	// logo uploads are off, so the source URL is kept
	assert.Equal(t, "https://logos.test/toyota.png", h.find(t, "carbrands", "name", "Toyota")["logo"])
	assert.Zero(t, h.fetcher.calls.Load())

	latest, err := h.reporter.Latest(context.Background())
	require.NoError(t, err)
	assert.Same(t, summary, latest)
}

func TestOrchestrator_RerunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["carbrands.json"] = brandDocs()
	cfg := baseConfig()
	cfg.Logo = LogoOptions{Enabled: true, Sizes: allSizes}
	o := h.orchestrator(cfg, nil)

	first, err := o.Run(context.Background(), []model.DataSource{brandSource()})
	require.NoError(t, err)
	require.Equal(t, model.OutcomeSuccess, first.Outcome)

	second, err := o.Run(context.Background(), []model.DataSource{brandSource()})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, second.Outcome)
	assert.NotEqual(t, first.RunID, second.RunID)

	s, _ := second.Source("carbrands")
	assert.Zero(t, s.Inserted)
	assert.Zero(t, s.Updated)
	assert.Equal(t, int64(3), s.Unchanged)
	assert.Zero(t, s.Deduplicated)
	assert.Zero(t, s.AssetsUploaded)
	assert.Empty(t, s.IndexesCreated)
	assert.Equal(t, []string{"name_1", "country_1"}, s.IndexesExisted)
	assert.Len(t, h.docs(t, "carbrands"), 3)
	assert.Equal(t, int32(3), h.fetcher.calls.Load())
}

func TestOrchestrator_TrimsKeysAndSkipsUnusableRecords(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["cities.json"] = []model.Document{
		{"name": "  Cairo "},
		{"name": "Cairo", "note": "repeat"},
		{"name": "   "},
		{"population": int64(5)},
		{"name": "Giza"},
	}
	summary, err := h.orchestrator(baseConfig(), nil).Run(context.Background(), []model.DataSource{testSource("cities", model.PriorityMedium, "name")})
	require.NoError(t, err)

	s, _ := summary.Source("cities")
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, int64(2), s.Inserted)
	assert.Equal(t, 3, s.Skipped)
	// repeated keys are not errors, missing keys are
	assert.Equal(t, 2, summary.TotalErrors)
	assert.Equal(t, 2, summary.ErrorsByKind[string(apperrors.ErrorTypeValidation)])
	assert.Equal(t, model.OutcomePartialFailure, summary.Outcome)
	assert.Nil(t, h.find(t, "cities", "name", "Cairo")["note"])
}

func TestOrchestrator_BatchesWithDelay(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["carparts.json"] = numberedDocs(25, "partNumber")
	src := testSource("carparts", model.PriorityMedium, "partNumber")
	src.BatchSize = 10
	src.BatchDelay = 50 * time.Millisecond

	rec := recordEvents(h.bus, eventbus.EventTypeBatchCompleted)
	summary, err := h.orchestrator(baseConfig(), nil).Run(context.Background(), []model.DataSource{src})
	require.NoError(t, err)

	s, _ := summary.Source("carparts")
	assert.Equal(t, 3, s.Batches)
	assert.Equal(t, int64(25), s.Inserted)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, h.sleeps)
	assert.Equal(t, 3, rec.count(eventbus.EventTypeBatchCompleted))
}

func TestOrchestrator_RetriesTransientBatchFailures(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["cities.json"] = numberedDocs(5, "name")
	var calls atomic.Int32
	h.store.SetFailHook(func(op memory.Op, _ string, _ []model.Document) error {
		if op == memory.OpUpsert && calls.Add(1) <= 2 {
			return apperrors.NewConnectionError("server selection timeout")
		}
		return nil
	})
	src := testSource("cities", model.PriorityMedium, "name")
	src = src.WithRetries(3)
	src.RetryBackoff = time.Millisecond

	var attempts int
	h.bus.Subscribe(eventbus.EventTypeBatchCompleted, func(ctx context.Context, e eventbus.Event) error {
		attempts = e.Data().(model.BatchEvent).Attempts
		return nil
	})

	summary, err := h.orchestrator(baseConfig(), nil).Run(context.Background(), []model.DataSource{src})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, summary.Outcome)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, attempts)
	assert.Len(t, h.docs(t, "cities"), 5)
}

func TestOrchestrator_DoesNotRetryValidationFailures(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["cities.json"] = numberedDocs(2, "name")
	var calls atomic.Int32
	h.store.SetFailHook(func(op memory.Op, _ string, _ []model.Document) error {
		if op == memory.OpUpsert {
			calls.Add(1)
			return apperrors.NewValidationError("document failed schema validation")
		}
		return nil
	})
	src := testSource("cities", model.PriorityMedium, "name")
	src = src.WithRetries(3)

	summary, err := h.orchestrator(baseConfig(), nil).Run(context.Background(), []model.DataSource{src})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	s, _ := summary.Source("cities")
	assert.Equal(t, model.SourceFailed, s.Status)
}

func failingCitiesHook() memory.FailHook {
	return func(op memory.Op, collection string, _ []model.Document) error {
		if op == memory.OpUpsert && collection == "cities" {
			return errBoom
		}
		return nil
	}
}

func TestOrchestrator_BatchFailureWithContinueOnError(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["cities.json"] = numberedDocs(3, "name")
	h.loader.datasets["areas.json"] = []model.Document{{"city": "Cairo", "name": "Maadi"}}
	h.store.SetFailHook(failingCitiesHook())
	cities := testSource("cities", model.PriorityHigh, "name")
	cities = cities.WithRetries(2)

	summary, err := h.orchestrator(baseConfig(), nil).Run(context.Background(), []model.DataSource{
		cities, testSource("areas", model.PriorityLow, "city", "name"),
	})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomePartialFailure, summary.Outcome)
	c, _ := summary.Source("cities")
	assert.Equal(t, model.SourceFailed, c.Status)
	assert.Equal(t, 1, c.FailedBatches)
	assert.Equal(t, 1, c.Errors)
	a, _ := summary.Source("areas")
	assert.Equal(t, model.SourceCompleted, a.Status)

	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "batch 1", summary.Errors[0].Key)
	assert.Equal(t, apperrors.ErrorTypeStorage, summary.Errors[0].Kind)
	assert.Contains(t, summary.Errors[0].Message, "after 3 attempts")
}

func TestOrchestrator_BatchFailureWithoutContinueOnError(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["cities.json"] = numberedDocs(3, "name")
	h.loader.datasets["areas.json"] = []model.Document{{"city": "Cairo", "name": "Maadi"}}
	h.store.SetFailHook(failingCitiesHook())
	cfg := baseConfig()
	cfg.ContinueOnError = false

	summary, err := h.orchestrator(cfg, nil).Run(context.Background(), []model.DataSource{
		testSource("cities", model.PriorityHigh, "name"), testSource("areas", model.PriorityLow, "city", "name"),
	})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeFatalFailure, summary.Outcome)
	assert.Contains(t, summary.AbortReason, "cities")
	a, _ := summary.Source("areas")
	assert.Equal(t, model.SourceAborted, a.Status)
	assert.Empty(t, h.docs(t, "areas"))
}

func TestOrchestrator_ErrorBudget(t *testing.T) {
	invalid := func(_ string, doc model.Document) error {
		if doc["valid"] == false {
			return apperrors.NewValidationError("rejected")
		}
		return nil
	}
	dataset := func(bad int) []model.Document {
		docs := numberedDocs(10, "partNumber")
		for i := 0; i < bad; i++ {
			docs[i]["valid"] = false
		}
		return docs
	}

	tests := []struct {
		name    string
		bad     int
		outcome model.Outcome
		parts   model.SourceStatus
		cities  model.SourceStatus
	}{
		{name: "over budget aborts the run", bad: 6, outcome: model.OutcomeFatalFailure, parts: model.SourceAborted, cities: model.SourceAborted},
		{name: "within budget is a partial failure", bad: 4, outcome: model.OutcomePartialFailure, parts: model.SourceCompleted, cities: model.SourceCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.loader.datasets["carparts.json"] = dataset(tt.bad)
			h.loader.datasets["cities.json"] = []model.Document{{"name": "Cairo"}}
			cfg := baseConfig()
			cfg.MaxErrors = 5

			summary, err := h.orchestrator(cfg, invalid).Run(context.Background(), []model.DataSource{
				testSource("carparts", model.PriorityCritical, "partNumber"),
				testSource("cities", model.PriorityLow, "name"),
			})
			require.NoError(t, err)

			assert.Equal(t, tt.outcome, summary.Outcome)
			assert.Equal(t, tt.bad, summary.TotalErrors)
			p, _ := summary.Source("carparts")
			assert.Equal(t, tt.parts, p.Status)
			c, _ := summary.Source("cities")
			assert.Equal(t, tt.cities, c.Status)
			if tt.outcome == model.OutcomeFatalFailure {
				assert.Contains(t, summary.AbortReason, "error budget exceeded")
				assert.Empty(t, h.docs(t, "carparts"))
				return
			}
			assert.Len(t, h.docs(t, "carparts"), 10-tt.bad)
		})
	}
}

func TestOrchestrator_StrictValidationAbortsOnFirstRejection(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["obd_error_codes.json"] = []model.Document{{"code": "P0001"}, {"code": "X123"}, {"code": "P0002"}}
	cfg := baseConfig()
	cfg.StrictValidation = true
	validator := func(_ string, doc model.Document) error {
		if doc.GetString("code")[0] != 'P' {
			return apperrors.NewValidationError("bad code")
		}
		return nil
	}

	summary, err := h.orchestrator(cfg, validator).Run(context.Background(), []model.DataSource{
		testSource("obd_error_codes", model.PriorityHigh, "code"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeFatalFailure, summary.Outcome)
	assert.Contains(t, summary.AbortReason, "strict validation")
	s, _ := summary.Source("obd_error_codes")
	assert.Equal(t, model.SourceAborted, s.Status)
	assert.Empty(t, h.docs(t, "obd_error_codes"))
}

func TestOrchestrator_UploadsLogosAndRemovesOrphans(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["carbrands.json"] = brandDocs()
	putObjects(t, h.blobs, "brands/.keep", "brands/opel/64.png", "brands/opel/128.png")
	cfg := baseConfig()
	cfg.Logo = LogoOptions{Enabled: true, Sizes: allSizes}
	cfg.Orphans = OrphanOptions{Enabled: true}

	summary, err := h.orchestrator(cfg, nil).Run(context.Background(), []model.DataSource{brandSource()})
	require.NoError(t, err)
	require.Equal(t, model.OutcomeSuccess, summary.Outcome)

	s, _ := summary.Source("carbrands")
	assert.Equal(t, 15, s.AssetsUploaded)
	assert.Zero(t, s.AssetsFailed)
	assert.Equal(t, testPublicBase+"/brands/toyota/512.png", h.find(t, "carbrands", "name", "Toyota")["logo"])
	assert.Equal(t, int32(3), h.fetcher.calls.Load())

	require.NotNil(t, summary.Reconciliation)
	assert.Equal(t, 2, summary.Reconciliation.Count(model.OrphanDeleted))
	assert.Equal(t, []string{"bmw", "kia", "toyota"}, summary.Reconciliation.LiveKeys["brands"])
	ok, err := h.blobs.Exists(context.Background(), "brands/opel/64.png")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = h.blobs.Exists(context.Background(), "brands/.keep")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOrchestrator_LogoFailureFallsBackToSourceURL(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["carbrands.json"] = brandDocs()
	h.fetcher.err = apperrors.NewStorageError("logo download returned 404")
	cfg := baseConfig()
	cfg.Logo = LogoOptions{Enabled: true, Sizes: []int{64, 128}}

	summary, err := h.orchestrator(cfg, nil).Run(context.Background(), []model.DataSource{brandSource()})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomePartialFailure, summary.Outcome)
	s, _ := summary.Source("carbrands")
	assert.Equal(t, model.SourceCompleted, s.Status)
	assert.Equal(t, int64(3), s.Inserted)
	assert.Equal(t, 6, s.AssetsFailed)
	assert.Equal(t, 3, summary.TotalErrors)
	assert.Equal(t, 3, summary.ErrorsByKind[string(apperrors.ErrorTypeStorage)])
	assert.Equal(t, "https://logos.test/bmw.png", h.find(t, "carbrands", "name", "BMW")["logo"])
}

func TestOrchestrator_RecordWithoutLogoSourceIsNotAnError(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["carbrands.json"] = []model.Document{{"name": "Lada", "country": "Russia"}}
	cfg := baseConfig()
	cfg.Logo = LogoOptions{Enabled: true, Sizes: []int{64}}

	summary, err := h.orchestrator(cfg, nil).Run(context.Background(), []model.DataSource{brandSource()})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, summary.Outcome)
	assert.Zero(t, h.fetcher.calls.Load())
	_, hasLogo := h.find(t, "carbrands", "name", "Lada")["logo"]
	assert.False(t, hasLogo)
}

func TestOrchestrator_PipelinesBatches(t *testing.T) {
	h := newHarness(t)
	h.store.delay = 30 * time.Millisecond
	h.loader.datasets["carparts.json"] = numberedDocs(40, "partNumber")
	src := testSource("carparts", model.PriorityMedium, "partNumber")
	src.BatchSize = 5
	cfg := baseConfig()
	cfg.MaxInFlightBatches = 3

	summary, err := h.orchestrator(cfg, nil).Run(context.Background(), []model.DataSource{src})
	require.NoError(t, err)

	s, _ := summary.Source("carparts")
	assert.Equal(t, 8, s.Batches)
	assert.Equal(t, int64(40), s.Inserted)
	assert.LessOrEqual(t, h.store.maxInFlight.Load(), int32(3))
	assert.Greater(t, h.store.maxInFlight.Load(), int32(1))
}

func TestOrchestrator_BackupsAndRetention(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["cities.json"] = []model.Document{{"name": "Cairo"}}
	cfg := baseConfig()
	cfg.Backup = BackupOptions{Enabled: true, BeforeSeed: true, AfterSeed: true, RetentionCount: 2}
	o := h.orchestrator(cfg, nil)
	sources := []model.DataSource{testSource("cities", model.PriorityMedium, "name")}

	// nothing to protect before the first seed
	first, err := o.Run(context.Background(), sources)
	require.NoError(t, err)
	require.Len(t, first.Backups, 1)
	assert.Equal(t, int64(1), first.Backups[0].DocumentCount)

	second, err := o.Run(context.Background(), sources)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, second.Outcome)
	assert.Len(t, second.Backups, 2)

	list, err := h.backups.ListBackups(context.Background(), "cities")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, second.Backups[1].Name, list[1].Name)
}

func TestOrchestrator_DisabledAndMissingSources(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["areas.json"] = []model.Document{{"city": "Cairo", "name": "Maadi"}}
	disabled := testSource("carmodels", model.PriorityHigh, "brandName", "name")
	disabled.Enabled = false

	summary, err := h.orchestrator(baseConfig(), nil).Run(context.Background(), []model.DataSource{
		disabled,
		testSource("cities", model.PriorityMedium, "name"),
		testSource("areas", model.PriorityLow, "city", "name"),
	})
	require.NoError(t, err)

	m, _ := summary.Source("carmodels")
	assert.Equal(t, model.SourceDisabled, m.Status)
	c, _ := summary.Source("cities")
	assert.Equal(t, model.SourceFailed, c.Status)
	a, _ := summary.Source("areas")
	assert.Equal(t, model.SourceCompleted, a.Status)

	require.Len(t, summary.Errors, 1)
	assert.Equal(t, apperrors.ErrorTypeNotFound, summary.Errors[0].Kind)
	assert.Equal(t, "cities.json", summary.Errors[0].Key)
	assert.Equal(t, model.OutcomePartialFailure, summary.Outcome)
}

func TestOrchestrator_RejectsDuplicateSourceNames(t *testing.T) {
	h := newHarness(t)
	_, err := h.orchestrator(baseConfig(), nil).Run(context.Background(), []model.DataSource{
		testSource("cities", model.PriorityMedium, "name"),
		testSource("cities", model.PriorityLow, "name"),
	})
	assert.True(t, apperrors.IsValidation(err))
}

func TestOrchestrator_LiveKeyFailureSkipsReconciliation(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["carbrands.json"] = brandDocs()
	putObjects(t, h.blobs, "brands/opel/64.png")
	h.store.SetFailHook(func(op memory.Op, _ string, _ []model.Document) error {
		if op == memory.OpDistinct {
			return apperrors.NewConnectionError("connection reset")
		}
		return nil
	})
	cfg := baseConfig()
	cfg.Orphans = OrphanOptions{Enabled: true, DryRun: true}

	summary, err := h.orchestrator(cfg, nil).Run(context.Background(), []model.DataSource{brandSource()})
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Nil(t, summary.Reconciliation)
	assert.Equal(t, 1, summary.ErrorsBySource["assets"])
	ok, err := h.blobs.Exists(context.Background(), "brands/opel/64.png")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOrchestrator_FailedAssetSourceRetainsItsAssets(t *testing.T) {
	h := newHarness(t)
	h.loader.datasets["cities.json"] = numberedDocs(2, "name")
	putObjects(t, h.blobs, "brands/toyota/64.png", "brands/bmw/64.png")
	cfg := baseConfig()
	cfg.Orphans = OrphanOptions{Enabled: true}

	summary, err := h.orchestrator(cfg, nil).Run(context.Background(), []model.DataSource{
		brandSource(), testSource("cities", model.PriorityMedium, "name"),
	})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomePartialFailure, summary.Outcome)
	b, _ := summary.Source("carbrands")
	assert.Equal(t, model.SourceFailed, b.Status)
	c, _ := summary.Source("cities")
	assert.Equal(t, model.SourceCompleted, c.Status)
	assert.Nil(t, summary.Reconciliation)
	for _, key := range []string{"brands/toyota/64.png", "brands/bmw/64.png"} {
		ok, err := h.blobs.Exists(context.Background(), key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}
}

func TestOrchestrator_FailedAssetSourceIgnoresStaleStoreKeys(t *testing.T) {
	h := newHarness(t)
	h.store.Seed("carbrands", model.Document{"name": "Toyota"})
	putObjects(t, h.blobs, "brands/toyota/64.png", "brands/opel/64.png")
	cfg := baseConfig()
	cfg.Orphans = OrphanOptions{Enabled: true}

	summary, err := h.orchestrator(cfg, nil).Run(context.Background(), []model.DataSource{brandSource()})
	require.NoError(t, err)

	b, _ := summary.Source("carbrands")
	assert.Equal(t, model.SourceFailed, b.Status)
	assert.Nil(t, summary.Reconciliation)
	ok, err := h.blobs.Exists(context.Background(), "brands/opel/64.png")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOrchestrator_LiveKeysOmitsEmptyCategories(t *testing.T) {
	h := newHarness(t)
	h.store.Seed("payment_methods", model.Document{"name": "Fawry"})
	payments := testSource("payment_methods", model.PriorityMedium, "name")
	payments.Asset = &model.AssetBinding{Category: "payment-methods", KeyField: "name"}

	live, err := h.orchestrator(baseConfig(), nil).LiveKeys(context.Background(), []model.DataSource{brandSource(), payments})
	require.NoError(t, err)

	_, hasBrands := live["brands"]
	assert.False(t, hasBrands)
	assert.Equal(t, []string{"Fawry"}, live["payment-methods"])
}
