package di

import (
	"context"
	"sync"
	"time"

	"refdata-seeder/internal/seeding/adapter/blobstore"
	"refdata-seeder/internal/seeding/adapter/dataset"
	statushttp "refdata-seeder/internal/seeding/adapter/http"
	"refdata-seeder/internal/seeding/adapter/logo"
	"refdata-seeder/internal/seeding/adapter/persistence"
	"refdata-seeder/internal/seeding/adapter/persistence/memory"
	"refdata-seeder/internal/seeding/adapter/persistence/mongodb"
	"refdata-seeder/internal/seeding/config"
	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/seeding/domain/repository"
	"refdata-seeder/internal/seeding/metrics"
	"refdata-seeder/internal/seeding/usecase"
	"refdata-seeder/internal/seeding/validation"
	"refdata-seeder/internal/shared/database"
	"refdata-seeder/internal/shared/eventbus"
	"refdata-seeder/internal/shared/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

const closeTimeout = 30 * time.Second

// Option customizes container construction
type Option func(*Container)

// WithDialer replaces the MongoDB dialer
func WithDialer(d database.Dialer) Option {
	return func(c *Container) { c.dialer = d }
}

// WithDocumentStore uses store instead of connecting to MongoDB
func WithDocumentStore(store repository.DocumentStore) Option {
	return func(c *Container) { c.Store = store }
}

// WithRenderer replaces the PNG variant renderer
func WithRenderer(r repository.VariantRenderer) Option {
	return func(c *Container) { c.renderer = r }
}

// WithFetcher replaces the HTTP logo fetcher
func WithFetcher(f repository.LogoFetcher) Option {
	return func(c *Container) { c.Fetcher = f }
}

// Container builds every external resource of the engine once and owns its lifecycle
type Container struct {
	mu     sync.Mutex
	closed bool

	Config *config.Config
	Logger logger.Logger

	// External resources
	Connections *database.ConnectionManager
	Store       repository.DocumentStore
	Blobs       *blobstore.BucketStore
	Redis       *redis.Client
	Runs        repository.RunReporter

	// Ambient services
	Bus      *eventbus.EventBus
	Registry *prometheus.Registry
	Metrics  *metrics.Collectors

	// Seeding components
	Loader       repository.DatasetLoader
	Fetcher      repository.LogoFetcher
	Validator    *validation.RuleValidator
	Reconciler   *usecase.CollectionReconciler
	Assets       *usecase.AssetManager
	Backups      *usecase.BackupManager
	Orphans      *usecase.OrphanReconciler
	Orchestrator *usecase.Orchestrator

	dialer   database.Dialer
	renderer repository.VariantRenderer
}

// NewContainer connects to the configured stores and wires the seeding
// components. Resources opened before a failure are released before returning.
func NewContainer(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*Container, error) {
	if log == nil {
		log = logger.NewNop()
	}
	c := &Container{Config: cfg, Logger: log}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.build(ctx); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		return nil, multierr.Append(err, c.Close(closeCtx))
	}
	return c, nil
}

func (c *Container) build(ctx context.Context) error {
	cfg := c.Config

	if c.Store == nil {
		c.Connections = database.NewConnectionManager(&cfg.Database, c.dialer, c.Logger)
		db, err := c.Connections.Connect(ctx)
		if err != nil {
			return err
		}
		c.Store = mongodb.NewDocumentStore(mongodb.NewDatabase(db), c.Logger)
	}

	blobs, err := blobstore.Open(ctx, cfg.Storage.BucketURL, cfg.Storage.PublicBaseURL, c.Logger)
	if err != nil {
		return err
	}
	c.Blobs = blobs

	if cfg.Redis.Enabled() {
		c.Redis = config.NewRedisClient(cfg.Redis)
		c.Runs = persistence.NewRedisRunStore(c.Redis, cfg.Redis.RunStream, cfg.Redis.StreamMaxLen, c.Logger)
	} else {
		c.Runs = memory.NewRunReporter()
	}

	c.Bus = eventbus.NewEventBus(c.Logger)
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if c.Metrics, err = metrics.New(c.Registry); err != nil {
		return err
	}
	c.Metrics.Subscribe(c.Bus)

	if c.Validator, err = validation.NewRuleValidator(); err != nil {
		return err
	}
	if err := c.Validator.RegisterSources(cfg.Sources); err != nil {
		return err
	}

	if c.renderer == nil {
		c.renderer = logo.NewPNGRenderer()
	}
	if c.Fetcher == nil {
		c.Fetcher = logo.NewHTTPFetcher(cfg.Logo.FetchTimeout, cfg.Logo.MaxBytes)
	}
	c.Loader = dataset.NewLoader(cfg.Seed.DataDir)

	c.Reconciler = usecase.NewCollectionReconciler(c.Store, c.Logger)
	c.Assets = usecase.NewAssetManager(c.Blobs, c.renderer, usecase.AssetManagerConfig{
		MaxConcurrentUploads: cfg.Storage.MaxConcurrentUploads,
		CacheControl:         cfg.Storage.CacheControl,
		PlaceholderNames:     cfg.Storage.PlaceholderNames,
	}, c.Bus, c.Logger)
	c.Backups = usecase.NewBackupManager(c.Store, c.Bus, c.Logger)
	c.Orphans = usecase.NewOrphanReconciler(c.Blobs, cfg.Storage.PlaceholderNames, c.Bus, c.Logger)

	c.Orchestrator = usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Store:      c.Store,
		Loader:     c.Loader,
		Reconciler: c.Reconciler,
		Assets:     c.Assets,
		Fetcher:    c.Fetcher,
		Backups:    c.Backups,
		Orphans:    c.Orphans,
		Validator:  c.Validator,
		Reporter:   c.Runs,
		Bus:        c.Bus,
	}, OrchestratorConfig(cfg), c.Logger)
	return nil
}

// OrchestratorConfig maps the loaded configuration onto the run policy
func OrchestratorConfig(cfg *config.Config) usecase.OrchestratorConfig {
	return usecase.OrchestratorConfig{
		ContinueOnError:    cfg.Seed.ContinueOnError,
		MaxErrors:          cfg.Seed.MaxErrors,
		StrictValidation:   cfg.Seed.StrictValidation,
		MaxInFlightBatches: cfg.Seed.MaxInFlightBatches,
		Logo: usecase.LogoOptions{
			Enabled: cfg.Logo.UploadEnabled,
			Sizes:   cfg.Logo.Sizes,
		},
		Backup: usecase.BackupOptions{
			Enabled:        cfg.Backup.Enabled,
			BeforeSeed:     cfg.Backup.BeforeSeed,
			AfterSeed:      cfg.Backup.AfterSeed,
			RetentionCount: cfg.Backup.RetentionCount,
		},
		Orphans: usecase.OrphanOptions{
			Enabled: cfg.Orphan.CleanupEnabled,
			DryRun:  cfg.Orphan.DryRun,
		},
	}
}

// StatusHandler builds the read-only status endpoints over the container's resources
func (c *Container) StatusHandler() *statushttp.StatusHandler {
	return statushttp.NewStatusHandler(c, c.Assets, c.Runs, c.Registry, c.Logger)
}

// Health probes every configured external resource
func (c *Container) Health(ctx context.Context) model.HealthReport {
	report := model.HealthReport{
		Healthy:    true,
		CheckedAt:  time.Now().UTC(),
		Components: make(map[string]model.ComponentHealth),
	}
	set := func(name string, h model.ComponentHealth) {
		report.Components[name] = h
		if h.State != string(database.HealthHealthy) {
			report.Healthy = false
		}
	}

	if c.Connections != nil {
		s := c.Connections.HealthCheck(ctx)
		set("mongodb", model.ComponentHealth{State: string(s.State), Message: s.Message, Latency: s.Latency})
	}
	if c.Blobs != nil {
		set("storage", probe(ctx, c.Blobs.Ping))
	}
	if c.Redis != nil {
		set("redis", probe(ctx, func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() }))
	}
	return report
}

func probe(ctx context.Context, ping func(context.Context) error) model.ComponentHealth {
	start := time.Now()
	err := ping(ctx)
	h := model.ComponentHealth{State: string(database.HealthHealthy), Latency: time.Since(start)}
	if err != nil {
		h.State = string(database.HealthUnhealthy)
		h.Message = err.Error()
	}
	return h
}

// Close releases every resource in reverse order of construction. It is safe to call more than once.
func (c *Container) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs error
	if c.Redis != nil {
		errs = multierr.Append(errs, c.Redis.Close())
	}
	if c.Blobs != nil {
		errs = multierr.Append(errs, c.Blobs.Close())
	}
	if c.Connections != nil {
		errs = multierr.Append(errs, c.Connections.Disconnect(ctx))
	}
	if errs != nil {
		c.Logger.Warnf("Container closed with errors: %v", errs)
		return errs
	}
	c.Logger.Debug("Container resources released")
	return nil
}
