package config

import (
	"fmt"
	"strings"
	"time"

	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/shared/database"
	apperrors "refdata-seeder/internal/shared/errors"

	"github.com/caarlos0/env/v6"
)

// StorageConfig holds the blob store settings
type StorageConfig struct {
	BucketURL            string   `env:"STORAGE_BUCKET_URL" json:"bucketUrl"`
	PublicBaseURL        string   `env:"STORAGE_PUBLIC_BASE_URL" json:"publicBaseUrl"`
	MaxConcurrentUploads int      `env:"STORAGE_MAX_CONCURRENT_UPLOADS" envDefault:"4" json:"maxConcurrentUploads"`
	PlaceholderNames     []string `env:"STORAGE_PLACEHOLDER_NAMES" envDefault:".keep,.placeholder,.gitkeep" envSeparator:"," json:"placeholderNames"`
	CacheControl         string   `env:"STORAGE_CACHE_CONTROL" envDefault:"public, max-age=31536000, immutable" json:"cacheControl"`
}

// SeedConfig holds the run policy and the per-source defaults
type SeedConfig struct {
	BatchSize          int           `env:"SEED_BATCH_SIZE" envDefault:"100" json:"batchSize"`
	BatchDelay         time.Duration `env:"SEED_BATCH_DELAY" envDefault:"100ms" json:"batchDelay"`
	MaxRetries         int           `env:"SEED_MAX_RETRIES" envDefault:"3" json:"maxRetries"`
	RetryBackoff       time.Duration `env:"SEED_RETRY_BACKOFF" envDefault:"1s" json:"retryBackoff"`
	MaxInFlightBatches int           `env:"SEED_MAX_IN_FLIGHT_BATCHES" envDefault:"1" json:"maxInFlightBatches"`
	ContinueOnError    bool          `env:"SEED_CONTINUE_ON_ERROR" envDefault:"true" json:"continueOnError"`
	MaxErrors          int           `env:"SEED_MAX_ERRORS" envDefault:"50" json:"maxErrors"`
	StrictValidation   bool          `env:"SEED_STRICT_VALIDATION" envDefault:"false" json:"strictValidation"`
	DataDir            string        `env:"SEED_DATA_DIR" envDefault:"./data" json:"dataDir"`
	SourcesFile        string        `env:"SEED_SOURCES_FILE" json:"sourcesFile"`
}

// LogoConfig controls logo fetching and variant uploads
type LogoConfig struct {
	UploadEnabled bool          `env:"LOGO_UPLOAD_ENABLED" envDefault:"true" json:"uploadEnabled"`
	Sizes         []int         `env:"LOGO_SIZES" envDefault:"32,64,128,256,512" envSeparator:"," json:"sizes"`
	FetchTimeout  time.Duration `env:"LOGO_FETCH_TIMEOUT" envDefault:"15s" json:"fetchTimeout"`
	MaxBytes      int           `env:"LOGO_MAX_BYTES" envDefault:"5242880" json:"maxBytes"`
}

// BackupConfig controls snapshots around a run
type BackupConfig struct {
	Enabled        bool `env:"BACKUP_ENABLED" envDefault:"true" json:"enabled"`
	BeforeSeed     bool `env:"BACKUP_BEFORE_SEED" envDefault:"true" json:"beforeSeed"`
	AfterSeed      bool `env:"BACKUP_AFTER_SEED" envDefault:"false" json:"afterSeed"`
	RetentionCount int  `env:"BACKUP_RETENTION_COUNT" envDefault:"5" json:"retentionCount"`
}

// OrphanConfig controls blob reconciliation after a run
type OrphanConfig struct {
	CleanupEnabled bool `env:"ORPHAN_CLEANUP_ENABLED" envDefault:"true" json:"cleanupEnabled"`
	DryRun         bool `env:"ORPHAN_CLEANUP_DRY_RUN" envDefault:"false" json:"dryRun"`
}

// RedisConfig holds the run history stream settings. An empty Addr disables it.
type RedisConfig struct {
	Addr         string        `env:"REDIS_ADDR" json:"addr"`
	Password     string        `env:"REDIS_PASSWORD" json:"-"`
	DB           int           `env:"REDIS_DB" envDefault:"0" json:"db"`
	RunStream    string        `env:"REDIS_RUN_STREAM" envDefault:"seeding:runs" json:"runStream"`
	StreamMaxLen int64         `env:"REDIS_STREAM_MAX_LEN" envDefault:"100" json:"streamMaxLen"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"5" json:"poolSize"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s" json:"dialTimeout"`
}

// Enabled reports whether run history is persisted to Redis
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// StatusConfig holds the status server settings
type StatusConfig struct {
	ListenAddr string `env:"STATUS_LISTEN_ADDR" envDefault:":9200" json:"listenAddr"`
}

// LogConfig selects the logging backend
type LogConfig struct {
	Level   string `env:"LOG_LEVEL" envDefault:"info" json:"level"`
	Format  string `env:"LOG_FORMAT" envDefault:"text" json:"format"`
	Backend string `env:"LOG_BACKEND" envDefault:"logrus" json:"backend"`
}

// Config holds all configuration for the seeding engine
type Config struct {
	Database database.ConnectionConfig `json:"database"`
	Storage  StorageConfig             `json:"storage"`
	Seed     SeedConfig                `json:"seed"`
	Logo     LogoConfig                `json:"logo"`
	Backup   BackupConfig              `json:"backup"`
	Orphan   OrphanConfig              `json:"orphan"`
	Redis    RedisConfig               `json:"redis"`
	Status   StatusConfig              `json:"status"`
	Log      LogConfig                 `json:"log"`

	// Sources is filled from the built-in defaults and the optional sources file
	Sources []model.DataSource `json:"sources"`
}

// LoadConfig loads configuration from environment variables, merges the
// sources file when one is configured and validates the result.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, apperrors.NewValidationError("failed to load configuration from environment").WithCause(err)
	}

	sources := DefaultSources()
	if cfg.Seed.SourcesFile != "" {
		file, err := LoadSourcesFile(cfg.Seed.SourcesFile)
		if err != nil {
			return nil, err
		}
		sources = file.Merge(sources)
	}
	cfg.Sources = ApplySourceDefaults(sources, cfg.Seed)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplySourceDefaults fills zero per-source settings from the global seed settings
func ApplySourceDefaults(sources []model.DataSource, seed SeedConfig) []model.DataSource {
	out := make([]model.DataSource, len(sources))
	for i, src := range sources {
		if src.BatchSize <= 0 {
			src.BatchSize = seed.BatchSize
		}
		if src.BatchDelay <= 0 {
			src.BatchDelay = seed.BatchDelay
		}
		if src.MaxRetries == nil {
			src = src.WithRetries(seed.MaxRetries)
		}
		if src.RetryBackoff <= 0 {
			src.RetryBackoff = seed.RetryBackoff
		}
		if src.Collection == "" {
			src.Collection = src.Name
		}
		out[i] = src
	}
	return out
}

// Validate checks the whole configuration. It never dials anything.
func (c *Config) Validate() error {
	ve := apperrors.NewValidationErrors()

	if err := c.Database.Validate(); err != nil {
		if dbErrs, ok := err.(*apperrors.ValidationErrors); ok {
			ve.Errors = append(ve.Errors, dbErrs.Errors...)
		}
	}

	if c.Storage.BucketURL == "" {
		ve.Add("STORAGE_BUCKET_URL", "is required", c.Storage.BucketURL)
	}
	if c.Storage.MaxConcurrentUploads <= 0 {
		ve.Add("STORAGE_MAX_CONCURRENT_UPLOADS", "must be positive", c.Storage.MaxConcurrentUploads)
	}
	if c.Seed.BatchSize <= 0 {
		ve.Add("SEED_BATCH_SIZE", "must be positive", c.Seed.BatchSize)
	}
	if c.Seed.MaxRetries < 0 {
		ve.Add("SEED_MAX_RETRIES", "must not be negative", c.Seed.MaxRetries)
	}
	if c.Seed.MaxInFlightBatches <= 0 {
		ve.Add("SEED_MAX_IN_FLIGHT_BATCHES", "must be positive", c.Seed.MaxInFlightBatches)
	}
	if c.Seed.MaxErrors < 0 {
		ve.Add("SEED_MAX_ERRORS", "must not be negative", c.Seed.MaxErrors)
	}
	if c.Logo.UploadEnabled {
		if len(c.Logo.Sizes) == 0 {
			ve.Add("LOGO_SIZES", "must list at least one size", c.Logo.Sizes)
		}
		for _, s := range c.Logo.Sizes {
			if s <= 0 {
				ve.Add("LOGO_SIZES", "sizes must be positive", s)
			}
		}
	}
	if c.Backup.RetentionCount < 0 {
		ve.Add("BACKUP_RETENTION_COUNT", "must not be negative", c.Backup.RetentionCount)
	}
	if c.Redis.Enabled() && c.Redis.RunStream == "" {
		ve.Add("REDIS_RUN_STREAM", "is required when REDIS_ADDR is set", c.Redis.RunStream)
	}
	switch strings.ToLower(c.Log.Backend) {
	case "logrus", "zap":
	default:
		ve.Add("LOG_BACKEND", "must be logrus or zap", c.Log.Backend)
	}

	validateSources(ve, c.Sources)

	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateSources(ve *apperrors.ValidationErrors, sources []model.DataSource) {
	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		field := "sources." + src.Name
		if src.Name == "" {
			ve.Add("sources", "every source needs a name", src.Collection)
			continue
		}
		if seen[src.Name] {
			ve.Add(field, "is declared twice", src.Name)
		}
		seen[src.Name] = true

		if src.Priority.Rank() == 0 {
			ve.Add(field+".priority", "must be critical, high, medium or low", src.Priority)
		}
		if len(src.NaturalKey) == 0 {
			ve.Add(field+".naturalKey", "must name at least one field", src.NaturalKey)
		}
		if src.Dataset == "" {
			ve.Add(field+".dataset", "is required", src.Dataset)
		}
		if src.BatchSize <= 0 {
			ve.Add(field+".batchSize", "must be positive", src.BatchSize)
		}
		if src.MaxRetries != nil && *src.MaxRetries < 0 {
			ve.Add(field+".maxRetries", "must not be negative", *src.MaxRetries)
		}
		for i, ix := range src.Indexes {
			if err := ix.Validate(); err != nil {
				ve.Add(fmt.Sprintf("%s.indexes[%d]", field, i), err.Error(), ix)
			}
		}
		if src.Asset != nil {
			if _, ok := model.CategoryByName(src.Asset.Category); !ok {
				ve.Add(field+".asset.category", "is not a known asset category", src.Asset.Category)
			}
			if src.Asset.KeyField == "" {
				ve.Add(field+".asset.keyField", "is required", src.Asset.KeyField)
			}
		}
	}
}
