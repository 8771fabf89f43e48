package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"refdata-seeder/internal/seeding/domain/model"
	apperrors "refdata-seeder/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("STORAGE_BUCKET_URL", "mem://")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "clutch", cfg.Database.Database)
	assert.Equal(t, uint64(50), cfg.Database.MaxPoolSize)
	assert.Equal(t, 10*time.Second, cfg.Database.ServerSelectionTimeout)
	assert.Equal(t, 4, cfg.Storage.MaxConcurrentUploads)
	assert.Equal(t, []string{".keep", ".placeholder", ".gitkeep"}, cfg.Storage.PlaceholderNames)
	assert.Equal(t, 100, cfg.Seed.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Seed.BatchDelay)
	assert.True(t, cfg.Seed.ContinueOnError)
	assert.Equal(t, 50, cfg.Seed.MaxErrors)
	assert.Equal(t, []int{32, 64, 128, 256, 512}, cfg.Logo.Sizes)
	assert.Equal(t, 5, cfg.Backup.RetentionCount)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, ":9200", cfg.Status.ListenAddr)

	require.Len(t, cfg.Sources, len(DefaultSources()))
	for _, src := range cfg.Sources {
		assert.Equal(t, 100, src.BatchSize, src.Name)
		assert.Equal(t, 3, src.Retries(), src.Name)
		assert.Equal(t, time.Second, src.RetryBackoff, src.Name)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SEED_BATCH_SIZE", "25")
	t.Setenv("SEED_CONTINUE_ON_ERROR", "false")
	t.Setenv("LOGO_SIZES", "64,128")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Seed.BatchSize)
	assert.False(t, cfg.Seed.ContinueOnError)
	assert.Equal(t, []int{64, 128}, cfg.Logo.Sizes)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 25, cfg.Sources[0].BatchSize)
}

func TestLoadConfig_FailsFastOnInvalidValues(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	t.Setenv("STORAGE_BUCKET_URL", "")
	t.Setenv("SEED_BATCH_SIZE", "0")
	t.Setenv("LOG_BACKEND", "stdout")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	ve, ok := err.(*apperrors.ValidationErrors)
	require.True(t, ok)
	fields := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "MONGODB_URI")
	assert.Contains(t, fields, "STORAGE_BUCKET_URL")
	assert.Contains(t, fields, "SEED_BATCH_SIZE")
	assert.Contains(t, fields, "LOG_BACKEND")
}

func TestLoadConfig_SourcesFile(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - name: cities
    collection: cities
    priority: high
    naturalKey: [name, governorate]
    dataset: egypt-cities.json
    batchSize: 10
    maxRetries: 0
  - name: service_catalog
    priority: low
    naturalKey: [code]
    dataset: service-catalog.json
    retryBackoff: 250ms
`), 0o600))
	t.Setenv("SEED_SOURCES_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Sources, len(DefaultSources())+1)

	var cities, catalog model.DataSource
	for _, src := range cfg.Sources {
		switch src.Name {
		case "cities":
			cities = src
		case "service_catalog":
			catalog = src
		}
	}
	assert.Equal(t, model.PriorityHigh, cities.Priority)
	assert.Equal(t, model.NaturalKey{"name", "governorate"}, cities.NaturalKey)
	assert.Equal(t, 10, cities.BatchSize)
	assert.True(t, cities.Enabled)
	require.NotNil(t, cities.MaxRetries)
	assert.Equal(t, 0, cities.Retries(), "an explicit zero disables retries")

	assert.Equal(t, "service_catalog", catalog.Collection)
	assert.Equal(t, 250*time.Millisecond, catalog.RetryBackoff)
	assert.Equal(t, 100, catalog.BatchSize)
	assert.Equal(t, 3, catalog.Retries())
}

func TestParseSources(t *testing.T) {
	file, err := ParseSources([]byte(`
replaceDefaults: true
sources:
  - name: carbrands
    enabled: false
    naturalKey: [name]
    dataset: brands.json
`))
	require.NoError(t, err)
	merged := file.Merge(DefaultSources())
	require.Len(t, merged, 1)
	assert.False(t, merged[0].Enabled)
	assert.Equal(t, model.PriorityMedium, merged[0].Priority)

	_, err = ParseSources([]byte("sources:\n  - name: x\n    priority: urgent\n"))
	assert.True(t, apperrors.IsValidation(err))

	_, err = ParseSources([]byte("unknown: 1\n"))
	assert.True(t, apperrors.IsValidation(err))

	empty, err := ParseSources(nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Sources)
}

func TestValidate_Sources(t *testing.T) {
	cfg := &Config{}
	cfg.Sources = []model.DataSource{
		model.DataSource{Name: "a", Priority: "urgent", BatchSize: 1, Dataset: "a.json"}.WithRetries(-1),
		{Name: "a", Priority: model.PriorityLow, NaturalKey: model.NaturalKey{"k"}, BatchSize: 1, Dataset: "a.json",
			Asset: &model.AssetBinding{Category: "stickers"}},
	}
	ve := newErrs()
	validateSources(ve, cfg.Sources)

	fields := make(map[string]bool)
	for _, e := range ve.Errors {
		fields[e.Field] = true
	}
	assert.True(t, fields["sources.a.priority"])
	assert.True(t, fields["sources.a.maxRetries"])
	assert.True(t, fields["sources.a.naturalKey"])
	assert.True(t, fields["sources.a"])
	assert.True(t, fields["sources.a.asset.category"])
	assert.True(t, fields["sources.a.asset.keyField"])
}

func TestDefaultSources_AreValid(t *testing.T) {
	ve := newErrs()
	validateSources(ve, ApplySourceDefaults(DefaultSources(), SeedConfig{BatchSize: 100}))
	assert.False(t, ve.HasErrors(), ve.Error())

	sorted := model.SortByPriority(DefaultSources())
	assert.Equal(t, "carbrands", sorted[0].Name)
	assert.Equal(t, "areas", sorted[len(sorted)-1].Name)
}

func newErrs() *apperrors.ValidationErrors {
	return apperrors.NewValidationErrors()
}
