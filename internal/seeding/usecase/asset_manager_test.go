package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"refdata-seeder/internal/seeding/adapter/logo"
	"refdata-seeder/internal/seeding/domain/model"
	apperrors "refdata-seeder/internal/shared/errors"
	"refdata-seeder/internal/shared/eventbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allSizes = []int{32, 64, 128, 256, 512}

type eventRecorder struct {
	mu     sync.Mutex
	events map[string][]eventbus.Event
}

func recordEvents(bus *eventbus.EventBus, types ...string) *eventRecorder {
	r := &eventRecorder{events: make(map[string][]eventbus.Event)}
	for _, typ := range types {
		bus.Subscribe(typ, func(ctx context.Context, e eventbus.Event) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events[e.Type()] = append(r.events[e.Type()], e)
			return nil
		})
	}
	return r
}

func (r *eventRecorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events[typ])
}

func TestAssetManager_UploadVariants_OneFailingSize(t *testing.T) {
	ctx := context.Background()
	blobs := &flakyBlobs{
		BlobStore: newMemBlobs(t),
		failPut: func(key string) error {
			if strings.HasSuffix(key, "/128.png") {
				return apperrors.NewStorageError("upload failed")
			}
			return nil
		},
	}
	bus := eventbus.NewEventBus(nil)
	rec := recordEvents(bus, eventbus.EventTypeAssetUploaded, eventbus.EventTypeAssetFailed)
	m := NewAssetManager(blobs, logo.PassthroughRenderer{}, AssetManagerConfig{}, bus, nil)

	results, err := m.UploadVariants(ctx, "Mercedes-Benz", model.BrandLogos, []byte("png"), allSizes)
	require.NoError(t, err)
	require.Len(t, results, 5)

	for _, size := range allSizes {
		res := results[size]
		if size == 128 {
			assert.True(t, apperrors.IsStorage(res.Err))
			assert.Empty(t, res.URL)
			continue
		}
		require.NoError(t, res.Err, size)
		assert.Equal(t, model.BrandLogos.Path("mercedes-benz", size), res.Path)
		assert.Equal(t, testPublicBase+"/"+res.Path, res.URL)
		ok, err := blobs.Exists(ctx, res.Path)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 4, rec.count(eventbus.EventTypeAssetUploaded))
	assert.Equal(t, 1, rec.count(eventbus.EventTypeAssetFailed))
}

func TestAssetManager_UploadVariants_BoundedConcurrency(t *testing.T) {
	blobs := &flakyBlobs{BlobStore: newMemBlobs(t), putDelay: 20 * time.Millisecond}
	m := NewAssetManager(blobs, logo.PassthroughRenderer{}, AssetManagerConfig{MaxConcurrentUploads: 2}, nil, nil)

	results, err := m.UploadVariants(context.Background(), "Toyota", model.BrandLogos, []byte("png"), allSizes)
	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.LessOrEqual(t, blobs.maxInFlight.Load(), int32(2))
	assert.GreaterOrEqual(t, blobs.maxInFlight.Load(), int32(1))
}

func TestAssetManager_UploadVariants_UnsizedCategory(t *testing.T) {
	blobs := newMemBlobs(t)
	m := NewAssetManager(blobs, logo.PassthroughRenderer{}, AssetManagerConfig{}, nil, nil)

	results, err := m.UploadVariants(context.Background(), "Vodafone Cash", model.PaymentMethodLogos, []byte("png"), allSizes)
	require.NoError(t, err)
	require.Len(t, results, 1)
	res := results[defaultUnsizedVariantSize]
	require.NoError(t, res.Err)
	assert.Equal(t, "payment-methods/vodafone-cash.png", res.Path)
}

func TestAssetManager_UploadVariants_RejectsUnusableKey(t *testing.T) {
	m := NewAssetManager(newMemBlobs(t), logo.PassthroughRenderer{}, AssetManagerConfig{}, nil, nil)
	_, err := m.UploadVariants(context.Background(), "  ---  ", model.BrandLogos, []byte("png"), allSizes)
	assert.True(t, apperrors.IsValidation(err))

	_, err = m.UploadVariants(context.Background(), "Kia", model.BrandLogos, []byte("png"), []int{0, -1})
	assert.True(t, apperrors.IsValidation(err))
}

func TestAssetManager_Upload_SetsObjectMetadata(t *testing.T) {
	blobs := &flakyBlobs{BlobStore: newMemBlobs(t)}
	m := NewAssetManager(blobs, logo.PassthroughRenderer{}, AssetManagerConfig{}, nil, nil)

	url, err := m.Upload(context.Background(), "brands/kia/64.png", []byte("png"), map[string]string{"logical-key": "Kia"})
	require.NoError(t, err)
	assert.Equal(t, testPublicBase+"/brands/kia/64.png", url)

	opts := blobs.writeOptions("brands/kia/64.png")
	assert.Equal(t, "image/png", opts.ContentType)
	assert.Equal(t, defaultCacheControl, opts.CacheControl)
	assert.True(t, opts.PublicRead)
	assert.Equal(t, "Kia", opts.Metadata["logical-key"])

	for _, bad := range []string{"", "/abs.png", "brands/", "brands/../x.png"} {
		_, err := m.Upload(context.Background(), bad, []byte("x"), nil)
		assert.True(t, apperrors.IsValidation(err), bad)
	}
}

func TestAssetManager_EnsureVariants_SkipsExistingAndFetchesOnce(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs(t)
	putObjects(t, blobs, "brands/toyota/32.png", "brands/toyota/64.png")
	m := NewAssetManager(blobs, logo.PassthroughRenderer{}, AssetManagerConfig{}, nil, nil)

	fetcher := &fakeFetcher{content: []byte("png")}
	fetch := func(ctx context.Context) ([]byte, error) { return fetcher.Fetch(ctx, "https://logos.test/toyota.png") }

	results, err := m.EnsureVariants(ctx, "Toyota", model.BrandLogos, allSizes, fetch)
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.True(t, results[32].Skipped)
	assert.True(t, results[64].Skipped)
	assert.False(t, results[512].Skipped)
	assert.NoError(t, results[512].Err)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	// everything is stored now, so the source is not downloaded again
	results, err = m.EnsureVariants(ctx, "Toyota", model.BrandLogos, allSizes, fetch)
	require.NoError(t, err)
	for _, res := range results {
		assert.True(t, res.Skipped, res.Path)
	}
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestAssetManager_EnsureVariants_FetchFailureMarksMissingSizes(t *testing.T) {
	blobs := newMemBlobs(t)
	putObjects(t, blobs, "brands/bmw/32.png")
	m := NewAssetManager(blobs, logo.PassthroughRenderer{}, AssetManagerConfig{}, nil, nil)

	results, err := m.EnsureVariants(context.Background(), "BMW", model.BrandLogos, []int{32, 64}, func(context.Context) ([]byte, error) {
		return nil, errBoom
	})
	require.NoError(t, err)
	assert.True(t, results[32].Skipped)
	assert.ErrorIs(t, results[64].Err, errBoom)
}

func TestAssetManager_URLAndDelete(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs(t)
	putObjects(t, blobs, "brands/kia/64.png")
	m := NewAssetManager(blobs, logo.PassthroughRenderer{}, AssetManagerConfig{}, nil, nil)

	url, err := m.URL(ctx, "brands/kia/64.png")
	require.NoError(t, err)
	assert.Equal(t, testPublicBase+"/brands/kia/64.png", url)

	_, err = m.URL(ctx, "brands/nope/64.png")
	assert.True(t, apperrors.IsNotFound(err))
	assert.ErrorIs(t, err, apperrors.ErrAssetNotFound)

	require.NoError(t, m.Delete(ctx, "brands/kia/64.png"))
	assert.True(t, apperrors.IsNotFound(m.Delete(ctx, "brands/kia/64.png")))
}

func TestAssetManager_StorageStatsAndFolders(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs(t)
	putObjects(t, blobs, "brands/kia/64.png", "brands/kia/128.png", "payment-methods/fawry.png", "readme.txt")
	m := NewAssetManager(blobs, logo.PassthroughRenderer{}, AssetManagerConfig{}, nil, nil)

	require.NoError(t, m.EnsureFolders(ctx, model.Categories()))
	// a second pass finds the markers and writes nothing
	require.NoError(t, m.EnsureFolders(ctx, model.Categories()))

	stats, err := m.StorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"(root)", "brands", "payment-methods"}, stats.FolderNames())
	assert.Equal(t, 3, stats.Folders["brands"].Files)
	assert.Equal(t, 2, stats.Folders["payment-methods"].Files)
	assert.Equal(t, 1, stats.Folders["(root)"].Files)
	assert.Equal(t, 6, stats.TotalFiles)
	assert.Equal(t, int64(4), stats.TotalBytes)

	objects, err := m.List(ctx, "brands/")
	require.NoError(t, err)
	require.Len(t, objects, 3)
	assert.Equal(t, "brands/.keep", objects[0].Key)
}
