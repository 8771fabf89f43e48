package usecase

import (
	"context"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"
	"sync"

	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/seeding/domain/repository"
	apperrors "refdata-seeder/internal/shared/errors"
	"refdata-seeder/internal/shared/eventbus"
	"refdata-seeder/internal/shared/logger"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	defaultCacheControl       = "public, max-age=31536000, immutable"
	defaultMaxConcurrent      = 4
	defaultUnsizedVariantSize = 256
)

// AssetManagerConfig tunes uploads
type AssetManagerConfig struct {
	MaxConcurrentUploads int
	CacheControl         string
	PlaceholderNames     []string
	// UnsizedVariantSize is the render size for categories stored without a size segment
	UnsizedVariantSize int
}

// VariantResult is the outcome of one size variant. Exactly one of URL and Err is meaningful.
type VariantResult struct {
	Size    int    `json:"size"`
	Path    string `json:"path"`
	URL     string `json:"url,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Err     error  `json:"-"`
}

// FolderStats counts the objects under one top-level folder
type FolderStats struct {
	Files int   `json:"files"`
	Bytes int64 `json:"bytes"`
}

// StorageStats summarizes the blob store
type StorageStats struct {
	TotalFiles int                    `json:"totalFiles"`
	TotalBytes int64                  `json:"totalBytes"`
	Folders    map[string]FolderStats `json:"folders"`
}

// AssetManager uploads, lists and removes logo assets
type AssetManager struct {
	blobs    repository.BlobStore
	renderer repository.VariantRenderer
	config   AssetManagerConfig
	logger   logger.Logger
	events   publisher
}

// NewAssetManager creates an asset manager. bus may be nil.
func NewAssetManager(blobs repository.BlobStore, renderer repository.VariantRenderer, cfg AssetManagerConfig, bus eventbus.EventBusInterface, log logger.Logger) *AssetManager {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.MaxConcurrentUploads <= 0 {
		cfg.MaxConcurrentUploads = defaultMaxConcurrent
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = defaultCacheControl
	}
	if cfg.PlaceholderNames == nil {
		cfg.PlaceholderNames = model.DefaultPlaceholderNames
	}
	if cfg.UnsizedVariantSize <= 0 {
		cfg.UnsizedVariantSize = defaultUnsizedVariantSize
	}
	log = log.WithComponent("asset-manager")
	return &AssetManager{
		blobs:    blobs,
		renderer: renderer,
		config:   cfg,
		logger:   log,
		events:   publisher{bus: bus, logger: log},
	}
}

// Upload stores content at path as a public, immutable object and returns its URL
func (m *AssetManager) Upload(ctx context.Context, objectPath string, content []byte, metadata map[string]string) (string, error) {
	if err := validateObjectPath(objectPath); err != nil {
		return "", err
	}
	opts := repository.BlobWriteOptions{
		ContentType:  contentTypeFor(objectPath),
		CacheControl: m.config.CacheControl,
		Metadata:     metadata,
		PublicRead:   true,
	}
	if err := m.blobs.Put(ctx, objectPath, content, opts); err != nil {
		return "", err
	}
	return m.blobs.URL(objectPath), nil
}

// UploadVariants renders and uploads every size of one logical key.
// Uploads run concurrently up to MaxConcurrentUploads; a failed size never
// stops the others. The error is non-nil only when nothing could be attempted.
func (m *AssetManager) UploadVariants(ctx context.Context, logicalKey string, category model.AssetCategory, content []byte, sizes []int) (map[int]VariantResult, error) {
	slug := model.Slugify(logicalKey)
	if slug == "" {
		return nil, apperrors.NewValidationError(fmt.Sprintf("asset key %q has no usable characters", logicalKey))
	}
	sizes = m.variantSizes(category, sizes)
	if len(sizes) == 0 {
		return nil, apperrors.NewValidationError("no variant sizes requested")
	}

	var (
		mu      sync.Mutex
		results = make(map[int]VariantResult, len(sizes))
		g       errgroup.Group
	)
	g.SetLimit(m.config.MaxConcurrentUploads)
	for _, size := range sizes {
		size := size
		g.Go(func() error {
			res := m.uploadVariant(ctx, logicalKey, slug, category, content, size)
			mu.Lock()
			results[size] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (m *AssetManager) uploadVariant(ctx context.Context, logicalKey, slug string, category model.AssetCategory, content []byte, size int) VariantResult {
	res := VariantResult{Size: size, Path: category.Path(slug, size)}
	event := model.AssetEvent{Category: category.Name, Key: logicalKey, Path: res.Path, Size: size}

	data, err := m.renderer.Render(content, size)
	if err == nil {
		event.Bytes = len(data)
		res.URL, err = m.Upload(ctx, res.Path, data, map[string]string{
			"logical-key": logicalKey,
			"category":    category.Name,
		})
	}
	if err != nil {
		res.Err = err
		event.Error = err.Error()
		m.logger.WithContext(ctx).Warnf("Variant %s failed: %v", res.Path, err)
		m.events.publish(ctx, eventbus.EventTypeAssetFailed, category.Name, event)
		return res
	}
	m.events.publish(ctx, eventbus.EventTypeAssetUploaded, category.Name, event)
	return res
}

// EnsureVariants uploads only the sizes that are not stored yet. fetch is
// called at most once, and only when some size is missing.
func (m *AssetManager) EnsureVariants(ctx context.Context, logicalKey string, category model.AssetCategory, sizes []int, fetch func(context.Context) ([]byte, error)) (map[int]VariantResult, error) {
	slug := model.Slugify(logicalKey)
	if slug == "" {
		return nil, apperrors.NewValidationError(fmt.Sprintf("asset key %q has no usable characters", logicalKey))
	}
	sizes = m.variantSizes(category, sizes)

	results := make(map[int]VariantResult, len(sizes))
	var missing []int
	for _, size := range sizes {
		p := category.Path(slug, size)
		ok, err := m.blobs.Exists(ctx, p)
		if err != nil {
			return nil, err
		}
		if ok {
			results[size] = VariantResult{Size: size, Path: p, URL: m.blobs.URL(p), Skipped: true}
			continue
		}
		missing = append(missing, size)
	}
	if len(missing) == 0 {
		return results, nil
	}

	content, err := fetch(ctx)
	if err != nil {
		for _, size := range missing {
			results[size] = VariantResult{Size: size, Path: category.Path(slug, size), Err: err}
		}
		return results, nil
	}
	uploaded, err := m.UploadVariants(ctx, logicalKey, category, content, missing)
	if err != nil {
		return nil, err
	}
	for size, res := range uploaded {
		results[size] = res
	}
	return results, nil
}

// variantSizes collapses unsized categories to their single render size
func (m *AssetManager) variantSizes(category model.AssetCategory, sizes []int) []int {
	if !category.Sized {
		return []int{m.config.UnsizedVariantSize}
	}
	seen := make(map[int]bool, len(sizes))
	out := make([]int, 0, len(sizes))
	for _, s := range sizes {
		if s > 0 && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// EnsureFolders writes a placeholder marker into every category folder that lacks one
func (m *AssetManager) EnsureFolders(ctx context.Context, categories []model.AssetCategory) error {
	if len(m.config.PlaceholderNames) == 0 {
		return nil
	}
	marker := m.config.PlaceholderNames[0]

	var errs error
	for _, c := range categories {
		p := c.Prefix() + marker
		ok, err := m.blobs.Exists(ctx, p)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if ok {
			continue
		}
		err = m.blobs.Put(ctx, p, nil, repository.BlobWriteOptions{ContentType: "text/plain"})
		errs = multierr.Append(errs, err)
	}
	return errs
}

// Delete removes one object
func (m *AssetManager) Delete(ctx context.Context, objectPath string) error {
	if err := validateObjectPath(objectPath); err != nil {
		return err
	}
	return m.blobs.Delete(ctx, objectPath)
}

// List returns the objects under prefix in key order
func (m *AssetManager) List(ctx context.Context, prefix string) ([]repository.BlobObject, error) {
	return m.blobs.List(ctx, prefix)
}

// URL returns the public URL of an existing object
func (m *AssetManager) URL(ctx context.Context, objectPath string) (string, error) {
	ok, err := m.blobs.Exists(ctx, objectPath)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.NewNotFoundError("asset " + objectPath).WithCause(apperrors.ErrAssetNotFound)
	}
	return m.blobs.URL(objectPath), nil
}

// StorageStats counts objects and bytes per top-level folder
func (m *AssetManager) StorageStats(ctx context.Context) (*StorageStats, error) {
	objects, err := m.blobs.List(ctx, "")
	if err != nil {
		return nil, err
	}
	stats := &StorageStats{Folders: make(map[string]FolderStats)}
	for _, o := range objects {
		folder := model.TopLevelFolder(o.Key)
		f := stats.Folders[folder]
		f.Files++
		f.Bytes += o.Size
		stats.Folders[folder] = f
		stats.TotalFiles++
		stats.TotalBytes += o.Size
	}
	return stats, nil
}

// FolderNames returns the folders of s in name order
func (s *StorageStats) FolderNames() []string {
	names := make([]string, 0, len(s.Folders))
	for n := range s.Folders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func validateObjectPath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") || strings.Contains(p, "..") {
		return apperrors.NewValidationError(fmt.Sprintf("invalid object path %q", p))
	}
	return nil
}

func contentTypeFor(p string) string {
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
