package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"refdata-seeder/internal/seeding/domain/repository"
	apperrors "refdata-seeder/internal/shared/errors"
	"refdata-seeder/internal/shared/logger"

	"cloud.google.com/go/storage"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	// Bucket drivers selected by STORAGE_BUCKET_URL scheme
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
)

const predefinedACLPublicRead = "publicRead"

// BucketStore implements repository.BlobStore on a gocloud.dev bucket.
// This supports GCS, local files and in-memory buckets.
type BucketStore struct {
	bucket        *blob.Bucket
	publicBaseURL string
	logger        logger.Logger
}

var _ repository.BlobStore = (*BucketStore)(nil)

// Open opens the bucket at bucketURL ("gs://bucket", "file:///dir", "mem://").
// An empty publicBaseURL is derived from the bucket URL.
func Open(ctx context.Context, bucketURL, publicBaseURL string, log logger.Logger) (*BucketStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open bucket " + bucketURL).WithCause(err)
	}
	if publicBaseURL == "" {
		publicBaseURL = DerivePublicBaseURL(bucketURL)
	}
	return NewFromBucket(bucket, publicBaseURL, log), nil
}

// NewFromBucket wraps an existing bucket. This is useful for testing with memblob.
func NewFromBucket(bucket *blob.Bucket, publicBaseURL string, log logger.Logger) *BucketStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &BucketStore{
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		logger:        log.WithComponent("blob-store"),
	}
}

// DerivePublicBaseURL maps a bucket URL to the URL prefix objects are served from
func DerivePublicBaseURL(bucketURL string) string {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return strings.TrimSuffix(bucketURL, "/")
	}
	switch u.Scheme {
	case "gs":
		return "https://storage.googleapis.com/" + u.Host
	case "s3":
		return "https://" + u.Host + ".s3.amazonaws.com"
	case "file":
		return "file://" + strings.TrimSuffix(u.Path, "/")
	}
	return u.Scheme + "://" + u.Host
}

// Put uploads data under key. Public objects get the publicRead ACL on GCS.
func (s *BucketStore) Put(ctx context.Context, key string, data []byte, opts repository.BlobWriteOptions) error {
	wopts := &blob.WriterOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
		Metadata:     opts.Metadata,
	}
	if opts.PublicRead {
		wopts.BeforeWrite = func(as func(interface{}) bool) error {
			var gw *storage.Writer
			if as(&gw) {
				gw.PredefinedACL = predefinedACLPublicRead
			}
			return nil
		}
	}
	if err := s.bucket.WriteAll(ctx, key, data, wopts); err != nil {
		return classify(err, "upload", key)
	}
	return nil
}

// Delete removes key. A missing key yields a not-found error.
func (s *BucketStore) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil {
		return classify(err, "delete", key)
	}
	return nil
}

// Exists reports whether key is present
func (s *BucketStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, classify(err, "stat", key)
	}
	return ok, nil
}

// List returns every object under prefix, sorted by key
func (s *BucketStore) List(ctx context.Context, prefix string) ([]repository.BlobObject, error) {
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})

	var objects []repository.BlobObject
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, classify(err, "list", prefix)
		}
		if obj.IsDir {
			continue
		}
		objects = append(objects, repository.BlobObject{Key: obj.Key, Size: obj.Size, ModTime: obj.ModTime})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// URL returns the public URL of key
func (s *BucketStore) URL(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBaseURL + "/" + strings.Join(segments, "/")
}

// Ping checks that the bucket is reachable
func (s *BucketStore) Ping(ctx context.Context) error {
	ok, err := s.bucket.IsAccessible(ctx)
	if err != nil {
		return classify(err, "ping", "")
	}
	if !ok {
		return apperrors.NewStorageError("bucket is not accessible")
	}
	return nil
}

// Close releases the bucket
func (s *BucketStore) Close() error {
	return s.bucket.Close()
}

// classify translates gocloud error codes into the engine taxonomy
func classify(err error, op, key string) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return apperrors.NewNotFoundError(fmt.Sprintf("asset %q", key)).WithCause(apperrors.ErrAssetNotFound)
	}
	return apperrors.NewStorageError(fmt.Sprintf("%s %q failed", op, key)).
		WithCode(gcerrors.Code(err).String()).
		WithCause(err)
}
