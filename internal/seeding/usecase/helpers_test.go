package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"refdata-seeder/internal/seeding/adapter/blobstore"
	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/seeding/domain/repository"
	apperrors "refdata-seeder/internal/shared/errors"

	"gocloud.dev/blob/memblob"
)

const testPublicBase = "https://cdn.test/assets"

func newMemBlobs(t *testing.T) *blobstore.BucketStore {
	t.Helper()
	store := blobstore.NewFromBucket(memblob.OpenBucket(nil), testPublicBase, nil)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func putObjects(t *testing.T, blobs repository.BlobStore, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if err := blobs.Put(context.Background(), k, []byte("x"), repository.BlobWriteOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
}

// flakyBlobs wraps a blob store with per-key failures and concurrency tracking
type flakyBlobs struct {
	repository.BlobStore
	failPut    func(key string) error
	failDelete func(key string) error
	failList   error
	putDelay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu   sync.Mutex
	opts map[string]repository.BlobWriteOptions
}

func (f *flakyBlobs) Put(ctx context.Context, key string, data []byte, opts repository.BlobWriteOptions) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.putDelay > 0 {
		time.Sleep(f.putDelay)
	}
	if f.failPut != nil {
		if err := f.failPut(key); err != nil {
			return err
		}
	}
	f.mu.Lock()
	if f.opts == nil {
		f.opts = make(map[string]repository.BlobWriteOptions)
	}
	f.opts[key] = opts
	f.mu.Unlock()
	return f.BlobStore.Put(ctx, key, data, opts)
}

func (f *flakyBlobs) Delete(ctx context.Context, key string) error {
	if f.failDelete != nil {
		if err := f.failDelete(key); err != nil {
			return err
		}
	}
	return f.BlobStore.Delete(ctx, key)
}

func (f *flakyBlobs) List(ctx context.Context, prefix string) ([]repository.BlobObject, error) {
	if f.failList != nil {
		return nil, f.failList
	}
	return f.BlobStore.List(ctx, prefix)
}

func (f *flakyBlobs) writeOptions(key string) repository.BlobWriteOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts[key]
}

// fakeLoader serves datasets from memory
type fakeLoader struct {
	datasets map[string][]model.Document
}

func (l *fakeLoader) Load(ctx context.Context, dataset string) ([]model.Document, error) {
	docs, ok := l.datasets[dataset]
	if !ok {
		return nil, apperrors.NewNotFoundError("dataset " + dataset)
	}
	out := make([]model.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out, nil
}

// fakeFetcher returns fixed content and counts calls
type fakeFetcher struct {
	content []byte
	err     error
	calls   atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.content, nil
}

type validatorFunc func(source string, doc model.Document) error

func (v validatorFunc) Validate(source string, doc model.Document) error { return v(source, doc) }

// steppingClock advances by step on every call
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := cur
		cur = cur.Add(step)
		return now
	}
}

var errBoom = errors.New("boom")
