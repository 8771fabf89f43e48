package repository

import (
	"context"

	"refdata-seeder/internal/seeding/domain/model"
)

// DocumentStore is the document-store port used by every seeding component.
// Implementations classify driver errors into the shared taxonomy before returning.
type DocumentStore interface {
	CollectionExists(ctx context.Context, collection string) (bool, error)
	ListCollections(ctx context.Context, prefix string) ([]string, error)
	EnsureCollection(ctx context.Context, collection string) error
	DropCollection(ctx context.Context, collection string) error
	ClearCollection(ctx context.Context, collection string) (int64, error)
	Count(ctx context.Context, collection string) (int64, error)

	// FindDuplicates groups documents by key, ordering ids by createdAt then _id.
	// Documents missing any key field are ignored.
	FindDuplicates(ctx context.Context, collection string, key model.NaturalKey) ([]model.DuplicateGroup, error)
	DeleteByIDs(ctx context.Context, collection string, ids []interface{}) (int64, error)

	ListIndexes(ctx context.Context, collection string) ([]model.IndexSpec, error)
	// CreateIndex returns an IndexAlreadyExists error when an equivalent index is present
	CreateIndex(ctx context.Context, collection string, spec model.IndexSpec) (string, error)

	// UpsertBatch writes docs addressed by their natural key
	UpsertBatch(ctx context.Context, collection string, key model.NaturalKey, docs []model.Document) (model.UpsertResult, error)
	DistinctStrings(ctx context.Context, collection, field string) ([]string, error)
	FindAll(ctx context.Context, collection string) ([]model.Document, error)

	// CopyCollection copies every document of from into to, server side where possible
	CopyCollection(ctx context.Context, from, to string) (int64, error)

	InsertOne(ctx context.Context, collection string, doc interface{}) error
	DeleteOne(ctx context.Context, collection string, id interface{}) error
}
