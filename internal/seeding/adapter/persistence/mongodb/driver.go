package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// --- Narrow driver interfaces, mocked in tests ---

// Database is the subset of *mongo.Database used by the store
type Database interface {
	Collection(name string) Collection
	ListCollectionNames(ctx context.Context, filter interface{}) ([]string, error)
	CreateCollection(ctx context.Context, name string) error
}

// Collection is the subset of *mongo.Collection used by the store
type Collection interface {
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (Cursor, error)
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
	CountDocuments(ctx context.Context, filter interface{}) (int64, error)
	DeleteMany(ctx context.Context, filter interface{}) (int64, error)
	DeleteOne(ctx context.Context, filter interface{}) (int64, error)
	Distinct(ctx context.Context, field string, filter interface{}) ([]interface{}, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (Cursor, error)
	InsertOne(ctx context.Context, doc interface{}) error
	Drop(ctx context.Context) error
	Indexes() IndexManager
}

// IndexManager is the subset of mongo.IndexView used by the store
type IndexManager interface {
	CreateOne(ctx context.Context, model mongo.IndexModel) (string, error)
	List(ctx context.Context) (Cursor, error)
}

// Cursor is satisfied by *mongo.Cursor
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	All(ctx context.Context, results interface{}) error
	Close(ctx context.Context) error
	Err() error
}

// NewDatabase adapts a driver database handle
func NewDatabase(db *mongo.Database) Database {
	return &mongoDatabase{db: db}
}

type mongoDatabase struct {
	db *mongo.Database
}

func (d *mongoDatabase) Collection(name string) Collection {
	return &mongoCollection{coll: d.db.Collection(name)}
}

func (d *mongoDatabase) ListCollectionNames(ctx context.Context, filter interface{}) ([]string, error) {
	return d.db.ListCollectionNames(ctx, filter)
}

func (d *mongoDatabase) CreateCollection(ctx context.Context, name string) error {
	return d.db.CreateCollection(ctx, name)
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (Cursor, error) {
	cur, err := c.coll.Aggregate(ctx, pipeline, opts...)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (c *mongoCollection) BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
	return c.coll.BulkWrite(ctx, models, opts...)
}

func (c *mongoCollection) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	return c.coll.CountDocuments(ctx, filter)
}

func (c *mongoCollection) DeleteMany(ctx context.Context, filter interface{}) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter interface{}) (int64, error) {
	res, err := c.coll.DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *mongoCollection) Distinct(ctx context.Context, field string, filter interface{}) ([]interface{}, error) {
	return c.coll.Distinct(ctx, field, filter)
}

func (c *mongoCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (Cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc interface{}) error {
	_, err := c.coll.InsertOne(ctx, doc)
	return err
}

func (c *mongoCollection) Drop(ctx context.Context) error {
	return c.coll.Drop(ctx)
}

func (c *mongoCollection) Indexes() IndexManager {
	return &mongoIndexes{view: c.coll.Indexes()}
}

type mongoIndexes struct {
	view mongo.IndexView
}

func (i *mongoIndexes) CreateOne(ctx context.Context, model mongo.IndexModel) (string, error) {
	return i.view.CreateOne(ctx, model)
}

func (i *mongoIndexes) List(ctx context.Context) (Cursor, error) {
	cur, err := i.view.List(ctx)
	if err != nil {
		return nil, err
	}
	return cur, nil
}
