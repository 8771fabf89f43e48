package mongodb

import (
	"context"
	"reflect"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// --- Shared test mocks for the mongodb package ---

type MockDatabase struct {
	mock.Mock
	collections map[string]*MockCollection
}

func newMockDatabase() *MockDatabase {
	return &MockDatabase{collections: make(map[string]*MockCollection)}
}

func (m *MockDatabase) coll(name string) *MockCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &MockCollection{indexes: &MockIndexManager{}}
		m.collections[name] = c
	}
	return c
}

func (m *MockDatabase) Collection(name string) Collection {
	return m.coll(name)
}

func (m *MockDatabase) ListCollectionNames(ctx context.Context, filter interface{}) ([]string, error) {
	args := m.Called(ctx, filter)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

func (m *MockDatabase) CreateCollection(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

type MockCollection struct {
	mock.Mock
	indexes *MockIndexManager
}

func (m *MockCollection) Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (Cursor, error) {
	args := m.Called(ctx, pipeline)
	cur, _ := args.Get(0).(Cursor)
	return cur, args.Error(1)
}

func (m *MockCollection) BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
	args := m.Called(ctx, models)
	res, _ := args.Get(0).(*mongo.BulkWriteResult)
	return res, args.Error(1)
}

func (m *MockCollection) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCollection) DeleteMany(ctx context.Context, filter interface{}) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCollection) DeleteOne(ctx context.Context, filter interface{}) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCollection) Distinct(ctx context.Context, field string, filter interface{}) ([]interface{}, error) {
	args := m.Called(ctx, field, filter)
	vals, _ := args.Get(0).([]interface{})
	return vals, args.Error(1)
}

func (m *MockCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (Cursor, error) {
	args := m.Called(ctx, filter)
	cur, _ := args.Get(0).(Cursor)
	return cur, args.Error(1)
}

func (m *MockCollection) InsertOne(ctx context.Context, doc interface{}) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockCollection) Drop(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCollection) Indexes() IndexManager {
	return m.indexes
}

type MockIndexManager struct {
	mock.Mock
}

func (m *MockIndexManager) CreateOne(ctx context.Context, model mongo.IndexModel) (string, error) {
	args := m.Called(ctx, model)
	return args.String(0), args.Error(1)
}

func (m *MockIndexManager) List(ctx context.Context) (Cursor, error) {
	args := m.Called(ctx)
	cur, _ := args.Get(0).(Cursor)
	return cur, args.Error(1)
}

// sliceCursor serves documents through a BSON round trip, like a real cursor
type sliceCursor struct {
	docs []interface{}
	pos  int
}

func newSliceCursor(docs ...interface{}) *sliceCursor {
	return &sliceCursor{docs: docs}
}

func (c *sliceCursor) Next(ctx context.Context) bool {
	if c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Decode(val interface{}) error {
	raw, err := bson.Marshal(c.docs[c.pos-1])
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, val)
}

func (c *sliceCursor) All(ctx context.Context, results interface{}) error {
	rv := reflect.ValueOf(results).Elem()
	for _, d := range c.docs {
		raw, err := bson.Marshal(d)
		if err != nil {
			return err
		}
		elem := reflect.New(rv.Type().Elem())
		if err := bson.Unmarshal(raw, elem.Interface()); err != nil {
			return err
		}
		rv.Set(reflect.Append(rv, elem.Elem()))
	}
	c.pos = len(c.docs)
	return nil
}

func (c *sliceCursor) Close(ctx context.Context) error { return nil }
func (c *sliceCursor) Err() error                      { return nil }
