package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/seeding/domain/repository"
	"refdata-seeder/internal/shared/database"
	apperrors "refdata-seeder/internal/shared/errors"
	"refdata-seeder/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const deleteChunkSize = 1000

// DocumentStore implements repository.DocumentStore on MongoDB
type DocumentStore struct {
	db     Database
	logger logger.Logger
	now    func() time.Time
}

var _ repository.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates a store over db
func NewDocumentStore(db Database, log logger.Logger) *DocumentStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &DocumentStore{
		db:     db,
		logger: log.WithComponent("mongo-store"),
		now:    time.Now,
	}
}

// CollectionExists reports whether the collection exists
func (s *DocumentStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{"name": collection})
	if err != nil {
		return false, database.ClassifyError(database.OpAdmin, err)
	}
	return len(names) > 0, nil
}

// ListCollections returns the sorted collection names starting with prefix
func (s *DocumentStore) ListCollections(ctx context.Context, prefix string) ([]string, error) {
	filter := bson.M{}
	if prefix != "" {
		filter["name"] = bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}
	}
	names, err := s.db.ListCollectionNames(ctx, filter)
	if err != nil {
		return nil, database.ClassifyError(database.OpAdmin, err)
	}
	sort.Strings(names)
	return names, nil
}

// EnsureCollection creates the collection when it does not exist yet
func (s *DocumentStore) EnsureCollection(ctx context.Context, collection string) error {
	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := s.db.CreateCollection(ctx, collection); err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.HasErrorCode(48) {
			// created concurrently
			return nil
		}
		return database.ClassifyError(database.OpAdmin, err)
	}
	return nil
}

// DropCollection drops the collection. Dropping a missing collection succeeds.
func (s *DocumentStore) DropCollection(ctx context.Context, collection string) error {
	if err := s.db.Collection(collection).Drop(ctx); err != nil {
		return database.ClassifyError(database.OpAdmin, err)
	}
	return nil
}

// ClearCollection deletes every document and returns how many were removed
func (s *DocumentStore) ClearCollection(ctx context.Context, collection string) (int64, error) {
	n, err := s.db.Collection(collection).DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, database.ClassifyError(database.OpWrite, err)
	}
	return n, nil
}

// Count returns the number of documents in the collection
func (s *DocumentStore) Count(ctx context.Context, collection string) (int64, error) {
	n, err := s.db.Collection(collection).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, database.ClassifyError(database.OpRead, err)
	}
	return n, nil
}

// duplicatePipeline groups documents sharing the natural key. Within a group
// ids are ordered by createdAt then _id, so the first id is the one to keep.
func duplicatePipeline(key model.NaturalKey) mongo.Pipeline {
	present := bson.A{}
	groupKey := bson.D{}
	for _, field := range key {
		present = append(present, bson.M{field: bson.M{"$exists": true, "$nin": bson.A{nil, ""}}})
		groupKey = append(groupKey, bson.E{Key: field, Value: "$" + field})
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$and": present}}},
		{{Key: "$sort", Value: bson.D{{Key: model.FieldCreatedAt, Value: 1}, {Key: model.FieldID, Value: 1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: groupKey},
			{Key: "ids", Value: bson.M{"$push": "$_id"}},
			{Key: "count", Value: bson.M{"$sum": 1}},
		}}},
		{{Key: "$match", Value: bson.M{"count": bson.M{"$gt": 1}}}},
	}
}

// FindDuplicates returns every natural-key group with more than one document
func (s *DocumentStore) FindDuplicates(ctx context.Context, collection string, key model.NaturalKey) ([]model.DuplicateGroup, error) {
	if len(key) == 0 {
		return nil, apperrors.NewValidationError("natural key must name at least one field")
	}
	cur, err := s.db.Collection(collection).Aggregate(ctx, duplicatePipeline(key), options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, database.ClassifyError(database.OpRead, err)
	}
	defer cur.Close(ctx)

	var groups []model.DuplicateGroup
	if err := cur.All(ctx, &groups); err != nil {
		return nil, database.ClassifyError(database.OpRead, err)
	}
	return groups, nil
}

// DeleteByIDs deletes the given ids in chunks
func (s *DocumentStore) DeleteByIDs(ctx context.Context, collection string, ids []interface{}) (int64, error) {
	var total int64
	coll := s.db.Collection(collection)
	for start := 0; start < len(ids); start += deleteChunkSize {
		end := start + deleteChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		n, err := coll.DeleteMany(ctx, bson.M{model.FieldID: bson.M{"$in": ids[start:end]}})
		total += n
		if err != nil {
			return total, database.ClassifyError(database.OpWrite, err)
		}
	}
	return total, nil
}

type indexDocument struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique bool   `bson:"unique"`
}

// ListIndexes returns the index specifications present on the collection
func (s *DocumentStore) ListIndexes(ctx context.Context, collection string) ([]model.IndexSpec, error) {
	cur, err := s.db.Collection(collection).Indexes().List(ctx)
	if err != nil {
		classified := database.ClassifyError(database.OpRead, err)
		if apperrors.IsNotFound(classified) {
			return nil, nil
		}
		return nil, classified
	}
	defer cur.Close(ctx)

	var specs []model.IndexSpec
	for cur.Next(ctx) {
		var doc indexDocument
		if err := cur.Decode(&doc); err != nil {
			s.logger.Warnf("Skipping undecodable index on %s: %v", collection, err)
			continue
		}
		specs = append(specs, toIndexSpec(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, database.ClassifyError(database.OpRead, err)
	}
	return specs, nil
}

func toIndexSpec(doc indexDocument) model.IndexSpec {
	spec := model.IndexSpec{Name: doc.Name, Unique: doc.Unique}
	for _, e := range doc.Key {
		spec.Fields = append(spec.Fields, model.IndexField{Path: e.Key, Descending: isDescending(e.Value)})
	}
	return spec
}

func isDescending(v interface{}) bool {
	switch n := v.(type) {
	case int32:
		return n < 0
	case int64:
		return n < 0
	case int:
		return n < 0
	case float64:
		return n < 0
	}
	return false
}

// CreateIndex creates the index unless an equivalent one already exists
func (s *DocumentStore) CreateIndex(ctx context.Context, collection string, spec model.IndexSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", apperrors.NewValidationError(err.Error())
	}
	name := spec.IndexName()

	existing, err := s.ListIndexes(ctx, collection)
	if err != nil {
		return "", err
	}
	for _, ix := range existing {
		if ix.Equivalent(spec) {
			return ix.Name, apperrors.NewIndexAlreadyExistsError(fmt.Sprintf("index %s already exists on %s", ix.Name, collection)).
				WithCause(apperrors.ErrIndexAlreadyExists)
		}
		if ix.Name == name {
			return name, apperrors.NewIndexError(fmt.Sprintf("index %s on %s exists with different keys or options", name, collection)).
				WithDetail("index", name)
		}
	}

	keys := bson.D{}
	for _, f := range spec.Fields {
		dir := 1
		if f.Descending {
			dir = -1
		}
		keys = append(keys, bson.E{Key: f.Path, Value: dir})
	}
	opts := options.Index().SetName(name)
	if spec.Unique {
		opts.SetUnique(true)
	}

	created, err := s.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: opts})
	if err != nil {
		return name, database.ClassifyError(database.OpIndex, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"collection": collection,
		"index":      created,
		"unique":     spec.Unique,
	}).Info("Index created")
	return created, nil
}

// UpsertBatch writes docs by natural key with one unordered bulk write.
// createdAt is only set on insert so unchanged documents stay unmodified.
func (s *DocumentStore) UpsertBatch(ctx context.Context, collection string, key model.NaturalKey, docs []model.Document) (model.UpsertResult, error) {
	if len(docs) == 0 {
		return model.UpsertResult{}, nil
	}

	now := s.now().UTC()
	models := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		set := bson.M{}
		for k, v := range doc {
			if k == model.FieldID || k == model.FieldCreatedAt {
				continue
			}
			set[k] = v
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M(doc.KeyFilter(key))).
			SetUpdate(bson.M{
				"$set":         set,
				"$setOnInsert": bson.M{model.FieldCreatedAt: now},
			}).
			SetUpsert(true))
	}

	res, err := s.db.Collection(collection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return model.UpsertResult{}, database.ClassifyError(database.OpWrite, err)
	}

	return model.UpsertResult{
		Inserted:  res.UpsertedCount,
		Updated:   res.ModifiedCount,
		Unchanged: res.MatchedCount - res.ModifiedCount,
	}, nil
}

// DistinctStrings returns the distinct non-empty string values of field
func (s *DocumentStore) DistinctStrings(ctx context.Context, collection, field string) ([]string, error) {
	values, err := s.db.Collection(collection).Distinct(ctx, field, bson.M{})
	if err != nil {
		return nil, database.ClassifyError(database.OpRead, err)
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if str, ok := v.(string); ok && str != "" {
			out = append(out, str)
		}
	}
	sort.Strings(out)
	return out, nil
}

// FindAll returns every document ordered by _id
func (s *DocumentStore) FindAll(ctx context.Context, collection string) ([]model.Document, error) {
	cur, err := s.db.Collection(collection).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: model.FieldID, Value: 1}}))
	if err != nil {
		return nil, database.ClassifyError(database.OpRead, err)
	}
	defer cur.Close(ctx)

	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, database.ClassifyError(database.OpRead, err)
	}
	docs := make([]model.Document, 0, len(raw))
	for _, r := range raw {
		docs = append(docs, model.Document(r))
	}
	return docs, nil
}

// CopyCollection copies from into to with a server-side $merge and returns the target count
func (s *DocumentStore) CopyCollection(ctx context.Context, from, to string) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{}}},
		{{Key: "$merge", Value: bson.D{
			{Key: "into", Value: to},
			{Key: "on", Value: model.FieldID},
			{Key: "whenMatched", Value: "replace"},
			{Key: "whenNotMatched", Value: "insert"},
		}}},
	}
	cur, err := s.db.Collection(from).Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return 0, database.ClassifyError(database.OpWrite, err)
	}
	if err := cur.Close(ctx); err != nil {
		return 0, database.ClassifyError(database.OpWrite, err)
	}

	// $merge writes nothing for an empty source, so the target may not exist yet
	if err := s.EnsureCollection(ctx, to); err != nil {
		return 0, err
	}
	return s.Count(ctx, to)
}

// InsertOne inserts a single document
func (s *DocumentStore) InsertOne(ctx context.Context, collection string, doc interface{}) error {
	if err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return database.ClassifyError(database.OpWrite, err)
	}
	return nil
}

// DeleteOne deletes the document with the given _id
func (s *DocumentStore) DeleteOne(ctx context.Context, collection string, id interface{}) error {
	n, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{model.FieldID: id})
	if err != nil {
		return database.ClassifyError(database.OpWrite, err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("document %v in %s", id, collection))
	}
	return nil
}
