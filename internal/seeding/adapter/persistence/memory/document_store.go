package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/seeding/domain/repository"
	apperrors "refdata-seeder/internal/shared/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Op names the store operation passed to a FailHook
type Op string

const (
	OpFindDuplicates Op = "findDuplicates"
	OpDelete         Op = "delete"
	OpCreateIndex    Op = "createIndex"
	OpUpsert         Op = "upsert"
	OpCopy           Op = "copy"
	OpCount          Op = "count"
	OpDistinct       Op = "distinct"
)

// FailHook lets tests inject store failures. A non-nil return aborts the operation.
type FailHook func(op Op, collection string, docs []model.Document) error

type collection struct {
	docs    []model.Document
	indexes []model.IndexSpec
}

// DocumentStore is an in-memory repository.DocumentStore used for dry runs and tests.
// Documents are kept in insertion order, which stands in for _id order.
type DocumentStore struct {
	mu          sync.Mutex
	collections map[string]*collection
	now         func() time.Time
	failHook    FailHook
}

var _ repository.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates an empty store
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		collections: make(map[string]*collection),
		now:         time.Now,
	}
}

// SetFailHook installs a failure injection hook
func (s *DocumentStore) SetFailHook(hook FailHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failHook = hook
}

// Seed inserts raw documents as they are, without upsert semantics. Used to build fixtures.
func (s *DocumentStore) Seed(name string, docs ...model.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensure(name)
	for _, d := range docs {
		d = d.Clone()
		if _, ok := d[model.FieldID]; !ok {
			d[model.FieldID] = primitive.NewObjectID()
		}
		c.docs = append(c.docs, d)
	}
}

func (s *DocumentStore) fail(op Op, name string, docs []model.Document) error {
	if s.failHook == nil {
		return nil
	}
	return s.failHook(op, name, docs)
}

func (s *DocumentStore) ensure(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{indexes: []model.IndexSpec{{Name: "_id_", Fields: []model.IndexField{{Path: model.FieldID}}}}}
		s.collections[name] = c
	}
	return c
}

func (s *DocumentStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *DocumentStore) ListCollections(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name := range s.collections {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *DocumentStore) EnsureCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(name)
	return nil
}

func (s *DocumentStore) DropCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *DocumentStore) ClearCollection(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, nil
	}
	n := int64(len(c.docs))
	c.docs = nil
	return n, nil
}

func (s *DocumentStore) Count(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpCount, name, nil); err != nil {
		return 0, err
	}
	c, ok := s.collections[name]
	if !ok {
		return 0, nil
	}
	return int64(len(c.docs)), nil
}

// FindDuplicates groups by natural key; members are ordered by createdAt, then insertion order
func (s *DocumentStore) FindDuplicates(ctx context.Context, name string, key model.NaturalKey) ([]model.DuplicateGroup, error) {
	if len(key) == 0 {
		return nil, apperrors.NewValidationError("natural key must name at least one field")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpFindDuplicates, name, nil); err != nil {
		return nil, err
	}
	c, ok := s.collections[name]
	if !ok {
		return nil, nil
	}

	type member struct {
		id        interface{}
		createdAt time.Time
		seq       int
	}
	groups := make(map[string][]member)
	var order []string
	for i, d := range c.docs {
		k, ok := exactKey(d, key)
		if !ok {
			continue
		}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		createdAt, _ := d[model.FieldCreatedAt].(time.Time)
		groups[k] = append(groups[k], member{id: d[model.FieldID], createdAt: createdAt, seq: i})
	}

	var out []model.DuplicateGroup
	for _, k := range order {
		members := groups[k]
		if len(members) < 2 {
			continue
		}
		sort.SliceStable(members, func(i, j int) bool {
			if !members[i].createdAt.Equal(members[j].createdAt) {
				return members[i].createdAt.Before(members[j].createdAt)
			}
			return members[i].seq < members[j].seq
		})
		ids := make([]interface{}, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.id)
		}
		out = append(out, model.DuplicateGroup{Key: k, IDs: ids, Count: len(ids)})
	}
	return out, nil
}

// exactKey mirrors the store's grouping: fields must be present, non-nil and not ""
func exactKey(d model.Document, key model.NaturalKey) (string, bool) {
	parts := make([]string, 0, len(key))
	for _, f := range key {
		v, ok := d.Get(f)
		if !ok || v == nil || v == "" {
			return "", false
		}
		parts = append(parts, fmt.Sprintf("%#v", v))
	}
	return strings.Join(parts, "\x00"), true
}

func (s *DocumentStore) DeleteByIDs(ctx context.Context, name string, ids []interface{}) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpDelete, name, nil); err != nil {
		return 0, err
	}
	c, ok := s.collections[name]
	if !ok {
		return 0, nil
	}
	kept := c.docs[:0]
	var deleted int64
	for _, d := range c.docs {
		if containsID(ids, d[model.FieldID]) {
			deleted++
			continue
		}
		kept = append(kept, d)
	}
	c.docs = kept
	return deleted, nil
}

func containsID(ids []interface{}, id interface{}) bool {
	for _, candidate := range ids {
		if reflect.DeepEqual(candidate, id) {
			return true
		}
	}
	return false
}

func (s *DocumentStore) ListIndexes(ctx context.Context, name string) ([]model.IndexSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, nil
	}
	out := make([]model.IndexSpec, len(c.indexes))
	copy(out, c.indexes)
	return out, nil
}

// CreateIndex behaves like the server: equivalent indexes already exist, a
// same-named index with other options conflicts and unique indexes cannot be
// built over duplicate data
func (s *DocumentStore) CreateIndex(ctx context.Context, name string, spec model.IndexSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", apperrors.NewValidationError(err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpCreateIndex, name, nil); err != nil {
		return "", err
	}
	c := s.ensure(name)
	indexName := spec.IndexName()
	for _, ix := range c.indexes {
		if ix.Equivalent(spec) {
			return ix.Name, apperrors.NewIndexAlreadyExistsError("index " + ix.Name + " already exists").WithCause(apperrors.ErrIndexAlreadyExists)
		}
		if ix.Name == indexName {
			return indexName, apperrors.NewIndexError("index " + indexName + " exists with different keys or options")
		}
	}
	if spec.Unique {
		key := make(model.NaturalKey, 0, len(spec.Fields))
		for _, f := range spec.Fields {
			key = append(key, f.Path)
		}
		seen := make(map[string]bool)
		for _, d := range c.docs {
			k, ok := exactKey(d, key)
			if !ok {
				continue
			}
			if seen[k] {
				return indexName, apperrors.NewIndexError("E11000 duplicate key error building index " + indexName)
			}
			seen[k] = true
		}
	}
	spec.Name = indexName
	c.indexes = append(c.indexes, spec)
	return indexName, nil
}

// UpsertBatch matches documents by exact natural-key equality
func (s *DocumentStore) UpsertBatch(ctx context.Context, name string, key model.NaturalKey, docs []model.Document) (model.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpUpsert, name, docs); err != nil {
		return model.UpsertResult{}, err
	}
	c := s.ensure(name)

	var res model.UpsertResult
	for _, doc := range docs {
		existing := findByKey(c.docs, doc, key)
		if existing == nil {
			inserted := doc.Clone()
			inserted[model.FieldID] = primitive.NewObjectID()
			inserted[model.FieldCreatedAt] = s.now().UTC()
			c.docs = append(c.docs, inserted)
			res.Inserted++
			continue
		}
		modified := false
		for k, v := range doc {
			if k == model.FieldID || k == model.FieldCreatedAt {
				continue
			}
			if !reflect.DeepEqual(existing[k], v) {
				existing[k] = v
				modified = true
			}
		}
		if modified {
			res.Updated++
		} else {
			res.Unchanged++
		}
	}
	return res, nil
}

func findByKey(docs []model.Document, doc model.Document, key model.NaturalKey) model.Document {
	filter := doc.KeyFilter(key)
	for _, d := range docs {
		match := true
		for f, v := range filter {
			got, _ := d.Get(f)
			if !reflect.DeepEqual(got, v) {
				match = false
				break
			}
		}
		if match {
			return d
		}
	}
	return nil
}

func (s *DocumentStore) DistinctStrings(ctx context.Context, name, field string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpDistinct, name, nil); err != nil {
		return nil, err
	}
	c, ok := s.collections[name]
	if !ok {
		return nil, nil
	}
	set := make(map[string]struct{})
	for _, d := range c.docs {
		if v, ok := d.Get(field); ok {
			if str, ok := v.(string); ok && str != "" {
				set[str] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (s *DocumentStore) FindAll(ctx context.Context, name string) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, nil
	}
	out := make([]model.Document, 0, len(c.docs))
	for _, d := range c.docs {
		out = append(out, d.Clone())
	}
	return out, nil
}

// CopyCollection merges every document of from into to, replacing on _id
func (s *DocumentStore) CopyCollection(ctx context.Context, from, to string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpCopy, from, nil); err != nil {
		return 0, err
	}
	target := s.ensure(to)
	src, ok := s.collections[from]
	if ok {
		for _, d := range src.docs {
			replaced := false
			for i, t := range target.docs {
				if reflect.DeepEqual(t[model.FieldID], d[model.FieldID]) {
					target.docs[i] = d.Clone()
					replaced = true
					break
				}
			}
			if !replaced {
				target.docs = append(target.docs, d.Clone())
			}
		}
	}
	return int64(len(target.docs)), nil
}

// InsertOne stores doc after a BSON round trip, so struct tags are honoured
func (s *DocumentStore) InsertOne(ctx context.Context, name string, doc interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return apperrors.NewValidationError("document is not BSON encodable").WithCause(err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return apperrors.NewInternalError("decode document").WithCause(err)
	}
	d := model.Document(m)

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensure(name)
	if id, ok := d[model.FieldID]; ok {
		for _, existing := range c.docs {
			if reflect.DeepEqual(existing[model.FieldID], id) {
				return apperrors.NewDuplicateKeyError(fmt.Sprintf("E11000 duplicate key _id %v", id)).WithCause(apperrors.ErrDuplicateKey)
			}
		}
	} else {
		d[model.FieldID] = primitive.NewObjectID()
	}
	c.docs = append(c.docs, d)
	return nil
}

func (s *DocumentStore) DeleteOne(ctx context.Context, name string, id interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if ok {
		for i, d := range c.docs {
			if reflect.DeepEqual(d[model.FieldID], id) {
				c.docs = append(c.docs[:i], c.docs[i+1:]...)
				return nil
			}
		}
	}
	return apperrors.NewNotFoundError(fmt.Sprintf("document %v in %s", id, name))
}
