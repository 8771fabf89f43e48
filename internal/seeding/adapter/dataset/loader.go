package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"sort"
	"strings"

	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/seeding/domain/repository"
	apperrors "refdata-seeder/internal/shared/errors"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GroupField is set on records flattened out of a grouped dataset, unless the record already has it
const GroupField = "group"

// Loader reads dataset files from a directory. Files may hold a JSON (or YAML)
// array of records, or an object mapping group names to arrays of records.
type Loader struct {
	fsys fs.FS
}

var _ repository.DatasetLoader = (*Loader)(nil)

// NewLoader reads datasets relative to dir
func NewLoader(dir string) *Loader {
	return &Loader{fsys: os.DirFS(dir)}
}

// NewFSLoader reads datasets from fsys
func NewFSLoader(fsys fs.FS) *Loader {
	return &Loader{fsys: fsys}
}

// Load decodes every record of dataset
func (l *Loader) Load(ctx context.Context, dataset string) ([]model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := fs.ReadFile(l.fsys, dataset)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewNotFoundError("dataset " + dataset).WithCause(err)
		}
		return nil, apperrors.NewInternalError("read dataset " + dataset).WithCause(err)
	}

	var decoded interface{}
	switch strings.ToLower(path.Ext(dataset)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &decoded)
	default:
		err = json.Unmarshal(raw, &decoded)
	}
	if err != nil {
		return nil, apperrors.NewValidationError("dataset " + dataset + " is not well formed").WithCause(err)
	}

	return flatten(dataset, decoded)
}

func flatten(dataset string, decoded interface{}) ([]model.Document, error) {
	switch v := decoded.(type) {
	case []interface{}:
		return records(dataset, "", v)
	case map[string]interface{}:
		groups := make([]string, 0, len(v))
		for g := range v {
			groups = append(groups, g)
		}
		sort.Strings(groups)

		var docs []model.Document
		for _, g := range groups {
			items, ok := v[g].([]interface{})
			if !ok {
				return nil, apperrors.NewValidationError(fmt.Sprintf("dataset %s: group %q is not an array", dataset, g))
			}
			recs, err := records(dataset, g, items)
			if err != nil {
				return nil, err
			}
			docs = append(docs, recs...)
		}
		return docs, nil
	case nil:
		return nil, nil
	}
	return nil, apperrors.NewValidationError(fmt.Sprintf("dataset %s must be an array or an object of arrays", dataset))
}

func records(dataset, group string, items []interface{}) ([]model.Document, error) {
	docs := make([]model.Document, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("dataset %s: record %d is not an object", dataset, i))
		}
		doc := model.Document(normalize(m).(map[string]interface{}))
		if group != "" {
			if _, exists := doc[GroupField]; !exists {
				doc[GroupField] = group
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// normalize turns integral floats into int64 so years and counts are stored as integers
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	case int:
		return int64(t)
	}
	return v
}
