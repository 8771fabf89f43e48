package model

import (
	"fmt"
	"strings"
)

// Well-known document fields
const (
	FieldID        = "_id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Document is a single reference-data record as decoded from a dataset or read from the store
type Document map[string]interface{}

// NaturalKey is the ordered list of fields that identifies a document within its collection
type NaturalKey []string

// String renders the key as "field1+field2"
func (k NaturalKey) String() string {
	return strings.Join(k, "+")
}

// Get resolves a dotted field path such as "specs.engine"
func (d Document) Get(path string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(d)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// GetString returns the trimmed string form of a field, or "" when absent
func (d Document) GetString(path string) string {
	v, ok := d.Get(path)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// KeyValue returns the canonical natural-key string of the document.
// ok is false when any key field is missing or blank.
func (d Document) KeyValue(key NaturalKey) (string, bool) {
	if len(key) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(key))
	for _, field := range key {
		v := d.GetString(field)
		if v == "" {
			return "", false
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, "|"), true
}

// KeyFilter returns the equality filter selecting this document by its natural key
func (d Document) KeyFilter(key NaturalKey) map[string]interface{} {
	filter := make(map[string]interface{}, len(key))
	for _, field := range key {
		v, _ := d.Get(field)
		filter[field] = v
	}
	return filter
}

// Clone returns a shallow copy
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Document:
		return m, true
	}
	return nil, false
}
