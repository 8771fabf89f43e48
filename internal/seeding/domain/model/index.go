package model

import (
	"fmt"
	"strings"
)

// IndexField is one key of an index specification
type IndexField struct {
	Path       string `json:"path" yaml:"path"`
	Descending bool   `json:"descending,omitempty" yaml:"descending,omitempty"`
}

// IndexSpec describes an index to be ensured on a collection
type IndexSpec struct {
	Name   string       `json:"name,omitempty" yaml:"name,omitempty"`
	Fields []IndexField `json:"fields" yaml:"fields"`
	Unique bool         `json:"unique,omitempty" yaml:"unique,omitempty"`
}

// UniqueKeyIndex builds the unique ascending index guarding a natural key
func UniqueKeyIndex(key NaturalKey) IndexSpec {
	fields := make([]IndexField, 0, len(key))
	for _, f := range key {
		fields = append(fields, IndexField{Path: f})
	}
	return IndexSpec{Fields: fields, Unique: true}
}

// DefaultName follows MongoDB's generated naming: "brandName_1_name_-1"
func (s IndexSpec) DefaultName() string {
	parts := make([]string, 0, len(s.Fields)*2)
	for _, f := range s.Fields {
		dir := "1"
		if f.Descending {
			dir = "-1"
		}
		parts = append(parts, f.Path, dir)
	}
	return strings.Join(parts, "_")
}

// IndexName returns the explicit name, or the default one
func (s IndexSpec) IndexName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.DefaultName()
}

// Equivalent reports whether two specs index the same keys in the same order and direction with the same uniqueness
func (s IndexSpec) Equivalent(other IndexSpec) bool {
	if s.Unique != other.Unique || len(s.Fields) != len(other.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i] != other.Fields[i] {
			return false
		}
	}
	return true
}

// Validate checks that the spec is usable
func (s IndexSpec) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("index %q has no fields", s.Name)
	}
	for _, f := range s.Fields {
		if strings.TrimSpace(f.Path) == "" {
			return fmt.Errorf("index %q has an empty field path", s.Name)
		}
	}
	return nil
}

// ParseIndexFields parses "a,-b" into ascending a and descending b
func ParseIndexFields(spec string) []IndexField {
	var fields []IndexField
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "-") {
			fields = append(fields, IndexField{Path: part[1:], Descending: true})
			continue
		}
		fields = append(fields, IndexField{Path: strings.TrimPrefix(part, "+")})
	}
	return fields
}
