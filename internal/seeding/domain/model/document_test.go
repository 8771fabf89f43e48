package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocument_KeyValue(t *testing.T) {
	doc := Document{"brandName": "Toyota", "name": " Corolla ", "year": 2020}

	v, ok := doc.KeyValue(NaturalKey{"brandName", "name"})
	assert.True(t, ok)
	assert.Equal(t, "Toyota|Corolla", v)

	v, ok = doc.KeyValue(NaturalKey{"year"})
	assert.True(t, ok)
	assert.Equal(t, "2020", v)

	_, ok = doc.KeyValue(NaturalKey{"missing"})
	assert.False(t, ok)

	_, ok = Document{"name": "   "}.KeyValue(NaturalKey{"name"})
	assert.False(t, ok)
}

func TestDocument_GetNested(t *testing.T) {
	doc := Document{"specs": map[string]interface{}{"engine": "V6"}}
	v, ok := doc.Get("specs.engine")
	assert.True(t, ok)
	assert.Equal(t, "V6", v)

	_, ok = doc.Get("specs.engine.size")
	assert.False(t, ok)
}

func TestDocument_KeyFilterAndClone(t *testing.T) {
	doc := Document{"code": "P0300", "title": "Misfire"}
	assert.Equal(t, map[string]interface{}{"code": "P0300"}, doc.KeyFilter(NaturalKey{"code"}))

	c := doc.Clone()
	c["title"] = "changed"
	assert.Equal(t, "Misfire", doc["title"])
}

func TestIndexSpec(t *testing.T) {
	spec := UniqueKeyIndex(NaturalKey{"brandName", "name"})
	assert.Equal(t, "brandName_1_name_1", spec.IndexName())
	assert.True(t, spec.Unique)

	desc := IndexSpec{Fields: ParseIndexFields("category, -createdAt")}
	assert.Equal(t, "category_1_createdAt_-1", desc.DefaultName())
	assert.NoError(t, desc.Validate())
	assert.Error(t, IndexSpec{Name: "empty"}.Validate())

	assert.True(t, spec.Equivalent(IndexSpec{Name: "custom", Fields: spec.Fields, Unique: true}))
	assert.False(t, spec.Equivalent(IndexSpec{Fields: spec.Fields}))
}
