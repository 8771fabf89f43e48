package config

import (
	"bytes"
	"errors"
	"io"
	"os"

	"refdata-seeder/internal/seeding/domain/model"
	apperrors "refdata-seeder/internal/shared/errors"

	"gopkg.in/yaml.v3"
)

// SourcesFile is the YAML document that overrides or extends the built-in sources
type SourcesFile struct {
	// ReplaceDefaults drops the built-in sources instead of merging by name
	ReplaceDefaults bool               `yaml:"replaceDefaults"`
	Sources         []model.DataSource `yaml:"sources"`
}

// LoadSourcesFile reads and decodes a sources file
func LoadSourcesFile(path string) (*SourcesFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewValidationError("cannot read sources file " + path).WithCause(err)
	}
	return ParseSources(raw)
}

type sourcesDocument struct {
	ReplaceDefaults bool        `yaml:"replaceDefaults"`
	Sources         []yaml.Node `yaml:"sources"`
}

// ParseSources decodes a sources document. Unknown top-level fields are rejected and
// sources are enabled unless they say otherwise.
func ParseSources(raw []byte) (*SourcesFile, error) {
	var doc sourcesDocument
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, apperrors.NewValidationError("invalid sources file").WithCause(err)
	}

	file := &SourcesFile{ReplaceDefaults: doc.ReplaceDefaults}
	for i := range doc.Sources {
		src := model.DataSource{Enabled: true, Priority: model.PriorityMedium}
		if err := doc.Sources[i].Decode(&src); err != nil {
			return nil, apperrors.NewValidationError("invalid sources file").WithCause(err)
		}
		p, err := model.ParsePriority(string(src.Priority))
		if err != nil {
			return nil, apperrors.NewValidationError("invalid sources file").WithCause(err).
				WithDetail("source", src.Name)
		}
		src.Priority = p
		file.Sources = append(file.Sources, src)
	}
	return file, nil
}

// Merge applies the file on top of defaults: entries replace defaults with the
// same name in place, new names are appended in file order
func (f *SourcesFile) Merge(defaults []model.DataSource) []model.DataSource {
	if f.ReplaceDefaults {
		out := make([]model.DataSource, len(f.Sources))
		copy(out, f.Sources)
		return out
	}

	out := make([]model.DataSource, len(defaults))
	copy(out, defaults)
	index := make(map[string]int, len(out))
	for i, src := range out {
		index[src.Name] = i
	}
	for _, src := range f.Sources {
		if i, ok := index[src.Name]; ok {
			out[i] = src
			continue
		}
		index[src.Name] = len(out)
		out = append(out, src)
	}
	return out
}

// DefaultSources returns the built-in reference data sources
func DefaultSources() []model.DataSource {
	return []model.DataSource{
		{
			Name:       "carbrands",
			Collection: "carbrands",
			Enabled:    true,
			Priority:   model.PriorityCritical,
			NaturalKey: model.NaturalKey{"name"},
			Indexes: []model.IndexSpec{
				{Fields: model.ParseIndexFields("country")},
				{Fields: model.ParseIndexFields("isActive,-popularInEgypt")},
			},
			Dataset: "car-brands.json",
			Asset: &model.AssetBinding{
				Category:       model.BrandLogos.Name,
				KeyField:       "name",
				SourceURLField: "logoUrl",
				URLField:       "logo",
			},
			Rule: `doc.name != ""`,
		},
		{
			Name:       "carmodels",
			Collection: "carmodels",
			Enabled:    true,
			Priority:   model.PriorityHigh,
			NaturalKey: model.NaturalKey{"brandName", "name"},
			Indexes:    []model.IndexSpec{{Fields: model.ParseIndexFields("brandName")}},
			Dataset:    "car-models.json",
		},
		{
			Name:       "obd_error_codes",
			Collection: "obd_error_codes",
			Enabled:    true,
			Priority:   model.PriorityHigh,
			NaturalKey: model.NaturalKey{"code"},
			Indexes: []model.IndexSpec{
				{Fields: model.ParseIndexFields("category")},
				{Fields: model.ParseIndexFields("severity")},
			},
			Dataset: "obd-codes.json",
			Rule:    `doc.code.matches("^[PBCU][0-9A-F]{4}$")`,
		},
		{
			Name:       "carparts",
			Collection: "carparts",
			Enabled:    true,
			Priority:   model.PriorityMedium,
			NaturalKey: model.NaturalKey{"partNumber"},
			Indexes:    []model.IndexSpec{{Fields: model.ParseIndexFields("category,brand")}},
			Dataset:    "car-parts.json",
		},
		{
			Name:       "cities",
			Collection: "cities",
			Enabled:    true,
			Priority:   model.PriorityMedium,
			NaturalKey: model.NaturalKey{"name"},
			Indexes:    []model.IndexSpec{{Fields: model.ParseIndexFields("governorate")}},
			Dataset:    "cities.json",
		},
		{
			Name:       "areas",
			Collection: "areas",
			Enabled:    true,
			Priority:   model.PriorityLow,
			NaturalKey: model.NaturalKey{"city", "name"},
			Dataset:    "areas.json",
		},
		{
			Name:       "payment_methods",
			Collection: "payment_methods",
			Enabled:    true,
			Priority:   model.PriorityMedium,
			NaturalKey: model.NaturalKey{"name"},
			Indexes:    []model.IndexSpec{{Fields: model.ParseIndexFields("type")}},
			Dataset:    "payment-methods.json",
			Asset: &model.AssetBinding{
				Category:       model.PaymentMethodLogos.Name,
				KeyField:       "name",
				SourceURLField: "logoUrl",
				URLField:       "logoUrl",
			},
		},
	}
}
