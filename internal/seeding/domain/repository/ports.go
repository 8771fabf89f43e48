package repository

import (
	"context"

	"refdata-seeder/internal/seeding/domain/model"
)

// RunReporter persists run summaries for later inspection
type RunReporter interface {
	Publish(ctx context.Context, summary *model.RunSummary) error
	Latest(ctx context.Context) (*model.RunSummary, error)
	History(ctx context.Context, limit int64) ([]*model.RunSummary, error)
}

// DatasetLoader reads the records of one data source
type DatasetLoader interface {
	Load(ctx context.Context, dataset string) ([]model.Document, error)
}

// LogoFetcher downloads the source image of a logo
type LogoFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// VariantRenderer produces the encoded image of one size variant
type VariantRenderer interface {
	Render(content []byte, size int) ([]byte, error)
}

// RecordValidator checks one record of a source before it is written
type RecordValidator interface {
	Validate(source string, doc model.Document) error
}
