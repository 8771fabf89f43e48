package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Priority orders data sources within a run
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank is higher for more urgent priorities; unknown values rank lowest
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ParsePriority validates a priority string
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if p.Rank() == 0 {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// AssetBinding ties documents of a source to an asset category
type AssetBinding struct {
	Category       string `json:"category" yaml:"category"`
	KeyField       string `json:"keyField" yaml:"keyField"`
	SourceURLField string `json:"sourceUrlField,omitempty" yaml:"sourceUrlField,omitempty"`
	URLField       string `json:"urlField,omitempty" yaml:"urlField,omitempty"`
}

// DataSource is the declarative description of one seeded collection
type DataSource struct {
	Name         string        `json:"name" yaml:"name"`
	Collection   string        `json:"collection" yaml:"collection"`
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Priority     Priority      `json:"priority" yaml:"priority"`
	BatchSize    int           `json:"batchSize,omitempty" yaml:"batchSize,omitempty"`
	BatchDelay   time.Duration `json:"batchDelay,omitempty" yaml:"batchDelay,omitempty"`
	MaxRetries   *int          `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	RetryBackoff time.Duration `json:"retryBackoff,omitempty" yaml:"retryBackoff,omitempty"`
	NaturalKey   NaturalKey    `json:"naturalKey" yaml:"naturalKey"`
	Indexes      []IndexSpec   `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	Dataset      string        `json:"dataset" yaml:"dataset"`
	Asset        *AssetBinding `json:"asset,omitempty" yaml:"asset,omitempty"`
	Rule         string        `json:"rule,omitempty" yaml:"rule,omitempty"`
}

// Retries is the number of retries after a failed batch. Unset means none.
func (s DataSource) Retries() int {
	if s.MaxRetries == nil || *s.MaxRetries < 0 {
		return 0
	}
	return *s.MaxRetries
}

// WithRetries returns a copy of s with MaxRetries set to n
func (s DataSource) WithRetries(n int) DataSource {
	s.MaxRetries = &n
	return s
}

// SortByPriority returns the sources ordered by descending priority,
// keeping declaration order within a priority
func SortByPriority(sources []DataSource) []DataSource {
	out := make([]DataSource, len(sources))
	copy(out, sources)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() > out[j].Priority.Rank()
	})
	return out
}
