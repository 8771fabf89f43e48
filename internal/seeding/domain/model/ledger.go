package model

import (
	"sync"
	"time"

	apperrors "refdata-seeder/internal/shared/errors"
)

// LedgerEntry is one classified error recorded during a run
type LedgerEntry struct {
	Source  string              `json:"source"`
	Key     string              `json:"key,omitempty"`
	Kind    apperrors.ErrorType `json:"kind"`
	Message string              `json:"message"`
	At      time.Time           `json:"at"`
}

// ErrorLedger collects every error of a run. It is safe for concurrent use.
type ErrorLedger struct {
	mu      sync.Mutex
	entries []LedgerEntry
	now     func() time.Time
}

// NewErrorLedger creates an empty ledger
func NewErrorLedger() *ErrorLedger {
	return &ErrorLedger{now: time.Now}
}

// Record classifies err and appends it. key is the natural key or asset path involved.
func (l *ErrorLedger) Record(source, key string, err error) LedgerEntry {
	entry := LedgerEntry{
		Source:  source,
		Key:     key,
		Kind:    apperrors.TypeOf(err),
		Message: err.Error(),
		At:      l.now(),
	}
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
	return entry
}

// Count returns the number of recorded errors
func (l *ErrorLedger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// CountForSource returns the number of errors recorded against source
func (l *ErrorLedger) CountForSource(source string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Source == source {
			n++
		}
	}
	return n
}

// Exceeds reports whether the ledger holds more than max errors
func (l *ErrorLedger) Exceeds(max int) bool {
	return l.Count() > max
}

// Entries returns a copy of the recorded entries
func (l *ErrorLedger) Entries() []LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ByKind totals the entries per error kind
func (l *ErrorLedger) ByKind() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int)
	for _, e := range l.entries {
		out[string(e.Kind)]++
	}
	return out
}

// BySource totals the entries per data source
func (l *ErrorLedger) BySource() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int)
	for _, e := range l.entries {
		out[e.Source]++
	}
	return out
}
