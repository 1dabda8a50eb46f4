package resilience

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Error classes recorded on dead-letter entries.
const (
	ClassTransient   = "transient"
	ClassPermanent   = "permanent"
	ClassCircuitOpen = "circuit_open"
	ClassRateLimited = "rate_limited"
)

// DLQEntry is a URL that failed every collector during a batch read.
type DLQEntry struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Error     string    `json:"error"`
	ErrorType string    `json:"error_type"`
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
}

// DLQFilter specifies criteria for listing dead-letter entries.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// ClassifyError maps an error onto one of the DLQ error classes.
func ClassifyError(err error) string {
	switch {
	case IsCircuitOpen(err):
		return ClassCircuitOpen
	case IsRateLimited(err):
		return ClassRateLimited
	case IsTransient(err):
		return ClassTransient
	default:
		return ClassPermanent
	}
}

// DLQ is a bounded in-memory dead-letter list. Repeated failures of the same
// URL update the existing entry instead of adding a new one.
type DLQ struct {
	mu      sync.Mutex
	max     int
	entries []DLQEntry

	nowFunc func() time.Time
}

// NewDLQ creates a DLQ keeping at most max entries (default 200).
func NewDLQ(max int) *DLQ {
	if max <= 0 {
		max = 200
	}
	return &DLQ{max: max, nowFunc: time.Now}
}

// Push records a failure for url and returns the stored entry.
func (q *DLQ) Push(url string, err error) DLQEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.nowFunc()
	for i := range q.entries {
		if q.entries[i].URL == url {
			q.entries[i].Attempts++
			q.entries[i].Error = err.Error()
			q.entries[i].ErrorType = ClassifyError(err)
			q.entries[i].FailedAt = now
			return q.entries[i]
		}
	}

	e := DLQEntry{
		ID:        uuid.NewString(),
		URL:       url,
		Error:     err.Error(),
		ErrorType: ClassifyError(err),
		Attempts:  1,
		FailedAt:  now,
	}
	q.entries = append(q.entries, e)
	if len(q.entries) > q.max {
		q.entries = q.entries[len(q.entries)-q.max:]
	}
	return e
}

// List returns entries matching f, most recent first.
func (q *DLQ) List(f DLQFilter) []DLQEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []DLQEntry
	for i := len(q.entries) - 1; i >= 0; i-- {
		e := q.entries[i]
		if f.ErrorType != "" && e.ErrorType != f.ErrorType {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Remove drops the entry for url, reporting whether one existed.
func (q *DLQ) Remove(url string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		if q.entries[i].URL == url {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (q *DLQ) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
