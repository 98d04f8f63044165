package audit

import (
	"context"
	"sort"
	"sync"
)

// MemoryRecorder is an in-memory Recorder used when no audit database is
// configured and in tests. It is safe for concurrent use.
type MemoryRecorder struct {
	mu       sync.RWMutex
	attempts []Attempt
}

// NewMemoryRecorder creates an empty in-memory audit log.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{attempts: make([]Attempt, 0)}
}

// RecordAttempt implements Recorder.
func (m *MemoryRecorder) RecordAttempt(ctx context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

// History implements Recorder.
func (m *MemoryRecorder) History(ctx context.Context, f HistoryFilter) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Attempt
	for _, a := range m.attempts {
		if f.CustomerID != "" && a.CustomerID != f.CustomerID {
			continue
		}
		if f.Provider != "" && a.Provider != f.Provider {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}

	// Newest first, matching the database recorder.
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements Recorder.
func (m *MemoryRecorder) Close() error { return nil }
