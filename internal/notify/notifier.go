package notify

import (
	"context"
	"sync"
	"time"
)

// EventType distinguishes the two completion events a job can publish.
type EventType string

const (
	// EventDataUpdated signals that new records landed in the store.
	EventDataUpdated EventType = "data_updated"
	// EventCollectionStatus signals a job outcome without new data.
	EventCollectionStatus EventType = "collection_status"
)

// Event is one completion/failure notification, published at most once
// per job outcome.
type Event struct {
	ID           string    `json:"id"`
	EventType    EventType `json:"event_type"`
	CustomerID   string    `json:"customer_id"`
	Provider     string    `json:"provider"`
	DataType     string    `json:"data_type"`
	RecordsCount int       `json:"records_count,omitempty"`
	Status       string    `json:"status,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Notifier publishes completion events to a pub/sub channel. Publishing
// is best effort: the orchestrator logs failures but never fails a job
// over them.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// NopNotifier discards events. Used when no publish URL is configured.
type NopNotifier struct{}

func (NopNotifier) Publish(ctx context.Context, event Event) error { return nil }

// MemoryNotifier records published events for tests.
type MemoryNotifier struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryNotifier() *MemoryNotifier { return &MemoryNotifier{} }

func (m *MemoryNotifier) Publish(ctx context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (m *MemoryNotifier) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
