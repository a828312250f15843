// Package notify is an in-process bus announcing planned jobs to local
// subscribers.
package notify

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// EventType distinguishes job events.
type EventType int

const (
	// JobPlanned is published once a job's splits are written and registered.
	JobPlanned EventType = iota
	// JobFailed is published when planning a job fails after it was created.
	JobFailed
)

func (t EventType) String() string {
	switch t {
	case JobPlanned:
		return "job_planned"
	case JobFailed:
		return "job_failed"
	}
	return "unknown"
}

// Event describes one job lifecycle change.
type Event struct {
	Type      EventType
	JobID     string
	Index     string
	Splits    int
	Err       error
	Timestamp int64
}

// Subscriber receives events whose index matches one of Filters.
type Subscriber struct {
	ID      string
	Filters []string
	Ch      chan Event
}

// Notifier fans events out to subscribers.
type Notifier struct {
	// mu orders Publish sends against channel closes.
	mu          sync.RWMutex
	subscribers sync.Map
	bufferSize  int
}

// NewNotifier creates a notifier whose subscriber channels hold bufferSize
// events.
func NewNotifier(bufferSize int) *Notifier {
	return &Notifier{bufferSize: bufferSize}
}

// Publish delivers e to every matching subscriber. It never blocks: a
// subscriber with a full channel misses the event.
func (n *Notifier) Publish(e Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	n.subscribers.Range(func(_, value interface{}) bool {
		sub := value.(*Subscriber)
		if matches(sub.Filters, e.Index) {
			select {
			case sub.Ch <- e:
			default:
			}
		}
		return true
	})
}

// Subscribe registers a subscriber for indices starting with any of
// filters. No filters, or an empty filter, matches every index.
func (n *Notifier) Subscribe(filters ...string) *Subscriber {
	sub := &Subscriber{
		ID:      uuid.NewString(),
		Filters: filters,
		Ch:      make(chan Event, n.bufferSize),
	}
	n.subscribers.Store(sub.ID, sub)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if value, ok := n.subscribers.LoadAndDelete(id); ok {
		close(value.(*Subscriber).Ch)
	}
}

// Close unsubscribes everyone.
func (n *Notifier) Close() error {
	n.subscribers.Range(func(key, _ interface{}) bool {
		n.Unsubscribe(key.(string))
		return true
	})
	return nil
}

func matches(filters []string, index string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if strings.HasPrefix(index, f) {
			return true
		}
	}
	return false
}
