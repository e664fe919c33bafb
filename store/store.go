package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/sessionwatch/record"
)

// ErrStoreUnavailable wraps backend failures on Write and Clear.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrNilRecord is returned when Write is called without a record.
var ErrNilRecord = errors.New("nil session record")

// Change is the notification delivered to other handles after a Write or
// Clear. It deliberately carries no record: receivers re-read the store.
type Change struct {
	Namespace string
	Origin    string
}

// Subscription is an active change subscription.
type Subscription interface {
	// Close stops delivery. No callback runs after Close returns. Close must
	// not be called from inside the subscription's own callback.
	Close() error
}

// Store is one tab's handle on the record of a namespace.
type Store interface {
	// Read returns the current record. Missing, malformed, and unreadable
	// records all report absent; Read never fails.
	Read(ctx context.Context) (*record.Record, bool)
	// Write replaces the record and notifies every other handle.
	Write(ctx context.Context, rec *record.Record) error
	// Clear removes the record and notifies every other handle.
	Clear(ctx context.Context) error
	// Subscribe registers fn for changes made through other handles.
	Subscribe(ctx context.Context, fn func(Change)) (Subscription, error)
	// Namespace returns the shared scope this handle is bound to.
	Namespace() string
	// Origin returns the id of the tab owning this handle.
	Origin() string
}

// Backend hands out per-tab handles on shared namespaces.
type Backend interface {
	Open(namespace, origin string) Store
}

// Hooks lets callers observe backend behaviour without coupling the store to
// a metrics implementation. Nil fields are ignored.
type Hooks struct {
	Latency   func(d time.Duration)
	Malformed func()
}

func (h Hooks) latency(start time.Time) {
	if h.Latency != nil {
		h.Latency(time.Since(start))
	}
}

func (h Hooks) malformed() {
	if h.Malformed != nil {
		h.Malformed()
	}
}

// subscriber serialises delivery against Close.
type subscriber struct {
	origin string
	fn     func(Change)

	mu     sync.Mutex
	closed bool
}

func (s *subscriber) deliver(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fn(c)
}

func (s *subscriber) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

func normalizeNamespace(namespace string) string {
	if namespace == "" {
		return "default"
	}
	return namespace
}
