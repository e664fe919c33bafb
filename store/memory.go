package store

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/sessionwatch/record"
	"go.uber.org/zap"
)

// MemoryBackend keeps records in process memory and fans changes out
// synchronously on the writer's goroutine.
type MemoryBackend struct {
	mu     sync.Mutex
	spaces map[string]*memorySpace
	nextID uint64
	logger *zap.Logger
	hooks  Hooks
}

type memorySpace struct {
	data []byte
	subs map[uint64]*subscriber
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend(logger *zap.Logger, hooks Hooks) *MemoryBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryBackend{
		spaces: make(map[string]*memorySpace),
		logger: logger,
		hooks:  hooks,
	}
}

// Open returns a handle for origin on namespace.
func (b *MemoryBackend) Open(namespace, origin string) Store {
	return &memoryStore{backend: b, namespace: normalizeNamespace(namespace), origin: origin}
}

// Raw returns the stored bytes of a namespace, for inspection.
func (b *MemoryBackend) Raw(namespace string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	space, ok := b.spaces[normalizeNamespace(namespace)]
	if !ok || space.data == nil {
		return nil, false
	}
	return append([]byte(nil), space.data...), true
}

// PutRaw stores data verbatim and notifies every handle of the namespace.
func (b *MemoryBackend) PutRaw(namespace string, data []byte) {
	b.set(normalizeNamespace(namespace), "", append([]byte(nil), data...))
}

func (b *MemoryBackend) spaceLocked(namespace string) *memorySpace {
	space, ok := b.spaces[namespace]
	if !ok {
		space = &memorySpace{subs: make(map[uint64]*subscriber)}
		b.spaces[namespace] = space
	}
	return space
}

func (b *MemoryBackend) set(namespace, origin string, data []byte) {
	b.mu.Lock()
	space := b.spaceLocked(namespace)
	space.data = data
	targets := make([]*subscriber, 0, len(space.subs))
	for _, sub := range space.subs {
		if sub.origin != origin {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	change := Change{Namespace: namespace, Origin: origin}
	for _, sub := range targets {
		sub.deliver(change)
	}
}

type memoryStore struct {
	backend   *MemoryBackend
	namespace string
	origin    string
}

func (s *memoryStore) Namespace() string { return s.namespace }
func (s *memoryStore) Origin() string    { return s.origin }

func (s *memoryStore) Read(ctx context.Context) (*record.Record, bool) {
	start := time.Now()
	defer s.backend.hooks.latency(start)

	s.backend.mu.Lock()
	var data []byte
	if space, ok := s.backend.spaces[s.namespace]; ok {
		data = space.data
	}
	s.backend.mu.Unlock()

	if data == nil {
		return nil, false
	}

	rec, err := record.Decode(data)
	if err != nil {
		s.backend.hooks.malformed()
		s.backend.logger.Debug("ignoring malformed session record",
			zap.String("namespace", s.namespace),
			zap.Error(err),
		)
		return nil, false
	}
	return rec, true
}

func (s *memoryStore) Write(ctx context.Context, rec *record.Record) error {
	if rec == nil {
		return ErrNilRecord
	}
	data, err := record.Encode(rec)
	if err != nil {
		return err
	}

	start := time.Now()
	s.backend.set(s.namespace, s.origin, data)
	s.backend.hooks.latency(start)
	return nil
}

func (s *memoryStore) Clear(ctx context.Context) error {
	start := time.Now()
	s.backend.set(s.namespace, s.origin, nil)
	s.backend.hooks.latency(start)
	return nil
}

func (s *memoryStore) Subscribe(ctx context.Context, fn func(Change)) (Subscription, error) {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	sub := &subscriber{origin: s.origin, fn: fn}
	b.spaceLocked(s.namespace).subs[id] = sub

	return &memorySubscription{backend: b, namespace: s.namespace, id: id, sub: sub}, nil
}

type memorySubscription struct {
	backend   *MemoryBackend
	namespace string
	id        uint64
	sub       *subscriber
}

func (m *memorySubscription) Close() error {
	m.backend.mu.Lock()
	if space, ok := m.backend.spaces[m.namespace]; ok {
		delete(space.subs, m.id)
	}
	m.backend.mu.Unlock()

	m.sub.close()
	return nil
}
