package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/sessionwatch/internal/clock"
	"github.com/MrEthical07/sessionwatch/record"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const minRetentionTTL = time.Second

// RedisConfig configures a [RedisBackend].
type RedisConfig struct {
	// Prefix namespaces every key and channel.
	Prefix string
	// KeyName is the per-namespace record key.
	KeyName string
	// RetentionGrace is added to the remaining lifetime when setting the key
	// TTL, so abandoned records are reclaimed by Redis eventually.
	RetentionGrace time.Duration

	Clock  clock.Clock
	Logger *zap.Logger
	Hooks  Hooks
}

// RedisBackend stores one record per namespace in Redis and broadcasts
// changes over Redis pub/sub, so handles in different processes observe each
// other's writes.
type RedisBackend struct {
	redis   redis.UniversalClient
	prefix  string
	keyName string
	grace   time.Duration
	clock   clock.Clock
	logger  *zap.Logger
	hooks   Hooks
}

// NewRedisBackend creates a Redis-backed [Backend].
//
//	Performance: Write and Clear are one MULTI/EXEC (SET|DEL + PUBLISH).
func NewRedisBackend(rdb redis.UniversalClient, cfg RedisConfig) *RedisBackend {
	if cfg.Prefix == "" {
		cfg.Prefix = "sw"
	}
	if cfg.KeyName == "" {
		cfg.KeyName = "userDataStore"
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &RedisBackend{
		redis:   rdb,
		prefix:  cfg.Prefix,
		keyName: cfg.KeyName,
		grace:   cfg.RetentionGrace,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		hooks:   cfg.Hooks,
	}
}

// Open returns a handle for origin on namespace.
func (b *RedisBackend) Open(namespace, origin string) Store {
	return &redisStore{backend: b, namespace: normalizeNamespace(namespace), origin: origin}
}

// Ping returns a point-in-time Redis availability check and latency.
func (b *RedisBackend) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := b.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func (b *RedisBackend) key(namespace string) string {
	return b.prefix + ":" + namespace + ":" + b.keyName
}

func (b *RedisBackend) channel(namespace string) string {
	return b.prefix + ":changes:" + namespace
}

func (b *RedisBackend) retention(rec *record.Record) time.Duration {
	ttl := rec.Remaining(b.clock.Now()) + b.grace
	if ttl < minRetentionTTL {
		return minRetentionTTL
	}
	return ttl
}

type redisStore struct {
	backend   *RedisBackend
	namespace string
	origin    string
}

func (s *redisStore) Namespace() string { return s.namespace }
func (s *redisStore) Origin() string    { return s.origin }

func (s *redisStore) Read(ctx context.Context) (*record.Record, bool) {
	b := s.backend
	start := time.Now()
	data, err := b.redis.Get(ctx, b.key(s.namespace)).Bytes()
	b.hooks.latency(start)

	if err != nil {
		if !errors.Is(err, redis.Nil) {
			b.logger.Warn("session store read failed",
				zap.String("namespace", s.namespace),
				zap.Error(err),
			)
		}
		return nil, false
	}

	rec, err := record.Decode(data)
	if err != nil {
		b.hooks.malformed()
		b.logger.Debug("ignoring malformed session record",
			zap.String("namespace", s.namespace),
			zap.Error(err),
		)
		return nil, false
	}
	return rec, true
}

func (s *redisStore) Write(ctx context.Context, rec *record.Record) error {
	if rec == nil {
		return ErrNilRecord
	}
	data, err := record.Encode(rec)
	if err != nil {
		return err
	}

	b := s.backend
	start := time.Now()
	_, err = b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.key(s.namespace), data, b.retention(rec))
		pipe.Publish(ctx, b.channel(s.namespace), s.origin)
		return nil
	})
	b.hooks.latency(start)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *redisStore) Clear(ctx context.Context) error {
	b := s.backend
	start := time.Now()
	_, err := b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.key(s.namespace))
		pipe.Publish(ctx, b.channel(s.namespace), s.origin)
		return nil
	})
	b.hooks.latency(start)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Subscribe opens a dedicated pub/sub connection. It returns once Redis has
// confirmed the subscription, so no change published afterwards is missed.
func (s *redisStore) Subscribe(ctx context.Context, fn func(Change)) (Subscription, error) {
	b := s.backend
	ps := b.redis.Subscribe(ctx, b.channel(s.namespace))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sub := &redisSubscription{
		ps:   ps,
		sub:  &subscriber{origin: s.origin, fn: fn},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go sub.run(s.namespace, ps.Channel())
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	sub  *subscriber
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (r *redisSubscription) run(namespace string, msgs <-chan *redis.Message) {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if msg.Payload == r.sub.origin {
				continue
			}
			r.sub.deliver(Change{Namespace: namespace, Origin: msg.Payload})
		}
	}
}

func (r *redisSubscription) Close() error {
	var err error
	r.once.Do(func() {
		r.sub.close()
		close(r.stop)
		err = r.ps.Close()
		<-r.done
	})
	return err
}
