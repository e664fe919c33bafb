package sessionwatch

import (
	"errors"
	"time"

	"github.com/MrEthical07/sessionwatch/internal/audit"
	"github.com/MrEthical07/sessionwatch/internal/clock"
	"github.com/MrEthical07/sessionwatch/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Clock is the time source used by a monitor and its tabs.
type Clock = clock.Clock

// Timer is a pending callback scheduled by a [Clock].
type Timer = clock.Timer

// Builder assembles a [Monitor]. A Builder can be used once.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	backend   store.Backend
	logger    *zap.Logger
	auditSink AuditSink
	clock     Clock

	built bool
}

// New starts a builder with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis stores records in Redis and broadcasts changes over pub/sub.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithBackend uses a caller-supplied store backend. It takes precedence over
// WithRedis.
func (b *Builder) WithBackend(backend store.Backend) *Builder {
	b.backend = backend
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink enables auditing into sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready monitor. Without
// WithRedis or WithBackend the monitor keeps records in process memory.
func (b *Builder) Build() (*Monitor, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := b.clock
	if clk == nil {
		clk = clock.Real{}
	}

	metrics := NewMetrics(cfg.Metrics)
	hooks := store.Hooks{
		Latency:   func(d time.Duration) { metrics.Observe(MetricStoreLatency, d) },
		Malformed: func() { metrics.Inc(MetricMalformedRecord) },
	}

	backend := b.backend
	switch {
	case backend != nil:
	case b.redis != nil:
		backend = store.NewRedisBackend(b.redis, store.RedisConfig{
			Prefix:         cfg.Session.RedisPrefix,
			KeyName:        cfg.Session.KeyName,
			RetentionGrace: cfg.Session.RetentionGrace,
			Clock:          clk,
			Logger:         logger.Named("store"),
			Hooks:          hooks,
		})
	default:
		backend = store.NewMemoryBackend(logger.Named("store"), hooks)
	}

	m := &Monitor{
		config:  cfg,
		backend: backend,
		clock:   clk,
		logger:  logger,
		metrics: metrics,
		origin:  "monitor-" + uuid.NewString(),
		tabs:    make(map[string]*Tab),
	}
	m.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, clk.Now)

	b.built = true

	return m, nil
}
