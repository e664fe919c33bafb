// Package config loads the service configuration: defaults, then a TOML
// file, then .env files and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/MrEthical07/sessionwatch"
	"github.com/MrEthical07/sessionwatch/internal/logging"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SW_"

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Session  SessionConfig  `toml:"session"`
	Watchdog WatchdogConfig `toml:"watchdog"`
	Routes   RoutesConfig   `toml:"routes"`
	Upstream UpstreamConfig `toml:"upstream"`
	Throttle ThrottleConfig `toml:"throttle"`
	Redis    RedisConfig    `toml:"redis"`
	Audit    AuditConfig    `toml:"audit"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Log      logging.Config `toml:"log"`
}

type ServerConfig struct {
	Addr            string        `toml:"addr"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	SecureCookies   bool          `toml:"secure_cookies"`
	// AllowedOrigins limits websocket upgrades. Empty means same host only.
	AllowedOrigins []string `toml:"allowed_origins"`
	// WSMessagesPerSecond and WSBurst bound inbound tab messages per connection.
	WSMessagesPerSecond float64 `toml:"ws_messages_per_second"`
	WSBurst             int     `toml:"ws_burst"`
}

type SessionConfig struct {
	Window           time.Duration `toml:"window"`
	RedisPrefix      string        `toml:"redis_prefix"`
	KeyName          string        `toml:"key_name"`
	RetentionGrace   time.Duration `toml:"retention_grace"`
	DefaultNamespace string        `toml:"default_namespace"`
}

type WatchdogConfig struct {
	PollInterval      time.Duration `toml:"poll_interval"`
	LeadThreshold     time.Duration `toml:"lead_threshold"`
	CountdownInterval time.Duration `toml:"countdown_interval"`
	LogoutDelay       time.Duration `toml:"logout_delay"`
}

type RoutesConfig struct {
	SignInPath      string `toml:"sign_in_path"`
	ProtectedPrefix string `toml:"protected_prefix"`
	// HomePath is where a successful sign-in lands.
	HomePath string `toml:"home_path"`
}

type UpstreamConfig struct {
	BaseURL     string        `toml:"base_url"`
	Timeout     time.Duration `toml:"timeout"`
	Permissions []string      `toml:"permissions"`
}

type ThrottleConfig struct {
	Enabled          bool          `toml:"enabled"`
	EnableIPThrottle bool          `toml:"ip_throttle"`
	MaxAttempts      int           `toml:"max_attempts"`
	Cooldown         time.Duration `toml:"cooldown"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	// Embedded runs an in-process miniredis instead of dialing Addr.
	Embedded bool `toml:"embedded"`
}

type AuditConfig struct {
	Enabled    bool       `toml:"enabled"`
	BufferSize int        `toml:"buffer_size"`
	DropIfFull bool       `toml:"drop_if_full"`
	JSONFile   string     `toml:"json_file"`
	AMQP       AMQPConfig `toml:"amqp"`
}

type AMQPConfig struct {
	URL           string `toml:"url"`
	Exchange      string `toml:"exchange"`
	RoutingPrefix string `toml:"routing_prefix"`
}

type MetricsConfig struct {
	Enabled           bool   `toml:"enabled"`
	LatencyHistograms bool   `toml:"latency_histograms"`
	Path              string `toml:"path"`
	// OTelInterval, when positive, also publishes the metrics through an
	// OpenTelemetry meter whose periodic reader logs each collection.
	OTelInterval time.Duration `toml:"otel_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	mc := sessionwatch.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:                ":8080",
			ReadTimeout:         15 * time.Second,
			WriteTimeout:        15 * time.Second,
			ShutdownTimeout:     10 * time.Second,
			WSMessagesPerSecond: 20,
			WSBurst:             40,
		},
		Session: SessionConfig{
			Window:           mc.Session.Window,
			RedisPrefix:      mc.Session.RedisPrefix,
			KeyName:          mc.Session.KeyName,
			RetentionGrace:   mc.Session.RetentionGrace,
			DefaultNamespace: mc.Session.DefaultNamespace,
		},
		Watchdog: WatchdogConfig{
			PollInterval:      mc.Watchdog.PollInterval,
			LeadThreshold:     mc.Watchdog.LeadThreshold,
			CountdownInterval: mc.Watchdog.CountdownInterval,
			LogoutDelay:       mc.Watchdog.LogoutDelay,
		},
		Routes: RoutesConfig{
			SignInPath:      mc.Routes.SignInPath,
			ProtectedPrefix: mc.Routes.ProtectedPrefix,
			HomePath:        "/dashboard/home",
		},
		Upstream: UpstreamConfig{
			Timeout: 10 * time.Second,
		},
		Throttle: ThrottleConfig{
			Enabled:          true,
			EnableIPThrottle: true,
			MaxAttempts:      5,
			Cooldown:         15 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Audit: AuditConfig{
			Enabled:    mc.Audit.Enabled,
			BufferSize: mc.Audit.BufferSize,
			DropIfFull: mc.Audit.DropIfFull,
			AMQP: AMQPConfig{
				Exchange:      "sessionwatch.audit",
				RoutingPrefix: "audit.",
			},
		},
		Metrics: MetricsConfig{
			Enabled:           mc.Metrics.Enabled,
			LatencyHistograms: mc.Metrics.EnableLatencyHistograms,
			Path:              "/metrics",
		},
		Log: logging.Config{
			Level: "info",
		},
	}
}

// Load reads path over the defaults, loads the given .env files and applies
// environment overrides, then validates. An empty path skips the TOML step;
// missing .env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SW_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	str("ADDR", &c.Server.Addr)
	boolean("SECURE_COOKIES", &c.Server.SecureCookies)
	dur("SESSION_WINDOW", &c.Session.Window)
	str("DEFAULT_NAMESPACE", &c.Session.DefaultNamespace)
	str("UPSTREAM_URL", &c.Upstream.BaseURL)
	dur("UPSTREAM_TIMEOUT", &c.Upstream.Timeout)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	integer("REDIS_DB", &c.Redis.DB)
	boolean("REDIS_EMBEDDED", &c.Redis.Embedded)
	boolean("THROTTLE_ENABLED", &c.Throttle.Enabled)
	integer("THROTTLE_MAX_ATTEMPTS", &c.Throttle.MaxAttempts)
	boolean("AUDIT_ENABLED", &c.Audit.Enabled)
	str("AUDIT_JSON_FILE", &c.Audit.JSONFile)
	str("AMQP_URL", &c.Audit.AMQP.URL)
	dur("METRICS_OTEL_INTERVAL", &c.Metrics.OTelInterval)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)
	boolean("LOG_DEVELOPMENT", &c.Log.Development)

	return errors.Join(errs...)
}

// Monitor maps the session sections onto a monitor configuration.
func (c *Config) Monitor() sessionwatch.Config {
	mc := sessionwatch.DefaultConfig()
	mc.Session = sessionwatch.SessionConfig{
		Window:           c.Session.Window,
		RedisPrefix:      c.Session.RedisPrefix,
		KeyName:          c.Session.KeyName,
		RetentionGrace:   c.Session.RetentionGrace,
		DefaultNamespace: c.Session.DefaultNamespace,
	}
	mc.Watchdog = sessionwatch.WatchdogConfig{
		PollInterval:      c.Watchdog.PollInterval,
		LeadThreshold:     c.Watchdog.LeadThreshold,
		CountdownInterval: c.Watchdog.CountdownInterval,
		LogoutDelay:       c.Watchdog.LogoutDelay,
	}
	mc.Routes = sessionwatch.RoutesConfig{
		SignInPath:      c.Routes.SignInPath,
		ProtectedPrefix: c.Routes.ProtectedPrefix,
	}
	mc.Audit = sessionwatch.AuditConfig{
		Enabled:    c.Audit.Enabled,
		BufferSize: c.Audit.BufferSize,
		DropIfFull: c.Audit.DropIfFull,
	}
	mc.Metrics = sessionwatch.MetricsConfig{
		Enabled:                 c.Metrics.Enabled,
		EnableLatencyHistograms: c.Metrics.LatencyHistograms,
	}
	return mc
}

// Validate checks the service sections and the embedded monitor settings.
func (c *Config) Validate() error {
	mc := c.Monitor()
	if err := mc.Validate(); err != nil {
		return err
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server addr must not be empty")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server shutdown_timeout must be > 0")
	}
	if c.Server.WSMessagesPerSecond <= 0 || c.Server.WSBurst <= 0 {
		return errors.New("server websocket rate limit must be > 0")
	}
	if !strings.HasPrefix(c.Routes.HomePath, c.Routes.ProtectedPrefix) {
		return errors.New("routes home_path must be inside protected_prefix")
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return errors.New("upstream base_url must not be empty")
	}
	if c.Upstream.Timeout <= 0 {
		return errors.New("upstream timeout must be > 0")
	}
	if c.Throttle.Enabled {
		if c.Throttle.MaxAttempts <= 0 {
			return errors.New("throttle max_attempts must be > 0 when enabled")
		}
		if c.Throttle.Cooldown <= 0 {
			return errors.New("throttle cooldown must be > 0 when enabled")
		}
	}
	if !c.Redis.Embedded && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("redis addr must not be empty unless embedded")
	}
	if c.Audit.AMQP.URL != "" && strings.TrimSpace(c.Audit.AMQP.Exchange) == "" {
		return errors.New("audit amqp exchange must not be empty when url is set")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.New("metrics path must start with /")
	}
	if c.Metrics.OTelInterval < 0 {
		return errors.New("metrics otel_interval must be >= 0")
	}
	return nil
}
