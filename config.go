package sessionwatch

import (
	"errors"
	"strings"
	"time"
)

// Config is the complete monitor configuration.
//
// Config values are copied by the Builder; mutating one after Build has no
// effect on the running monitor.
type Config struct {
	Session  SessionConfig
	Watchdog WatchdogConfig
	Routes   RoutesConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the record and where it is kept.
type SessionConfig struct {
	// Window is the sliding inactivity window written into every record.
	Window time.Duration
	// RedisPrefix namespaces keys and pub/sub channels.
	RedisPrefix string
	// KeyName is the per-namespace record key.
	KeyName string
	// RetentionGrace keeps an expired record in Redis this long past its
	// expiry so that late tabs still observe the logout.
	RetentionGrace time.Duration
	// DefaultNamespace is used when a caller passes an empty namespace.
	DefaultNamespace string
}

/*
====================================
WATCHDOG CONFIG
====================================
*/

// WatchdogConfig holds the expiry timings shared by every tab.
type WatchdogConfig struct {
	PollInterval      time.Duration
	LeadThreshold     time.Duration
	CountdownInterval time.Duration
	LogoutDelay       time.Duration
}

// RoutesConfig names the view locations the monitor navigates between.
type RoutesConfig struct {
	// SignInPath is where forced and cross-tab logouts land.
	SignInPath string
	// ProtectedPrefix marks the authenticated part of the dashboard.
	ProtectedPrefix string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults: a ten minute window, a one
// second poll and a ten second warning lead.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Window:           10 * time.Minute,
			RedisPrefix:      "sw",
			KeyName:          "userDataStore",
			RetentionGrace:   time.Minute,
			DefaultNamespace: "default",
		},
		Watchdog: WatchdogConfig{
			PollInterval:      time.Second,
			LeadThreshold:     10 * time.Second,
			CountdownInterval: time.Second,
			LogoutDelay:       100 * time.Millisecond,
		},
		Routes: RoutesConfig{
			SignInPath:      "/auth/sign-in",
			ProtectedPrefix: "/dashboard",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Session.Window <= 0 {
		return errors.New("Session Window must be > 0")
	}
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if strings.TrimSpace(c.Session.KeyName) == "" {
		return errors.New("Session KeyName must not be empty")
	}
	if c.Session.RetentionGrace < 0 {
		return errors.New("Session RetentionGrace must be >= 0")
	}

	if c.Watchdog.PollInterval <= 0 {
		return errors.New("Watchdog PollInterval must be > 0")
	}
	if c.Watchdog.LeadThreshold <= c.Watchdog.PollInterval {
		return errors.New("Watchdog LeadThreshold must be > PollInterval")
	}
	if c.Watchdog.LeadThreshold >= c.Session.Window {
		return errors.New("Watchdog LeadThreshold must be < Session Window")
	}
	if c.Watchdog.CountdownInterval <= 0 {
		return errors.New("Watchdog CountdownInterval must be > 0")
	}
	if c.Watchdog.LogoutDelay < 0 {
		return errors.New("Watchdog LogoutDelay must be >= 0")
	}

	if !strings.HasPrefix(c.Routes.SignInPath, "/") {
		return errors.New("Routes SignInPath must start with /")
	}
	if !strings.HasPrefix(c.Routes.ProtectedPrefix, "/") {
		return errors.New("Routes ProtectedPrefix must start with /")
	}
	if strings.HasPrefix(c.Routes.SignInPath, c.Routes.ProtectedPrefix) {
		return errors.New("Routes SignInPath must be outside ProtectedPrefix")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func (c Config) namespace(ns string) string {
	if ns == "" {
		return c.Session.DefaultNamespace
	}
	return ns
}
