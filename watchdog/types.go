package watchdog

import (
	"errors"
	"time"
)

var (
	// ErrNotWarning is returned by Extend outside the Warning state.
	ErrNotWarning = errors.New("watchdog is not warning")
	// ErrTerminated is returned once the session has been force-ended.
	ErrTerminated = errors.New("session terminated")
	// ErrNoSession is returned when no record is present to extend.
	ErrNoSession = errors.New("no active session")
)

// State is the lifecycle state of one tab's watchdog.
type State int32

const (
	// Idle means no session was found at start, the session ended elsewhere,
	// or the watchdog was stopped before it armed.
	Idle State = iota
	// Armed means a session is present and the poll is running.
	Armed
	// Warning means the expiry prompt is showing.
	Warning
	// Terminated means the session was force-ended. It is final.
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Warning:
		return "warning"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Prompter shows the expiry dialog. Implementations must not call back into
// the Watchdog synchronously.
type Prompter interface {
	OpenWarning(seconds int)
	UpdateWarning(seconds int)
	CloseWarning()
}

// Navigator moves the view. Implementations must not call back into the
// Watchdog synchronously.
type Navigator interface {
	RedirectToSignIn()
	Reload()
	InProtectedArea() bool
}

// Observer receives lifecycle notifications.
type Observer interface {
	WarningShown(seconds int)
	Extended()
	WarningReset()
	ForcedLogout()
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) WarningShown(int) {}
func (NopObserver) Extended()        {}
func (NopObserver) WarningReset()    {}
func (NopObserver) ForcedLogout()    {}

// Config holds the watchdog timings.
type Config struct {
	// PollInterval is the period between expiry checks.
	PollInterval time.Duration
	// LeadThreshold is how long before expiry the prompt opens.
	LeadThreshold time.Duration
	// CountdownInterval is the period of the displayed countdown.
	CountdownInterval time.Duration
	// LogoutDelay separates the forced logout from the sign-in redirect.
	LogoutDelay time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:      time.Second,
		LeadThreshold:     10 * time.Second,
		CountdownInterval: time.Second,
		LogoutDelay:       100 * time.Millisecond,
	}
}

// Validate checks the timings for internal consistency.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("watchdog poll interval must be > 0")
	}
	if c.LeadThreshold <= c.PollInterval {
		return errors.New("watchdog lead threshold must exceed the poll interval")
	}
	if c.CountdownInterval <= 0 {
		return errors.New("watchdog countdown interval must be > 0")
	}
	if c.LogoutDelay < 0 {
		return errors.New("watchdog logout delay must be >= 0")
	}
	return nil
}
