package sessionwatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/sessionwatch/activity"
	"github.com/MrEthical07/sessionwatch/guard"
	"github.com/MrEthical07/sessionwatch/record"
	"github.com/MrEthical07/sessionwatch/watchdog"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Prompter shows the expiry dialog of one tab.
type Prompter = watchdog.Prompter

// Navigator moves one tab's view.
type Navigator = watchdog.Navigator

// TabState is the watchdog state of a tab.
type TabState = watchdog.State

// Tab states.
const (
	TabIdle       = watchdog.Idle
	TabArmed      = watchdog.Armed
	TabWarning    = watchdog.Warning
	TabTerminated = watchdog.Terminated
)

// TabOptions describes a client view joining a namespace.
type TabOptions struct {
	Namespace string
	// ID identifies the tab in broadcasts and logs. Empty means a random id.
	ID        string
	Prompter  Prompter
	Navigator Navigator
}

// Tab is one client view: activity tracker, expiry watchdog and cross-tab
// guard over a dedicated store handle.
type Tab struct {
	id        string
	namespace string
	monitor   *Monitor
	events    *tabEvents
	logger    *zap.Logger

	tracker  *activity.Tracker
	watchdog *watchdog.Watchdog
	guard    *guard.Guard

	closed    atomic.Bool
	closeOnce sync.Once
}

// OpenTab attaches a new tab to a namespace and arms its watchdog when a
// session exists. A tab opened before sign-in stays idle until [Tab.Arm].
func (m *Monitor) OpenTab(ctx context.Context, opts TabOptions) (*Tab, error) {
	if opts.Prompter == nil {
		return nil, ErrMissingPrompter
	}
	if opts.Navigator == nil {
		return nil, ErrMissingNavigator
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrMonitorClosed
	}
	m.mu.Unlock()

	s := m.backend.Open(m.config.namespace(opts.Namespace), opts.ID)
	logger := m.logger.Named("tab")
	events := &tabEvents{m: m, namespace: s.Namespace(), tabID: opts.ID}

	t := &Tab{
		id:        opts.ID,
		namespace: s.Namespace(),
		monitor:   m,
		events:    events,
		logger:    logger.With(zap.String("tab", opts.ID), zap.String("namespace", s.Namespace())),
		tracker: activity.New(s, activity.Options{
			Clock:    m.clock,
			Logger:   logger,
			Observer: events,
		}),
		watchdog: watchdog.New(s, watchdog.Options{
			Config: watchdog.Config{
				PollInterval:      m.config.Watchdog.PollInterval,
				LeadThreshold:     m.config.Watchdog.LeadThreshold,
				CountdownInterval: m.config.Watchdog.CountdownInterval,
				LogoutDelay:       m.config.Watchdog.LogoutDelay,
			},
			Prompter:  opts.Prompter,
			Navigator: opts.Navigator,
			Observer:  events,
			Clock:     m.clock,
			Logger:    logger,
		}),
	}

	g, err := guard.New(ctx, s, guard.Options{
		Navigator:      opts.Navigator,
		Observer:       events,
		Clock:          m.clock,
		Logger:         logger,
		OnSessionEnded: t.watchdog.SessionEnded,
	})
	if err != nil {
		t.watchdog.Stop()
		return nil, err
	}
	t.guard = g

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		t.watchdog.Stop()
		_ = g.Close()
		return nil, ErrMonitorClosed
	}
	m.tabs[t.id] = t
	m.mu.Unlock()

	t.watchdog.Start(ctx)

	m.metrics.Inc(MetricTabOpened)
	events.emit(AuditTabOpened, nil)
	t.logger.Debug("tab opened", zap.Stringer("state", t.watchdog.State()))
	return t, nil
}

func (t *Tab) ID() string        { return t.id }
func (t *Tab) Namespace() string { return t.namespace }

// State returns the watchdog state.
func (t *Tab) State() TabState {
	return t.watchdog.State()
}

// Arm starts the watchdog if it is idle and a session now exists.
func (t *Tab) Arm(ctx context.Context) TabState {
	if t.closed.Load() {
		return t.watchdog.State()
	}
	return t.watchdog.Start(ctx)
}

// Touch records user activity in this tab.
func (t *Tab) Touch(ctx context.Context) (*record.Record, bool, error) {
	if t.closed.Load() {
		return nil, false, ErrTabClosed
	}
	if t.watchdog.State() == TabTerminated {
		return nil, false, ErrTerminated
	}
	rec, ok, err := t.tracker.Touch(ctx)
	if ok && err == nil {
		t.watchdog.Start(ctx)
	}
	return rec, ok, err
}

// Extend confirms the expiry prompt.
func (t *Tab) Extend(ctx context.Context) error {
	if t.closed.Load() {
		return ErrTabClosed
	}
	return t.watchdog.Extend(ctx)
}

// Check re-validates the session after the view moved, redirecting to
// sign-in when the protected area is entered without one.
func (t *Tab) Check(ctx context.Context) bool {
	if t.closed.Load() {
		return false
	}
	return t.guard.Check(ctx)
}

// Close stops every timer and the store subscription. It is idempotent.
func (t *Tab) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.watchdog.Stop()
		err = t.guard.Close()

		m := t.monitor
		m.mu.Lock()
		delete(m.tabs, t.id)
		m.mu.Unlock()

		m.metrics.Inc(MetricTabClosed)
		t.events.emit(AuditTabClosed, nil)
		t.logger.Debug("tab closed")
	})
	return err
}
