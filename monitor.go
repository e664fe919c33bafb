package sessionwatch

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/MrEthical07/sessionwatch/activity"
	"github.com/MrEthical07/sessionwatch/internal/audit"
	"github.com/MrEthical07/sessionwatch/record"
	"github.com/MrEthical07/sessionwatch/store"
	"go.uber.org/zap"
)

// Monitor owns the session store of every namespace and the tabs watching it.
type Monitor struct {
	config  Config
	backend store.Backend
	clock   Clock
	logger  *zap.Logger
	metrics *Metrics
	audit   *audit.Dispatcher
	origin  string

	mu     sync.Mutex
	tabs   map[string]*Tab
	closed bool
}

// Config returns a copy of the active configuration.
func (m *Monitor) Config() Config {
	return m.config
}

func (m *Monitor) handle(namespace string) store.Store {
	return m.backend.Open(m.config.namespace(namespace), m.origin)
}

func (m *Monitor) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SignIn stores a fresh record for principal with expiresAtMs = now + window.
// Every tab of the namespace is notified.
func (m *Monitor) SignIn(ctx context.Context, namespace string, principal record.Principal) (*record.Record, error) {
	if m.isClosed() {
		return nil, ErrMonitorClosed
	}
	if !principal.Valid() {
		return nil, ErrInvalidPrincipal
	}

	s := m.handle(namespace)
	rec := record.New(principal, m.config.Session.Window, m.clock.Now())
	if err := s.Write(ctx, rec); err != nil {
		m.logger.Warn("sign-in store write failed", zap.String("namespace", s.Namespace()), zap.Error(err))
		return nil, err
	}

	m.metrics.Inc(MetricSignIn)
	m.emitAudit(ctx, AuditEvent{
		EventType: AuditSignIn,
		UserID:    principal.User.ID,
		Namespace: s.Namespace(),
		Success:   true,
	})
	m.logger.Info("signed in",
		zap.String("namespace", s.Namespace()),
		zap.String("user_id", principal.User.ID),
	)
	return rec.Clone(), nil
}

// ReportSignInFailure records a rejected sign-in attempt.
func (m *Monitor) ReportSignInFailure(ctx context.Context, namespace, username string, rateLimited bool, cause error) {
	if rateLimited {
		m.metrics.Inc(MetricSignInRateLimited)
	} else {
		m.metrics.Inc(MetricSignInFailure)
	}

	event := AuditEvent{
		EventType: AuditSignInFailed,
		Namespace: m.config.namespace(namespace),
		Metadata:  map[string]string{"username": username},
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	m.emitAudit(ctx, event)
}

// Logout clears the namespace's record. Every tab of the namespace follows
// through its guard.
func (m *Monitor) Logout(ctx context.Context, namespace string) error {
	if m.isClosed() {
		return ErrMonitorClosed
	}

	s := m.handle(namespace)
	var userID string
	if rec, ok := s.Read(ctx); ok {
		userID = rec.User.ID
	}
	if err := s.Clear(ctx); err != nil {
		return err
	}

	m.metrics.Inc(MetricLogout)
	m.emitAudit(ctx, AuditEvent{
		EventType: AuditLogout,
		UserID:    userID,
		Namespace: s.Namespace(),
		Success:   true,
	})
	return nil
}

// Session reads the live record of a namespace. A record that has already
// lapsed reports absent even before a watchdog clears it.
func (m *Monitor) Session(ctx context.Context, namespace string) (*record.Record, bool) {
	rec, ok := m.handle(namespace).Read(ctx)
	if !ok || rec.Expired(m.clock.Now()) {
		return nil, false
	}
	return rec, true
}

// Principal reads the current principal from the store. Callers should
// not cache it: the store is the only source of truth.
func (m *Monitor) Principal(ctx context.Context, namespace string) (record.Principal, bool) {
	rec, ok := m.Session(ctx, namespace)
	if !ok {
		return record.Principal{}, false
	}
	return rec.Principal, true
}

// Touch records user activity on behalf of a request.
func (m *Monitor) Touch(ctx context.Context, namespace string) (*record.Record, bool, error) {
	s := m.handle(namespace)
	tr := activity.New(s, activity.Options{
		Clock:    m.clock,
		Logger:   m.logger,
		Observer: &tabEvents{m: m, namespace: s.Namespace()},
	})
	return tr.Touch(ctx)
}

// MetricsSnapshot returns the current counters.
func (m *Monitor) MetricsSnapshot() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// AuditDelivered returns how many audit events reached the sink.
func (m *Monitor) AuditDelivered() uint64 {
	return m.audit.Delivered()
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (m *Monitor) AuditDropped() uint64 {
	return m.audit.Dropped()
}

// Now returns the monitor clock's current time.
func (m *Monitor) Now() time.Time {
	return m.clock.Now()
}

// OpenTabs returns the number of tabs currently open.
func (m *Monitor) OpenTabs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tabs)
}

// Close closes every open tab and flushes the audit dispatcher.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	tabs := make([]*Tab, 0, len(m.tabs))
	for _, t := range m.tabs {
		tabs = append(tabs, t)
	}
	m.mu.Unlock()

	for _, t := range tabs {
		_ = t.Close()
	}
	m.audit.Close()
	return nil
}

func (m *Monitor) emitAudit(ctx context.Context, event AuditEvent) {
	if m.audit == nil {
		return
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	m.audit.Emit(ctx, event)
}

// tabEvents turns component notifications into metrics and audit events.
type tabEvents struct {
	m         *Monitor
	namespace string
	tabID     string
}

func (e *tabEvents) emit(eventType string, meta map[string]string) {
	e.m.emitAudit(context.Background(), AuditEvent{
		EventType: eventType,
		Namespace: e.namespace,
		TabID:     e.tabID,
		Success:   true,
		Metadata:  meta,
	})
}

func (e *tabEvents) Renewed(rec *record.Record) {
	e.m.metrics.Inc(MetricRenewal)
	e.m.emitAudit(context.Background(), AuditEvent{
		EventType: AuditRenewed,
		UserID:    rec.User.ID,
		Namespace: e.namespace,
		TabID:     e.tabID,
		Success:   true,
	})
}

func (e *tabEvents) WarningShown(seconds int) {
	e.m.metrics.Inc(MetricWarningShown)
	e.emit(AuditWarningShown, map[string]string{"seconds": strconv.Itoa(seconds)})
}

func (e *tabEvents) Extended() {
	e.m.metrics.Inc(MetricExtended)
	e.emit(AuditExtended, nil)
}

func (e *tabEvents) WarningReset() {
	e.m.metrics.Inc(MetricWarningReset)
}

func (e *tabEvents) ForcedLogout() {
	e.m.metrics.Inc(MetricForcedLogout)
	e.emit(AuditForcedLogout, nil)
}

func (e *tabEvents) CrossTabRedirect() {
	e.m.metrics.Inc(MetricCrossTabRedirect)
	e.emit(AuditCrossTabRedirect, nil)
}
