package watchdog

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/sessionwatch/internal/clock"
	"github.com/MrEthical07/sessionwatch/store"
	"go.uber.org/zap"
)

// Options are the collaborators of a [Watchdog]. Prompter and Navigator are
// required; the rest default to no-ops and the real clock.
type Options struct {
	Config    Config
	Prompter  Prompter
	Navigator Navigator
	Observer  Observer
	Clock     clock.Clock
	Logger    *zap.Logger
}

// Watchdog watches one tab's session record, opens the expiry prompt ahead of
// expiry and force-ends the session once it lapses.
//
// All state changes happen under one mutex. Collaborators are invoked while
// it is held, in the order the transitions occur.
type Watchdog struct {
	store  store.Store
	cfg    Config
	prompt Prompter
	nav    Navigator
	obs    Observer
	clock  clock.Clock
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	warned    bool
	stopped   bool
	seconds   int
	gen       uint64
	countGen  uint64
	poll      clock.Timer
	countdown clock.Timer
	redirect  clock.Timer
	// live mirrors state being Armed or Warning for lock-free readers.
	live atomic.Bool

	// endMu guards ended only. It is never held while waiting on mu.
	endMu sync.Mutex
	ended clock.Timer
}

// New creates an idle watchdog over s.
func New(s store.Store, opts Options) *Watchdog {
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Config == (Config{}) {
		opts.Config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watchdog{
		store:  s,
		cfg:    opts.Config,
		prompt: opts.Prompter,
		nav:    opts.Navigator,
		obs:    opts.Observer,
		clock:  opts.Clock,
		logger: opts.Logger.With(zap.String("tab", s.Origin()), zap.String("namespace", s.Namespace())),
		ctx:    ctx,
		cancel: cancel,
	}
}

// State returns the current state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start arms the watchdog when a record is present and begins polling.
// Without a record it stays Idle. Calling Start again is a no-op.
func (w *Watchdog) Start(ctx context.Context) State {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped || w.state != Idle {
		return w.state
	}
	if _, ok := w.store.Read(ctx); !ok {
		return w.state
	}

	w.setStateLocked(Armed)
	w.schedulePollLocked()
	w.logger.Debug("watchdog armed")
	return w.state
}

// Extend renews the session while the prompt is showing and returns the
// watchdog to Armed.
func (w *Watchdog) Extend(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case Terminated:
		return ErrTerminated
	case Warning:
	default:
		return ErrNotWarning
	}

	rec, ok := w.store.Read(ctx)
	if !ok {
		return ErrNoSession
	}
	now := w.clock.Now()
	if rec.Expired(now) {
		w.terminateLocked()
		return ErrTerminated
	}

	rec.Renew(now)
	if err := w.store.Write(ctx, rec); err != nil {
		return err
	}

	w.closeWarningLocked()
	w.setStateLocked(Armed)
	w.obs.Extended()
	w.logger.Debug("session extended", zap.Int64("expires_at_ms", rec.ExpiresAtMs))
	return nil
}

// Stop cancels the poll, the countdown and any pending redirect. It is
// idempotent; the watchdog cannot be restarted.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	w.live.Store(false)
	w.gen++
	w.countGen++
	stopTimer(&w.poll)
	stopTimer(&w.countdown)
	stopTimer(&w.redirect)
	w.endMu.Lock()
	stopTimer(&w.ended)
	w.endMu.Unlock()
	w.cancel()
}

// SessionEnded reports that the record was cleared or lapsed outside this
// watchdog, typically by a sign-out in another tab. On the next clock turn
// the prompt is closed, the countdown and poll are cancelled and the watchdog
// drops back to Idle; a lapsed record is force-ended instead. It does not
// navigate on its own.
//
// SessionEnded never takes the state lock, so it may be called from store
// notifications delivered while another tab's watchdog holds its own.
func (w *Watchdog) SessionEnded() {
	if !w.live.Load() {
		return
	}
	w.endMu.Lock()
	defer w.endMu.Unlock()
	if w.ended != nil {
		return
	}
	w.ended = w.clock.AfterFunc(0, w.endSession)
}

func (w *Watchdog) endSession() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.endMu.Lock()
	w.ended = nil
	w.endMu.Unlock()

	if w.stopped || (w.state != Armed && w.state != Warning) {
		return
	}

	rec, ok := w.store.Read(w.ctx)
	if ok && rec.Principal.Valid() {
		if rec.Expired(w.clock.Now()) {
			w.terminateLocked()
		}
		return
	}

	w.closeWarningLocked()
	stopTimer(&w.poll)
	w.gen++
	w.setStateLocked(Idle)
	w.logger.Debug("session ended elsewhere, watchdog idle")
}

func (w *Watchdog) setStateLocked(s State) {
	w.state = s
	w.live.Store(s == Armed || s == Warning)
}

func (w *Watchdog) schedulePollLocked() {
	gen := w.gen
	w.poll = w.clock.AfterFunc(w.cfg.PollInterval, func() { w.tick(gen) })
}

func (w *Watchdog) tick(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.gen || w.stopped {
		return
	}
	w.poll = nil
	if w.state != Armed && w.state != Warning {
		return
	}

	if rec, ok := w.store.Read(w.ctx); ok {
		now := w.clock.Now()
		remaining := rec.Remaining(now)
		switch {
		case rec.Expired(now):
			w.terminateLocked()
			return
		case remaining < w.cfg.LeadThreshold:
			if !w.warned {
				w.openWarningLocked(rec.WarningSeconds(now))
			}
		case w.state == Warning:
			w.closeWarningLocked()
			w.setStateLocked(Armed)
			w.obs.WarningReset()
			w.logger.Debug("warning reset by renewal elsewhere")
		}
	} else if w.state == Warning {
		w.closeWarningLocked()
		w.setStateLocked(Armed)
		w.logger.Debug("warning closed, record gone")
	}

	w.schedulePollLocked()
}

func (w *Watchdog) openWarningLocked(seconds int) {
	w.warned = true
	w.setStateLocked(Warning)
	w.seconds = seconds
	w.prompt.OpenWarning(seconds)
	w.obs.WarningShown(seconds)
	w.logger.Debug("expiry warning shown", zap.Int("seconds", seconds))

	w.countGen++
	w.scheduleCountdownLocked()
}

func (w *Watchdog) scheduleCountdownLocked() {
	gen := w.countGen
	w.countdown = w.clock.AfterFunc(w.cfg.CountdownInterval, func() { w.countdownTick(gen) })
}

func (w *Watchdog) countdownTick(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.countGen || w.state != Warning {
		return
	}
	w.countdown = nil
	if w.seconds > 0 {
		w.seconds--
	}
	w.prompt.UpdateWarning(w.seconds)
	if w.seconds > 0 {
		w.scheduleCountdownLocked()
	}
}

// closeWarningLocked dismisses the prompt and resets the re-entry guard.
func (w *Watchdog) closeWarningLocked() {
	w.countGen++
	stopTimer(&w.countdown)
	if w.state == Warning {
		w.prompt.CloseWarning()
	}
	w.warned = false
	w.seconds = 0
}

func (w *Watchdog) terminateLocked() {
	if w.state == Terminated {
		return
	}

	w.countGen++
	stopTimer(&w.countdown)
	if w.state == Warning {
		w.prompt.CloseWarning()
	}
	stopTimer(&w.poll)

	if err := w.store.Clear(w.ctx); err != nil {
		w.logger.Warn("clearing expired session failed", zap.Error(err))
	}
	w.setStateLocked(Terminated)
	w.warned = false
	w.obs.ForcedLogout()
	w.logger.Info("session expired, forcing logout")

	gen := w.gen
	w.redirect = w.clock.AfterFunc(w.cfg.LogoutDelay, func() { w.finishLogout(gen) })
}

func (w *Watchdog) finishLogout(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.gen || w.stopped {
		return
	}
	w.redirect = nil
	w.nav.RedirectToSignIn()
	w.nav.Reload()
}

func stopTimer(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
