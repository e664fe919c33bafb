// Package guard keeps a tab consistent with sign-outs that happen elsewhere:
// when the shared record disappears or stops carrying a usable principal, a
// tab sitting in the protected area is sent to sign-in.
package guard

import (
	"context"
	"sync"

	"github.com/MrEthical07/sessionwatch/internal/clock"
	"github.com/MrEthical07/sessionwatch/store"
	"go.uber.org/zap"
)

// Navigator is the subset of view control the guard needs.
type Navigator interface {
	RedirectToSignIn()
	InProtectedArea() bool
}

// Observer is told about every redirect the guard performs.
type Observer interface {
	CrossTabRedirect()
}

// Options are the collaborators of a [Guard]. Navigator is required.
type Options struct {
	Navigator Navigator
	Observer  Observer
	// Clock decides whether a stored record has lapsed.
	Clock  clock.Clock
	Logger *zap.Logger
	// OnSessionEnded runs whenever a check finds no live session, before the
	// protected-area test. The tab uses it to stand its watchdog down.
	OnSessionEnded func()
}

// Guard reacts to store changes made by other tabs.
type Guard struct {
	store   store.Store
	nav     Navigator
	obs     Observer
	clock   clock.Clock
	onEnded func()
	logger  *zap.Logger

	mu  sync.Mutex
	sub store.Subscription
}

// New subscribes to s and returns an active guard.
func New(ctx context.Context, s store.Store, opts Options) (*Guard, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	g := &Guard{
		store:   s,
		nav:     opts.Navigator,
		obs:     opts.Observer,
		clock:   opts.Clock,
		onEnded: opts.OnSessionEnded,
		logger:  opts.Logger.With(zap.String("tab", s.Origin()), zap.String("namespace", s.Namespace())),
	}

	sub, err := s.Subscribe(ctx, g.onChange)
	if err != nil {
		return nil, err
	}
	g.sub = sub
	return g, nil
}

// Check re-reads the store and redirects when the session is gone. A record
// that is still stored but already lapsed counts as gone. It is idempotent
// and safe to call at any time.
func (g *Guard) Check(ctx context.Context) bool {
	if rec, ok := g.store.Read(ctx); ok && rec.Principal.Valid() && !rec.Expired(g.clock.Now()) {
		return false
	}
	if g.onEnded != nil {
		g.onEnded()
	}
	if !g.nav.InProtectedArea() {
		return false
	}

	g.logger.Info("session ended in another tab, redirecting to sign-in")
	g.nav.RedirectToSignIn()
	if g.obs != nil {
		g.obs.CrossTabRedirect()
	}
	return true
}

func (g *Guard) onChange(store.Change) {
	g.Check(context.Background())
}

// Close unsubscribes. No change is handled after Close returns.
func (g *Guard) Close() error {
	g.mu.Lock()
	sub := g.sub
	g.sub = nil
	g.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Close()
}
