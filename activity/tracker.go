// Package activity slides the session expiry forward on user interaction.
package activity

import (
	"context"

	"github.com/MrEthical07/sessionwatch/internal/clock"
	"github.com/MrEthical07/sessionwatch/record"
	"github.com/MrEthical07/sessionwatch/store"
	"go.uber.org/zap"
)

// Observer is told about every renewal that moved the expiry.
type Observer interface {
	Renewed(rec *record.Record)
}

// Options configures a [Tracker].
type Options struct {
	Clock    clock.Clock
	Logger   *zap.Logger
	Observer Observer
}

// Tracker renews the record behind one store handle.
type Tracker struct {
	store  store.Store
	clock  clock.Clock
	logger *zap.Logger
	obs    Observer
}

// New creates a tracker over s.
func New(s store.Store, opts Options) *Tracker {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Tracker{store: s, clock: opts.Clock, logger: opts.Logger, obs: opts.Observer}
}

// Touch sets expiresAtMs to max(expiresAtMs, now + window) and writes the
// record back. It reports false without error when there is no session or
// the session already lapsed; a lapsed record is never revived. A touch that
// would not move the expiry skips the write.
func (t *Tracker) Touch(ctx context.Context) (*record.Record, bool, error) {
	rec, ok := t.store.Read(ctx)
	if !ok {
		return nil, false, nil
	}
	now := t.clock.Now()
	if rec.Expired(now) {
		return nil, false, nil
	}
	if !rec.Renew(now) {
		return rec, true, nil
	}
	if err := t.store.Write(ctx, rec); err != nil {
		return nil, true, err
	}
	if t.obs != nil {
		t.obs.Renewed(rec)
	}
	return rec, true, nil
}
