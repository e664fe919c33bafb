package activity

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/sessionwatch/internal/clock"
	"github.com/MrEthical07/sessionwatch/record"
	"github.com/MrEthical07/sessionwatch/store"
	"github.com/stretchr/testify/require"
)

type renewals struct{ n int }

func (r *renewals) Renewed(*record.Record) { r.n++ }

func seed(t *testing.T, s store.Store) {
	t.Helper()
	p := record.Principal{AccessToken: "at-1"}
	require.NoError(t, s.Write(context.Background(), record.New(p, 10*time.Minute, time.UnixMilli(0))))
}

func TestTouchSlidesExpiry(t *testing.T) {
	fake := clock.NewFake(time.UnixMilli(0))
	backend := store.NewMemoryBackend(nil, store.Hooks{})
	s := backend.Open("ops", "tab-a")
	seed(t, s)

	obs := &renewals{}
	tr := New(s, Options{Clock: fake, Observer: obs})

	fake.AdvanceTo(time.UnixMilli(100000))
	rec, ok, err := tr.Touch(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(700000), rec.ExpiresAtMs)

	stored, ok := s.Read(context.Background())
	require.True(t, ok)
	require.Equal(t, int64(700000), stored.ExpiresAtMs)
	require.Equal(t, 1, obs.n)
}

func TestTouchNeverShortens(t *testing.T) {
	fake := clock.NewFake(time.UnixMilli(0))
	backend := store.NewMemoryBackend(nil, store.Hooks{})
	s := backend.Open("ops", "tab-a")
	seed(t, s)

	// Another tab already renewed further ahead.
	r, _ := s.Read(context.Background())
	r.ExpiresAtMs = 900000
	require.NoError(t, s.Write(context.Background(), r))

	obs := &renewals{}
	fake.AdvanceTo(time.UnixMilli(100000))
	rec, ok, err := New(s, Options{Clock: fake, Observer: obs}).Touch(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(900000), rec.ExpiresAtMs)
	require.Zero(t, obs.n)
}

func TestTouchWithoutSessionIsNoop(t *testing.T) {
	backend := store.NewMemoryBackend(nil, store.Hooks{})
	rec, ok, err := New(backend.Open("ops", "tab"), Options{}).Touch(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, rec)
	_, present := backend.Raw("ops")
	require.False(t, present)
}

func TestTouchDoesNotReviveExpiredSession(t *testing.T) {
	fake := clock.NewFake(time.UnixMilli(0))
	backend := store.NewMemoryBackend(nil, store.Hooks{})
	s := backend.Open("ops", "tab-a")
	seed(t, s)

	fake.AdvanceTo(time.UnixMilli(600000))
	rec, ok, err := New(s, Options{Clock: fake}).Touch(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, rec)

	stored, present := s.Read(context.Background())
	require.True(t, present)
	require.Equal(t, int64(600000), stored.ExpiresAtMs)
}

func TestTouchNotifiesOtherTabs(t *testing.T) {
	fake := clock.NewFake(time.UnixMilli(0))
	backend := store.NewMemoryBackend(nil, store.Hooks{})
	a := backend.Open("ops", "tab-a")
	b := backend.Open("ops", "tab-b")
	seed(t, a)

	var origins []string
	sub, err := b.Subscribe(context.Background(), func(c store.Change) { origins = append(origins, c.Origin) })
	require.NoError(t, err)
	defer sub.Close()

	fake.Advance(time.Second)
	_, _, err = New(a, Options{Clock: fake}).Touch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"tab-a"}, origins)
}
