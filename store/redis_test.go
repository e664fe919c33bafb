package store

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/sessionwatch/internal/clock"
	"github.com/MrEthical07/sessionwatch/record"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisBackendTest(t *testing.T, clk clock.Clock) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	backend := NewRedisBackend(rdb, RedisConfig{
		Prefix:         "swt",
		RetentionGrace: time.Minute,
		Clock:          clk,
	})
	return backend, mr
}

func testRecord(now time.Time) *record.Record {
	return record.New(record.Principal{
		AccessToken:    "at-1",
		User:           record.User{ID: "u-1", Role: "SUPER_ADMIN"},
		PermissionList: []string{"SUPER_ADMIN"},
	}, 10*time.Minute, now)
}

func waitChange(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for change notification")
		return Change{}
	}
}

func requireQuiet(t *testing.T, ch <-chan Change, msg string) {
	t.Helper()
	select {
	case c := <-ch:
		require.FailNow(t, msg, "got %+v", c)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisWriteReadRoundTrip(t *testing.T) {
	fake := clock.NewFake(time.UnixMilli(0))
	backend, mr := newRedisBackendTest(t, fake)
	ctx := context.Background()

	s := backend.Open("ops", "tab-a")
	require.NoError(t, s.Write(ctx, testRecord(fake.Now())))

	got, ok := s.Read(ctx)
	require.True(t, ok)
	require.Equal(t, int64(600000), got.ExpiresAtMs)
	require.Equal(t, "at-1", got.AccessToken)

	require.Equal(t, 11*time.Minute, mr.TTL("swt:ops:userDataStore"), "window plus retention grace")
}

func TestRedisRecordIsSharedAcrossHandles(t *testing.T) {
	backend, _ := newRedisBackendTest(t, nil)
	ctx := context.Background()

	a := backend.Open("ops", "tab-a")
	b := backend.Open("ops", "tab-b")
	other := backend.Open("finance", "tab-c")

	require.NoError(t, a.Write(ctx, testRecord(time.Now())))
	_, ok := b.Read(ctx)
	require.True(t, ok, "second handle sees the record")
	_, ok = other.Read(ctx)
	require.False(t, ok, "namespaces must not share records")
}

func TestRedisReadFailsSoft(t *testing.T) {
	backend, mr := newRedisBackendTest(t, nil)
	ctx := context.Background()
	s := backend.Open("ops", "tab-a")

	_, ok := s.Read(ctx)
	require.False(t, ok)

	require.NoError(t, mr.Set("swt:ops:userDataStore", "{not json"))
	_, ok = s.Read(ctx)
	require.False(t, ok, "malformed record reads as absent")

	mr.SetError("LOADING")
	_, ok = s.Read(ctx)
	require.False(t, ok, "backend error reads as absent")
}

func TestRedisWriteWrapsUnavailable(t *testing.T) {
	backend, mr := newRedisBackendTest(t, nil)
	s := backend.Open("ops", "tab-a")

	mr.SetError("LOADING")
	require.ErrorIs(t, s.Write(context.Background(), testRecord(time.Now())), ErrStoreUnavailable)
	require.ErrorIs(t, s.Clear(context.Background()), ErrStoreUnavailable)
}

func TestRedisWriteRejectsNil(t *testing.T) {
	backend, _ := newRedisBackendTest(t, nil)
	require.ErrorIs(t, backend.Open("ops", "a").Write(context.Background(), nil), ErrNilRecord)
}

func TestRedisNotifiesOtherHandlesOnly(t *testing.T) {
	backend, _ := newRedisBackendTest(t, nil)
	ctx := context.Background()

	a := backend.Open("ops", "tab-a")
	b := backend.Open("ops", "tab-b")

	aChanges := make(chan Change, 4)
	bChanges := make(chan Change, 4)
	subA, err := a.Subscribe(ctx, func(c Change) { aChanges <- c })
	require.NoError(t, err)
	defer subA.Close()
	subB, err := b.Subscribe(ctx, func(c Change) { bChanges <- c })
	require.NoError(t, err)
	defer subB.Close()

	require.NoError(t, a.Write(ctx, testRecord(time.Now())))
	c := waitChange(t, bChanges)
	require.Equal(t, "tab-a", c.Origin)
	require.Equal(t, "ops", c.Namespace)

	require.NoError(t, b.Clear(ctx))
	c = waitChange(t, aChanges)
	require.Equal(t, "tab-b", c.Origin)

	requireQuiet(t, aChanges, "writer must not see its own change")
	requireQuiet(t, bChanges, "clearer must not see its own change")

	_, ok := a.Read(ctx)
	require.False(t, ok)
}

func TestRedisSubscriptionCloseStopsDelivery(t *testing.T) {
	backend, _ := newRedisBackendTest(t, nil)
	ctx := context.Background()

	a := backend.Open("ops", "tab-a")
	b := backend.Open("ops", "tab-b")

	changes := make(chan Change, 4)
	sub, err := b.Subscribe(ctx, func(c Change) { changes <- c })
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	_ = sub.Close()

	require.NoError(t, a.Write(ctx, testRecord(time.Now())))
	requireQuiet(t, changes, "no delivery after close")
}

func TestRedisPing(t *testing.T) {
	backend, mr := newRedisBackendTest(t, nil)

	_, err := backend.Ping(context.Background())
	require.NoError(t, err)
	mr.SetError("LOADING")
	_, err = backend.Ping(context.Background())
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestRedisHooksObserveLatencyAndMalformed(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var latencies, malformed int
	backend := NewRedisBackend(rdb, RedisConfig{Hooks: Hooks{
		Latency:   func(time.Duration) { latencies++ },
		Malformed: func() { malformed++ },
	}})

	require.NoError(t, mr.Set("sw:default:userDataStore", `{"access_token":""}`))
	_, ok := backend.Open("", "tab").Read(context.Background())
	require.False(t, ok)
	require.Equal(t, 1, latencies)
	require.Equal(t, 1, malformed)
}
