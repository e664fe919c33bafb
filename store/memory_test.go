package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryFanOutSkipsWriter(t *testing.T) {
	backend := NewMemoryBackend(nil, Hooks{})
	ctx := context.Background()

	a := backend.Open("ops", "tab-a")
	b := backend.Open("ops", "tab-b")
	c := backend.Open("ops", "tab-c")
	elsewhere := backend.Open("finance", "tab-d")

	var seenA, seenB, seenC, seenElsewhere []Change
	for _, pair := range []struct {
		s   Store
		dst *[]Change
	}{{a, &seenA}, {b, &seenB}, {c, &seenC}, {elsewhere, &seenElsewhere}} {
		dst := pair.dst
		_, err := pair.s.Subscribe(ctx, func(ch Change) { *dst = append(*dst, ch) })
		require.NoError(t, err)
	}

	require.NoError(t, a.Write(ctx, testRecord(time.Now())))

	require.Empty(t, seenA, "writer must not be notified")
	require.Len(t, seenB, 1)
	require.Len(t, seenC, 1)
	require.Equal(t, "tab-a", seenB[0].Origin)
	require.Empty(t, seenElsewhere, "other namespace must not be notified")
}

func TestMemoryClearRemovesRecord(t *testing.T) {
	backend := NewMemoryBackend(nil, Hooks{})
	ctx := context.Background()
	a := backend.Open("ops", "tab-a")
	b := backend.Open("ops", "tab-b")

	require.NoError(t, a.Write(ctx, testRecord(time.Now())))
	_, ok := b.Read(ctx)
	require.True(t, ok, "record is shared across handles")

	notified := 0
	sub, err := a.Subscribe(ctx, func(Change) { notified++ })
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Clear(ctx))
	_, ok = a.Read(ctx)
	require.False(t, ok)
	_, ok = backend.Raw("ops")
	require.False(t, ok, "no raw data after clear")
	require.Equal(t, 1, notified)
}

func TestMemoryMalformedReadsAbsent(t *testing.T) {
	malformed := 0
	backend := NewMemoryBackend(nil, Hooks{Malformed: func() { malformed++ }})

	backend.PutRaw("ops", []byte(`{"user":{}}`))
	_, ok := backend.Open("ops", "tab").Read(context.Background())
	require.False(t, ok)
	require.Equal(t, 1, malformed)
}

func TestMemorySubscriptionClose(t *testing.T) {
	backend := NewMemoryBackend(nil, Hooks{})
	ctx := context.Background()
	a := backend.Open("", "tab-a")
	b := backend.Open("", "tab-b")

	require.Equal(t, "default", a.Namespace())
	require.Equal(t, "tab-b", b.Origin())

	notified := 0
	sub, err := b.Subscribe(ctx, func(Change) { notified++ })
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	_ = a.Write(ctx, testRecord(time.Now()))
	require.Zero(t, notified, "no delivery after close")
}
