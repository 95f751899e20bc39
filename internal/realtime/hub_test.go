package realtime

import (
	"context"
	"testing"
	"time"

	"tidepool/internal/notify"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_RegisterAndBroadcast(t *testing.T) {
	t.Parallel()

	h := NewHub()
	c1, err := h.Register(1, nil)
	require.NoError(t, err)
	c2, err := h.Register(1, nil)
	require.NoError(t, err)
	other, err := h.Register(2, nil)
	require.NoError(t, err)

	assert.True(t, h.IsOnline(1))
	assert.True(t, h.IsOnline(2))
	assert.False(t, h.IsOnline(3))

	h.Broadcast(1, []byte("hello"))

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.Send:
			assert.Equal(t, "hello", string(msg))
		default:
			t.Fatal("expected a broadcast message")
		}
	}
	select {
	case <-other.Send:
		t.Fatal("user 2 must not receive user 1's broadcast")
	default:
	}
}

func TestHub_Unregister(t *testing.T) {
	t.Parallel()

	h := NewHub()
	c, err := h.Register(1, nil)
	require.NoError(t, err)
	require.True(t, h.IsOnline(1))

	h.Unregister(c)
	assert.False(t, h.IsOnline(1))

	// Unregistering twice is harmless.
	h.Unregister(c)
	assert.False(t, h.IsOnline(1))
}

func TestHub_PerUserConnectionLimit(t *testing.T) {
	t.Parallel()

	h := NewHub()
	for i := 0; i < maxConnsPerUser; i++ {
		_, err := h.Register(1, nil)
		require.NoError(t, err)
	}
	_, err := h.Register(1, nil)
	assert.Error(t, err)

	// Other users are unaffected.
	_, err = h.Register(2, nil)
	assert.NoError(t, err)
}

func TestHub_BroadcastToFullClientDrops(t *testing.T) {
	t.Parallel()

	h := NewHub()
	c, err := h.Register(1, nil)
	require.NoError(t, err)

	for i := 0; i < cap(c.Send); i++ {
		c.Send <- []byte("fill")
	}
	// A full send buffer drops the message instead of blocking the hub.
	done := make(chan struct{})
	go func() {
		h.Broadcast(1, []byte("overflow"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast must not block on a saturated client")
	}
}

func TestHub_WiringDeliversPublishedNotifications(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := NewHub()
	c, err := h.Register(7, nil)
	require.NoError(t, err)

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWiring(ctx, n))

	// Subscription setup races the publish; retry until the message lands.
	require.Eventually(t, func() bool {
		require.NoError(t, n.PublishUser(context.Background(), 7, `{"type":"like"}`))
		select {
		case msg := <-c.Send:
			assert.Equal(t, `{"type":"like"}`, string(msg))
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	t.Parallel()

	n := NewNotifier(nil)
	assert.NoError(t, n.PublishUser(context.Background(), 1, "x"))
	assert.NoError(t, n.StartSubscriber(context.Background(), nil))
	assert.Equal(t, "notify:user:1", notify.SiteChannel(1))
}
