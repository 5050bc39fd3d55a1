package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hatseye/hatseye/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeMember struct {
	ch chan Message
}

func newFakeMember(buf int) *fakeMember {
	return &fakeMember{ch: make(chan Message, buf)}
}

func (f *fakeMember) queue() chan Message { return f.ch }

func startHub(t *testing.T) (*Hub, context.CancelFunc, *sync.WaitGroup) {
	t.Helper()
	h := New("test", log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.Run(ctx)
	}()
	return h, cancel, &wg
}

func TestBroadcastReachesClients(t *testing.T) {
	h, cancel, wg := startHub(t)
	defer func() { cancel(); wg.Wait() }()

	a, b := newFakeMember(4), newFakeMember(4)
	require.NoError(t, h.Register(a))
	require.NoError(t, h.Register(b))
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.BroadcastEvent("hazard", map[string]string{"class": "pothole"}))

	for _, m := range []*fakeMember{a, b} {
		select {
		case msg := <-m.ch:
			assert.False(t, msg.Binary)
			assert.JSONEq(t, `{"type":"hazard","data":{"class":"pothole"}}`, string(msg.Data))
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}
}

func TestSlowClientDropped(t *testing.T) {
	h, cancel, wg := startHub(t)
	defer func() { cancel(); wg.Wait() }()

	var mu sync.Mutex
	var counts []int
	h.OnClients = func(name string, n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	}

	slow := newFakeMember(1)
	require.NoError(t, h.Register(slow))
	h.BroadcastBinary([]byte{1})
	h.BroadcastBinary([]byte{2})

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	msg, ok := <-slow.ch
	assert.True(t, ok)
	assert.True(t, msg.Binary)
	_, ok = <-slow.ch
	assert.False(t, ok, "queue closed after drop")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 0}, counts)
}

func TestUnregister(t *testing.T) {
	h, cancel, wg := startHub(t)
	defer func() { cancel(); wg.Wait() }()

	m := newFakeMember(1)
	require.NoError(t, h.Register(m))
	h.Unregister(m)
	_, ok := <-m.ch
	assert.False(t, ok)
	assert.Equal(t, 0, h.ClientCount())

	// second unregister must not double-close
	h.Unregister(m)
}

func TestStopClosesClients(t *testing.T) {
	h, cancel, wg := startHub(t)

	m := newFakeMember(1)
	require.NoError(t, h.Register(m))
	cancel()
	wg.Wait()

	_, ok := <-m.ch
	assert.False(t, ok)
	assert.ErrorIs(t, h.Register(newFakeMember(1)), ErrClosed)
	h.Unregister(m)
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := New("idle", log.Discard())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.BroadcastBinary([]byte{byte(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked without a running hub")
	}
	assert.Equal(t, "idle", h.Name())
}
