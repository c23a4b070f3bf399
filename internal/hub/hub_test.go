package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	id      string
	sendErr error
	block   bool

	mu       sync.Mutex
	received [][]byte
	closed   atomic.Bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ctx context.Context, payload []byte) error {
	if c.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, payload)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) Received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.received))
	for i, p := range c.received {
		out[i] = string(p)
	}
	return out
}

func newTestManager() *Manager {
	return NewManager(Config{SendTimeout: 50 * time.Millisecond, MaxParallel: 4}, zap.NewNop())
}

func TestManager_AttachDetach(t *testing.T) {
	m := newTestManager()
	a, b := newFakeConn("a"), newFakeConn("b")

	require.NoError(t, m.Attach(a))
	require.NoError(t, m.Attach(b))
	assert.Equal(t, 2, m.Count())

	assert.True(t, m.Detach(a))
	assert.False(t, m.Detach(a))
	assert.Equal(t, 1, m.Count())
}

func TestManager_DetachIgnoresReplacedConnection(t *testing.T) {
	m := newTestManager()
	old, replacement := newFakeConn("same"), newFakeConn("same")

	require.NoError(t, m.Attach(old))
	require.NoError(t, m.Attach(replacement))

	assert.False(t, m.Detach(old))
	assert.Equal(t, 1, m.Count())
}

func TestManager_BroadcastReachesEveryMember(t *testing.T) {
	m := newTestManager()
	conns := []*fakeConn{newFakeConn("a"), newFakeConn("b"), newFakeConn("c")}
	for _, c := range conns {
		require.NoError(t, m.Attach(c))
	}

	require.NoError(t, m.Broadcast(context.Background(), map[string]string{"type": "nav_stopped"}))

	for _, c := range conns {
		assert.Equal(t, []string{`{"type":"nav_stopped"}`}, c.Received(), c.id)
	}
}

// Three observers, one of which breaks mid-broadcast: the healthy two still
// get the event and the broken one is removed.
func TestManager_BroadcastDropsFailedMember(t *testing.T) {
	m := newTestManager()
	a, c := newFakeConn("a"), newFakeConn("c")
	b := newFakeConn("b")
	b.sendErr = errors.New("broken pipe")
	for _, conn := range []*fakeConn{a, b, c} {
		require.NoError(t, m.Attach(conn))
	}

	require.NoError(t, m.Broadcast(context.Background(), map[string]string{"type": "reroute"}))

	assert.Len(t, a.Received(), 1)
	assert.Len(t, c.Received(), 1)
	assert.Equal(t, 2, m.Count())
	assert.True(t, b.closed.Load())
	assert.False(t, m.Detach(b))
}

func TestManager_BroadcastTimesOutSlowMember(t *testing.T) {
	m := newTestManager()
	fast := newFakeConn("fast")
	slow := newFakeConn("slow")
	slow.block = true
	require.NoError(t, m.Attach(fast))
	require.NoError(t, m.Attach(slow))

	done := make(chan struct{})
	go func() {
		_ = m.Broadcast(context.Background(), map[string]string{"type": "location"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow member")
	}
	assert.Len(t, fast.Received(), 1)
	assert.Equal(t, 1, m.Count())
	assert.True(t, slow.closed.Load())
}

func TestManager_BroadcastNoMembers(t *testing.T) {
	m := newTestManager()
	assert.NoError(t, m.Broadcast(context.Background(), map[string]string{"type": "location"}))
}

func TestManager_BroadcastMarshalError(t *testing.T) {
	m := newTestManager()
	require.NoError(t, m.Attach(newFakeConn("a")))
	assert.Error(t, m.Broadcast(context.Background(), make(chan int)))
}

func TestManager_PublishAndClose(t *testing.T) {
	m := newTestManager()
	a := newFakeConn("a")
	require.NoError(t, m.Attach(a))

	for i := 0; i < 10; i++ {
		m.Publish(map[string]int{"seq": i})
	}
	m.Close()

	assert.Len(t, a.Received(), 10)
	assert.True(t, a.closed.Load())
	assert.Equal(t, 0, m.Count())
	assert.ErrorIs(t, m.Attach(newFakeConn("late")), ErrClosed)

	// Publishing after close is a no-op.
	m.Publish(map[string]int{"seq": 11})
}
