package hub_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/teamboard/internal/domain/user"
	"github.com/lllypuk/teamboard/internal/hub"
	"github.com/lllypuk/teamboard/internal/metrics"
)

const waitTimeout = time.Second

type recordingConn struct {
	mu     sync.Mutex
	lines  []string
	closed chan struct{}
	once   sync.Once
}

func newRecordingConn() *recordingConn {
	return &recordingConn{closed: make(chan struct{})}
}

func (r *recordingConn) ReadFrame() (string, error) {
	<-r.closed
	return "", context.Canceled
}

func (r *recordingConn) WriteFrame(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	return nil
}

func (r *recordingConn) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func (r *recordingConn) has(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range r.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func runHub(t *testing.T, opts ...hub.Option) *hub.Hub {
	t.Helper()

	h := hub.New(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func register(t *testing.T, h *hub.Hub, opts ...hub.ClientOption) (*hub.Client, *recordingConn) {
	t.Helper()

	conn := newRecordingConn()
	c := hub.NewClient(h, conn, opts...)
	want := h.ClientCount() + 1
	h.Register(c)
	require.Eventually(t, func() bool {
		return h.ClientCount() == want
	}, waitTimeout, time.Millisecond)
	return c, conn
}

func TestHub_BroadcastReachesOnlyAuthenticated(t *testing.T) {
	h := runHub(t)

	member, memberConn := register(t, h)
	go member.WritePump()
	h.Bind(member, user.User{ID: 3, Username: "dev1", Role: user.RoleDeveloper})

	_, strangerConn := register(t, h)

	h.BroadcastAll("hello everyone")

	require.Eventually(t, func() bool {
		return memberConn.has("hello everyone")
	}, waitTimeout, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, strangerConn.has("hello everyone"))
}

func TestHub_SendToUser(t *testing.T) {
	h := runHub(t)

	first, firstConn := register(t, h)
	go first.WritePump()
	h.Bind(first, user.User{ID: 3, Username: "dev1"})

	second, secondConn := register(t, h)
	go second.WritePump()
	h.Bind(second, user.User{ID: 3, Username: "dev1"})

	other, otherConn := register(t, h)
	go other.WritePump()
	h.Bind(other, user.User{ID: 4, Username: "dev2"})

	assert.Equal(t, 2, h.UserConnectionCount(3))

	h.SendToUser(3, "just for you")

	require.Eventually(t, func() bool {
		return firstConn.has("just for you") && secondConn.has("just for you")
	}, waitTimeout, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, otherConn.has("just for you"))
}

func TestHub_RebindMovesConnectionBetweenUsers(t *testing.T) {
	h := runHub(t)

	c, conn := register(t, h)
	go c.WritePump()
	h.Bind(c, user.User{ID: 3, Username: "dev1", Role: user.RoleDeveloper})

	// The same connection logs in again as somebody else.
	h.Bind(c, user.User{ID: 2, Username: "pm1", Role: user.RoleProjectManager})

	assert.Equal(t, 0, h.UserConnectionCount(3))
	assert.Equal(t, 1, h.UserConnectionCount(2))

	h.SendToUser(3, "secret for dev1 only")
	h.SendToUser(2, "note for pm1")

	require.Eventually(t, func() bool {
		return conn.has("note for pm1")
	}, waitTimeout, time.Millisecond)
	assert.False(t, conn.has("secret for dev1 only"))

	// Disconnect leaves no stale binding under either identity.
	h.Unregister(c)
	require.Eventually(t, func() bool {
		return h.ClientCount() == 0
	}, waitTimeout, time.Millisecond)
	assert.Equal(t, 0, h.UserConnectionCount(3))
	assert.Equal(t, 0, h.UserConnectionCount(2))
}

func TestHub_SendToOfflineUserIsNoop(t *testing.T) {
	h := runHub(t)

	// Nothing to assert beyond "does not panic or block".
	h.SendToUser(42, "anyone there?")

	member, memberConn := register(t, h)
	go member.WritePump()
	h.Bind(member, user.User{ID: 3, Username: "dev1"})

	h.BroadcastAll("still alive")
	require.Eventually(t, func() bool {
		return memberConn.has("still alive")
	}, waitTimeout, time.Millisecond)
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	h := runHub(t, hub.WithMetrics(m))

	// No WritePump: the buffer never drains.
	c, _ := register(t, h, hub.WithSendBufferSize(1))

	c.Send("fits")
	c.Send("dropped")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.DroppedDeliveries))
}

func TestHub_UnregisterRunsDisconnectHandler(t *testing.T) {
	var (
		mu       sync.Mutex
		gotConns []string
	)

	h := runHub(t)
	h.SetDisconnectHandler(func(c *hub.Client) {
		mu.Lock()
		defer mu.Unlock()
		gotConns = append(gotConns, c.ID())
	})

	authed, _ := register(t, h)
	h.Bind(authed, user.User{ID: 3, Username: "dev1"})
	stranger, _ := register(t, h)

	h.Unregister(stranger)
	h.Unregister(authed)

	require.Eventually(t, func() bool {
		return h.ClientCount() == 0
	}, waitTimeout, time.Millisecond)

	// Only the authenticated client triggers the handler.
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, gotConns, 1)
	assert.Equal(t, authed.ID(), gotConns[0])
}

func TestHub_StopClosesClients(t *testing.T) {
	h := hub.New()
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	_, conn := register(t, h)

	h.Stop()

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("hub did not stop in time")
	}

	select {
	case <-conn.closed:
	case <-time.After(waitTimeout):
		t.Fatal("client transport was not closed")
	}
	assert.Equal(t, 0, h.ClientCount())
}
