package dispatch_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/teamboard/internal/dispatch"
	"github.com/lllypuk/teamboard/internal/domain/user"
	"github.com/lllypuk/teamboard/internal/hub"
	"github.com/lllypuk/teamboard/internal/store"
)

const waitTimeout = time.Second

// fakeConn records written frames and never produces inbound ones.
type fakeConn struct {
	mu     sync.Mutex
	lines  []string
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (f *fakeConn) ReadFrame() (string, error) {
	<-f.closed
	return "", context.Canceled
}

func (f *fakeConn) WriteFrame(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) has(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, line := range f.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

type fixture struct {
	store      *store.Store
	hub        *hub.Hub
	dispatcher *dispatch.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := store.New()
	require.NoError(t, err)
	for _, u := range []user.User{
		{ID: 1, Username: "admin", Role: user.RoleAdmin},
		{ID: 2, Username: "pm1", Role: user.RoleProjectManager},
		{ID: 3, Username: "dev1", Role: user.RoleDeveloper},
		{ID: 4, Username: "dev2", Role: user.RoleDeveloper},
	} {
		require.NoError(t, s.RegisterUser(u))
	}

	h := hub.New()
	d := dispatch.New(s, h)
	h.SetDisconnectHandler(d.HandleDisconnect)

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	return &fixture{store: s, hub: h, dispatcher: d}
}

// connect registers a new client whose writes land in the returned fakeConn.
func (fx *fixture) connect(t *testing.T) (*hub.Client, *fakeConn) {
	t.Helper()

	conn := newFakeConn()
	client := hub.NewClient(fx.hub, conn)
	want := fx.hub.ClientCount() + 1
	fx.hub.Register(client)
	go client.WritePump()

	require.Eventually(t, func() bool {
		return fx.hub.ClientCount() == want
	}, waitTimeout, time.Millisecond)

	return client, conn
}

func (fx *fixture) login(t *testing.T, c *hub.Client, conn *fakeConn, username string) {
	t.Helper()
	fx.dispatcher.Handle(c, "/login "+username+" "+username)
	require.Eventually(t, func() bool {
		return conn.has("Welcome " + username)
	}, waitTimeout, time.Millisecond)
}

func waitForLine(t *testing.T, conn *fakeConn, substr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return conn.has(substr)
	}, waitTimeout, time.Millisecond, "expected line containing %q", substr)
}

func TestDispatcher_AuthGate(t *testing.T) {
	fx := newFixture(t)
	c, conn := fx.connect(t)

	fx.dispatcher.Handle(c, "/create Fix login")

	waitForLine(t, conn, "[ERROR] Please login first")
	assert.Empty(t, fx.store.Tasks())
}

func TestDispatcher_Login(t *testing.T) {
	fx := newFixture(t)

	t.Run("success binds the session", func(t *testing.T) {
		c, conn := fx.connect(t)
		fx.dispatcher.Handle(c, "/login dev1 dev1")

		waitForLine(t, conn, "[SYSTEM] Welcome dev1! You are now logged in.")
		waitForLine(t, conn, "dev1 is now online")
		assert.True(t, c.IsAuthenticated())
		assert.Equal(t, 3, c.User().ID)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		c, conn := fx.connect(t)
		fx.dispatcher.Handle(c, "/login dev2 nope")

		waitForLine(t, conn, "[ERROR] Invalid credentials")
		assert.False(t, c.IsAuthenticated())
	})

	t.Run("missing arguments", func(t *testing.T) {
		c, conn := fx.connect(t)
		fx.dispatcher.Handle(c, "/login dev2")

		waitForLine(t, conn, "[ERROR] usage: /login")
	})
}

func TestDispatcher_Create(t *testing.T) {
	fx := newFixture(t)
	c, conn := fx.connect(t)
	fx.login(t, c, conn, "pm1")

	t.Run("broadcasts the new task", func(t *testing.T) {
		fx.dispatcher.Handle(c, "/create Fix login | OAuth flow broken deadline:2")

		waitForLine(t, conn, "[TASK] Created task PROJ-1: Fix login")

		created, err := fx.store.TaskByID(1)
		require.NoError(t, err)
		assert.Equal(t, "Fix login", created.Title)
		assert.Equal(t, "OAuth flow broken", created.Description)
		assert.Equal(t, 1, created.DaysUntilDeadline(time.Now()))
	})

	t.Run("title only, default deadline", func(t *testing.T) {
		fx.dispatcher.Handle(c, "/create Write release notes")

		waitForLine(t, conn, "[TASK] Created task PROJ-2: Write release notes")

		created, err := fx.store.TaskByID(2)
		require.NoError(t, err)
		assert.Empty(t, created.Description)
		assert.Equal(t, 6, created.DaysUntilDeadline(time.Now()))
	})

	t.Run("bad deadline value", func(t *testing.T) {
		fx.dispatcher.Handle(c, "/create Thing | stuff deadline:zero")
		waitForLine(t, conn, "[ERROR] deadline must be a positive number")
	})
}

func TestDispatcher_Assign(t *testing.T) {
	fx := newFixture(t)

	pm, pmConn := fx.connect(t)
	fx.login(t, pm, pmConn, "pm1")
	dev, devConn := fx.connect(t)
	fx.login(t, dev, devConn, "dev1")

	fx.dispatcher.Handle(pm, "/create Fix login")
	waitForLine(t, pmConn, "[TASK] Created task PROJ-1")

	t.Run("developers may not assign", func(t *testing.T) {
		fx.dispatcher.Handle(dev, "/assign 1 3")
		waitForLine(t, devConn, "[ERROR] Permission denied")

		created, err := fx.store.TaskByID(1)
		require.NoError(t, err)
		assert.False(t, created.IsAssigned())
	})

	t.Run("project manager assigns and everyone hears it", func(t *testing.T) {
		fx.dispatcher.Handle(pm, "/assign 1 3")

		waitForLine(t, pmConn, "[TASK] Task 1 assigned to user 3")
		waitForLine(t, devConn, "[TASK] Task 1 assigned to user 3")
	})

	t.Run("unknown assignee", func(t *testing.T) {
		fx.dispatcher.Handle(pm, "/assign 1 42")
		waitForLine(t, pmConn, "[ERROR] Not found")
	})
}

func TestDispatcher_StatusAndPriority(t *testing.T) {
	fx := newFixture(t)
	c, conn := fx.connect(t)
	fx.login(t, c, conn, "dev1")

	fx.dispatcher.Handle(c, "/create Fix login")
	waitForLine(t, conn, "[TASK] Created task PROJ-1")

	fx.dispatcher.Handle(c, "/status 1 PROGRESS")
	waitForLine(t, conn, "[TASK] Task 1 status updated to In Progress")

	fx.dispatcher.Handle(c, "/priority 1 HIGH")
	waitForLine(t, conn, "[TASK] Task 1 priority updated to High")

	fx.dispatcher.Handle(c, "/status 1 SHIPPED")
	waitForLine(t, conn, "[ERROR] unknown status SHIPPED")
}

func TestDispatcher_PrivateMessages(t *testing.T) {
	fx := newFixture(t)

	sender, senderConn := fx.connect(t)
	fx.login(t, sender, senderConn, "dev1")
	target, targetConn := fx.connect(t)
	fx.login(t, target, targetConn, "pm1")
	other, otherConn := fx.connect(t)
	fx.login(t, other, otherConn, "dev2")

	fx.dispatcher.Handle(sender, "/pm pm1 the build is red")

	waitForLine(t, targetConn, "[PM from dev1] the build is red")
	waitForLine(t, senderConn, "[PM sent to pm1]")

	// A private message must never reach a third party.
	time.Sleep(50 * time.Millisecond)
	assert.False(t, otherConn.has("the build is red"))
}

func TestDispatcher_ReloginRebindsPrivateDelivery(t *testing.T) {
	fx := newFixture(t)

	// One connection logs in as dev1 and then again as pm1.
	c, conn := fx.connect(t)
	fx.login(t, c, conn, "dev1")
	fx.login(t, c, conn, "pm1")
	assert.False(t, fx.store.IsOnline(3))

	sender, senderConn := fx.connect(t)
	fx.login(t, sender, senderConn, "admin")

	fx.dispatcher.Handle(sender, "/pm dev1 secret for dev1 only")
	waitForLine(t, senderConn, "[PM sent to dev1]")

	time.Sleep(50 * time.Millisecond)
	assert.False(t, conn.has("secret for dev1 only"))

	// The new identity still receives its own private messages.
	fx.dispatcher.Handle(sender, "/pm pm1 note for pm1")
	waitForLine(t, conn, "[PM from admin] note for pm1")
}

func TestDispatcher_Queries(t *testing.T) {
	fx := newFixture(t)
	c, conn := fx.connect(t)
	fx.login(t, c, conn, "dev1")

	t.Run("empty task list", func(t *testing.T) {
		fx.dispatcher.Handle(c, "/list")
		waitForLine(t, conn, "[TASKS] No tasks yet")
	})

	t.Run("list shows created tasks", func(t *testing.T) {
		fx.dispatcher.Handle(c, "/create Fix login")
		waitForLine(t, conn, "[TASK] Created task PROJ-1")

		fx.dispatcher.Handle(c, "/list")
		waitForLine(t, conn, "[PROJ-1] Fix login | Status: To Do")
	})

	t.Run("mytasks is empty until assigned", func(t *testing.T) {
		fx.dispatcher.Handle(c, "/mytasks")
		waitForLine(t, conn, "[TASKS] No tasks assigned to you")
	})

	t.Run("online lists the session user", func(t *testing.T) {
		fx.dispatcher.Handle(c, "/online")
		waitForLine(t, conn, "dev1 (Developer)")
	})

	t.Run("recommend points at the idle developer", func(t *testing.T) {
		fx.dispatcher.Handle(c, "/recommend")
		waitForLine(t, conn, "[RECOMMEND] Suggested assignee: dev1")
	})

	t.Run("overdue is empty for fresh tasks", func(t *testing.T) {
		fx.dispatcher.Handle(c, "/overdue")
		waitForLine(t, conn, "[OVERDUE] No overdue tasks")
	})

	t.Run("dashboard renders", func(t *testing.T) {
		fx.dispatcher.Handle(c, "/dashboard")
		waitForLine(t, conn, "PROJECT DASHBOARD")
	})

	t.Run("help lists commands", func(t *testing.T) {
		fx.dispatcher.Handle(c, "/help")
		waitForLine(t, conn, "[HELP] Available commands")
	})
}

func TestDispatcher_Chat(t *testing.T) {
	fx := newFixture(t)

	a, aConn := fx.connect(t)
	fx.login(t, a, aConn, "dev1")
	b, bConn := fx.connect(t)
	fx.login(t, b, bConn, "dev2")

	fx.dispatcher.Handle(a, "/chat standup in five")

	waitForLine(t, aConn, "[dev1] standup in five")
	waitForLine(t, bConn, "[dev1] standup in five")
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	fx := newFixture(t)
	c, conn := fx.connect(t)
	fx.login(t, c, conn, "dev1")

	fx.dispatcher.Handle(c, "/frobnicate now")
	waitForLine(t, conn, "[ERROR] unknown command /frobnicate")
}

func TestDispatcher_Disconnect(t *testing.T) {
	fx := newFixture(t)

	leaver, leaverConn := fx.connect(t)
	fx.login(t, leaver, leaverConn, "dev1")
	watcher, watcherConn := fx.connect(t)
	fx.login(t, watcher, watcherConn, "dev2")

	fx.hub.Unregister(leaver)

	waitForLine(t, watcherConn, "[SYSTEM] dev1 disconnected")
	require.Eventually(t, func() bool {
		return !fx.store.IsOnline(3)
	}, waitTimeout, time.Millisecond)
}
