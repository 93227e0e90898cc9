package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/teamboard/internal/domain/chat"
	"github.com/lllypuk/teamboard/internal/domain/errs"
	"github.com/lllypuk/teamboard/internal/domain/task"
	"github.com/lllypuk/teamboard/internal/domain/user"
	"github.com/lllypuk/teamboard/internal/store"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AdvanceDays(days int) {
	c.now = c.now.AddDate(0, 0, days)
}

func newTestStore(t *testing.T) (*store.Store, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	s, err := store.New(store.WithClock(clock.Now))
	require.NoError(t, err)

	for _, u := range []user.User{
		{ID: 1, Username: "admin", Email: "admin@company.com", Role: user.RoleAdmin},
		{ID: 2, Username: "pm1", Email: "pm1@company.com", Role: user.RoleProjectManager},
		{ID: 3, Username: "dev1", Email: "dev1@company.com", Role: user.RoleDeveloper},
		{ID: 4, Username: "dev2", Email: "dev2@company.com", Role: user.RoleDeveloper},
		{ID: 5, Username: "tester1", Email: "tester1@company.com", Role: user.RoleTester},
	} {
		require.NoError(t, s.RegisterUser(u))
	}
	return s, clock
}

func TestStore_RegisterUser(t *testing.T) {
	s, _ := newTestStore(t)

	t.Run("rejects duplicate id", func(t *testing.T) {
		err := s.RegisterUser(user.User{ID: 1, Username: "other"})
		require.ErrorIs(t, err, errs.ErrValidation)
	})

	t.Run("rejects duplicate username", func(t *testing.T) {
		err := s.RegisterUser(user.User{ID: 99, Username: "dev1"})
		require.ErrorIs(t, err, errs.ErrValidation)
	})
}

func TestStore_Login(t *testing.T) {
	s, _ := newTestStore(t)

	t.Run("accepts matching credentials", func(t *testing.T) {
		u, err := s.Login("conn-1", "dev1", "dev1")
		require.NoError(t, err)
		assert.Equal(t, 3, u.ID)
		assert.True(t, s.IsOnline(3))
	})

	t.Run("records the join in the chat log", func(t *testing.T) {
		messages := s.Messages()
		require.NotEmpty(t, messages)
		last := messages[len(messages)-1]
		assert.Equal(t, chat.TypeSystem, last.Type)
		assert.Contains(t, last.Content, "dev1 joined")
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		_, err := s.Login("conn-2", "dev1", "wrong")
		require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	})

	t.Run("rejects unknown user", func(t *testing.T) {
		_, err := s.Login("conn-2", "ghost", "ghost")
		require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	})
}

func TestStore_Presence(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Login("conn-1", "dev1", "dev1")
	require.NoError(t, err)
	_, err = s.Login("conn-2", "dev1", "dev1")
	require.NoError(t, err)

	t.Run("stays online while one connection remains", func(t *testing.T) {
		u, wasAuthenticated := s.Disconnect("conn-1")
		assert.True(t, wasAuthenticated)
		assert.Equal(t, "dev1", u.Username)
		assert.True(t, s.IsOnline(3))
	})

	t.Run("goes offline with the last connection", func(t *testing.T) {
		_, wasAuthenticated := s.Disconnect("conn-2")
		assert.True(t, wasAuthenticated)
		assert.False(t, s.IsOnline(3))
	})

	t.Run("unknown connection is not authenticated", func(t *testing.T) {
		_, wasAuthenticated := s.Disconnect("conn-99")
		assert.False(t, wasAuthenticated)
	})
}

func TestStore_ResolveUser(t *testing.T) {
	s, _ := newTestStore(t)

	t.Run("by username", func(t *testing.T) {
		u, err := s.ResolveUser("pm1")
		require.NoError(t, err)
		assert.Equal(t, 2, u.ID)
	})

	t.Run("by numeric id", func(t *testing.T) {
		u, err := s.ResolveUser("4")
		require.NoError(t, err)
		assert.Equal(t, "dev2", u.Username)
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := s.ResolveUser("nobody")
		require.ErrorIs(t, err, errs.ErrUnknownUser)
	})
}

func TestStore_CreateTask(t *testing.T) {
	s, clock := newTestStore(t)

	t.Run("default deadline is seven days out", func(t *testing.T) {
		created, err := s.CreateTask(2, "pm1", "Fix login", "", 0)
		require.NoError(t, err)
		assert.Equal(t, 1, created.ID)
		assert.Equal(t, "PROJ-1", created.Key())
		assert.Equal(t, clock.Now().AddDate(0, 0, 7), created.Deadline)
	})

	t.Run("explicit deadline wins", func(t *testing.T) {
		created, err := s.CreateTask(2, "pm1", "Urgent fix", "", 2)
		require.NoError(t, err)
		assert.Equal(t, clock.Now().AddDate(0, 0, 2), created.Deadline)
	})

	t.Run("ids are sequential", func(t *testing.T) {
		created, err := s.CreateTask(2, "pm1", "Third", "", 0)
		require.NoError(t, err)
		assert.Equal(t, 3, created.ID)
	})

	t.Run("records a task-update chat entry", func(t *testing.T) {
		var updates int
		for _, m := range s.Messages() {
			if m.Type == chat.TypeTaskUpdate {
				updates++
			}
		}
		assert.Equal(t, 3, updates)
	})

	t.Run("rejects empty title", func(t *testing.T) {
		_, err := s.CreateTask(2, "pm1", "  ", "", 0)
		require.ErrorIs(t, err, errs.ErrValidation)
	})
}

func TestStore_AssignTask(t *testing.T) {
	s, _ := newTestStore(t)

	created, err := s.CreateTask(2, "pm1", "Fix login", "", 0)
	require.NoError(t, err)

	t.Run("assigns to a known user", func(t *testing.T) {
		assigned, err := s.AssignTask(2, "pm1", created.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, 3, assigned.AssigneeID)
	})

	t.Run("rejects unknown assignee", func(t *testing.T) {
		_, err := s.AssignTask(2, "pm1", created.ID, 99)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("rejects unknown task", func(t *testing.T) {
		_, err := s.AssignTask(2, "pm1", 99, 3)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})
}

func TestStore_OverdueAndDueSoon(t *testing.T) {
	s, clock := newTestStore(t)

	urgent, err := s.CreateTask(2, "pm1", "Urgent", "", 2)
	require.NoError(t, err)
	relaxed, err := s.CreateTask(2, "pm1", "Relaxed", "", 10)
	require.NoError(t, err)
	finished, err := s.CreateTask(2, "pm1", "Finished", "", 2)
	require.NoError(t, err)
	_, err = s.UpdateStatus(2, "pm1", finished.ID, task.StatusDone)
	require.NoError(t, err)

	t.Run("nothing overdue on day one", func(t *testing.T) {
		assert.Empty(t, s.OverdueTasks())
	})

	t.Run("after three days the short task is overdue", func(t *testing.T) {
		clock.AdvanceDays(3)

		overdue := s.OverdueTasks()
		require.Len(t, overdue, 1)
		assert.Equal(t, urgent.ID, overdue[0].ID)
	})

	t.Run("done tasks never count as overdue", func(t *testing.T) {
		for _, got := range s.OverdueTasks() {
			assert.NotEqual(t, finished.ID, got.ID)
		}
	})

	t.Run("due soon picks up approaching deadlines", func(t *testing.T) {
		clock.AdvanceDays(4) // day 7; relaxed is due on day 10

		dueSoon := s.DueSoonTasks(3)
		require.Len(t, dueSoon, 1)
		assert.Equal(t, relaxed.ID, dueSoon[0].ID)
	})
}

func TestStore_RecommendAssignee(t *testing.T) {
	s, _ := newTestStore(t)

	t.Run("idle developer with lowest id wins", func(t *testing.T) {
		u, load, ok := s.RecommendAssignee()
		require.True(t, ok)
		assert.Equal(t, "dev1", u.Username)
		assert.Equal(t, 0, load)
	})

	t.Run("load shifts the recommendation", func(t *testing.T) {
		for range 3 {
			created, err := s.CreateTask(2, "pm1", "Work", "", 0)
			require.NoError(t, err)
			_, err = s.AssignTask(2, "pm1", created.ID, 3)
			require.NoError(t, err)
		}

		u, load, ok := s.RecommendAssignee()
		require.True(t, ok)
		assert.Equal(t, "dev2", u.Username)
		assert.Equal(t, 0, load)
	})

	t.Run("done and blocked tasks do not count as load", func(t *testing.T) {
		created, err := s.CreateTask(2, "pm1", "Nearly done", "", 0)
		require.NoError(t, err)
		_, err = s.AssignTask(2, "pm1", created.ID, 4)
		require.NoError(t, err)
		_, err = s.UpdateStatus(2, "pm1", created.ID, task.StatusDone)
		require.NoError(t, err)

		u, load, ok := s.RecommendAssignee()
		require.True(t, ok)
		assert.Equal(t, "dev2", u.Username)
		assert.Equal(t, 0, load)
	})
}

func TestStore_StatusCounts(t *testing.T) {
	s, _ := newTestStore(t)

	first, err := s.CreateTask(2, "pm1", "One", "", 0)
	require.NoError(t, err)
	_, err = s.CreateTask(2, "pm1", "Two", "", 0)
	require.NoError(t, err)
	_, err = s.UpdateStatus(2, "pm1", first.ID, task.StatusInProgress)
	require.NoError(t, err)

	counts := s.StatusCounts()
	assert.Equal(t, 1, counts[task.StatusTodo])
	assert.Equal(t, 1, counts[task.StatusInProgress])
	assert.Zero(t, counts[task.StatusDone])
}

func TestStore_Chat(t *testing.T) {
	s, _ := newTestStore(t)

	t.Run("broadcast messages accumulate in order", func(t *testing.T) {
		s.PostChat(3, "dev1", "first")
		s.PostChat(4, "dev2", "second")

		messages := s.Messages()
		require.Len(t, messages, 2)
		assert.Equal(t, "first", messages[0].Content)
		assert.Equal(t, "second", messages[1].Content)
		assert.Less(t, messages[0].ID, messages[1].ID)
	})

	t.Run("recent messages returns the tail oldest-first", func(t *testing.T) {
		s.PostChat(3, "dev1", "third")

		recent := s.RecentMessages(2)
		require.Len(t, recent, 2)
		assert.Equal(t, "second", recent[0].Content)
		assert.Equal(t, "third", recent[1].Content)
	})

	t.Run("private message resolves target by name or id", func(t *testing.T) {
		m, to, err := s.PostPrivate(3, "dev1", "pm1", "by name")
		require.NoError(t, err)
		assert.Equal(t, 2, to.ID)
		assert.Equal(t, chat.TypePrivate, m.Type)
		assert.Equal(t, 2, m.TargetUserID)

		_, to, err = s.PostPrivate(3, "dev1", "5", "by id")
		require.NoError(t, err)
		assert.Equal(t, "tester1", to.Username)
	})

	t.Run("private message to unknown target fails", func(t *testing.T) {
		_, _, err := s.PostPrivate(3, "dev1", "ghost", "hello?")
		require.ErrorIs(t, err, errs.ErrUnknownUser)
	})

	t.Run("private conversation matches both directions only", func(t *testing.T) {
		_, _, err := s.PostPrivate(2, "pm1", "dev1", "reply")
		require.NoError(t, err)

		conversation := s.PrivateConversation(2, 3)
		require.Len(t, conversation, 2)
		for _, m := range conversation {
			assert.Equal(t, chat.TypePrivate, m.Type)
		}

		assert.Empty(t, s.PrivateConversation(2, 4))
	})
}

func TestStore_Dashboard(t *testing.T) {
	s, clock := newTestStore(t)

	created, err := s.CreateTask(2, "pm1", "Fix login", "", 2)
	require.NoError(t, err)
	_, err = s.AssignTask(2, "pm1", created.ID, 3)
	require.NoError(t, err)
	clock.AdvanceDays(3)

	dashboard := s.Dashboard()
	assert.Contains(t, dashboard, "PROJECT DASHBOARD")
	assert.Contains(t, dashboard, "Total Tasks: 1")
	assert.Contains(t, dashboard, "dev1")
	assert.Contains(t, dashboard, "OVERDUE")
	assert.Contains(t, dashboard, "Fix login")
}
