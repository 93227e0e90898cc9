// Package store implements the coordinator that owns the task collection, the
// chat log, the user catalogue and the connection-session table. All shared
// state lives behind a single mutex: every exported method acquires the lock
// exactly once, and every internal helper with a Locked suffix assumes the
// lock is already held and must never re-acquire it.
package store

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lllypuk/teamboard/internal/domain/chat"
	"github.com/lllypuk/teamboard/internal/domain/errs"
	"github.com/lllypuk/teamboard/internal/domain/task"
	"github.com/lllypuk/teamboard/internal/domain/user"
	"github.com/lllypuk/teamboard/internal/persist"
)

// DefaultProjectKey is the project all tasks are filed under until projects
// become first-class.
const DefaultProjectKey = "PROJ"

// Store is the single coordinator for all mutable server state.
type Store struct {
	mu sync.Mutex

	clock    func() time.Time
	logger   *slog.Logger
	snapshot persist.Store

	tasks      []*task.Task
	tasksByID  map[int]*task.Task
	nextTaskID int

	messages      []*chat.Message
	nextMessageID int

	usersByID   map[int]*user.User
	usersByName map[string]*user.User
	userIDs     []int // sorted, for deterministic iteration

	conns  map[string]int // connection id -> user id
	online map[int]int    // user id -> live connection count
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides the time source. Tests use this to simulate the passage
// of days.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithSnapshot sets the durable backend. State is loaded from it during New
// and written back after each mutation.
func WithSnapshot(snapshot persist.Store) Option {
	return func(s *Store) { s.snapshot = snapshot }
}

// New creates a store and loads any persisted state from the snapshot
// backend.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		clock:         time.Now,
		logger:        slog.Default(),
		snapshot:      persist.Noop{},
		tasksByID:     make(map[int]*task.Task),
		nextTaskID:    1,
		nextMessageID: 1,
		usersByID:     make(map[int]*user.User),
		usersByName:   make(map[string]*user.User),
		conns:         make(map[string]int),
		online:        make(map[int]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	tasks, nextTaskID, err := s.snapshot.LoadTasks()
	if err != nil {
		return nil, fmt.Errorf("load task snapshot: %w", err)
	}
	for i := range tasks {
		t := tasks[i]
		s.tasks = append(s.tasks, &t)
		s.tasksByID[t.ID] = &t
	}
	if nextTaskID > s.nextTaskID {
		s.nextTaskID = nextTaskID
	}

	messages, nextMessageID, err := s.snapshot.LoadMessages()
	if err != nil {
		return nil, fmt.Errorf("load chat snapshot: %w", err)
	}
	for i := range messages {
		m := messages[i]
		s.messages = append(s.messages, &m)
	}
	if nextMessageID > s.nextMessageID {
		s.nextMessageID = nextMessageID
	}

	return s, nil
}

// RegisterUser adds an identity to the static catalogue. Called at startup;
// identity and role are read-only afterwards.
func (s *Store) RegisterUser(u user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByID[u.ID]; ok {
		return fmt.Errorf("duplicate user id %d: %w", u.ID, errs.ErrValidation)
	}
	if _, ok := s.usersByName[u.Username]; ok {
		return fmt.Errorf("duplicate username %q: %w", u.Username, errs.ErrValidation)
	}

	stored := u
	s.usersByID[u.ID] = &stored
	s.usersByName[u.Username] = &stored
	s.userIDs = append(s.userIDs, u.ID)
	sort.Ints(s.userIDs)
	return nil
}

// now returns the current time from the injected clock.
func (s *Store) now() time.Time {
	return s.clock()
}

// appendMessageLocked assigns the next message id, records the message and
// writes it through to the snapshot backend. Lock must be held.
func (s *Store) appendMessageLocked(m chat.Message) chat.Message {
	m.ID = s.nextMessageID
	s.nextMessageID++
	s.messages = append(s.messages, &m)

	if err := s.snapshot.AppendMessage(m); err != nil {
		s.logger.Warn("chat persistence failed",
			slog.Int("message_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	return m
}

// persistTasksLocked writes the full task snapshot. Failures are logged and
// never affect the in-memory state. Lock must be held.
func (s *Store) persistTasksLocked() {
	snapshot := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		snapshot = append(snapshot, t.Clone())
	}
	if err := s.snapshot.SaveTasks(s.nextTaskID, snapshot); err != nil {
		s.logger.Warn("task persistence failed",
			slog.Int("tasks", len(snapshot)),
			slog.String("error", err.Error()),
		)
	}
}
