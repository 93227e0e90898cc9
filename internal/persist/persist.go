// Package persist provides durable snapshot backends for tasks and chat
// history. The in-memory store remains authoritative for the running process;
// backends only have to round-trip the persisted fields.
package persist

import (
	"github.com/lllypuk/teamboard/internal/domain/chat"
	"github.com/lllypuk/teamboard/internal/domain/task"
)

// Store is a durable snapshot backend. Load methods are called once at
// startup; save methods after each mutation. A failed save must not affect
// the in-memory state.
type Store interface {
	// LoadTasks returns the persisted tasks and the next task id to assign.
	LoadTasks() ([]task.Task, int, error)

	// SaveTasks rewrites the full task snapshot.
	SaveTasks(nextID int, tasks []task.Task) error

	// LoadMessages returns the persisted chat history and the next message id.
	LoadMessages() ([]chat.Message, int, error)

	// AppendMessage records one chat message.
	AppendMessage(m chat.Message) error

	Close() error
}

// Noop discards all writes and loads nothing. Used when persistence is
// disabled.
type Noop struct{}

// LoadTasks returns an empty snapshot.
func (Noop) LoadTasks() ([]task.Task, int, error) { return nil, 1, nil }

// SaveTasks discards the snapshot.
func (Noop) SaveTasks(int, []task.Task) error { return nil }

// LoadMessages returns an empty history.
func (Noop) LoadMessages() ([]chat.Message, int, error) { return nil, 1, nil }

// AppendMessage discards the message.
func (Noop) AppendMessage(chat.Message) error { return nil }

// Close is a no-op.
func (Noop) Close() error { return nil }
