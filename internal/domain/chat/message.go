// Package chat defines the chat message entity.
package chat

import (
	"fmt"
	"time"
)

// Type classifies a chat message. The numeric values are part of the
// persisted format and must not be reordered.
type Type int

// Message types.
const (
	TypeGeneral Type = iota
	TypeTaskUpdate
	TypeSystem
	TypePrivate
)

// String returns the human-readable type name.
func (t Type) String() string {
	switch t {
	case TypeGeneral:
		return "General"
	case TypeTaskUpdate:
		return "Task Update"
	case TypeSystem:
		return "System"
	case TypePrivate:
		return "Private"
	default:
		return "Unknown"
	}
}

// None marks an unset target-user or related-task reference.
const None = -1

// SystemSenderID is the sender id recorded on system messages.
const SystemSenderID = 0

// SystemSenderName is the display name recorded on system messages.
const SystemSenderName = "System"

// Message is one chat log entry. TargetUserID is meaningful only for
// TypePrivate; RelatedTaskID only for TypeTaskUpdate.
type Message struct {
	ID            int
	SenderID      int
	SenderName    string
	Content       string
	Type          Type
	SentAt        time.Time
	TargetUserID  int
	RelatedTaskID int
}

// New creates a message with unset target and task references.
func New(id, senderID int, senderName, content string, typ Type, now time.Time) Message {
	return Message{
		ID:            id,
		SenderID:      senderID,
		SenderName:    senderName,
		Content:       content,
		Type:          typ,
		SentAt:        now,
		TargetUserID:  None,
		RelatedTaskID: None,
	}
}

// IsBetween reports whether m is a private message exchanged between the two
// users, in either direction.
func (m Message) IsBetween(userA, userB int) bool {
	if m.Type != TypePrivate {
		return false
	}
	return (m.SenderID == userA && m.TargetUserID == userB) ||
		(m.SenderID == userB && m.TargetUserID == userA)
}

// Format renders the message the way the chat log file records it.
func (m Message) Format() string {
	return fmt.Sprintf("%s [%s] %s", m.SentAt.Format(time.DateTime), m.SenderName, m.Content)
}
