package store

import (
	"github.com/lllypuk/teamboard/internal/domain/chat"
	"github.com/lllypuk/teamboard/internal/domain/user"
)

// PostChat records a general chat message.
func (s *Store) PostChat(senderID int, senderName, content string) chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendMessageLocked(chat.New(0, senderID, senderName, content, chat.TypeGeneral, s.now()))
}

// PostSystem records a system message.
func (s *Store) PostSystem(content string) chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendMessageLocked(chat.New(0, chat.SystemSenderID, chat.SystemSenderName,
		content, chat.TypeSystem, s.now()))
}

// PostPrivate resolves the target (username or numeric id) and records a
// private message to them. Private messages always carry a target id.
func (s *Store) PostPrivate(senderID int, senderName, target, content string) (chat.Message, user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	to, err := s.resolveUserLocked(target)
	if err != nil {
		return chat.Message{}, user.User{}, err
	}

	m := chat.New(0, senderID, senderName, content, chat.TypePrivate, s.now())
	m.TargetUserID = to.ID
	return s.appendMessageLocked(m), to, nil
}

// Messages returns the full chat log in append order.
func (s *Store) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.messages)
}

// RecentMessages returns the N most recently appended messages, oldest first.
func (s *Store) RecentMessages(n int) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := len(s.messages) - n
	if start < 0 {
		start = 0
	}
	return cloneMessages(s.messages[start:])
}

// MessagesBySender returns all messages sent by the user.
func (s *Store) MessagesBySender(userID int) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []chat.Message
	for _, m := range s.messages {
		if m.SenderID == userID {
			out = append(out, *m)
		}
	}
	return out
}

// MessagesForTask returns all task-update messages related to the task.
func (s *Store) MessagesForTask(taskID int) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []chat.Message
	for _, m := range s.messages {
		if m.RelatedTaskID == taskID {
			out = append(out, *m)
		}
	}
	return out
}

// PrivateConversation returns the private messages exchanged between the two
// users, in either direction, in append order.
func (s *Store) PrivateConversation(userA, userB int) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []chat.Message
	for _, m := range s.messages {
		if m.IsBetween(userA, userB) {
			out = append(out, *m)
		}
	}
	return out
}

func cloneMessages(messages []*chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, *m)
	}
	return out
}
