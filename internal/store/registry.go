package store

import (
	"fmt"
	"strconv"

	"github.com/lllypuk/teamboard/internal/domain/chat"
	"github.com/lllypuk/teamboard/internal/domain/errs"
	"github.com/lllypuk/teamboard/internal/domain/user"
)

// Presence is one entry of the online-user listing.
type Presence struct {
	UserID   int
	Username string
	Role     user.Role
}

// Authenticate checks credentials without touching presence. The built-in
// accounts use a demo scheme: the password must equal the username.
func (s *Store) Authenticate(username, password string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticateLocked(username, password)
}

// Login checks credentials, binds the connection to the user, marks the user
// online and records the join in the chat log. One critical section covers
// the whole sequence.
func (s *Store) Login(connID, username, password string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.authenticateLocked(username, password)
	if err != nil {
		return user.User{}, err
	}

	if prev, ok := s.conns[connID]; ok {
		s.dropConnLocked(connID, prev)
	}
	s.conns[connID] = u.ID
	s.online[u.ID]++

	s.appendMessageLocked(chat.New(0, chat.SystemSenderID, chat.SystemSenderName,
		username+" joined the system", chat.TypeSystem, s.now()))

	return u, nil
}

// Disconnect releases a connection binding. It returns the bound user and
// whether the connection was authenticated at all.
func (s *Store) Disconnect(connID string) (user.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.conns[connID]
	if !ok {
		return user.User{}, false
	}
	s.dropConnLocked(connID, userID)

	u, ok := s.usersByID[userID]
	if !ok {
		return user.User{}, false
	}
	return *u, true
}

// UserByID looks up an identity by numeric id.
func (s *Store) UserByID(id int) (user.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByID[id]
	if !ok {
		return user.User{}, false
	}
	return *u, true
}

// UserByUsername looks up an identity by username.
func (s *Store) UserByUsername(username string) (user.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByName[username]
	if !ok {
		return user.User{}, false
	}
	return *u, true
}

// ResolveUser resolves a username or a numeric user id to an identity.
func (s *Store) ResolveUser(target string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveUserLocked(target)
}

// resolveUserLocked resolves a username or a numeric user id. Lock must be
// held.
func (s *Store) resolveUserLocked(target string) (user.User, error) {
	if u, ok := s.usersByName[target]; ok {
		return *u, nil
	}
	if id, err := strconv.Atoi(target); err == nil {
		if u, ok := s.usersByID[id]; ok {
			return *u, nil
		}
	}
	return user.User{}, fmt.Errorf("target %q: %w", target, errs.ErrUnknownUser)
}

// Users returns the full catalogue ordered by user id.
func (s *Store) Users() []user.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]user.User, 0, len(s.userIDs))
	for _, id := range s.userIDs {
		out = append(out, *s.usersByID[id])
	}
	return out
}

// IsOnline reports whether the user has at least one live connection.
func (s *Store) IsOnline(userID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[userID] > 0
}

// OnlineUsers lists all users with a live connection, ordered by user id.
func (s *Store) OnlineUsers() []Presence {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Presence, 0, len(s.online))
	for _, id := range s.userIDs {
		if s.online[id] > 0 {
			u := s.usersByID[id]
			out = append(out, Presence{UserID: u.ID, Username: u.Username, Role: u.Role})
		}
	}
	return out
}

// authenticateLocked verifies the identity exists and the credential matches.
// Lock must be held.
func (s *Store) authenticateLocked(username, password string) (user.User, error) {
	u, ok := s.usersByName[username]
	if !ok || password != username {
		return user.User{}, errs.ErrInvalidCredentials
	}
	return *u, nil
}

// dropConnLocked removes one connection binding and decrements the user's
// live-connection count. Lock must be held.
func (s *Store) dropConnLocked(connID string, userID int) {
	delete(s.conns, connID)
	if s.online[userID] > 0 {
		s.online[userID]--
	}
	if s.online[userID] == 0 {
		delete(s.online, userID)
	}
}
