package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Fabeuss/oasis/internal/config"
)

// ErrUserNotFound is returned by a UserStore for unknown usernames.
var ErrUserNotFound = errors.New("user not found")

// User is an account that can sign in with a password.
type User struct {
	Username     string
	PasswordHash string // bcrypt
	IsAdmin      bool
}

// UserStore looks up accounts by username.
type UserStore interface {
	LookupUser(ctx context.Context, username string) (*User, error)
}

// StaticUsers is a UserStore backed by the configuration file.
type StaticUsers struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewStaticUsers builds a store from configured accounts.
func NewStaticUsers(cfg []config.UserConfig) *StaticUsers {
	s := &StaticUsers{users: make(map[string]User, len(cfg))}
	for _, u := range cfg {
		s.users[u.Username] = User{
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			IsAdmin:      u.Admin,
		}
	}
	return s
}

// LookupUser implements UserStore.
func (s *StaticUsers) LookupUser(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// Len returns the number of accounts.
func (s *StaticUsers) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// ChainUsers consults each store in order and returns the first match.
type ChainUsers []UserStore

// LookupUser implements UserStore.
func (c ChainUsers) LookupUser(ctx context.Context, username string) (*User, error) {
	for _, s := range c {
		u, err := s.LookupUser(ctx, username)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("lookup %q: %w", username, err)
		}
	}
	return nil, ErrUserNotFound
}
