package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mist-hpc/mist/internal/store/model"
)

type memoryUserStore struct {
	mu    sync.RWMutex
	users map[string]model.User
}

var _ User = (*memoryUserStore)(nil)

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: make(map[string]model.User)}
}

func (s *memoryUserStore) Create(_ context.Context, user model.User) (*model.User, error) {
	user.Username = strings.TrimSpace(user.Username)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.users[user.Username]; found {
		return nil, ErrDuplicateKey
	}
	s.users[user.Username] = user
	return &user, nil
}

func (s *memoryUserStore) Get(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, found := s.users[username]
	if !found {
		return nil, ErrRecordNotFound
	}
	return &user, nil
}
