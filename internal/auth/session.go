package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps server side sessions keyed by an opaque id.
type SessionStore interface {
	Create(ctx context.Context, user User, ttl time.Duration) (string, error)
	Get(ctx context.Context, id string) (User, error)
	Delete(ctx context.Context, id string) error
}

type sessionData struct {
	Username     string `json:"username"`
	Organization string `json:"organization"`
	Admin        bool   `json:"admin"`
}

const sessionKeyPrefix = "session:"

// RedisSessionStore stores sessions as JSON values under "session:<id>" with the session ttl.
type RedisSessionStore struct {
	client redis.UniversalClient
}

func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Create(ctx context.Context, user User, ttl time.Duration) (string, error) {
	id := uuid.NewString()
	data, err := json.Marshal(sessionData{
		Username:     user.Username,
		Organization: user.Organization,
		Admin:        user.Admin,
	})
	if err != nil {
		return "", err
	}

	if err := s.client.Set(ctx, sessionKeyPrefix+id, data, ttl).Err(); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}
	return id, nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (User, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return User{}, ErrSessionNotFound
		}
		return User{}, fmt.Errorf("reading session: %w", err)
	}

	var data sessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return User{}, fmt.Errorf("decoding session: %w", err)
	}
	return User{Username: data.Username, Organization: data.Organization, Admin: data.Admin}, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKeyPrefix+id).Err()
}

// SessionAuthenticator accepts session ids issued at login.
type SessionAuthenticator struct {
	sessions SessionStore
	ttl      time.Duration
}

func NewSessionAuthenticator(sessions SessionStore, ttl time.Duration) *SessionAuthenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionAuthenticator{sessions: sessions, ttl: ttl}
}

func (a *SessionAuthenticator) Issue(ctx context.Context, user User) (Token, error) {
	id, err := a.sessions.Create(ctx, user, a.ttl)
	if err != nil {
		return Token{}, err
	}
	return Token{Scheme: SessionScheme, Value: id, ExpiresAt: time.Now().Add(a.ttl)}, nil
}

func (a *SessionAuthenticator) Authenticate(ctx context.Context, credential Credential) (User, error) {
	if credential.Scheme != SessionScheme || credential.IsEmpty() {
		return User{}, unauthorized("no session provided")
	}

	user, err := a.sessions.Get(ctx, credential.Value)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return User{}, unauthorized("session expired or unknown")
		}
		return User{}, err
	}
	return user, nil
}

// Revoke ends the session behind credential.
func (a *SessionAuthenticator) Revoke(ctx context.Context, credential Credential) error {
	if credential.Scheme != SessionScheme || credential.IsEmpty() {
		return unauthorized("no session provided")
	}
	return a.sessions.Delete(ctx, credential.Value)
}
