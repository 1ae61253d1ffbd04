package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mist-hpc/mist/internal/store/model"
	"gorm.io/gorm"
)

// User is the directory of accounts allowed to log in with a password.
type User interface {
	Create(ctx context.Context, user model.User) (*model.User, error)
	Get(ctx context.Context, username string) (*model.User, error)
}

type UserStore struct {
	db *gorm.DB
}

var _ User = (*UserStore)(nil)

func NewUserStore(db *gorm.DB) User {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, user model.User) (*model.User, error) {
	user.Username = strings.TrimSpace(user.Username)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	if err := s.getDB(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return &user, nil
}

func (s *UserStore) Get(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := s.getDB(ctx).First(&user, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}

func (s *UserStore) getDB(ctx context.Context) *gorm.DB {
	tx := txFromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
