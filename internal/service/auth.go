package service

import (
	"context"
	"errors"
	"strings"

	"github.com/mist-hpc/mist/internal/auth"
	"github.com/mist-hpc/mist/internal/store"
	"github.com/mist-hpc/mist/internal/store/model"
	"github.com/mist-hpc/mist/pkg/log"
	"golang.org/x/crypto/bcrypt"
)

// AuthService logs users in against the user store and mints credentials
// with the configured issuer. A nil issuer means credentials come from an
// external provider and login is not offered.
type AuthService struct {
	store  store.Store
	issuer auth.Issuer
	logger *log.StructuredLogger
}

func NewAuthService(s store.Store, issuer auth.Issuer) *AuthService {
	return &AuthService{
		store:  s,
		issuer: issuer,
		logger: log.NewDebugLogger("auth_service"),
	}
}

func (s *AuthService) Login(ctx context.Context, username, password string) (auth.Token, auth.User, error) {
	tracer := s.logger.WithContext(ctx).Operation("login").WithString("username", username).Build()

	if s.issuer == nil {
		return auth.Token{}, auth.User{}, NewErrLoginUnsupported()
	}

	u, err := s.store.User().Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			// compare anyway so unknown users cost as much as wrong passwords
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			tracer.Step("unknown_user").Log()
			return auth.Token{}, auth.User{}, NewErrInvalidCredentials()
		}
		tracer.Error(err).Log()
		return auth.Token{}, auth.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		tracer.Step("wrong_password").Log()
		return auth.Token{}, auth.User{}, NewErrInvalidCredentials()
	}

	user := auth.User{Username: u.Username, Organization: u.Organization, Admin: u.Admin}
	token, err := s.issuer.Issue(ctx, user)
	if err != nil {
		tracer.Error(err).Log()
		return auth.Token{}, auth.User{}, err
	}

	tracer.Success().Log()
	return token, user, nil
}

// Refresh issues a fresh credential to an already authenticated user.
func (s *AuthService) Refresh(ctx context.Context, user *auth.User) (auth.Token, error) {
	tracer := s.logger.WithContext(ctx).Operation("refresh").WithString("username", user.Username).Build()

	if s.issuer == nil {
		return auth.Token{}, NewErrLoginUnsupported()
	}

	token, err := s.issuer.Issue(ctx, auth.User{
		Username:     user.Username,
		Organization: user.Organization,
		Admin:        user.Admin,
	})
	if err != nil {
		tracer.Error(err).Log()
		return auth.Token{}, err
	}

	tracer.Success().Log()
	return token, nil
}

// Logout revokes the credential the caller authenticated with. Only issuers
// keeping server side state can do it.
func (s *AuthService) Logout(ctx context.Context, credential auth.Credential) error {
	tracer := s.logger.WithContext(ctx).Operation("logout").Build()

	revoker, ok := s.issuer.(auth.Revoker)
	if !ok {
		return NewErrLogoutUnsupported()
	}

	if err := revoker.Revoke(ctx, credential); err != nil {
		tracer.Error(err).Log()
		return err
	}

	tracer.Success().Log()
	return nil
}

// CreateUser stores a login user with a bcrypt hash of password.
func (s *AuthService) CreateUser(ctx context.Context, username, organization, password string, admin bool) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, NewErrInvalidUser("username is empty")
	}
	if len(password) < 8 {
		return nil, NewErrInvalidUser("password must be at least 8 characters")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u, err := s.store.User().Create(ctx, model.User{
		Username:     username,
		Organization: organization,
		PasswordHash: hash,
		Admin:        admin,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, NewErrInvalidUser("user " + username + " already exists")
		}
		return nil, err
	}
	return u, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("mist-dummy-password"), bcrypt.MinCost)
