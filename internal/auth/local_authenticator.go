package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const minSecretLength = 32

// LocalAuthenticator signs and verifies HS256 tokens with a shared secret.
// It is the credential issuer of the login endpoint in local mode.
type LocalAuthenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewLocalAuthenticator(secret []byte, issuer string, ttl time.Duration) (*LocalAuthenticator, error) {
	if len(secret) < minSecretLength {
		return nil, errors.New("local authentication requires a secret of at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &LocalAuthenticator{secret: secret, issuer: issuer, ttl: ttl}, nil
}

func (a *LocalAuthenticator) Issue(_ context.Context, user User) (Token, error) {
	now := time.Now()
	expiresAt := now.Add(a.ttl)

	claims := Claims{
		PreferredUsername: user.Username,
		Organization:      user.Organization,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    a.issuer,
			Subject:   user.Username,
			ID:        uuid.NewString(),
		},
	}
	if user.Admin {
		claims.Roles = []string{adminRole}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return Token{}, err
	}

	return Token{Scheme: BearerScheme, Value: signed, ExpiresAt: expiresAt}, nil
}

func (a *LocalAuthenticator) Authenticate(_ context.Context, credential Credential) (User, error) {
	if credential.Scheme != BearerScheme || credential.IsEmpty() {
		return User{}, unauthorized("no bearer token provided")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(a.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	t, err := parser.ParseWithClaims(credential.Value, &Claims{}, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		zap.S().Named("auth").Debugw("failed to parse or the token is invalid", "error", err)
		return User{}, unauthorized("failed to authenticate token: %s", err)
	}

	return userFromClaims(t)
}
