package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mist-hpc/mist/internal/config"
	"go.uber.org/zap"
)

const (
	NoneAuthentication    string = "none"
	LocalAuthentication   string = "local"
	JWKSAuthentication    string = "jwks"
	SessionAuthentication string = "session"

	BearerScheme  string = "Bearer"
	SessionScheme string = "Session"

	SessionCookieName string = "session"
)

// ErrUnauthorized is wrapped by every credential rejection.
var ErrUnauthorized = errors.New("unauthorized")

func unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// Credential is what a caller presents: a scheme and an opaque value.
type Credential struct {
	Scheme string
	Value  string
}

func (c Credential) IsEmpty() bool {
	return c.Value == ""
}

// Authenticator verifies a credential and returns the identity it proves.
// Failures wrap ErrUnauthorized.
type Authenticator interface {
	Authenticate(ctx context.Context, credential Credential) (User, error)
}

// Token is a credential minted for a user by an Issuer.
type Token struct {
	Scheme    string
	Value     string
	ExpiresAt time.Time
}

// Issuer is implemented by the authenticators able to mint their own credentials.
type Issuer interface {
	Issue(ctx context.Context, user User) (Token, error)
}

// Revoker is implemented by the authenticators able to end a credential before it expires.
type Revoker interface {
	Revoke(ctx context.Context, credential Credential) error
}

func NewAuthenticator(authConfig config.Auth, sessions SessionStore) (Authenticator, error) {
	zap.S().Named("auth").Infof("authentication: '%s'", authConfig.AuthenticationType)

	switch authConfig.AuthenticationType {
	case LocalAuthentication:
		return NewLocalAuthenticator([]byte(authConfig.LocalSecret), authConfig.Issuer, authConfig.TokenTTL)
	case JWKSAuthentication:
		return NewJWKSAuthenticator(authConfig.JwkCertURL)
	case SessionAuthentication:
		if sessions == nil {
			return nil, errors.New("session authentication requires a session store")
		}
		return NewSessionAuthenticator(sessions, authConfig.SessionTTL), nil
	case NoneAuthentication, "":
		return NewNoneAuthenticator()
	default:
		return nil, fmt.Errorf("unknown authentication type %q", authConfig.AuthenticationType)
	}
}

// CredentialFromRequest reads the Authorization header ("Bearer <token>" or
// "Session <id>") and falls back to the session cookie.
func CredentialFromRequest(r *http.Request) Credential {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, found := strings.Cut(header, " ")
		if !found {
			return Credential{}
		}
		switch {
		case strings.EqualFold(scheme, BearerScheme):
			return Credential{Scheme: BearerScheme, Value: strings.TrimSpace(value)}
		case strings.EqualFold(scheme, SessionScheme):
			return Credential{Scheme: SessionScheme, Value: strings.TrimSpace(value)}
		default:
			return Credential{}
		}
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return Credential{Scheme: SessionScheme, Value: cookie.Value}
	}

	return Credential{}
}
