package auth

import (
	"context"
	"fmt"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// JWKSAuthenticator accepts RS256 bearer tokens signed by an external identity
// provider publishing its keys as a JWK set.
type JWKSAuthenticator struct {
	keyFn func(t *jwt.Token) (any, error)
}

func NewJWKSAuthenticatorWithKeyFn(keyFn func(t *jwt.Token) (any, error)) (*JWKSAuthenticator, error) {
	return &JWKSAuthenticator{keyFn: keyFn}, nil
}

func NewJWKSAuthenticator(jwkCertUrl string) (*JWKSAuthenticator, error) {
	if jwkCertUrl == "" {
		return nil, fmt.Errorf("jwks authentication requires a jwk set url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwkCertUrl})
	if err != nil {
		return nil, fmt.Errorf("failed to get jwk set: %w", err)
	}

	return &JWKSAuthenticator{keyFn: k.Keyfunc}, nil
}

func (a *JWKSAuthenticator) Authenticate(_ context.Context, credential Credential) (User, error) {
	if credential.Scheme != BearerScheme || credential.IsEmpty() {
		return User{}, unauthorized("no bearer token provided")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}), jwt.WithIssuedAt(), jwt.WithExpirationRequired())
	t, err := parser.ParseWithClaims(credential.Value, &Claims{}, a.keyFn)
	if err != nil {
		zap.S().Named("auth").Debugw("failed to parse or the token is invalid", "error", err)
		return User{}, unauthorized("failed to authenticate token: %s", err)
	}

	return userFromClaims(t)
}
