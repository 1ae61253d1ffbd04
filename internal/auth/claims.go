package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

const adminRole = "admin"

// Claims is the payload of the tokens accepted by the jwt based authenticators.
type Claims struct {
	PreferredUsername string   `json:"preferred_username,omitempty"`
	Organization      string   `json:"org_id,omitempty"`
	Roles             []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) username() string {
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	return c.Subject
}

func (c *Claims) isAdmin() bool {
	for _, r := range c.Roles {
		if r == adminRole {
			return true
		}
	}
	return false
}

func userFromClaims(t *jwt.Token) (User, error) {
	claims, ok := t.Claims.(*Claims)
	if !ok {
		return User{}, unauthorized("failed to parse jwt token claims")
	}

	username := claims.username()
	if username == "" {
		return User{}, unauthorized("token carries no username")
	}

	return User{
		Username:     username,
		Organization: claims.Organization,
		Admin:        claims.isAdmin(),
		Token:        t,
	}, nil
}
