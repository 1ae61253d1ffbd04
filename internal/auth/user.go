package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type userKeyType struct{}

var (
	userKey userKeyType
)

type User struct {
	Username     string
	Organization string
	// Admin callers may read and cancel jobs of every owner.
	Admin bool
	Token *jwt.Token
}

func NewUserContext(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFromContext(ctx context.Context) (User, bool) {
	val, ok := ctx.Value(userKey).(User)
	return val, ok
}

func MustHaveUser(ctx context.Context) User {
	user, found := UserFromContext(ctx)
	if !found {
		zap.S().Named("auth").Panic("failed to find user in context")
	}
	return user
}
