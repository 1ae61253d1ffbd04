package auth_test

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mist-hpc/mist/internal/auth"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var _ = Describe("local authentication", func() {
	It("refuses a short secret", func() {
		_, err := auth.NewLocalAuthenticator([]byte("short"), "mist", time.Hour)
		Expect(err).NotTo(BeNil())
	})

	It("authenticates the tokens it issues", func() {
		a, err := auth.NewLocalAuthenticator([]byte(testSecret), "mist", time.Hour)
		Expect(err).To(BeNil())

		token, err := a.Issue(context.TODO(), auth.User{Username: "batman", Organization: "gotham", Admin: true})
		Expect(err).To(BeNil())
		Expect(token.Scheme).To(Equal(auth.BearerScheme))
		Expect(token.ExpiresAt).To(BeTemporally("~", time.Now().Add(time.Hour), time.Minute))

		user, err := a.Authenticate(context.TODO(), auth.Credential{Scheme: auth.BearerScheme, Value: token.Value})
		Expect(err).To(BeNil())
		Expect(user.Username).To(Equal("batman"))
		Expect(user.Organization).To(Equal("gotham"))
		Expect(user.Admin).To(BeTrue())
		Expect(user.Token).NotTo(BeNil())
	})

	It("rejects tokens signed with another secret", func() {
		other, err := auth.NewLocalAuthenticator([]byte("ffffffffffffffffffffffffffffffff"), "mist", time.Hour)
		Expect(err).To(BeNil())
		token, err := other.Issue(context.TODO(), auth.User{Username: "joker"})
		Expect(err).To(BeNil())

		a, err := auth.NewLocalAuthenticator([]byte(testSecret), "mist", time.Hour)
		Expect(err).To(BeNil())
		_, err = a.Authenticate(context.TODO(), auth.Credential{Scheme: auth.BearerScheme, Value: token.Value})
		Expect(err).To(MatchError(auth.ErrUnauthorized))
	})

	It("rejects expired tokens", func() {
		a, err := auth.NewLocalAuthenticator([]byte(testSecret), "mist", time.Hour)
		Expect(err).To(BeNil())

		claims := auth.Claims{
			PreferredUsername: "batman",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "mist",
				Subject:   "batman",
				IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		Expect(err).To(BeNil())

		_, err = a.Authenticate(context.TODO(), auth.Credential{Scheme: auth.BearerScheme, Value: signed})
		Expect(err).To(MatchError(auth.ErrUnauthorized))
	})

	It("rejects a missing credential", func() {
		a, err := auth.NewLocalAuthenticator([]byte(testSecret), "mist", time.Hour)
		Expect(err).To(BeNil())
		_, err = a.Authenticate(context.TODO(), auth.Credential{})
		Expect(err).To(MatchError(auth.ErrUnauthorized))
	})
})
