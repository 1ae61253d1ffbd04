package auth_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mist-hpc/mist/internal/auth"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("jwks authentication", func() {
	Context("with a key function", func() {
		It("successfully validates the token", func() {
			sToken, keyFn := generateRSAToken(auth.Claims{PreferredUsername: "batman", Organization: "GothamCity"}, "")
			authenticator, err := auth.NewJWKSAuthenticatorWithKeyFn(keyFn)
			Expect(err).To(BeNil())

			user, err := authenticator.Authenticate(context.TODO(), auth.Credential{Scheme: auth.BearerScheme, Value: sToken})
			Expect(err).To(BeNil())
			Expect(user.Username).To(Equal("batman"))
			Expect(user.Organization).To(Equal("GothamCity"))
			Expect(user.Admin).To(BeFalse())
		})

		It("grants admin scope from the roles claim", func() {
			sToken, keyFn := generateRSAToken(auth.Claims{PreferredUsername: "alfred", Organization: "GothamCity", Roles: []string{"admin"}}, "")
			authenticator, err := auth.NewJWKSAuthenticatorWithKeyFn(keyFn)
			Expect(err).To(BeNil())

			user, err := authenticator.Authenticate(context.TODO(), auth.Credential{Scheme: auth.BearerScheme, Value: sToken})
			Expect(err).To(BeNil())
			Expect(user.Admin).To(BeTrue())
		})

		It("falls back to the subject as username", func() {
			sToken, keyFn := generateRSAToken(auth.Claims{Organization: "GothamCity"}, "")
			authenticator, err := auth.NewJWKSAuthenticatorWithKeyFn(keyFn)
			Expect(err).To(BeNil())

			user, err := authenticator.Authenticate(context.TODO(), auth.Credential{Scheme: auth.BearerScheme, Value: sToken})
			Expect(err).To(BeNil())
			Expect(user.Username).To(Equal("somebody"))
		})

		It("fails to authenticate -- wrong signing method", func() {
			sToken, keyFn := generateECToken()
			authenticator, err := auth.NewJWKSAuthenticatorWithKeyFn(keyFn)
			Expect(err).To(BeNil())

			_, err = authenticator.Authenticate(context.TODO(), auth.Credential{Scheme: auth.BearerScheme, Value: sToken})
			Expect(err).To(MatchError(auth.ErrUnauthorized))
		})

		It("fails to authenticate -- session credential", func() {
			_, keyFn := generateRSAToken(auth.Claims{PreferredUsername: "batman"}, "")
			authenticator, err := auth.NewJWKSAuthenticatorWithKeyFn(keyFn)
			Expect(err).To(BeNil())

			_, err = authenticator.Authenticate(context.TODO(), auth.Credential{Scheme: auth.SessionScheme, Value: "abc"})
			Expect(err).To(MatchError(auth.ErrUnauthorized))
		})
	})

	Context("with a remote jwk set", func() {
		It("validates tokens signed by a published key", func() {
			privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
			Expect(err).To(BeNil())

			jwks := map[string]any{
				"keys": []map[string]string{{
					"kty": "RSA",
					"kid": "key-1",
					"alg": "RS256",
					"use": "sig",
					"n":   base64.RawURLEncoding.EncodeToString(privateKey.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(privateKey.E)).Bytes()),
				}},
			}
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(jwks)
			}))
			defer ts.Close()

			authenticator, err := auth.NewJWKSAuthenticator(ts.URL)
			Expect(err).To(BeNil())

			token := jwt.NewWithClaims(jwt.SigningMethodRS256, withRegistered(auth.Claims{PreferredUsername: "batman", Organization: "GothamCity"}))
			token.Header["kid"] = "key-1"
			sToken, err := token.SignedString(privateKey)
			Expect(err).To(BeNil())

			user, err := authenticator.Authenticate(context.TODO(), auth.Credential{Scheme: auth.BearerScheme, Value: sToken})
			Expect(err).To(BeNil())
			Expect(user.Username).To(Equal("batman"))
		})

		It("requires a url", func() {
			_, err := auth.NewJWKSAuthenticator("")
			Expect(err).NotTo(BeNil())
		})
	})
})

func withRegistered(c auth.Claims) auth.Claims {
	c.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		NotBefore: jwt.NewNumericDate(time.Now()),
		Issuer:    "test",
		Subject:   "somebody",
		ID:        "1",
		Audience:  []string{"somebody_else"},
	}
	return c
}

func generateRSAToken(c auth.Claims, kid string) (string, func(t *jwt.Token) (any, error)) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	Expect(err).To(BeNil())

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, withRegistered(c))
	if kid != "" {
		token.Header["kid"] = kid
	}
	ss, err := token.SignedString(privateKey)
	Expect(err).To(BeNil())

	return ss, func(t *jwt.Token) (any, error) {
		return privateKey.Public(), nil
	}
}

func generateECToken() (string, func(t *jwt.Token) (any, error)) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	Expect(err).To(BeNil())

	token := jwt.NewWithClaims(jwt.SigningMethodES256, withRegistered(auth.Claims{PreferredUsername: "batman"}))
	ss, err := token.SignedString(privateKey)
	Expect(err).To(BeNil())

	return ss, func(t *jwt.Token) (any, error) {
		return privateKey.Public(), nil
	}
}
