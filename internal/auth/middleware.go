package auth

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	api "github.com/mist-hpc/mist/api/v1alpha1"
	"github.com/mist-hpc/mist/pkg/metrics"
	"github.com/mist-hpc/mist/pkg/requestid"
	"go.uber.org/zap"
)

// Middleware rejects unauthenticated requests with 401 before they reach a
// handler, and stores the authenticated user in the request context.
func Middleware(a Authenticator, scheme string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := a.Authenticate(r.Context(), CredentialFromRequest(r))
			if err != nil {
				metrics.IncreaseAuthFailuresMetric(scheme)

				status, message := http.StatusUnauthorized, "authentication failed"
				if !errors.Is(err, ErrUnauthorized) {
					zap.S().Named("auth").Errorw("authenticator failure", "error", err)
					status, message = http.StatusInternalServerError, "authentication unavailable"
				}

				code := api.ErrorCodeUnauthorized
				if status == http.StatusInternalServerError {
					code = api.ErrorCodeInternal
				}
				render.Status(r, status)
				render.JSON(w, r, api.Error{Code: code, Message: message, RequestId: requestid.FromContextPtr(r.Context())})
				return
			}

			next.ServeHTTP(w, r.WithContext(NewUserContext(r.Context(), user)))
		})
	}
}
