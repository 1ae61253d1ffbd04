package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"
	api "github.com/mist-hpc/mist/api/v1alpha1"
	"github.com/mist-hpc/mist/internal/auth"
	"github.com/mist-hpc/mist/internal/handlers/v1alpha1/mappers"
	"github.com/mist-hpc/mist/pkg/log"
)

func (h *ServiceHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.NewDebugLogger("auth_handler").WithContext(ctx).Operation("login").Build()

	var form api.LoginRequest
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodySize), &form); err != nil {
		badRequest(w, r, "invalid request body: %v", err)
		return
	}

	if err := h.validator.Struct(form); err != nil {
		respondServiceError(w, r, err, "validate login")
		return
	}

	token, _, err := h.authSrv.Login(ctx, form.Username, form.Password)
	if err != nil {
		logger.Error(err).Log()
		respondServiceError(w, r, err, "log in")
		return
	}

	setSessionCookie(w, token)
	logger.Success().WithString("username", form.Username).Log()
	respond(w, r, http.StatusOK, mappers.CredentialToApi(token))
}

func (h *ServiceHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.NewDebugLogger("auth_handler").WithContext(ctx).Operation("refresh").Build()

	user := auth.MustHaveUser(ctx)

	token, err := h.authSrv.Refresh(ctx, &user)
	if err != nil {
		logger.Error(err).Log()
		respondServiceError(w, r, err, "refresh credential")
		return
	}

	setSessionCookie(w, token)
	logger.Success().Log()
	respond(w, r, http.StatusOK, mappers.CredentialToApi(token))
}

func (h *ServiceHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, mappers.IdentityToApi(auth.MustHaveUser(r.Context())))
}

func (h *ServiceHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.NewDebugLogger("auth_handler").WithContext(ctx).Operation("logout").Build()

	if err := h.authSrv.Logout(ctx, auth.CredentialFromRequest(r)); err != nil {
		logger.Error(err).Log()
		respondServiceError(w, r, err, "log out")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	logger.Success().Log()
	render.NoContent(w, r)
}

// setSessionCookie lets browsers carry session credentials without reading the body.
func setSessionCookie(w http.ResponseWriter, token auth.Token) {
	if token.Scheme != auth.SessionScheme {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token.Value,
		Path:     "/",
		Expires:  token.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
