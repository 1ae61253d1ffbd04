package v1alpha1

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	api "github.com/mist-hpc/mist/api/v1alpha1"
	"github.com/mist-hpc/mist/internal/handlers/validator"
	"github.com/mist-hpc/mist/internal/service"
	"github.com/mist-hpc/mist/pkg/requestid"
)

const maxBodySize = 1 << 20

type ServiceHandler struct {
	jobSrv    *service.JobService
	authSrv   *service.AuthService
	validator *validator.Validator
}

func NewServiceHandler(jobSrv *service.JobService, authSrv *service.AuthService, v *validator.Validator) *ServiceHandler {
	return &ServiceHandler{
		jobSrv:    jobSrv,
		authSrv:   authSrv,
		validator: v,
	}
}

// RegisterRoutes mounts the jobs and auth groups on r. Every route except
// login goes through authMw first.
func (h *ServiceHandler) RegisterRoutes(r chi.Router, authMw func(http.Handler) http.Handler) {
	r.Route("/jobs", func(r chi.Router) {
		r.Use(authMw)
		r.Post("/", h.SubmitJob)
		r.Get("/", h.ListJobs)
		r.Get("/{id}", h.GetJob)
		r.Delete("/{id}", h.CancelJob)
	})

	r.With(authMw).Get("/dispatcher/status", h.GetDispatcherStatus)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Post("/refresh", h.Refresh)
			r.Get("/whoami", h.WhoAmI)
			r.Post("/logout", h.Logout)
		})
	})
}

func respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	render.Status(r, status)
	render.JSON(w, r, body)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code api.ErrorCode, message string) {
	respond(w, r, status, api.Error{
		Code:      code,
		Message:   message,
		RequestId: requestid.FromContextPtr(r.Context()),
	})
}

func badRequest(w http.ResponseWriter, r *http.Request, format string, args ...any) {
	respondError(w, r, http.StatusBadRequest, api.ErrorCodeBadRequest, fmt.Sprintf(format, args...))
}

// respondServiceError maps the service error types to their status and code.
// action names the operation in the message of unexpected failures.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch err.(type) {
	case *service.ErrResourceNotFound:
		respondError(w, r, http.StatusNotFound, api.ErrorCodeNotFound, err.Error())
	case *service.ErrJobAccessForbidden:
		respondError(w, r, http.StatusForbidden, api.ErrorCodeForbidden, err.Error())
	case *service.ErrJobAlreadyCompleted, *service.ErrJobConflict:
		respondError(w, r, http.StatusConflict, api.ErrorCodeConflict, err.Error())
	case *service.ErrResourceExhausted:
		respondError(w, r, http.StatusTooManyRequests, api.ErrorCodeResourceExhausted, err.Error())
	case *service.ErrInvalidPayload, *service.ErrInvalidUser, *validator.ErrInvalidRequest:
		respondError(w, r, http.StatusBadRequest, api.ErrorCodeBadRequest, err.Error())
	case *service.ErrInvalidCredentials:
		respondError(w, r, http.StatusUnauthorized, api.ErrorCodeUnauthorized, err.Error())
	case *service.ErrLoginUnsupported:
		respondError(w, r, http.StatusNotFound, api.ErrorCodeNotFound, err.Error())
	case *service.ErrDispatcherUnavailable:
		respondError(w, r, http.StatusServiceUnavailable, api.ErrorCodeUnavailable, err.Error())
	default:
		respondError(w, r, http.StatusInternalServerError, api.ErrorCodeInternal, fmt.Sprintf("failed to %s", action))
	}
}
