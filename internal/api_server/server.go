package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	api "github.com/mist-hpc/mist/api/v1alpha1"
	"github.com/mist-hpc/mist/internal/auth"
	"github.com/mist-hpc/mist/internal/config"
	handlers "github.com/mist-hpc/mist/internal/handlers/v1alpha1"
	"github.com/mist-hpc/mist/pkg/metrics"
	"github.com/mist-hpc/mist/pkg/middleware"
	"github.com/mist-hpc/mist/pkg/requestid"
	"go.uber.org/zap"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
	// apiPrefix is the path a fronting gateway forwards the API under.
	apiPrefix = "/api/v1"
)

type Server struct {
	cfg           *config.Config
	listener      net.Listener
	handler       *handlers.ServiceHandler
	authenticator auth.Authenticator
}

// New returns a new instance of the job gateway server. Every dependency is
// passed in; the server owns none of them.
func New(
	cfg *config.Config,
	listener net.Listener,
	handler *handlers.ServiceHandler,
	authenticator auth.Authenticator,
) *Server {
	return &Server{
		cfg:           cfg,
		listener:      listener,
		handler:       handler,
		authenticator: authenticator,
	}
}

// Router builds the gateway routes: liveness at the root, then the jobs and
// auth groups both at the root and under /api/v1.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Service.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", requestid.Header},
			ExposedHeaders:   []string{requestid.Header},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	router.Get("/", handlers.Liveness)
	router.Get("/health", handlers.Liveness)

	authMw := auth.Middleware(s.authenticator, s.cfg.Service.Auth.AuthenticationType)
	s.handler.RegisterRoutes(router, authMw)
	router.Route(apiPrefix, func(r chi.Router) {
		s.handler.RegisterRoutes(r, authMw)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, api.Error{Code: api.ErrorCodeNotFound, Message: "no such route", RequestId: requestid.FromContextPtr(r.Context())})
	})

	return router
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
