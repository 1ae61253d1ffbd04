package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	apiserver "github.com/mist-hpc/mist/internal/api_server"
	"github.com/mist-hpc/mist/internal/auth"
	"github.com/mist-hpc/mist/internal/config"
	"github.com/mist-hpc/mist/internal/dispatcher"
	"github.com/mist-hpc/mist/internal/events"
	handlers "github.com/mist-hpc/mist/internal/handlers/v1alpha1"
	"github.com/mist-hpc/mist/internal/handlers/validator"
	"github.com/mist-hpc/mist/internal/service"
	"github.com/mist-hpc/mist/internal/store"
	"github.com/mist-hpc/mist/pkg/metrics"
	"github.com/mist-hpc/mist/pkg/migrations"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	eventsWriterStdout = "stdout"
	eventsWriterRedis  = "redis"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the job gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, teardown, err := setup()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}
		defer teardown()

		zap.S().Info("starting job gateway")
		defer zap.S().Info("job gateway stopped")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		return run(ctx, cfg)
	},
}

func run(ctx context.Context, cfg *config.Config) error {
	s, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var rdb redis.UniversalClient
	if cfg.Service.Auth.AuthenticationType == auth.SessionAuthentication || cfg.Service.Events.Writer == eventsWriterRedis {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Service.Redis.Address},
			Password: cfg.Service.Redis.Password,
			DB:       cfg.Service.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis at %s: %w", cfg.Service.Redis.Address, err)
		}
	}

	var sessions auth.SessionStore
	if rdb != nil {
		sessions = auth.NewRedisSessionStore(rdb)
	}

	authenticator, err := auth.NewAuthenticator(cfg.Service.Auth, sessions)
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}

	var issuer auth.Issuer
	if i, ok := authenticator.(auth.Issuer); ok {
		issuer = i
	}

	mux := dispatcher.NewBuiltinMux()
	jobOpts := []service.JobServiceOption{
		service.WithPayloadValidator(mux),
		service.WithSubmitRateLimit(cfg.Service.RateLimit),
	}
	backoff, err := dispatcher.NewBackoff(cfg.Service.Dispatcher)
	if err != nil {
		return err
	}
	dispatcherOpts := []dispatcher.Option{
		dispatcher.WithBackoff(backoff),
		dispatcher.WithRetention(cfg.Service.Registry.RetentionPeriod),
	}

	producer, err := newEventProducer(cfg.Service.Events, rdb)
	if err != nil {
		return err
	}
	if producer != nil {
		defer producer.Close()
		jobOpts = append(jobOpts, service.WithEvents(producer))
		dispatcherOpts = append(dispatcherOpts, dispatcher.WithEvents(producer))
	}

	d := dispatcher.New(s.Job(), mux, cfg.Service.Dispatcher, dispatcherOpts...)

	v := validator.NewValidator()
	v.Register(validator.NewJobValidationRules(mux)...)
	v.Register(validator.NewLoginValidationRules()...)

	authSrv := service.NewAuthService(s, issuer)
	if err := ensureAdmin(ctx, cfg.Service.Auth, s, authSrv); err != nil {
		return err
	}

	h := handlers.NewServiceHandler(service.NewJobService(s, d, jobOpts...), authSrv, v)

	apiListener, err := newListener(cfg.Service.Address)
	if err != nil {
		return fmt.Errorf("creating listener: %w", err)
	}
	metricsListener, err := newListener(cfg.Service.MetricsAddress)
	if err != nil {
		_ = apiListener.Close()
		return fmt.Errorf("creating metrics listener: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiserver.New(cfg, apiListener, h, authenticator).Run(gctx)
	})
	g.Go(func() error {
		ms := apiserver.NewMetricServer(cfg.Service.MetricsAddress, metricsListener,
			metrics.NewJobStatsCollector(s),
			metrics.NewHostCollector("/"),
		)
		return ms.Run(gctx)
	})
	g.Go(func() error {
		return d.Run(gctx)
	})

	return g.Wait()
}

func newStore(cfg *config.Config) (store.Store, error) {
	opts := []store.Option{store.WithMaxActiveJobs(cfg.Service.Registry.MaxActiveJobs)}

	if cfg.Database.Type == store.TypeMemory {
		zap.S().Info("using the in-memory registry")
		return store.NewMemoryStore(opts...), nil
	}

	zap.S().Info("initializing data store")
	db, err := store.InitDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing data store: %w", err)
	}
	if err := migrations.MigrateStore(db, cfg.Database.Type); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store.NewStore(db, opts...), nil
}

func newEventProducer(cfg config.Events, rdb redis.UniversalClient) (*events.EventProducer, error) {
	opts := []events.ProducerOptions{events.WithOutputTopic(cfg.Topic)}

	switch cfg.Writer {
	case "":
		return nil, nil
	case eventsWriterStdout:
		return events.NewEventProducer(&events.StdoutWriter{}, opts...), nil
	case eventsWriterRedis:
		return events.NewEventProducer(events.NewRedisStreamWriter(rdb), opts...), nil
	default:
		return nil, fmt.Errorf("unknown events writer %q", cfg.Writer)
	}
}

// ensureAdmin creates the configured admin user when a password is set and
// the user does not exist yet.
func ensureAdmin(ctx context.Context, cfg config.Auth, s store.Store, authSrv *service.AuthService) error {
	if cfg.AdminPassword == "" {
		return nil
	}

	_, err := s.User().Get(ctx, cfg.AdminUsername)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, store.ErrRecordNotFound):
		return fmt.Errorf("looking up admin user: %w", err)
	}

	if _, err := authSrv.CreateUser(ctx, cfg.AdminUsername, cfg.AdminOrganization, cfg.AdminPassword, true); err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}
	zap.S().Infof("created admin user %s", cfg.AdminUsername)
	return nil
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
