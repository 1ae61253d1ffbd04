package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
}

type dbConfig struct {
	// Type selects the registry backend: memory, sqlite or pgsql.
	Type     string `envconfig:"MIST_DB_TYPE" default:"memory"`
	Hostname string `envconfig:"MIST_DB_HOST" default:"localhost"`
	Port     string `envconfig:"MIST_DB_PORT" default:"5432"`
	Name     string `envconfig:"MIST_DB_NAME" default:"mist"`
	User     string `envconfig:"MIST_DB_USER" default:"admin"`
	Password string `envconfig:"MIST_DB_PASS" default:"adminpass"`
	MaxConns int    `envconfig:"MIST_DB_MAX_CONNS" default:"100"`
}

type svcConfig struct {
	Address        string   `envconfig:"MIST_ADDRESS" default:":3000"`
	MetricsAddress string   `envconfig:"MIST_METRICS_ADDRESS" default:":8080"`
	LogLevel       string   `envconfig:"MIST_LOG_LEVEL" default:"info"`
	LogFormat      string   `envconfig:"MIST_LOG_FORMAT" default:"console"`
	AllowedOrigins []string `envconfig:"MIST_CORS_ALLOWED_ORIGINS" default:"*"`
	Auth           Auth
	Dispatcher     Dispatcher
	Registry       Registry
	RateLimit      RateLimit
	Events         Events
	Redis          Redis
}

type Auth struct {
	// AuthenticationType is one of none, local, jwks or session.
	AuthenticationType string        `envconfig:"MIST_AUTH" default:"none"`
	JwkCertURL         string        `envconfig:"MIST_JWK_URL" default:""`
	LocalSecret        string        `envconfig:"MIST_AUTH_SECRET" default:""`
	Issuer             string        `envconfig:"MIST_AUTH_ISSUER" default:"mist"`
	TokenTTL           time.Duration `envconfig:"MIST_AUTH_TOKEN_TTL" default:"1h"`
	SessionTTL         time.Duration `envconfig:"MIST_AUTH_SESSION_TTL" default:"24h"`
	// AdminPassword, when set, makes the server create the admin user at startup if it is missing.
	AdminUsername     string `envconfig:"MIST_AUTH_ADMIN_USERNAME" default:"admin"`
	AdminOrganization string `envconfig:"MIST_AUTH_ADMIN_ORGANIZATION" default:"mist"`
	AdminPassword     string `envconfig:"MIST_AUTH_ADMIN_PASSWORD" default:""`
}

type Dispatcher struct {
	PoolSize     int           `envconfig:"MIST_DISPATCHER_POOL_SIZE" default:"4"`
	TickInterval time.Duration `envconfig:"MIST_DISPATCHER_TICK_INTERVAL" default:"500ms"`
	JobTimeout   time.Duration `envconfig:"MIST_DISPATCHER_JOB_TIMEOUT" default:"5m"`
	MaxRetries   int           `envconfig:"MIST_DISPATCHER_MAX_RETRIES" default:"3"`
	RetryDelay   time.Duration `envconfig:"MIST_DISPATCHER_RETRY_DELAY" default:"5s"`
	// RetryBackoff is constant or exponential. Exponential starts at RetryDelay and stops growing at RetryMaxDelay.
	RetryBackoff   string        `envconfig:"MIST_DISPATCHER_RETRY_BACKOFF" default:"constant"`
	RetryMaxDelay  time.Duration `envconfig:"MIST_DISPATCHER_RETRY_MAX_DELAY" default:"5m"`
	ReapInterval   time.Duration `envconfig:"MIST_DISPATCHER_REAP_INTERVAL" default:"30s"`
	StaleThreshold time.Duration `envconfig:"MIST_DISPATCHER_STALE_THRESHOLD" default:"1m"`
}

type Registry struct {
	// MaxActiveJobs bounds the number of pending and running jobs. Zero disables the bound.
	MaxActiveJobs int `envconfig:"MIST_REGISTRY_MAX_ACTIVE_JOBS" default:"10000"`
	// RetentionPeriod removes terminal jobs older than the period. Zero keeps every job.
	RetentionPeriod time.Duration `envconfig:"MIST_REGISTRY_RETENTION_PERIOD" default:"0"`
}

type RateLimit struct {
	// SubmitPerSecond is the per-owner submission rate. Zero disables the limiter.
	SubmitPerSecond float64 `envconfig:"MIST_RATE_LIMIT_SUBMIT_PER_SECOND" default:"0"`
	Burst           int     `envconfig:"MIST_RATE_LIMIT_BURST" default:"10"`
}

type Events struct {
	// Writer is one of stdout, redis or empty to disable job events.
	Writer string `envconfig:"MIST_EVENTS_WRITER" default:""`
	Topic  string `envconfig:"MIST_EVENTS_TOPIC" default:"mist.jobs.events"`
}

type Redis struct {
	Address  string `envconfig:"MIST_REDIS_ADDRESS" default:"localhost:6379"`
	Password string `envconfig:"MIST_REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"MIST_REDIS_DB" default:"0"`
}

// New returns the process configuration, read once from the environment.
func New() (*Config, error) {
	if singleConfig == nil {
		cfg, err := load()
		if err != nil {
			return nil, err
		}
		singleConfig = cfg
	}
	return singleConfig, nil
}

// NewDefault returns a fresh configuration built from the defaults and the
// current environment. It panics if the environment holds malformed values.
func NewDefault() *Config {
	cfg, err := load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func load() (*Config, error) {
	cfg := &Config{Database: &dbConfig{}, Service: &svcConfig{}}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
