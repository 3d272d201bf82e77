package config

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/clinic-scheduler/internal/scheduling"
)

// EnvPrefix is the prefix of every environment override, e.g.
// SCHEDULER_DATABASE_HOST.
const EnvPrefix = "SCHEDULER"

type Config struct {
	Server     ServerConfig     `mapstructure:"server" envconfig:"SERVER"`
	Database   DatabaseConfig   `mapstructure:"database" envconfig:"DATABASE"`
	Redis      RedisConfig      `mapstructure:"redis" envconfig:"REDIS"`
	JWT        JWTConfig        `mapstructure:"jwt" envconfig:"JWT"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" envconfig:"RATE_LIMIT"`
	Scheduling SchedulingConfig `mapstructure:"scheduling" envconfig:"SCHEDULING"`
	Outbox     OutboxConfig     `mapstructure:"outbox" envconfig:"OUTBOX"`
	Log        LogConfig        `mapstructure:"log" envconfig:"LOG"`
	Metrics    MetricsConfig    `mapstructure:"metrics" envconfig:"METRICS"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" envconfig:"MAX_BODY_BYTES"`
	CORSOrigins     []string      `mapstructure:"cors_origins" envconfig:"CORS_ORIGINS"`
	Mode            string        `mapstructure:"mode" envconfig:"MODE"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" envconfig:"DRIVER"`
	Host            string        `mapstructure:"host" envconfig:"HOST"`
	Port            int           `mapstructure:"port" envconfig:"PORT"`
	User            string        `mapstructure:"user" envconfig:"USER"`
	Password        string        `mapstructure:"password" envconfig:"PASSWORD"`
	Name            string        `mapstructure:"name" envconfig:"NAME"`
	SSLMode         string        `mapstructure:"sslmode" envconfig:"SSLMODE"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled" envconfig:"ENABLED"`
	URL          string        `mapstructure:"url" envconfig:"URL"`
	Channel      string        `mapstructure:"channel" envconfig:"CHANNEL"`
	MaxRetries   int           `mapstructure:"max_retries" envconfig:"MAX_RETRIES"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" envconfig:"RETRY_BACKOFF"`
	PoolSize     int           `mapstructure:"pool_size" envconfig:"POOL_SIZE"`
	MinIdleConns int           `mapstructure:"min_idle_conns" envconfig:"MIN_IDLE_CONNS"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret" envconfig:"SECRET"`
	Issuer string `mapstructure:"issuer" envconfig:"ISSUER"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled" envconfig:"ENABLED"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" envconfig:"REQUESTS_PER_SECOND"`
	Burst             int           `mapstructure:"burst" envconfig:"BURST"`
	// Distributed switches to the Redis fixed-window limiter.
	Distributed bool          `mapstructure:"distributed" envconfig:"DISTRIBUTED"`
	Window      time.Duration `mapstructure:"window" envconfig:"WINDOW"`
	Limit       int           `mapstructure:"limit" envconfig:"LIMIT"`
}

type SchedulingConfig struct {
	Granularity      int           `mapstructure:"granularity" envconfig:"GRANULARITY"`
	DefaultDuration  int           `mapstructure:"default_duration" envconfig:"DEFAULT_DURATION"`
	DefaultOpen      string        `mapstructure:"default_open" envconfig:"DEFAULT_OPEN"`
	DefaultClose     string        `mapstructure:"default_close" envconfig:"DEFAULT_CLOSE"`
	DefaultTimezone  string        `mapstructure:"default_timezone" envconfig:"DEFAULT_TIMEZONE"`
	// BusinessCacheTTL is how stale a business policy may be. Deactivation
	// and subscription changes take effect after at most this long.
	BusinessCacheTTL time.Duration `mapstructure:"business_cache_ttl" envconfig:"BUSINESS_CACHE_TTL"`
}

// DefaultHours is the opening window used when a business sets none.
func (c SchedulingConfig) DefaultHours() (scheduling.BusinessHours, error) {
	open, err := scheduling.ParseTimeOfDay(c.DefaultOpen)
	if err != nil {
		return scheduling.BusinessHours{}, fmt.Errorf("default_open: %w", err)
	}
	closing, err := scheduling.ParseTimeOfDay(c.DefaultClose)
	if err != nil {
		return scheduling.BusinessHours{}, fmt.Errorf("default_close: %w", err)
	}
	return scheduling.BusinessHours{Open: open, Close: closing}, nil
}

// Location loads DefaultTimezone.
func (c SchedulingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.DefaultTimezone)
}

type OutboxConfig struct {
	BatchSize       int           `mapstructure:"batch_size" envconfig:"BATCH_SIZE"`
	PollInterval    time.Duration `mapstructure:"poll_interval" envconfig:"POLL_INTERVAL"`
	RetryAttempts   int           `mapstructure:"retry_attempts" envconfig:"RETRY_ATTEMPTS"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" envconfig:"RETRY_DELAY"`
	MaxAttempts     int           `mapstructure:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	Retention       time.Duration `mapstructure:"retention" envconfig:"RETENTION"`
	HealthPort      int           `mapstructure:"health_port" envconfig:"HEALTH_PORT"`
	BreakerFailures int           `mapstructure:"breaker_failures" envconfig:"BREAKER_FAILURES"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" envconfig:"BREAKER_TIMEOUT"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" envconfig:"LEVEL"`
	Format string `mapstructure:"format" envconfig:"FORMAT"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" envconfig:"ENABLED"`
	Path    string `mapstructure:"path" envconfig:"PATH"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "scheduler")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.channel", "appointments.events")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("jwt.issuer", "")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("rate_limit.distributed", false)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.limit", 600)

	v.SetDefault("scheduling.granularity", 30)
	v.SetDefault("scheduling.default_duration", 60)
	v.SetDefault("scheduling.default_open", "09:00")
	v.SetDefault("scheduling.default_close", "17:00")
	v.SetDefault("scheduling.default_timezone", "UTC")
	v.SetDefault("scheduling.business_cache_ttl", 5*time.Minute)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", time.Second)
	v.SetDefault("outbox.max_attempts", 5)
	v.SetDefault("outbox.retention", 7*24*time.Hour)
	v.SetDefault("outbox.health_port", 8081)
	v.SetDefault("outbox.breaker_failures", 5)
	v.SetDefault("outbox.breaker_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads the config file (path, or config.yaml from the usual search
// paths when path is empty), then applies SCHEDULER_* environment overrides.
// A missing file is not an error when path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/clinic-scheduler")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !stderrors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.JWT.Secret == "" {
		problems = append(problems, "jwt.secret is required")
	}
	if g := c.Scheduling.Granularity; g < 5 || g > 240 {
		problems = append(problems, "scheduling.granularity must be between 5 and 240")
	}
	if d := c.Scheduling.DefaultDuration; d < 15 || d > 480 {
		problems = append(problems, "scheduling.default_duration must be between 15 and 480")
	}
	if hours, err := c.Scheduling.DefaultHours(); err != nil {
		problems = append(problems, "scheduling."+err.Error())
	} else if hours.Open >= hours.Close {
		problems = append(problems, "scheduling.default_open must be before default_close")
	}
	if _, err := c.Scheduling.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("scheduling.default_timezone: %v", err))
	}
	if c.RateLimit.Distributed && !c.Redis.Enabled {
		problems = append(problems, "rate_limit.distributed requires redis.enabled")
	}
	if c.Outbox.BatchSize <= 0 {
		problems = append(problems, "outbox.batch_size must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
