package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Log       LogConfig
	Tracing   TracingConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Schedule  ScheduleConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Worker    WorkerConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Version     string
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver             string
	Host               string
	Port               int
	Name               string
	User               string
	Password           string
	SSLMode            string
	Path               string // sqlite only
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	SlowQueryThreshold time.Duration
}

func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
}

type LogConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type TracingConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         time.Duration
}

type RateLimitConfig struct {
	// Per client IP
	RequestsPerSecond float64
	BurstSize         int
	// Idle limiters are evicted after this long
	IdleTTL time.Duration
}

type ScheduleConfig struct {
	// IANA zone the center operates in; calendar days and business hours are local to it.
	Timezone           string
	SlotMinutes        int
	CancelledRetention time.Duration
	NoShowGrace        time.Duration
}

// Location resolves Timezone. validate() guarantees it loads.
func (s ScheduleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type CacheConfig struct {
	// Driver is "memory" or "redis".
	Driver          string
	TTL             time.Duration
	JanitorInterval time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	Topic      string
	BufferSize int
}

type WorkerConfig struct {
	// Enabled marks a deployment that runs cmd/worker next to the API. Both
	// processes must then read it, so slot caches live in shared redis.
	Enabled     bool
	Concurrency int
	CleanupCron string
	NoShowCron  string
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Name:        v.GetString("APP_NAME"),
			Environment: v.GetString("APP_ENV"),
			Version:     v.GetString("APP_VERSION"),
		},
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("SERVER_IDLE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Driver:             v.GetString("DB_DRIVER"),
			Host:               v.GetString("DB_HOST"),
			Port:               v.GetInt("DB_PORT"),
			Name:               v.GetString("DB_NAME"),
			User:               v.GetString("DB_USER"),
			Password:           v.GetString("DB_PASSWORD"),
			SSLMode:            v.GetString("DB_SSLMODE"),
			Path:               v.GetString("DB_PATH"),
			MaxOpenConns:       v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:       v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime:    v.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime:    v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
			SlowQueryThreshold: v.GetDuration("DB_SLOW_QUERY_THRESHOLD"),
		},
		JWT: JWTConfig{
			Secret:          v.GetString("JWT_SECRET"),
			AccessTokenTTL:  v.GetDuration("JWT_ACCESS_TTL"),
			RefreshTokenTTL: v.GetDuration("JWT_REFRESH_TTL"),
			Issuer:          v.GetString("JWT_ISSUER"),
		},
		Log: LogConfig{
			Level:      v.GetString("LOG_LEVEL"),
			Format:     v.GetString("LOG_FORMAT"),
			OutputPath: v.GetString("LOG_OUTPUT"),
		},
		Tracing: TracingConfig{
			Enabled:      v.GetBool("TRACING_ENABLED"),
			ServiceName:  v.GetString("TRACING_SERVICE_NAME"),
			OTLPEndpoint: v.GetString("OTLP_ENDPOINT"),
			SampleRate:   v.GetFloat64("TRACING_SAMPLE_RATE"),
		},
		CORS: CORSConfig{
			AllowedOrigins: stringList(v, "CORS_ALLOWED_ORIGINS"),
			AllowedMethods: stringList(v, "CORS_ALLOWED_METHODS"),
			AllowedHeaders: stringList(v, "CORS_ALLOWED_HEADERS"),
			MaxAge:         v.GetDuration("CORS_MAX_AGE"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: v.GetFloat64("RATE_LIMIT_RPS"),
			BurstSize:         v.GetInt("RATE_LIMIT_BURST"),
			IdleTTL:           v.GetDuration("RATE_LIMIT_IDLE_TTL"),
		},
		Schedule: ScheduleConfig{
			Timezone:           v.GetString("SCHEDULE_TIMEZONE"),
			SlotMinutes:        v.GetInt("SCHEDULE_SLOT_MINUTES"),
			CancelledRetention: v.GetDuration("SCHEDULE_CANCELLED_RETENTION"),
			NoShowGrace:        v.GetDuration("SCHEDULE_NO_SHOW_GRACE"),
		},
		Cache: CacheConfig{
			Driver:          v.GetString("CACHE_DRIVER"),
			TTL:             v.GetDuration("CACHE_TTL"),
			JanitorInterval: v.GetDuration("CACHE_JANITOR_INTERVAL"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Kafka: KafkaConfig{
			Enabled:    v.GetBool("KAFKA_ENABLED"),
			Brokers:    stringList(v, "KAFKA_BROKERS"),
			Topic:      v.GetString("KAFKA_TOPIC"),
			BufferSize: v.GetInt("KAFKA_BUFFER_SIZE"),
		},
		Worker: WorkerConfig{
			Enabled:     v.GetBool("WORKER_ENABLED"),
			Concurrency: v.GetInt("WORKER_CONCURRENCY"),
			CleanupCron: v.GetString("WORKER_CLEANUP_CRON"),
			NoShowCron:  v.GetString("WORKER_NO_SHOW_CRON"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"APP_NAME":    "ashram-api",
		"APP_ENV":     "development",
		"APP_VERSION": "0.0.0",

		"SERVER_HOST":             "0.0.0.0",
		"SERVER_PORT":             8080,
		"SERVER_READ_TIMEOUT":     "15s",
		"SERVER_WRITE_TIMEOUT":    "15s",
		"SERVER_IDLE_TIMEOUT":     "60s",
		"SERVER_SHUTDOWN_TIMEOUT": "30s",

		"DB_DRIVER":               "postgres",
		"DB_HOST":                 "localhost",
		"DB_PORT":                 5432,
		"DB_NAME":                 "ashram",
		"DB_USER":                 "ashram",
		"DB_PASSWORD":             "",
		"DB_SSLMODE":              "require",
		"DB_PATH":                 "ashram.db",
		"DB_MAX_OPEN_CONNS":       25,
		"DB_MAX_IDLE_CONNS":       10,
		"DB_CONN_MAX_LIFETIME":    "30m",
		"DB_CONN_MAX_IDLE_TIME":   "5m",
		"DB_SLOW_QUERY_THRESHOLD": "200ms",

		"JWT_SECRET":      "",
		"JWT_ACCESS_TTL":  "15m",
		"JWT_REFRESH_TTL": "168h",
		"JWT_ISSUER":      "ashram-auth",

		"LOG_LEVEL":  "info",
		"LOG_FORMAT": "json",
		"LOG_OUTPUT": "stdout",

		"TRACING_ENABLED":      false,
		"TRACING_SERVICE_NAME": "ashram-api",
		"OTLP_ENDPOINT":        "otel-collector:4318",
		"TRACING_SAMPLE_RATE":  0.1,

		"CORS_ALLOWED_ORIGINS": "http://localhost:3000",
		"CORS_ALLOWED_METHODS": "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		"CORS_ALLOWED_HEADERS": "Authorization,Content-Type,X-Request-ID",
		"CORS_MAX_AGE":         "12h",

		"RATE_LIMIT_RPS":      20,
		"RATE_LIMIT_BURST":    40,
		"RATE_LIMIT_IDLE_TTL": "10m",

		"SCHEDULE_TIMEZONE":            "Asia/Kolkata",
		"SCHEDULE_SLOT_MINUTES":        30,
		"SCHEDULE_CANCELLED_RETENTION": "2160h",
		"SCHEDULE_NO_SHOW_GRACE":       "30m",

		"CACHE_DRIVER":           "memory",
		"CACHE_TTL":              "5m",
		"CACHE_JANITOR_INTERVAL": "1m",

		"REDIS_ADDR":     "localhost:6379",
		"REDIS_PASSWORD": "",
		"REDIS_DB":       0,

		"KAFKA_ENABLED":     false,
		"KAFKA_BROKERS":     "localhost:9092",
		"KAFKA_TOPIC":       "ashram.appointments",
		"KAFKA_BUFFER_SIZE": 1024,

		"WORKER_ENABLED":      false,
		"WORKER_CONCURRENCY":  5,
		"WORKER_CLEANUP_CRON": "0 3 * * *",
		"WORKER_NO_SHOW_CRON": "*/15 * * * *",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// validate enforces production security requirements and schedule sanity.
func validate(cfg *Config) error {
	var errs []string

	if cfg.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(cfg.JWT.Secret) < 32 && cfg.App.Environment == "production" {
		errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
	}

	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.Password == "" && cfg.App.Environment != "development" {
			errs = append(errs, "DB_PASSWORD is required in non-development environments")
		}
		if cfg.Database.SSLMode == "disable" && cfg.App.Environment == "production" {
			errs = append(errs, "DB_SSLMODE=disable is not allowed in production")
		}
	case "sqlite":
		if cfg.App.Environment == "production" {
			errs = append(errs, "DB_DRIVER=sqlite is not allowed in production")
		}
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER %q is not supported", cfg.Database.Driver))
	}

	if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("SCHEDULE_TIMEZONE %q is not a valid zone", cfg.Schedule.Timezone))
	}
	if cfg.Schedule.SlotMinutes <= 0 || cfg.Schedule.SlotMinutes > 540 {
		errs = append(errs, "SCHEDULE_SLOT_MINUTES must be between 1 and 540")
	}

	if cfg.Cache.Driver != "memory" && cfg.Cache.Driver != "redis" {
		errs = append(errs, fmt.Sprintf("CACHE_DRIVER %q is not supported", cfg.Cache.Driver))
	}
	// Worker writes never reach another process's memory store.
	if cfg.Worker.Enabled && cfg.Cache.Driver != "redis" {
		errs = append(errs, "CACHE_DRIVER=redis is required when WORKER_ENABLED=true")
	}

	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		errs = append(errs, "KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// stringList reads comma separated env values as well as yaml lists.
func stringList(v *viper.Viper, key string) []string {
	var parts []string
	switch raw := v.Get(key).(type) {
	case string:
		parts = strings.Split(raw, ",")
	default:
		parts = v.GetStringSlice(key)
	}

	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	return result
}
