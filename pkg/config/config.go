package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Settings holds the application configuration, loaded once from the
// process environment and immutable afterwards.
type Settings struct {
	Port     int    `envconfig:"PORT" default:"3000"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`
	HTTPMode bool   `envconfig:"HTTP_MODE" default:"false"`

	Slack    SlackSettings
	NIM      NIMSettings
	Database DatabaseSettings
	Redis    RedisSettings
	AI       AISettings

	RateLimit RateLimitSettings

	AnalyticsEnabled bool   `envconfig:"ANALYTICS_ENABLED" default:"false"`
	SentryDSN        string `envconfig:"SENTRY_DSN"`
}

// SlackSettings holds Slack credentials
type SlackSettings struct {
	BotToken      string `envconfig:"SLACK_BOT_TOKEN" required:"true"`
	SigningSecret string `envconfig:"SLACK_SIGNING_SECRET" required:"true"`
	AppToken      string `envconfig:"SLACK_APP_TOKEN"`
}

// SocketMode reports whether the bot should connect over socket mode,
// derived from the presence of an app-level token.
func (s SlackSettings) SocketMode() bool { return s.AppToken != "" }

// NIMSettings holds NVIDIA NIM inference API settings
type NIMSettings struct {
	APIKey     string        `envconfig:"NVIDIA_NIM_API_KEY" required:"true"`
	Endpoint   string        `envconfig:"NVIDIA_NIM_ENDPOINT" required:"true"`
	Model      string        `envconfig:"NVIDIA_NIM_MODEL" default:"llama-2-70b-chat"`
	Timeout    time.Duration `envconfig:"NVIDIA_NIM_TIMEOUT" default:"30s"`
	MaxRetries int           `envconfig:"NVIDIA_NIM_MAX_RETRIES" default:"3"`
}

// DatabaseSettings holds datastore connection info. A single DATABASE_URL
// takes precedence; otherwise the discrete postgres fields compose a DSN.
// Mongo fields are carried for deployments that use it.
type DatabaseSettings struct {
	URL string `envconfig:"DATABASE_URL"`

	PostgresHost     string `envconfig:"DB_POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"DB_POSTGRES_PORT" default:"5432"`
	PostgresDB       string `envconfig:"DB_POSTGRES_DB" default:"nim_slack_bot"`
	PostgresUser     string `envconfig:"DB_POSTGRES_USER" default:"postgres"`
	PostgresPassword string `envconfig:"DB_POSTGRES_PASSWORD"`
	PostgresSSL      bool   `envconfig:"DB_POSTGRES_SSL" default:"false"`

	MongoHost     string `envconfig:"DB_MONGO_HOST" default:"localhost"`
	MongoPort     int    `envconfig:"DB_MONGO_PORT" default:"27017"`
	MongoDB       string `envconfig:"DB_MONGO_DB" default:"nim_slack_bot"`
	MongoUser     string `envconfig:"DB_MONGO_USER"`
	MongoPassword string `envconfig:"DB_MONGO_PASSWORD"`
}

// DSN returns the connection string for the configured SQL store, or an
// empty string when no store is configured. DATABASE_URL wins; discrete
// postgres fields are used only when a password was provided, so the
// defaults alone never trigger a connection attempt.
func (d DatabaseSettings) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	if d.PostgresPassword == "" {
		return ""
	}
	sslMode := "disable"
	if d.PostgresSSL {
		sslMode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.PostgresUser, d.PostgresPassword, d.PostgresHost, d.PostgresPort, d.PostgresDB, sslMode)
}

// RedisSettings holds cache connection settings
type RedisSettings struct {
	URL      string        `envconfig:"REDIS_URL"`
	Host     string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int           `envconfig:"REDIS_PORT" default:"6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	TTL      time.Duration `envconfig:"REDIS_TTL" default:"3600s"`
}

// Addr returns the host:port address for the cache when no URL is set
func (r RedisSettings) Addr() string { return fmt.Sprintf("%s:%d", r.Host, r.Port) }

// AISettings holds domain limits for schedule generation
type AISettings struct {
	MaxTasksPerSchedule  int           `envconfig:"MAX_TASKS_PER_SCHEDULE" default:"20"`
	DefaultBreakDuration time.Duration `envconfig:"DEFAULT_BREAK_DURATION" default:"15m"`
	MaxScheduleDuration  time.Duration `envconfig:"MAX_SCHEDULE_DURATION" default:"12h"`

	// per-task-type bounds, fixed at load time
	TaskTypes map[string]TaskTypeLimits `ignored:"true"`
}

// TaskTypeLimits bounds a single task category
type TaskTypeLimits struct {
	MinDuration    time.Duration
	MaxDuration    time.Duration
	BufferTime     time.Duration
	PreferredTimes []string
}

// RateLimitSettings holds per-user request thresholds
type RateLimitSettings struct {
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `envconfig:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"60"`
	RequestsPerHour   int  `envconfig:"RATE_LIMIT_REQUESTS_PER_HOUR" default:"1000"`
}

// valid log levels, normalized to upper case on load
var validLogLevels = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

// Load reads configuration from environment variables, optionally
// pre-populated from an env file. Missing required credentials, bad type
// coercions and unknown log levels all fail here, before anything else
// is constructed.
func Load(envFile string) (*Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load() // best effort for local development
	}

	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	s.AI.TaskTypes = defaultTaskTypes()

	if err := validate(&s); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &s, nil
}

// validate checks configuration for correctness
func validate(s *Settings) error {
	s.LogLevel = strings.ToUpper(s.LogLevel)
	valid := false
	for _, lvl := range validLogLevels {
		if s.LogLevel == lvl {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("LOG_LEVEL must be one of %v, got %q", validLogLevels, s.LogLevel)
	}

	// envconfig catches unset required vars, this catches set-but-empty ones
	for name, val := range map[string]string{
		"SLACK_BOT_TOKEN":      s.Slack.BotToken,
		"SLACK_SIGNING_SECRET": s.Slack.SigningSecret,
		"NVIDIA_NIM_API_KEY":   s.NIM.APIKey,
		"NVIDIA_NIM_ENDPOINT":  s.NIM.Endpoint,
	} {
		if val == "" {
			return fmt.Errorf("%s is required and must be non-empty", name)
		}
	}

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", s.Port)
	}
	if s.NIM.Timeout < time.Second {
		return fmt.Errorf("NVIDIA_NIM_TIMEOUT must be at least 1 second")
	}
	if s.NIM.MaxRetries < 0 {
		return fmt.Errorf("NVIDIA_NIM_MAX_RETRIES must be non-negative")
	}
	if s.RateLimit.Enabled {
		if s.RateLimit.RequestsPerMinute < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS_PER_MINUTE must be at least 1")
		}
		if s.RateLimit.RequestsPerHour < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS_PER_HOUR must be at least 1")
		}
	}
	return nil
}

// defaultTaskTypes returns the built-in per-category duration bounds
func defaultTaskTypes() map[string]TaskTypeLimits {
	return map[string]TaskTypeLimits{
		"meeting": {
			MinDuration: 15 * time.Minute,
			MaxDuration: 120 * time.Minute,
			BufferTime:  5 * time.Minute,
		},
		"learning": {
			MinDuration:    30 * time.Minute,
			MaxDuration:    180 * time.Minute,
			BufferTime:     10 * time.Minute,
			PreferredTimes: []string{"09:00", "10:00", "14:00"}, // optimal focus hours
		},
		"general": {
			MinDuration: 15 * time.Minute,
			MaxDuration: 240 * time.Minute,
			BufferTime:  5 * time.Minute,
		},
	}
}

// ListenAddr returns the address the serving mode binds to
func (s *Settings) ListenAddr() string { return fmt.Sprintf(":%d", s.Port) }

// GetSlackConfig returns Slack credentials
func (s *Settings) GetSlackConfig() SlackSettings { return s.Slack }

// GetNIMConfig returns inference API settings
func (s *Settings) GetNIMConfig() NIMSettings { return s.NIM }

// GetDatabaseConfig returns datastore settings
func (s *Settings) GetDatabaseConfig() DatabaseSettings { return s.Database }

// GetRedisConfig returns cache settings
func (s *Settings) GetRedisConfig() RedisSettings { return s.Redis }

// GetAIConfig returns schedule generation limits
func (s *Settings) GetAIConfig() AISettings { return s.AI }
