package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	OpenAPISpecPath   string        `mapstructure:"openapi_spec_path"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	AccessTokenSecret    string        `mapstructure:"access_token_secret"`
	RefreshTokenSecret   string        `mapstructure:"refresh_token_secret"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration"`
	BCryptCost           int           `mapstructure:"bcrypt_cost"`
}

// NotificationConfig drives the out-of-band email delivery worker. In-app
// notifications are always written; email jobs are only enqueued when
// EmailEnabled is set.
type NotificationConfig struct {
	EmailEnabled  bool          `mapstructure:"email_enabled"`
	EmailAPIURL   string        `mapstructure:"email_api_url"`
	APIKey        string        `mapstructure:"api_key"`
	SenderAddress string        `mapstructure:"sender_address"`
	MaxWorkers    int           `mapstructure:"max_workers"`
	JobQueueSize  int           `mapstructure:"job_queue_size"`
	MaxRetries    int           `mapstructure:"max_retries"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- ENV LOADER -----------------

// LoadConfigFromEnv builds configuration from environment variables, used for
// container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("SERVER_ALLOWED_ORIGINS", "*"),
			OpenAPISpecPath:   getEnv("SERVER_OPENAPI_SPEC_PATH", "api/openapi.yml"),
			ReadHeaderTimeout: getEnvAsDuration("SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			LockTimeout:     getEnvAsDuration("DB_LOCK_TIMEOUT", 5*time.Second),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Security: SecurityConfig{
			AccessTokenSecret:    getEnv("AUTH_ACCESS_TOKEN_SECRET", ""),
			RefreshTokenSecret:   getEnv("AUTH_REFRESH_TOKEN_SECRET", ""),
			AccessTokenDuration:  getEnvAsDuration("AUTH_ACCESS_TOKEN_DURATION", 15*time.Minute),
			RefreshTokenDuration: getEnvAsDuration("AUTH_REFRESH_TOKEN_DURATION", 7*24*time.Hour),
			BCryptCost:           getEnvAsInt("AUTH_BCRYPT_COST", 10),
		},
		Notification: NotificationConfig{
			EmailEnabled:  getEnv("NOTIFICATION_EMAIL_ENABLED", "false") == "true",
			EmailAPIURL:   getEnv("NOTIFICATION_EMAIL_API_URL", ""),
			APIKey:        getEnv("NOTIFICATION_API_KEY", ""),
			SenderAddress: getEnv("NOTIFICATION_SENDER_ADDRESS", "no-reply@procurex.local"),
			MaxWorkers:    getEnvAsInt("NOTIFICATION_MAX_WORKERS", 4),
			JobQueueSize:  getEnvAsInt("NOTIFICATION_JOB_QUEUE_SIZE", 100),
			MaxRetries:    getEnvAsInt("NOTIFICATION_MAX_RETRIES", 5),
			PollInterval:  getEnvAsDuration("NOTIFICATION_POLL_INTERVAL", 30*time.Second),
			SendTimeout:   getEnvAsDuration("NOTIFICATION_SEND_TIMEOUT", 10*time.Second),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Notification.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("notification config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if c.AccessTokenSecret == "" || c.RefreshTokenSecret == "" {
		return errors.New("token secrets are required")
	}
	if len(c.AccessTokenSecret) < 32 || len(c.RefreshTokenSecret) < 32 {
		return errors.New("token secrets must be at least 32 characters")
	}
	if c.BCryptCost < 10 || c.BCryptCost > 15 {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	return nil
}

func (c *NotificationConfig) Validate() error {
	if c.EmailEnabled && c.EmailAPIURL == "" {
		return errors.New("email_api_url is required when email is enabled")
	}
	if c.MaxRetries < 0 {
		return errors.New("max_retries cannot be negative")
	}
	return nil
}
