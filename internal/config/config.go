package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `env:",prefix=SERVER_"`
	Database  DatabaseConfig  `env:",prefix=DB_"`
	Scheduler SchedulerConfig `env:",prefix=SCHEDULER_"`
	Telephony TelephonyConfig `env:",prefix=TELEPHONY_"`
	Queue     QueueConfig     `env:",prefix=QUEUE_"`
	Contacts  ContactsConfig  `env:",prefix=CONTACTS_"`
	App       AppConfig       `env:",prefix=APP_"`
}

// ServerConfig holds HTTP control surface configuration
type ServerConfig struct {
	Port         string        `env:"PORT,default=8080"`
	Host         string        `env:"HOST,default=0.0.0.0"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=30s"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=voiceagents"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
	MaxConns int    `env:"MAX_CONNS,default=25"`
	MinConns int    `env:"MIN_CONNS,default=5"`
}

// SchedulerConfig controls the campaign loop.
type SchedulerConfig struct {
	TickInterval    time.Duration `env:"TICK_INTERVAL,default=5s"`
	InterCallDelay  time.Duration `env:"INTER_CALL_DELAY,default=2s"`
	Workers         int           `env:"WORKERS,default=4"`
	LeaseTTL        time.Duration `env:"LEASE_TTL,default=60s"`
	MaxBackoff      time.Duration `env:"MAX_BACKOFF,default=2m"`
	DefaultTimezone string        `env:"DEFAULT_TIMEZONE,default=UTC"`
}

// TelephonyConfig points at the voice-agent provider API.
type TelephonyConfig struct {
	BaseURL           string        `env:"BASE_URL,default=http://localhost:7880"`
	APIKey            string        `env:"API_KEY"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND,default=5"`
	Burst             int           `env:"BURST,default=1"`
	Timeout           time.Duration `env:"TIMEOUT,default=15s"`
	DefaultRegion     string        `env:"DEFAULT_REGION,default=US"`
}

// QueueConfig selects the call-event transport. An empty AMQPURL keeps events in process.
type QueueConfig struct {
	AMQPURL         string `env:"AMQP_URL"`
	CallEventsQueue string `env:"CALL_EVENTS,default=call_status_events"`
	MaxRetries      int    `env:"MAX_RETRIES,default=3"`
}

// ContactsConfig locates CSV-backed contact sources.
type ContactsConfig struct {
	CSVDir string `env:"CSV_DIR,default=data/contacts"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
}

// Load reads an optional .env file, then environment variables.
func Load(ctx context.Context) (*Config, error) {
	// .env is optional; the environment always wins.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler tick interval must be positive")
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler workers must be at least 1")
	}
	if _, err := time.LoadLocation(c.Scheduler.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid default timezone %q: %w", c.Scheduler.DefaultTimezone, err)
	}
	return nil
}

// GetDatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Location returns the default campaign time zone.
func (c *SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction selects JSON logging.
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
