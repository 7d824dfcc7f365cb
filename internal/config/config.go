// Package config loads the worker's runtime configuration from a config
// file and environment variables, with env vars taking precedence so
// deployments can override file settings without editing them.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration for the notification worker.
type Config struct {
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Transport TransportConfig `mapstructure:"transport"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Server    ServerConfig    `mapstructure:"server"`
}

// KafkaConfig configures the broker connection.
type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	GroupID  string   `mapstructure:"group_id"`
	ClientID string   `mapstructure:"client_id"`
}

func (c *KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: at least one broker is required")
	}
	if c.GroupID == "" {
		return errors.New("kafka: group_id is required")
	}
	return nil
}

// WorkerConfig bounds concurrent deliveries.
type WorkerConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

// RetryConfig tunes the delivery retry schedule.
type RetryConfig struct {
	MaxAttempts  int     `mapstructure:"max_attempts"`
	BaseSeconds  float64 `mapstructure:"base_seconds"`
	Multiplier   float64 `mapstructure:"multiplier"`
	MaxDelaySecs float64 `mapstructure:"max_delay_seconds"`
}

// TransportConfig selects and configures the email transport.
type TransportConfig struct {
	// Kind selects the transport: "postmark", "smtp", or "devlog".
	Kind     string         `mapstructure:"kind"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Postmark PostmarkConfig `mapstructure:"postmark"`
}

func (c *TransportConfig) Validate() error {
	switch c.Kind {
	case "smtp":
		if c.SMTP.Host == "" {
			return errors.New("transport: smtp host is required")
		}
		if c.SMTP.From == "" {
			return errors.New("transport: smtp from address is required")
		}
	case "postmark":
		if c.Postmark.ServerToken == "" {
			return errors.New("transport: postmark server_token is required")
		}
		if c.Postmark.SenderEmail == "" {
			return errors.New("transport: postmark sender_email is required")
		}
	case "devlog":
	default:
		return fmt.Errorf("transport: unknown kind %q", c.Kind)
	}
	return nil
}

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// PostmarkConfig configures the Postmark transport.
type PostmarkConfig struct {
	ServerToken  string `mapstructure:"server_token"`
	AccountToken string `mapstructure:"account_token"`
	SenderEmail  string `mapstructure:"sender_email"`
	ReplyTo      string `mapstructure:"reply_to"`
}

// RedisConfig configures the shared idempotency guard. An empty URL selects
// the in-process guard, which is only safe for single-instance deployments.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// PostgresConfig configures delivery record storage.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ServerConfig holds deployment-wide values baked into rendered messages.
type ServerConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	SupportEmail string `mapstructure:"support_email"`
}

func (c *ServerConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("server: base_url is required")
	}
	return nil
}

// Load reads configuration from the given file (optional) and the
// environment. Environment variables use the MAILCOURIER_ prefix with
// underscores, e.g. MAILCOURIER_KAFKA_GROUP_ID.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MAILCOURIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for startup-blocking mistakes.
func (c *Config) Validate() error {
	if err := c.Kafka.Validate(); err != nil {
		return err
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if c.Worker.MaxConcurrency < 1 {
		return errors.New("worker: max_concurrency must be at least 1")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry: max_attempts must be at least 1")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "mailcourier-workers")
	v.SetDefault("kafka.client_id", "mailcourier")
	v.SetDefault("worker.max_concurrency", 8)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_seconds", 1.0)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_delay_seconds", 60.0)
	v.SetDefault("transport.kind", "devlog")
	v.SetDefault("server.base_url", "http://localhost:8000")
	v.SetDefault("server.support_email", "support@example.com")
}
