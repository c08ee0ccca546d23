package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// Config is built once at startup and handed to every collaborator.
type Config struct {
	AppPort  int    `mapstructure:"APP_PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	ReplicateAPIToken     string        `mapstructure:"REPLICATE_API_TOKEN"`
	ReplicateAPIURL       string        `mapstructure:"REPLICATE_API_URL"`
	ReplicateModel        string        `mapstructure:"REPLICATE_MODEL"`
	ReplicateMaxTokens    int           `mapstructure:"REPLICATE_MAX_TOKENS"`
	ReplicatePollInterval time.Duration `mapstructure:"REPLICATE_POLL_INTERVAL"`
	ReplicatePollTimeout  time.Duration `mapstructure:"REPLICATE_POLL_TIMEOUT"`

	DBDriver       string `mapstructure:"DB_DRIVER"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         int    `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DatabasePath   string `mapstructure:"DATABASE_PATH"`
	DBMaxIdleConns int    `mapstructure:"DB_MAX_IDLE_CONNS"`

	CORSAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("APP_PORT", 8000)
	v.SetDefault("LOG_LEVEL", "INFO")

	v.SetDefault("REPLICATE_API_TOKEN", "")
	v.SetDefault("REPLICATE_API_URL", "https://api.replicate.com/v1")
	v.SetDefault("REPLICATE_MODEL", "meta/llama-2-7b-chat")
	v.SetDefault("REPLICATE_MAX_TOKENS", 512)
	v.SetDefault("REPLICATE_POLL_INTERVAL", time.Second)
	v.SetDefault("REPLICATE_POLL_TIMEOUT", time.Duration(0))

	v.SetDefault("DB_DRIVER", DriverMySQL)
	v.SetDefault("DB_HOST", "")
	v.SetDefault("DB_PORT", 3306)
	v.SetDefault("DB_USER", "")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "")
	v.SetDefault("DATABASE_PATH", "./data/conversations.db")
	v.SetDefault("DB_MAX_IDLE_CONNS", 0)

	v.SetDefault("CORS_ALLOWED_ORIGINS", []string{"https://369emon.github.io"})

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if used := v.ConfigFileUsed(); used != "" {
		slog.Info("Successfully loaded configuration from file.", "file", used)
	} else {
		slog.Info("Configuration file not found. Using environment variables and defaults.")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports every missing database setting at once. The inference
// token is deliberately not checked here: its absence only fails /chat.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.DBDriver {
	case DriverMySQL:
		if c.DBHost == "" {
			result = multierror.Append(result, errors.New("DB_HOST is required"))
		}
		if c.DBUser == "" {
			result = multierror.Append(result, errors.New("DB_USER is required"))
		}
		if c.DBName == "" {
			result = multierror.Append(result, errors.New("DB_NAME is required"))
		}
	case DriverSQLite:
		if c.DatabasePath == "" {
			result = multierror.Append(result, errors.New("DATABASE_PATH is required"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}

	if c.ReplicatePollInterval <= 0 {
		result = multierror.Append(result, errors.New("REPLICATE_POLL_INTERVAL must be positive"))
	}
	if c.ReplicatePollTimeout < 0 {
		result = multierror.Append(result, errors.New("REPLICATE_POLL_TIMEOUT must not be negative"))
	}

	return result.ErrorOrNil()
}
