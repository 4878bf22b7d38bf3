// Package configpkg provides parsing functionality for environment variables.
package configpkg

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported database drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Environments recognised in GO_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config stores all configuration of the application.
//
// The values are read by viper fron a config file or environement variables.
type Config struct {
	DBDriver          string        `mapstructure:"DB_DRIVER"`
	DBSource          string        `mapstructure:"DB_SOURCE"`
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	ServerAddress     string        `mapstructure:"SERVER_ADDRESS"`
	Environement      string        `mapstructure:"GO_ENV"`
	MaxAttempts       int           `mapstructure:"LEDGER_MAX_ATTEMPTS"`
	LockTimeout       time.Duration `mapstructure:"LEDGER_LOCK_TIMEOUT"`
	RetryBackoff      time.Duration `mapstructure:"LEDGER_RETRY_BACKOFF"`
	KafkaBrokers      string        `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic        string        `mapstructure:"KAFKA_TOPIC"`
}

// Brokers returns the comma separated KafkaBrokers as a list.
func (c Config) Brokers() []string {
	var brokers []string

	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return brokers
}

// Load read configuration from file or environment variables.
//
// A missing app.env is not an error, the environment and defaults are used instead.
func Load(path string) (Config, error) {
	var c Config

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	setDefaults(v)
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return c, err
		}
	}

	err = v.Unmarshal(&c)
	if err != nil {
		return c, err
	}

	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_DRIVER", DriverMemory)
	v.SetDefault("DB_SOURCE", "")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("SERVER_ADDRESS", "0.0.0.0:8080")
	v.SetDefault("GO_ENV", EnvProduction)
	v.SetDefault("LEDGER_MAX_ATTEMPTS", 5)
	v.SetDefault("LEDGER_LOCK_TIMEOUT", 2*time.Second)
	v.SetDefault("LEDGER_RETRY_BACKOFF", 10*time.Millisecond)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "ledger_events")
}
