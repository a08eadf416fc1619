package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the off-ledger services
type Config struct {
	// Hyperledger Fabric gateway configuration
	Fabric FabricConfig `mapstructure:"fabric"`

	// Mirror database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Event mirror configuration
	Mirror MirrorConfig `mapstructure:"mirror"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
}

// FabricConfig holds the gateway connection and client identity
type FabricConfig struct {
	ConnectionProfile string `mapstructure:"connection_profile"`
	WalletPath        string `mapstructure:"wallet_path"`
	IdentityLabel     string `mapstructure:"identity_label"`
	MSPID             string `mapstructure:"msp_id"`
	CertPath          string `mapstructure:"cert_path"`
	KeyPath           string `mapstructure:"key_path"`
	ChannelName       string `mapstructure:"channel_name"`
	ChaincodeName     string `mapstructure:"chaincode_name"`
	DiscoveryAsLocal  bool   `mapstructure:"discovery_as_localhost"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}

// Timeout returns the per-call deadline
func (f FabricConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// MirrorConfig controls the event syncer and reconciler
type MirrorConfig struct {
	CheckpointPath    string `mapstructure:"checkpoint_path"`
	ReconcileInterval int    `mapstructure:"reconcile_interval"`
	EventFilter       string `mapstructure:"event_filter"`
}

// ReconcileEvery returns the periodic reconcile interval
func (m MirrorConfig) ReconcileEvery() time.Duration {
	return time.Duration(m.ReconcileInterval) * time.Second
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	MetricsPath string        `mapstructure:"metrics_path"`
	HealthPath  string        `mapstructure:"health_path"`
	Tracing     TracingConfig `mapstructure:"tracing"`

	// HS256 secret for operator tokens; the reconcile endpoint is off when empty
	OperatorTokenSecret string `mapstructure:"operator_token_secret"`
}

// TracingConfig holds the Jaeger exporter settings
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRate     float64 `mapstructure:"sample_rate"`
	Environment    string  `mapstructure:"environment"`
}

// Load loads configuration from config.yaml in the default search paths and
// the environment
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from an explicit file, falling back to the
// default search paths when path is empty
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/provenance")
	}

	setDefaults(v)

	v.SetEnvPrefix("PROVENANCE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Fabric defaults
	v.SetDefault("fabric.connection_profile", "./connection-org1.yaml")
	v.SetDefault("fabric.wallet_path", "./wallet")
	v.SetDefault("fabric.identity_label", "appUser")
	v.SetDefault("fabric.msp_id", "Org1MSP")
	v.SetDefault("fabric.channel_name", "healthcare")
	v.SetDefault("fabric.chaincode_name", "record-provenance")
	v.SetDefault("fabric.discovery_as_localhost", false)
	v.SetDefault("fabric.timeout_seconds", 30)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "provenance")
	v.SetDefault("database.user", "provenance")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)

	// Mirror defaults
	v.SetDefault("mirror.checkpoint_path", "./data/checkpoint")
	v.SetDefault("mirror.reconcile_interval", 900)
	v.SetDefault("mirror.event_filter", ".*")

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.host", "0.0.0.0")
	v.SetDefault("monitoring.port", 9090)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.health_path", "/health")
	v.SetDefault("monitoring.tracing.enabled", false)
	v.SetDefault("monitoring.tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("monitoring.tracing.sample_rate", 0.1)
	v.SetDefault("monitoring.tracing.environment", "development")

	// Logging defaults
	v.SetDefault("log_level", "info")
}

// overrideWithEnv applies the conventional unprefixed variables
func overrideWithEnv(config *Config) {
	if password := os.Getenv("DATABASE_PASSWORD"); password != "" {
		config.Database.Password = password
	}

	if secret := os.Getenv("OPERATOR_TOKEN_SECRET"); secret != "" {
		config.Monitoring.OperatorTokenSecret = secret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Fabric.ChannelName == "" {
		return fmt.Errorf("fabric channel name is required")
	}

	if config.Fabric.ChaincodeName == "" {
		return fmt.Errorf("fabric chaincode name is required")
	}

	if config.Fabric.TimeoutSeconds <= 0 {
		return fmt.Errorf("invalid fabric timeout: %d", config.Fabric.TimeoutSeconds)
	}

	if config.Monitoring.Port <= 0 || config.Monitoring.Port > 65535 {
		return fmt.Errorf("invalid monitoring port: %d", config.Monitoring.Port)
	}

	if config.Mirror.ReconcileInterval < 0 {
		return fmt.Errorf("invalid reconcile interval: %d", config.Mirror.ReconcileInterval)
	}

	if rate := config.Monitoring.Tracing.SampleRate; rate < 0 || rate > 1 {
		return fmt.Errorf("invalid tracing sample rate: %v", rate)
	}

	return nil
}
