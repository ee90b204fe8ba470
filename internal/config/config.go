package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	DCS      DCSConfig      `mapstructure:"dcs"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	SMS      SMSConfig      `mapstructure:"sms"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Auth Configuration
type AuthConfig struct {
	Enabled                bool          `mapstructure:"enabled"`
	JWTSecretEnv           string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL         time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL        time.Duration `mapstructure:"refresh_token_ttl"`
	MaxFailedLoginAttempts int           `mapstructure:"max_failed_login_attempts"`
	AccountLockDuration    time.Duration `mapstructure:"account_lock_duration"`
}

// DCSConfig points at the server declaration file. Properties are
// "key=value" entries forming the process-level scope consulted by every
// profile; Filter restricts loading to one server.
type DCSConfig struct {
	ConfigFile string   `mapstructure:"config_file"`
	Filter     string   `mapstructure:"server_filter"`
	Properties []string `mapstructure:"properties"`
}

// PropertyMap splits the "key=value" entries. Keys keep their case, which
// is why they are not modelled as a viper map.
func (d *DCSConfig) PropertyMap() (map[string]string, error) {
	m := make(map[string]string, len(d.Properties))
	for _, entry := range d.Properties {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid dcs property %q: expected key=value", entry)
		}
		m[key] = strings.TrimSpace(value)
	}
	return m, nil
}

type DispatchConfig struct {
	DefaultHost string        `mapstructure:"default_host"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type SMSConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Broker     string        `mapstructure:"broker"`
	ClientID   string        `mapstructure:"client_id"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	Topic      string        `mapstructure:"topic"`
	AckTopic   string        `mapstructure:"ack_topic"`
	QoS        byte          `mapstructure:"qos"`
	Timeout    time.Duration `mapstructure:"timeout"`
	AckTimeout time.Duration `mapstructure:"ack_timeout"`
}

type AuditConfig struct {
	Postgres bool        `mapstructure:"postgres"`
	Log      bool        `mapstructure:"log"`
	Kafka    KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("DCS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")
	v.SetDefault("auth.refresh_token_ttl", "168h")
	v.SetDefault("auth.max_failed_login_attempts", 5)
	v.SetDefault("auth.account_lock_duration", "15m")

	v.SetDefault("dcs.config_file", "configs/dcservers.yaml")

	v.SetDefault("dispatch.default_host", "localhost")
	v.SetDefault("dispatch.timeout", "10s")

	v.SetDefault("sms.client_id", "dcscontrol")
	v.SetDefault("sms.topic", "dcs/sms/outbound")
	v.SetDefault("sms.qos", 1)
	v.SetDefault("sms.timeout", "5s")
	v.SetDefault("sms.ack_timeout", "15s")

	v.SetDefault("audit.postgres", true)
	v.SetDefault("audit.kafka.topic", "dcs.command.audit")
	v.SetDefault("audit.kafka.batch_timeout", "100ms")

	v.SetDefault("log.level", "info")
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

const devSecret = "dev-secret-change-in-production-min-32-chars"

// GetJWTSecret reads the signing secret from the configured environment
// variable, falling back to a development secret.
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		return devSecret
	}
	return secret
}

func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devSecret && len(secret) >= 32
}
