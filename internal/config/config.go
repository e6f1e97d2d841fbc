package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig contains connection options for PostgreSQL, including the
// bounded readiness-retry behaviour applied at startup.
type DatabaseConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Name       string        `mapstructure:"name"`
	User       string        `mapstructure:"user"`
	Password   string        `mapstructure:"password"`
	SSLMode    string        `mapstructure:"sslmode"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// AuthConfig contains the shared JWT signing secret and token lifetime.
// The secret may be empty at load time; signing a token then fails with a
// configuration error instead of the loader failing.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// RedisConfig contains Redis connection settings (rate limiting, task queue).
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
}

// AgentConfig selects and configures the generative-AI agent transport.
// Provider is one of "bedrock" or "azure".
type AgentConfig struct {
	Provider string `mapstructure:"provider"`

	BedrockAgentID      string `mapstructure:"bedrock_agent_id"`
	BedrockAgentAliasID string `mapstructure:"bedrock_agent_alias_id"`
	AWSRegion           string `mapstructure:"aws_region"`

	AzureEndpoint   string `mapstructure:"azure_endpoint"`
	AzureDeployment string `mapstructure:"azure_deployment"`
	AzureAPIKey     string `mapstructure:"azure_api_key"`
}

// StripeConfig contains payment API credentials.
type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// ClamdConfig contains the optional virus-scanner address. Empty disables
// scanning of uploaded scenario files.
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Addr builds the host:port address for Redis clients.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 3000)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "coachsim")
	v.SetDefault("database.user", "coachsim")
	v.SetDefault("database.password", "coachsim")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.retries", 5)
	v.SetDefault("database.retry_delay", 5*time.Second)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "coachsim")
	v.SetDefault("agent.provider", "bedrock")
	v.SetDefault("agent.aws_region", "us-east-1")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                     "PORT",
		"database.host":                "DATABASE_HOST",
		"database.port":                "DATABASE_PORT",
		"database.name":                "DATABASE_NAME",
		"database.user":                "DATABASE_USERNAME",
		"database.password":            "DATABASE_PASSWORD",
		"database.sslmode":             "DATABASE_SSLMODE",
		"database.retries":             "DATABASE_RETRIES",
		"database.retry_delay":         "DATABASE_RETRY_DELAY",
		"auth.jwt_secret":              "JWT_SECRET",
		"auth.token_ttl":               "JWT_TOKEN_TTL",
		"redis.host":                   "REDIS_HOST",
		"redis.port":                   "REDIS_PORT",
		"minio.endpoint":               "MINIO_ENDPOINT",
		"minio.access_key_id":          "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":      "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                "MINIO_USE_SSL",
		"minio.bucket":                 "MINIO_BUCKET",
		"minio.region":                 "MINIO_REGION",
		"agent.provider":               "AGENT_PROVIDER",
		"agent.bedrock_agent_id":       "BEDROCK_AGENT_ID",
		"agent.bedrock_agent_alias_id": "BEDROCK_AGENT_ALIAS_ID",
		"agent.aws_region":             "AWS_REGION",
		"agent.azure_endpoint":         "AZURE_OPENAI_ENDPOINT",
		"agent.azure_deployment":       "AZURE_OPENAI_DEPLOYMENT",
		"agent.azure_api_key":          "AZURE_OPENAI_API_KEY",
		"stripe.secret_key":            "STRIPE_SECRET_KEY",
		"stripe.webhook_secret":        "STRIPE_WEBHOOK_SECRET",
		"clamd.addr":                   "CLAMD_ADDR",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Database.Retries < 0 {
		return errors.New("database retries must not be negative")
	}
	if cfg.Database.RetryDelay < 0 {
		return errors.New("database retry delay must not be negative")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Agent.Provider)) {
	case "bedrock", "azure":
	default:
		return fmt.Errorf("invalid agent provider %q", cfg.Agent.Provider)
	}
	return nil
}
