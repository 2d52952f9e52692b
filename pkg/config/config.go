// Package config provides configuration handling for stagehand.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Queue configuration
	Queue QueueConfig `json:"queue"`

	// Auth configuration
	Auth AuthConfig `json:"auth"`

	// Governance configuration
	Governance GovernanceConfig `json:"governance"`

	// Boundary configuration
	Boundary BoundaryConfig `json:"boundary"`

	// LLM configuration
	LLM LLMConfig `json:"llm"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Host to bind to
	Host string `json:"host"`

	// Port to listen on
	Port int `json:"port"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// Type of storage to use
	Type string `json:"type"` // "memory", "dynamodb", "postgres"

	// DynamoDB configuration
	DynamoDB DynamoDBConfig `json:"dynamodb"`

	// PostgreSQL configuration
	Postgres PostgresConfig `json:"postgres"`
}

// DynamoDBConfig contains DynamoDB settings
type DynamoDBConfig struct {
	// Region is the AWS region
	Region string `json:"region"`

	// Endpoint is the DynamoDB endpoint (for local development)
	Endpoint string `json:"endpoint"`

	// TablePrefix is the prefix for all tables
	TablePrefix string `json:"table_prefix"`
}

// PostgresConfig contains PostgreSQL settings
type PostgresConfig struct {
	// Host is the database host
	Host string `json:"host"`

	// Port is the database port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// User is the database user
	User string `json:"user"`

	// Password is the database password
	Password string `json:"password"`

	// SSLMode is the SSL mode
	SSLMode string `json:"ssl_mode"`
}

// QueueConfig contains job queue settings
type QueueConfig struct {
	// Type of queue to use
	Type string `json:"type"` // "memory", "redis"

	// Redis configuration
	Redis RedisConfig `json:"redis"`
}

// RedisConfig contains redis settings
type RedisConfig struct {
	// Addr is the redis host:port
	Addr string `json:"addr"`

	// Password authenticates when non-empty
	Password string `json:"password"`

	// DB selects the redis database
	DB int `json:"db"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	// JWTSecret is the secret for signing JWT tokens
	JWTSecret string `json:"jwt_secret"`

	// TokenExpiration is the token expiration time in hours
	TokenExpiration int `json:"token_expiration"`

	// BootstrapAdmin creates a default admin account on first start
	BootstrapAdmin bool `json:"bootstrap_admin"`

	// BootstrapAdminPassword is the initial admin password
	BootstrapAdminPassword string `json:"bootstrap_admin_password"`
}

// GovernanceConfig contains governance settings
type GovernanceConfig struct {
	// ApprovalMode is "off" or "untrusted_only"
	ApprovalMode string `json:"approval_mode"`

	// ApprovalTTLMinutes is how long approval requests stay consumable
	ApprovalTTLMinutes int `json:"approval_ttl_minutes"`
}

// BoundaryConfig contains tool execution boundary settings
type BoundaryConfig struct {
	// AllowedDomains restricts outbound hostnames when non-empty
	AllowedDomains []string `json:"allowed_domains"`

	// DeniedDomains always blocks matching hostnames
	DeniedDomains []string `json:"denied_domains"`

	// WorkspaceRoot anchors all filesystem access
	WorkspaceRoot string `json:"workspace_root"`

	// AllowedPaths lists workspace-relative directories tools may touch
	AllowedPaths []string `json:"allowed_paths"`

	// DefaultTimeoutMS bounds tool execution when the input supplies none
	DefaultTimeoutMS int `json:"default_timeout_ms"`
}

// DefaultTimeout returns the boundary timeout as a duration
func (c BoundaryConfig) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutMS) * time.Millisecond
}

// LLMConfig contains completion provider settings
type LLMConfig struct {
	// Provider is "openai", "anthropic" or "generic"
	Provider string `json:"provider"`

	// APIKey authenticates against the provider
	APIKey string `json:"api_key"`

	// BaseURL overrides the provider default endpoint
	BaseURL string `json:"base_url"`

	// Model is the default model for llm-type steps
	Model string `json:"model"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	// Level is the logging level
	Level string `json:"level"` // "debug", "info", "warn", "error"

	// Format is the log format
	Format string `json:"format"` // "json", "text"
}

// LoadConfig loads the configuration from a file and applies environment
// overrides
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(config)
	return config, nil
}

// FromEnv returns the default configuration with environment overrides
// applied, for deployments without a config file
func FromEnv() *Config {
	config := DefaultConfig()
	applyEnvOverrides(config)
	return config
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Storage: StorageConfig{
			Type: "memory",
			DynamoDB: DynamoDBConfig{
				Region:      "us-west-2",
				TablePrefix: "stagehand_",
			},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "stagehand",
				User:     "stagehand",
				SSLMode:  "disable",
			},
		},
		Queue: QueueConfig{
			Type: "memory",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Auth: AuthConfig{
			TokenExpiration: 24,
			BootstrapAdmin:  true,
		},
		Governance: GovernanceConfig{
			ApprovalMode:       "untrusted_only",
			ApprovalTTLMinutes: 10,
		},
		Boundary: BoundaryConfig{
			WorkspaceRoot:    "./workspace",
			AllowedPaths:     []string{"."},
			DefaultTimeoutMS: 30000,
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvOverrides lets STAGEHAND_* variables override file values
func applyEnvOverrides(config *Config) {
	setString(&config.Server.Host, "STAGEHAND_HOST")
	setInt(&config.Server.Port, "STAGEHAND_PORT")

	setString(&config.Storage.Type, "STAGEHAND_STORAGE_TYPE")
	setString(&config.Storage.Postgres.Host, "STAGEHAND_POSTGRES_HOST")
	setInt(&config.Storage.Postgres.Port, "STAGEHAND_POSTGRES_PORT")
	setString(&config.Storage.Postgres.Database, "STAGEHAND_POSTGRES_DATABASE")
	setString(&config.Storage.Postgres.User, "STAGEHAND_POSTGRES_USER")
	setString(&config.Storage.Postgres.Password, "STAGEHAND_POSTGRES_PASSWORD")
	setString(&config.Storage.DynamoDB.Region, "STAGEHAND_DYNAMODB_REGION")
	setString(&config.Storage.DynamoDB.Endpoint, "STAGEHAND_DYNAMODB_ENDPOINT")

	setString(&config.Queue.Type, "STAGEHAND_QUEUE_TYPE")
	setString(&config.Queue.Redis.Addr, "STAGEHAND_REDIS_ADDR")
	setString(&config.Queue.Redis.Password, "STAGEHAND_REDIS_PASSWORD")

	setString(&config.Auth.JWTSecret, "STAGEHAND_JWT_SECRET")
	setString(&config.Auth.BootstrapAdminPassword, "STAGEHAND_ADMIN_PASSWORD")

	setString(&config.Governance.ApprovalMode, "STAGEHAND_APPROVAL_MODE")

	setString(&config.Boundary.WorkspaceRoot, "STAGEHAND_WORKSPACE_ROOT")

	setString(&config.LLM.Provider, "STAGEHAND_LLM_PROVIDER")
	setString(&config.LLM.APIKey, "STAGEHAND_LLM_API_KEY")
	setString(&config.LLM.BaseURL, "STAGEHAND_LLM_BASE_URL")
	setString(&config.LLM.Model, "STAGEHAND_LLM_MODEL")

	setString(&config.Logging.Level, "STAGEHAND_LOG_LEVEL")
	setString(&config.Logging.Format, "STAGEHAND_LOG_FORMAT")
}

func setString(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func setInt(target *int, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}
