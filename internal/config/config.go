// Package config loads and validates the portal configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the KAP_ prefix (e.g., KAP_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments — no recompilation or different binaries needed.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	LDAP      LDAPConfig      `mapstructure:"ldap"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// KafkaConfig holds connection settings for the broker cluster's admin API.
type KafkaConfig struct {
	// BootstrapServers is a comma-separated list of host:port broker addresses.
	BootstrapServers string `mapstructure:"bootstrap_servers"`
	// SecurityProtocol selects the transport: "plaintext" or "tls".
	SecurityProtocol string `mapstructure:"security_protocol"`
	// ClientID identifies this portal to the brokers in request logs and quotas.
	ClientID string `mapstructure:"client_id"`
	// AdminTimeout bounds every administrative call; a timed-out provisioning
	// call is treated as a hard failure and the affected request stays pending.
	AdminTimeout time.Duration `mapstructure:"admin_timeout"`
}

// BootstrapServerList splits BootstrapServers into individual broker addresses.
func (k *KafkaConfig) BootstrapServerList() []string {
	parts := strings.Split(k.BootstrapServers, ",")
	servers := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			servers = append(servers, s)
		}
	}
	return servers
}

// LDAPConfig holds directory service configuration.
type LDAPConfig struct {
	// URL is the directory address, e.g. ldap://directory.example.com:389
	// or ldaps://directory.example.com:636.
	URL string `mapstructure:"url"`
	// BaseDN is the search base for user entries.
	BaseDN string `mapstructure:"base_dn"`
	// UserDNTemplate builds the bind DN from a username, e.g.
	// "uid=%s,ou=people,dc=example,dc=com".
	UserDNTemplate string `mapstructure:"user_dn_template"`
	// AdminGroupDN is the group whose members receive the portal admin flag.
	AdminGroupDN string `mapstructure:"admin_group_dn"`
	// EmailDomain supplies a fallback address when the directory entry has no
	// mail attribute.
	EmailDomain    string        `mapstructure:"email_domain"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	SkipTLSVerify  bool          `mapstructure:"skip_tls_verify"`
}

// AuthConfig holds session token configuration
type AuthConfig struct {
	// TokenTTL is how long issued session tokens remain valid.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
	// LoginAttemptsPerMinute caps login attempts per client IP; a tighter bucket
	// than the general API limit to slow credential stuffing.
	LoginAttemptsPerMinute int `mapstructure:"login_attempts_per_minute"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig configures shipping of audit trail entries to external sinks.
// The Postgres audit_log table is always the system of record; shipping is an
// additional best-effort copy for SIEM and log-aggregation consumers.
type AuditConfig struct {
	// FilePath, when set, appends each audit entry as a JSON line to this file.
	FilePath string `mapstructure:"file_path"`
	// FileMaxSizeMB rotates the audit file once it exceeds this size.
	FileMaxSizeMB int `mapstructure:"file_max_size_mb"`
	// WebhookURL, when set, POSTs each audit entry as JSON to this endpoint.
	WebhookURL string `mapstructure:"webhook_url"`
	// WebhookTimeout bounds each webhook delivery attempt.
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs
// during Unmarshal. viper.BindEnv only errors when called with zero keys; since
// every key here is a non-empty hardcoded string, any error indicates a
// programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Kafka
		"kafka.bootstrap_servers",
		"kafka.security_protocol",
		"kafka.client_id",
		"kafka.admin_timeout",

		// LDAP
		"ldap.url",
		"ldap.base_dn",
		"ldap.user_dn_template",
		"ldap.admin_group_dn",
		"ldap.email_domain",
		"ldap.connect_timeout",
		"ldap.skip_tls_verify",

		// Auth
		"auth.token_ttl",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.login_attempts_per_minute",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Audit
		"audit.file_path",
		"audit.file_max_size_mb",
		"audit.webhook_url",
		"audit.webhook_timeout",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set config file path if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.yaml in common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/kafka-portal")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	// Enable environment variable support
	v.SetEnvPrefix("KAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables for nested structures
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "kafka_portal")
	v.SetDefault("database.user", "portal")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Kafka defaults
	v.SetDefault("kafka.bootstrap_servers", "localhost:9092")
	v.SetDefault("kafka.security_protocol", "plaintext")
	v.SetDefault("kafka.client_id", "kafka-portal-admin")
	v.SetDefault("kafka.admin_timeout", "30s")

	// LDAP defaults
	v.SetDefault("ldap.url", "ldap://localhost:389")
	v.SetDefault("ldap.base_dn", "dc=example,dc=com")
	v.SetDefault("ldap.user_dn_template", "uid=%s,ou=people,dc=example,dc=com")
	v.SetDefault("ldap.admin_group_dn", "cn=kafka-admins,ou=groups,dc=example,dc=com")
	v.SetDefault("ldap.email_domain", "example.com")
	v.SetDefault("ldap.connect_timeout", "10s")
	v.SetDefault("ldap.skip_tls_verify", false)

	// Auth defaults
	v.SetDefault("auth.token_ttl", "1h")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 120)
	v.SetDefault("security.rate_limiting.burst", 20)
	v.SetDefault("security.rate_limiting.login_attempts_per_minute", 5)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "kafka-portal")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Audit defaults
	v.SetDefault("audit.file_path", "")
	v.SetDefault("audit.file_max_size_mb", 100)
	v.SetDefault("audit.webhook_url", "")
	v.SetDefault("audit.webhook_timeout", 10*time.Second)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	// Validate database
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	// Validate Kafka
	if len(c.Kafka.BootstrapServerList()) == 0 {
		return fmt.Errorf("kafka.bootstrap_servers is required")
	}
	switch c.Kafka.SecurityProtocol {
	case "plaintext", "tls":
	default:
		return fmt.Errorf("invalid kafka security protocol: %s (must be plaintext or tls)", c.Kafka.SecurityProtocol)
	}

	// Validate LDAP
	if c.LDAP.URL == "" {
		return fmt.Errorf("ldap.url is required")
	}
	if c.LDAP.BaseDN == "" {
		return fmt.Errorf("ldap.base_dn is required")
	}
	if !strings.Contains(c.LDAP.UserDNTemplate, "%s") {
		return fmt.Errorf("ldap.user_dn_template must contain a %%s placeholder for the username")
	}
	if c.LDAP.AdminGroupDN == "" {
		return fmt.Errorf("ldap.admin_group_dn is required")
	}

	// Validate TLS if enabled
	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
