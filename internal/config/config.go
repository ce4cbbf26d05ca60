package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Logging        LoggingConfig
	Admin          AdminConfig
	Deduplication  DeduplicationConfig
	CircuitBreaker CircuitBreakerConfig
	Tracing        TracingConfig
	Retry          RetryConfig
	Domains        map[string]DomainConfig         `mapstructure:"domains"`
	Links          []LinkConfigurationDeclaration  `mapstructure:"links"`
	LinkPartners   []LinkPartnerDeclaration        `mapstructure:"link_partners"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres       PostgresConfig
	Redis          RedisConfig
	RunMigrations  bool   `mapstructure:"run_migrations"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AdminConfig struct {
	Enabled   bool            `mapstructure:"enabled"`
	Port      int             `mapstructure:"port"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

// DeduplicationConfig controls inbound reception awareness: duplicate ebMS
// message ids within the TTL window are dropped before pipeline entry.
type DeduplicationConfig struct {
	TTLSeconds   int    `mapstructure:"ttl_seconds"`
	OnRedisError string `mapstructure:"on_redis_error"` // "allow" or "deny" (default: "allow")
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

// VerificationMode controls how the PMode verifier completes message
// attributes before routing.
type VerificationMode string

const (
	VerificationRelaxed VerificationMode = "RELAXED"
	VerificationStrict  VerificationMode = "STRICT"
	VerificationCreate  VerificationMode = "CREATE"
)

func (m VerificationMode) Valid() bool {
	return m == VerificationRelaxed || m == VerificationStrict || m == VerificationCreate
}

// DomainConfig holds the per-tenant feature flags of one business domain.
type DomainConfig struct {
	RoutingEnabled         bool             `mapstructure:"routing_enabled"`
	DefaultBackendName     string           `mapstructure:"default_backend_name"`
	DefaultGatewayName     string           `mapstructure:"default_gateway_name"`
	OutgoingVerification   VerificationMode `mapstructure:"outgoing_verification"`
	IncomingVerification   VerificationMode `mapstructure:"incoming_verification"`
	EvidenceTimeoutMinutes int              `mapstructure:"evidence_timeout_minutes"`
}

// LinkConfigurationDeclaration is an environment-declared link configuration.
type LinkConfigurationDeclaration struct {
	Name       string            `mapstructure:"name"`
	Impl       string            `mapstructure:"impl"`
	Properties map[string]string `mapstructure:"properties"`
}

// LinkPartnerDeclaration is an environment-declared link partner.
type LinkPartnerDeclaration struct {
	Name              string            `mapstructure:"name"`
	ConfigurationName string            `mapstructure:"configuration_name"`
	Enabled           bool              `mapstructure:"enabled"`
	LinkType          string            `mapstructure:"link_type"`    // BACKEND or GATEWAY
	SendMode          string            `mapstructure:"send_mode"`    // PUSH, PULL or PASSIVE
	ReceiveMode       string            `mapstructure:"receive_mode"` // PUSH, PULL or PASSIVE
	PullInterval      time.Duration     `mapstructure:"pull_interval"`
	Properties        map[string]string `mapstructure:"properties"`
}

// Domain returns the configuration of the given business domain, falling back
// to zero-value defaults for unknown domains (routing disabled, RELAXED
// verification).
func (c *Config) Domain(domainID string) DomainConfig {
	if dc, ok := c.Domains[domainID]; ok {
		if dc.OutgoingVerification == "" {
			dc.OutgoingVerification = VerificationRelaxed
		}
		if dc.IncomingVerification == "" {
			dc.IncomingVerification = VerificationRelaxed
		}
		return dc
	}
	return DomainConfig{
		OutgoingVerification: VerificationRelaxed,
		IncomingVerification: VerificationRelaxed,
	}
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
