// Package config defines the gateway configuration and its YAML loader.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Auth module names accepted in AuthConfig.Module.
const (
	AuthModuleNoop          = "noop"
	AuthModuleNoopWithToken = "noop-with-token"
	AuthModuleK8s           = "k8s"
	AuthModuleJWK           = "jwk-token"
)

// Cache backend names accepted in CacheConfig.Type.
const (
	CacheTypeMemory   = "memory"
	CacheTypeNoop     = "noop"
	CacheTypeSQLite   = "sqlite"
	CacheTypePostgres = "postgres"
)

// Config is the root gateway configuration.
type Config struct {
	Name        string            `yaml:"name"`
	Service     ServiceConfig     `yaml:"service"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	Auth        AuthConfig        `yaml:"auth"`
	Authz       AuthzConfig       `yaml:"authorization"`
	Cache       CacheConfig       `yaml:"conversation_cache"`
	Database    DatabaseConfig    `yaml:"database"`
	Quota       QuotaConfig       `yaml:"quota"`
	Inference   InferenceConfig   `yaml:"inference"`
	Safety      SafetyConfig      `yaml:"safety"`
	MCPServers  []MCPServerConfig `yaml:"mcp_servers"`
	VectorDBs   []string          `yaml:"vector_dbs"`
	Transcripts TranscriptsConfig `yaml:"transcripts"`
	Feedback    FeedbackConfig    `yaml:"feedback"`
	LogLevel    string            `yaml:"log_level"`
}

// ServiceConfig configures the HTTP listener.
type ServiceConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// Address returns the host:port listen address.
func (s *ServiceConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// UpstreamConfig points at the llama-stack deployment the gateway fronts.
type UpstreamConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig selects and configures the authentication module.
type AuthConfig struct {
	Module string        `yaml:"module"`
	JWK    JWKConfig     `yaml:"jwk"`
	K8s    K8sAuthConfig `yaml:"k8s"`
}

// JWKConfig configures the jwk-token auth module.
type JWKConfig struct {
	URL            string        `yaml:"url"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	UserIDClaim    string        `yaml:"user_id_claim"`
	UsernameClaim  string        `yaml:"username_claim"`
	RequiredClaims []string      `yaml:"required_claims"`
}

// K8sAuthConfig configures the k8s auth module.
type K8sAuthConfig struct {
	// ClusterID replaces the user id when the authenticated user is the
	// cluster-admin sentinel.
	ClusterID string `yaml:"cluster_id"`
	// AccessReviewPath is the non-resource path checked with a
	// SubjectAccessReview (verb=get).
	AccessReviewPath string `yaml:"access_review_path"`
	// AdminSentinel is the cluster-admin user name.
	AdminSentinel string `yaml:"admin_sentinel"`
}

// AuthzConfig configures role resolution and access rules. With no rules the
// gateway falls back to the permissive noop resolvers.
type AuthzConfig struct {
	RoleRules   []RoleRule   `yaml:"role_rules"`
	AccessRules []AccessRule `yaml:"access_rules"`
}

// RoleRule grants roles when a JWT claim matches one of the listed values.
type RoleRule struct {
	Claim  string   `yaml:"claim"`
	Values []string `yaml:"values"`
	Roles  []string `yaml:"roles"`
}

// AccessRule maps a role to the actions it may perform.
type AccessRule struct {
	Role    string   `yaml:"role"`
	Actions []string `yaml:"actions"`
}

// CacheConfig selects the conversation cache backend.
type CacheConfig struct {
	Type     string         `yaml:"type"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// DatabaseConfig selects the relational store used for the conversations
// side-table and SQL quota limiters. Defaults to the cache settings.
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig configures an SQLite file database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig configures a PostgreSQL connection.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN builds a lib/pq connection string.
func (p *PostgresConfig) DSN() string {
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.Host, p.Port, p.Database, p.User, p.Password, sslMode)
}

// QuotaConfig configures the token quota limiters.
type QuotaConfig struct {
	Limiters []QuotaLimiterConfig `yaml:"limiters"`
}

// QuotaLimiterConfig configures one quota limiter.
type QuotaLimiterConfig struct {
	Name         string        `yaml:"name"`
	Type         string        `yaml:"type"` // user_limiter or cluster_limiter
	InitialQuota int64         `yaml:"initial_quota"`
	Period       time.Duration `yaml:"period"`
}

// InferenceConfig selects default model routing and prompts.
type InferenceConfig struct {
	DefaultProvider     string `yaml:"default_provider"`
	DefaultModel        string `yaml:"default_model"`
	DefaultSystemPrompt string `yaml:"default_system_prompt"`
}

// SafetyConfig toggles shield usage on turns.
type SafetyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MCPServerConfig names a remote MCP tool server.
type MCPServerConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// TranscriptsConfig configures per-turn transcript persistence.
type TranscriptsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// FeedbackConfig configures user feedback persistence.
type FeedbackConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	data = []byte(expandEnvVars(string(data)))
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// SetDefaults fills unset fields with working defaults.
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = "gateway"
	}
	if c.Service.Host == "" {
		c.Service.Host = "0.0.0.0"
	}
	if c.Service.Port == 0 {
		c.Service.Port = 8080
	}
	if c.Service.ReadTimeout == 0 {
		c.Service.ReadTimeout = 30 * time.Second
	}
	if c.Service.WriteTimeout == 0 {
		// Streaming responses hold the connection open for the whole turn.
		c.Service.WriteTimeout = 300 * time.Second
	}
	if c.Service.IdleTimeout == 0 {
		c.Service.IdleTimeout = 120 * time.Second
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 120 * time.Second
	}
	if c.Auth.Module == "" {
		c.Auth.Module = AuthModuleNoop
	}
	if c.Auth.JWK.CacheTTL == 0 {
		c.Auth.JWK.CacheTTL = time.Hour
	}
	if c.Auth.JWK.UserIDClaim == "" {
		c.Auth.JWK.UserIDClaim = "user_id"
	}
	if c.Auth.JWK.UsernameClaim == "" {
		c.Auth.JWK.UsernameClaim = "username"
	}
	if c.Auth.K8s.AdminSentinel == "" {
		c.Auth.K8s.AdminSentinel = "kube:admin"
	}
	if c.Auth.K8s.AccessReviewPath == "" {
		c.Auth.K8s.AccessReviewPath = "/ls-access"
	}
	if c.Cache.Type == "" {
		c.Cache.Type = CacheTypeNoop
	}
	if c.Database.Type == "" {
		c.Database.Type = c.Cache.Type
		c.Database.SQLite = c.Cache.SQLite
		c.Database.Postgres = c.Cache.Postgres
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	for i := range c.Quota.Limiters {
		if c.Quota.Limiters[i].Period == 0 {
			c.Quota.Limiters[i].Period = 24 * time.Hour
		}
	}
}

// Validate rejects configurations the gateway cannot serve with.
func (c *Config) Validate() error {
	if c.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}
	switch c.Auth.Module {
	case AuthModuleNoop, AuthModuleNoopWithToken, AuthModuleK8s:
	case AuthModuleJWK:
		if c.Auth.JWK.URL == "" {
			return fmt.Errorf("auth.jwk.url is required for the %s module", AuthModuleJWK)
		}
	default:
		return fmt.Errorf("unknown auth module: %s", c.Auth.Module)
	}
	switch c.Cache.Type {
	case CacheTypeMemory, CacheTypeNoop:
	case CacheTypeSQLite:
		if c.Cache.SQLite.Path == "" {
			return fmt.Errorf("conversation_cache.sqlite.path is required")
		}
	case CacheTypePostgres:
		if c.Cache.Postgres.Host == "" || c.Cache.Postgres.Database == "" {
			return fmt.Errorf("conversation_cache.postgres requires host and database")
		}
	default:
		return fmt.Errorf("unknown conversation cache type: %s", c.Cache.Type)
	}
	for _, l := range c.Quota.Limiters {
		if l.Type != "user_limiter" && l.Type != "cluster_limiter" {
			return fmt.Errorf("unknown quota limiter type: %s", l.Type)
		}
		if l.InitialQuota <= 0 {
			return fmt.Errorf("quota limiter %q needs a positive initial_quota", l.Name)
		}
	}
	for _, m := range c.MCPServers {
		if m.Name == "" || m.URL == "" {
			return fmt.Errorf("mcp server entries require both name and url")
		}
	}
	if c.Transcripts.Enabled && c.Transcripts.Dir == "" {
		return fmt.Errorf("transcripts.dir is required when transcripts are enabled")
	}
	if c.Feedback.Enabled && c.Feedback.Dir == "" {
		return fmt.Errorf("feedback.dir is required when feedback is enabled")
	}
	return nil
}

// Redacted returns a copy safe to expose on GET /v1/config.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Upstream.APIKey = ""
	cp.Cache.Postgres.Password = ""
	cp.Database.Postgres.Password = ""
	return &cp
}
