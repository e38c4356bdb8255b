package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/countentropy/countentropy/pkg/entropy"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultCollectInterval = 30 * time.Second
	DefaultResultTTL       = 5 * time.Minute
	DefaultHTTPPort        = 8080
	DefaultLogLevel        = "info"
	DefaultAuthHeader      = "X-API-Key"
)

// Source types understood by the collector factory.
const (
	SourcePrometheus = "prometheus"
	SourcePostgres   = "postgres"
	SourceFile       = "file"
)

// Config is the top-level configuration of entropyd.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// HTTPPort is the port the REST API and /metrics listen on.
	HTTPPort int `yaml:"http_port"`

	// CollectInterval controls how often every source is collected.
	CollectInterval time.Duration `yaml:"collect_interval"`

	// ResultTTL is how long a result stays visible without a fresh collection.
	ResultTTL time.Duration `yaml:"result_ttl"`

	// DefaultBase is the log base used by sources that do not set one.
	// One of: "" | log | log2 | log10.
	DefaultBase string `yaml:"default_base"`

	// Auth configures how the REST API authenticates incoming requests.
	Auth ServerAuthConfig `yaml:"auth"`

	// Sources is the list of count sources to estimate entropy for.
	Sources []Source `yaml:"sources"`

	// Alerts holds alerting rule and webhook delivery configuration.
	Alerts AlertsConfig `yaml:"alerts"`
}

// Source describes one count source. Every collection of a source yields
// one or more partial count bags that together form one logical group.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Type is the source type: prometheus | postgres | file.
	Type string `yaml:"type"`

	// Base overrides Config.DefaultBase for this source.
	Base string `yaml:"base"`

	// Endpoints are exposition URLs (prometheus). Each endpoint contributes
	// one partial bag, e.g. one per shard of a sharded exporter.
	Endpoints []string `yaml:"endpoints"`

	// Family is the metric family whose series are the categories (prometheus).
	Family string `yaml:"family"`

	// DSNEnv is the environment variable holding the connection string (postgres).
	DSNEnv string `yaml:"dsn_env"`

	// Query returns one row per category (postgres), typically
	// SELECT key, COUNT(*) FROM t GROUP BY key.
	Query string `yaml:"query"`

	// CountColumn selects the count column of a composite-key query.
	// When empty the full row shape is handed to the estimator.
	CountColumn string `yaml:"count_column"`

	// Paths are count files (file), one partial bag per file.
	Paths []string `yaml:"paths"`

	// Schema declares the field types of each file record, e.g. [long].
	Schema []string `yaml:"schema"`

	// Auth configures how the collector authenticates to this source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// EffectiveBase returns the source base, falling back to def.
func (s Source) EffectiveBase(def string) string {
	if s.Base != "" {
		return s.Base
	}
	return def
}

// DSN returns the connection string resolved from the environment.
func (s Source) DSN() string {
	if s.DSNEnv == "" {
		return ""
	}
	return os.Getenv(s.DSNEnv)
}

// AuthConfig specifies the authentication mode for a source endpoint.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header the API key is sent in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	return fromEnv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	return fromEnv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	return fromEnv(a.PasswordEnv)
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// ServerAuthConfig configures REST API authentication.
type ServerAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the request header carrying the key. Defaults to X-API-Key.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable holding the expected API key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the server API key resolved from the environment.
func (a ServerAuthConfig) Key() string {
	return fromEnv(a.KeyEnv)
}

// EffectiveHeader returns Header or DefaultAuthHeader.
func (a ServerAuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return DefaultAuthHeader
	}
	return a.Header
}

// AlertsConfig holds all alerting rules and webhook targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines a threshold-based alert condition.
type AlertRule struct {
	Name string `yaml:"name"`

	// Condition is an expression like "entropy < 0.5" or "state == invalid".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	return fromEnv(w.URLEnv)
}

func fromEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// SlogLevel maps LogLevel to a slog.Level. Unknown values map to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		LogLevel:        DefaultLogLevel,
		HTTPPort:        DefaultHTTPPort,
		CollectInterval: DefaultCollectInterval,
		ResultTTL:       DefaultResultTTL,
	}
}

// validate checks required fields and structural constraints.
// Base tokens are parsed here so a bad base fails at startup.
func validate(cfg *Config) error {
	if cfg.CollectInterval <= 0 {
		return fmt.Errorf("collect_interval must be positive")
	}
	if cfg.ResultTTL <= 0 {
		return fmt.Errorf("result_ttl must be positive")
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return fmt.Errorf("http_port %d out of range", cfg.HTTPPort)
	}
	if _, err := entropy.ParseLogBase(cfg.DefaultBase); err != nil {
		return fmt.Errorf("default_base: %w", err)
	}
	switch cfg.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("auth: unknown mode %q", cfg.Auth.Mode)
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for i, src := range cfg.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true

		if _, err := entropy.ParseLogBase(src.Base); err != nil {
			return fmt.Errorf("sources[%d] %q: base: %w", i, src.ID, err)
		}
		if err := validateSource(src); err != nil {
			return fmt.Errorf("sources[%d] %q: %w", i, src.ID, err)
		}
	}

	for i, rule := range cfg.Alerts.Rules {
		if rule.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if len(strings.Fields(rule.Condition)) != 3 {
			return fmt.Errorf("alerts.rules[%d] %q: condition must be \"field op value\"", i, rule.Name)
		}
	}
	return nil
}

func validateSource(src Source) error {
	switch src.Type {
	case SourcePrometheus:
		if len(src.Endpoints) == 0 {
			return fmt.Errorf("at least one endpoint is required")
		}
		if src.Family == "" {
			return fmt.Errorf("family is required")
		}
	case SourcePostgres:
		if src.DSNEnv == "" {
			return fmt.Errorf("dsn_env is required")
		}
		if src.Query == "" {
			return fmt.Errorf("query is required")
		}
	case SourceFile:
		if len(src.Paths) == 0 {
			return fmt.Errorf("at least one path is required")
		}
		if len(src.Schema) == 0 {
			return fmt.Errorf("schema is required")
		}
		for _, name := range src.Schema {
			if _, ok := entropy.ParseKind(name); !ok {
				return fmt.Errorf("schema: unknown type %q", name)
			}
		}
	default:
		return fmt.Errorf("unknown type %q", src.Type)
	}

	switch src.Auth.Mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("unknown auth mode %q", src.Auth.Mode)
	}
	return nil
}
