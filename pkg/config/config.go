// Package config provides unified configuration for the evileye gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (EVILEYE_ prefix)
//  4. Legacy environment variable names (PORT, LOG_LEVEL, ...)
//  5. File reference resolution (_file suffix fields)
//  6. Stage defaults (port, event log file, log file)
//  7. Validation
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Stages with special defaults.
const (
	StageDevelopment = "development"
	StageTest        = "test"
	StageProduction  = "production"
)

// Event log backends.
const (
	EventLogMemory   = "memory"
	EventLogSQLite   = "sqlite"
	EventLogPostgres = "postgres"
)

// Config holds all configuration for the evileye gateway.
type Config struct {
	Name    string `yaml:"name" env:"NAME"`       // default: "unknown"
	Version string `yaml:"version" env:"VERSION"` // default: "0.0.1"
	Stage   string `yaml:"stage" env:"STAGE"`     // default: "development", "test" under go test
	Basedir string `yaml:"basedir" env:"BASEDIR"` // default: "."

	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	EventLog  EventLogConfig  `yaml:"event_log" envPrefix:"EVENT_LOG_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Port is bound exactly when set. 0 probes CandidatePorts.
	Port           int           `yaml:"port" env:"PORT"`
	CandidatePorts []int         `yaml:"candidate_ports" env:"CANDIDATE_PORTS"`
	CORSOrigins    []string      `yaml:"cors_origins" env:"CORS_ORIGINS"` // empty: CORS disabled, ["*"]: any origin
	StaticDir      string        `yaml:"static_dir" env:"STATIC_DIR"`     // served at "/"
	GraphQLPath    string        `yaml:"graphql_path" env:"GRAPHQL_PATH"` // default: "/graphql"
	MaxBodySize    int64         `yaml:"max_body_size" env:"MAX_BODY_SIZE"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`

	// ShutdownTimeout bounds the graceful phase of Close. After it elapses,
	// in-flight requests are cancelled and connections closed.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// ForceClose skips the graceful phase entirely.
	ForceClose bool `yaml:"force_close" env:"FORCE_CLOSE"`

	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
	MCP     MCPConfig     `yaml:"mcp" envPrefix:"MCP_"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"` // default: true
	Path    string `yaml:"path" env:"PATH"`       // default: "/metrics"
}

// MCPConfig controls the MCP surface listing registered operations as tools.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"` // default: false
	Path    string `yaml:"path" env:"PATH"`       // default: "/mcp"
}

// LogConfig holds logging sinks.
type LogConfig struct {
	Level            string `yaml:"level" env:"LEVEL"`                 // default: "silly"
	ConsoleLevel     string `yaml:"console_level" env:"CONSOLE_LEVEL"` // default: Level
	File             string `yaml:"file" env:"FILE"`
	SlackWebhook     string `yaml:"slack_webhook" env:"SLACK_WEBHOOK"`
	SlackWebhookFile string `yaml:"slack_webhook_file" env:"SLACK_WEBHOOK_FILE"`
	SlackChannel     string `yaml:"slack_channel" env:"SLACK_CHANNEL"`
}

// EventLogConfig selects the event log backend.
type EventLogConfig struct {
	Type     string         `yaml:"type" env:"TYPE"` // "memory", "sqlite" or "postgres"
	Path     string         `yaml:"path" env:"PATH"` // sqlite file
	Postgres PostgresConfig `yaml:"postgres" envPrefix:"POSTGRES_"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn" env:"DSN"`
	DSNFile  string `yaml:"dsn_file" env:"DSN_FILE"` // _file variant for dsn
	MaxConns int32  `yaml:"max_conns" env:"MAX_CONNS"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// MaxClockSkew bounds the age of a signed request's timestamp. 0 disables the check.
	MaxClockSkew time.Duration `yaml:"max_clock_skew" env:"MAX_CLOCK_SKEW"`

	// Keys feed the built-in static key strategy. Empty registers no strategy.
	Keys []KeyConfig `yaml:"keys" env:"-"`

	Bearer BearerConfig `yaml:"bearer" envPrefix:"BEARER_"`
}

// KeyConfig describes a single signing key entry.
type KeyConfig struct {
	KeyID      string `yaml:"key_id" json:"key_id"`
	Secret     string `yaml:"secret" json:"secret"`
	SecretFile string `yaml:"secret_file" json:"secret_file"` // _file variant for secret
}

// BearerConfig enables the HS256 bearer token scheme.
type BearerConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// RateLimitConfig holds per-caller rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" env:"ENABLED"`
	RequestsPerMinute int  `yaml:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
}

// DefaultCandidatePorts are probed in order when no port is configured.
var DefaultCandidatePorts = []int{
	3000, 3001, 3002, 3003, 3004, 3005, 3006, 3007, 3008, 3009,
	4000, 4001, 4002, 4003, 4004, 4005, 4006, 4007, 4008, 4009,
}

// Defaults returns a Config with all default values filled in.
// Stage dependent values are filled by ApplyStageDefaults.
func Defaults() Config {
	return Config{
		Name:    "unknown",
		Version: "0.0.1",
		Stage:   detectStage(),
		Basedir: ".",
		Server: ServerConfig{
			CandidatePorts:  append([]int(nil), DefaultCandidatePorts...),
			GraphQLPath:     "/graphql",
			MaxBodySize:     10 << 20, // 10 MB
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			MCP: MCPConfig{
				Path: "/mcp",
			},
		},
		Log: LogConfig{
			Level: "silly",
		},
		EventLog: EventLogConfig{
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			MaxClockSkew: 15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
		},
	}
}

// ApplyStageDefaults fills the values that depend on the stage:
// production listens on port 80, the test stage uses an ephemeral event log
// and no log file, other stages keep a durable SQLite event log and a log
// file named after the project and stage in the base directory.
func (c *Config) ApplyStageDefaults() {
	if c.Log.ConsoleLevel == "" {
		c.Log.ConsoleLevel = c.Log.Level
	}

	if c.Server.Port == 0 && c.Stage == StageProduction {
		c.Server.Port = 80
	}

	if c.EventLog.Type == "" {
		if c.Stage == StageTest {
			c.EventLog.Type = EventLogMemory
		} else {
			c.EventLog.Type = EventLogSQLite
		}
	}
	if c.EventLog.Type == EventLogSQLite && c.EventLog.Path == "" {
		c.EventLog.Path = c.stageFile("eventlog")
	}

	if c.Log.File == "" && c.Stage != StageTest {
		c.Log.File = c.stageFile("log")
	}
}

// Durable reports whether the configured event log survives a restart.
func (c *Config) Durable() bool {
	return c.EventLog.Type != EventLogMemory
}

func (c *Config) stageFile(ext string) string {
	return strings.TrimRight(c.Basedir, "/") + "/" + c.Name + "_" + c.Stage + "." + ext
}

// String renders the configuration as YAML with secrets redacted.
func (c Config) String() string {
	redacted := c
	if redacted.Log.SlackWebhook != "" {
		redacted.Log.SlackWebhook = "<redacted>"
	}
	if redacted.EventLog.Postgres.DSN != "" {
		redacted.EventLog.Postgres.DSN = "<redacted>"
	}
	redacted.Auth.Keys = make([]KeyConfig, len(c.Auth.Keys))
	for i, k := range c.Auth.Keys {
		redacted.Auth.Keys[i] = KeyConfig{KeyID: k.KeyID, Secret: "<redacted>"}
	}

	out, err := yaml.Marshal(redacted)
	if err != nil {
		return fmt.Sprintf("<unprintable config: %v>", err)
	}
	return string(out)
}
