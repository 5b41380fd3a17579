package config

import (
	"errors"
	"fmt"
	"strings"
)

var knownLevels = map[string]bool{
	"error": true, "warn": true, "warning": true, "info": true,
	"verbose": true, "debug": true, "silly": true, "trace": true,
}

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Stage == "" {
		errs = append(errs, fmt.Errorf("stage is required"))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port))
	}
	if c.Server.Port == 0 && len(c.Server.CandidatePorts) == 0 {
		errs = append(errs, fmt.Errorf("server.candidate_ports must not be empty when server.port is unset"))
	}
	if !strings.HasPrefix(c.Server.GraphQLPath, "/") {
		errs = append(errs, fmt.Errorf("server.graphql_path must start with \"/\", got %q", c.Server.GraphQLPath))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative"))
	}

	for field, level := range map[string]string{"log.level": c.Log.Level, "log.console_level": c.Log.ConsoleLevel} {
		if level != "" && !knownLevels[strings.ToLower(level)] {
			errs = append(errs, fmt.Errorf("%s must be one of error, warn, info, verbose, debug, silly, got %q", field, level))
		}
	}

	switch c.EventLog.Type {
	case EventLogMemory:
	case EventLogSQLite:
		if c.EventLog.Path == "" {
			errs = append(errs, fmt.Errorf("event_log.path is required when event_log.type is \"sqlite\""))
		}
	case EventLogPostgres:
		if c.EventLog.Postgres.DSN == "" {
			errs = append(errs, fmt.Errorf("event_log.postgres.dsn or event_log.postgres.dsn_file is required when event_log.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("event_log.type must be \"memory\", \"sqlite\" or \"postgres\", got %q", c.EventLog.Type))
	}

	for i, k := range c.Auth.Keys {
		if k.KeyID == "" {
			errs = append(errs, fmt.Errorf("auth.keys[%d].key_id is required", i))
		}
		if k.Secret == "" {
			errs = append(errs, fmt.Errorf("auth.keys[%d].secret or secret_file is required", i))
		}
	}
	if c.Auth.MaxClockSkew < 0 {
		errs = append(errs, fmt.Errorf("auth.max_clock_skew must not be negative"))
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.requests_per_minute must be > 0 when rate limiting is enabled"))
	}

	return errors.Join(errs...)
}
