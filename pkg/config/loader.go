package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every structured environment variable.
const EnvPrefix = "EVILEYE_"

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, EVILEYE_CONFIG env, ./config.yaml, /etc/evileye/config.yaml)
//  3. Structured environment variables (EVILEYE_SERVER_PORT, ...)
//  4. Legacy environment variable names
//  5. File reference resolution (_file suffix)
//  6. Stage defaults
//  7. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	cfg.ApplyStageDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// detectStage returns "test" when running under go test, otherwise the
// EVILEYE_STAGE variable, otherwise "development".
func detectStage() string {
	if testing.Testing() {
		return StageTest
	}
	if v := os.Getenv(EnvPrefix + "STAGE"); v != "" {
		return v
	}
	return StageDevelopment
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. EVILEYE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/evileye/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv(EnvPrefix + "CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/evileye/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnv overlays environment variables. Unset variables leave the
// current value untouched.
func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return err
	}

	// Legacy names.
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CONSOLE_LOG_LEVEL"); v != "" {
		cfg.Log.ConsoleLevel = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Log.SlackWebhook = v
	}

	// EVILEYE_AUTH_KEYS: JSON array of key configs.
	if v := os.Getenv(EnvPrefix + "AUTH_KEYS"); v != "" {
		keys, err := parseKeysJSON(v)
		if err != nil {
			return err
		}
		cfg.Auth.Keys = keys
	}

	return nil
}

// parseKeysJSON parses a JSON array of key configurations.
func parseKeysJSON(jsonStr string) ([]KeyConfig, error) {
	var keys []KeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing auth keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	if cfg.Log.SlackWebhookFile != "" && cfg.Log.SlackWebhook == "" {
		val, err := readSecretFile(cfg.Log.SlackWebhookFile)
		if err != nil {
			return fmt.Errorf("log.slack_webhook_file: %w", err)
		}
		cfg.Log.SlackWebhook = val
	}

	if cfg.EventLog.Postgres.DSNFile != "" && cfg.EventLog.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.EventLog.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("event_log.postgres.dsn_file: %w", err)
		}
		cfg.EventLog.Postgres.DSN = val
	}

	for i := range cfg.Auth.Keys {
		if cfg.Auth.Keys[i].SecretFile != "" && cfg.Auth.Keys[i].Secret == "" {
			val, err := readSecretFile(cfg.Auth.Keys[i].SecretFile)
			if err != nil {
				return fmt.Errorf("auth.keys[%d].secret_file: %w", i, err)
			}
			cfg.Auth.Keys[i].Secret = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
