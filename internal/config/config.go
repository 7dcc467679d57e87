package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for kitmsg.
type Config struct {
	General  GeneralConfig  `yaml:"general" json:"general"`
	Bridge   BridgeConfig   `yaml:"bridge" json:"bridge"`
	Bus      BusConfig      `yaml:"bus" json:"bus"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Timeline TimelineConfig `yaml:"timeline" json:"timeline"`
	NATS     NATSConfig     `yaml:"nats" json:"nats"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
}

type GeneralConfig struct {
	LogLevel   string `yaml:"logLevel" json:"logLevel"`
	LogFile    string `yaml:"logFile,omitempty" json:"logFile,omitempty"`
	AppVersion string `yaml:"appVersion" json:"appVersion"` // reported by app_status queries
}

// BridgeConfig configures the websocket endpoint web clients connect to.
type BridgeConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	Host           string   `yaml:"host" json:"host"`
	Port           int      `yaml:"port" json:"port"`
	Path           string   `yaml:"path" json:"path"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty" json:"allowedOrigins,omitempty"`
}

type BusConfig struct {
	QueueSize             int `yaml:"queueSize" json:"queueSize"`
	EnqueueTimeoutSeconds int `yaml:"enqueueTimeoutSeconds" json:"enqueueTimeoutSeconds"`
	HistorySize           int `yaml:"historySize" json:"historySize"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"` // "memory" | "sqlite"
	DBPath string `yaml:"dbPath" json:"dbPath"`
}

type TimelineConfig struct {
	StartSeconds float64 `yaml:"startSeconds" json:"startSeconds"`
	EndSeconds   float64 `yaml:"endSeconds" json:"endSeconds"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	URL     string `yaml:"url" json:"url"`
	Prefix  string `yaml:"prefix" json:"prefix"`
	Token   string `yaml:"token,omitempty" json:"token,omitempty"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// DefaultConfigDir returns the default config directory (~/.kitmsg).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kitmsg"
	}
	return filepath.Join(home, ".kitmsg")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Bridge.Port < 0 || cfg.Bridge.Port > 65535 {
		errs = append(errs, "bridge.port must be between 0 and 65535")
	}
	if cfg.Bridge.Path != "" && !strings.HasPrefix(cfg.Bridge.Path, "/") {
		errs = append(errs, "bridge.path must start with /")
	}

	if cfg.Bus.QueueSize < 1 {
		errs = append(errs, "bus.queueSize must be >= 1")
	}
	if cfg.Bus.EnqueueTimeoutSeconds < 1 {
		errs = append(errs, "bus.enqueueTimeoutSeconds must be >= 1")
	}
	if cfg.Bus.HistorySize < 1 {
		errs = append(errs, "bus.historySize must be >= 1")
	}

	switch cfg.Store.Driver {
	case "memory":
	case "sqlite":
		if cfg.Store.DBPath == "" {
			errs = append(errs, "store.dbPath is required for the sqlite driver")
		}
	default:
		errs = append(errs, "store.driver must be one of: memory, sqlite")
	}

	if cfg.Timeline.EndSeconds <= cfg.Timeline.StartSeconds {
		errs = append(errs, "timeline.endSeconds must be greater than timeline.startSeconds")
	}

	if cfg.NATS.Enabled && cfg.NATS.URL == "" {
		errs = append(errs, "nats.url is required when nats is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
