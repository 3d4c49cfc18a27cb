package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for linkrelay.
type Config struct {
	General   GeneralConfig   `json:"general" yaml:"general"`
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
	YouTube   YouTubeConfig   `json:"youtube" yaml:"youtube"`
	Instagram InstagramConfig `json:"instagram" yaml:"instagram"`
	Downloads DownloadsConfig `json:"downloads" yaml:"downloads"`
	History   HistoryConfig   `json:"history" yaml:"history"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel" yaml:"logLevel" env:"LINKRELAY_LOG_LEVEL"`
	LogFile               string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional log file path
	MaxConcurrentMessages int    `json:"maxConcurrentMessages" yaml:"maxConcurrentMessages"`
}

type TelegramConfig struct {
	Token       string         `json:"token" yaml:"token" env:"TOKEN"`
	AllowFrom   FlexStringList `json:"allowFrom" yaml:"allowFrom"`
	PollTimeout int            `json:"pollTimeout" yaml:"pollTimeout"` // long-poll seconds
	SendRate    float64        `json:"sendRate" yaml:"sendRate"`       // API calls per second
	SendBurst   int            `json:"sendBurst" yaml:"sendBurst"`
	Debug       bool           `json:"debug,omitempty" yaml:"debug,omitempty"`
}

type YouTubeConfig struct {
	BinaryPath   string `json:"binaryPath" yaml:"binaryPath" env:"LINKRELAY_YTDLP_PATH"`
	Format       string `json:"format" yaml:"format"`
	MaxFileBytes int64  `json:"maxFileBytes" yaml:"maxFileBytes"`
}

type InstagramConfig struct {
	Endpoint       string `json:"endpoint" yaml:"endpoint" env:"LINKRELAY_LOOKUP_ENDPOINT"`
	UserAgent      string `json:"userAgent" yaml:"userAgent"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

type DownloadsConfig struct {
	TempDir string `json:"tempDir" yaml:"tempDir" env:"LINKRELAY_TEMP_DIR"`
	Workers int    `json:"workers" yaml:"workers"` // concurrent video fetches
}

type HistoryConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"dbPath" yaml:"dbPath"`
}

// MetricsConfig configures the Prometheus text endpoint served by the gateway.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// ValidationError lists every problem found in a config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation errors:\n  - %s", strings.Join(e.Problems, "\n  - "))
}

// DefaultConfigDir returns the default config directory (~/.linkrelay).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".linkrelay"
	}
	return filepath.Join(home, ".linkrelay")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads, env-expands, overlays and validates the config file at path.
// Files ending in .yaml or .yml are parsed as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	cfg, err := parseFile(ExpandPath(path))
	if err != nil {
		return nil, err
	}
	return finish(cfg, true)
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	// Substitute environment variables: ${VAR} and ${VAR:-default}
	return decode(path, []byte(ExpandEnvVars(string(data))))
}

func decode(path string, data []byte) (*Config, error) {
	cfg := Defaults()
	var err error
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func encode(path string, cfg *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(cfg)
	}
	return json.MarshalIndent(cfg, "", "  ")
}

// LoadOrDefaults behaves like Load but starts from Defaults when the file
// does not exist, so a bare TOKEN environment variable is enough to run.
func LoadOrDefaults(path string) (*Config, error) {
	if _, err := os.Stat(ExpandPath(path)); os.IsNotExist(err) {
		return finish(Defaults(), true)
	}
	return Load(path)
}

// LoadLocal is LoadOrDefaults for commands that never talk to Telegram: a
// missing token is not an error.
func LoadLocal(path string) (*Config, error) {
	path = ExpandPath(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return finish(Defaults(), false)
	}
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	return finish(cfg, false)
}

func finish(cfg *Config, requireToken bool) (*Config, error) {
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Downloads.TempDir = ExpandPath(cfg.Downloads.TempDir)
	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)

	if err := validate(cfg, requireToken); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays values from the process environment (TOKEN,
// LINKRELAY_*). Unset or empty variables leave the config untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
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
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	data, err := encode(path, cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return writeFile(path, data)
}

// Update applies fn to the config file as written and saves the result.
// ${VAR} placeholders stay unexpanded and environment overrides are not
// written back. The outcome must still load, minus the token requirement.
func Update(path string, fn func(*Config) error) error {
	path = ExpandPath(path)
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if cfg, err = decode(path, data); err != nil {
			return err
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	if err := fn(cfg); err != nil {
		return err
	}

	data, err = encode(path, cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	resolved, err := decode(path, []byte(ExpandEnvVars(string(data))))
	if err != nil {
		return err
	}
	if _, err := finish(resolved, false); err != nil {
		return err
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	// The file may hold the bot token.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. It returns a
// *ValidationError listing every problem.
func Validate(cfg *Config) error {
	return validate(cfg, true)
}

func validate(cfg *Config, requireToken bool) error {
	var errs []string

	if requireToken && strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, "telegram.token is required (set the TOKEN environment variable)")
	}
	if cfg.Telegram.PollTimeout < 0 {
		errs = append(errs, "telegram.pollTimeout must be >= 0")
	}
	if cfg.Telegram.SendRate <= 0 {
		errs = append(errs, "telegram.sendRate must be > 0")
	}
	if cfg.Telegram.SendBurst < 1 {
		errs = append(errs, "telegram.sendBurst must be >= 1")
	}

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}

	if cfg.YouTube.BinaryPath == "" {
		errs = append(errs, "youtube.binaryPath is required")
	}
	if cfg.YouTube.Format == "" {
		errs = append(errs, "youtube.format is required")
	}
	if cfg.YouTube.MaxFileBytes <= 0 {
		errs = append(errs, "youtube.maxFileBytes must be > 0")
	}

	if u, err := url.Parse(cfg.Instagram.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "instagram.endpoint must be an absolute http(s) URL")
	}
	if cfg.Instagram.TimeoutSeconds < 1 {
		errs = append(errs, "instagram.timeoutSeconds must be >= 1")
	}

	if cfg.Downloads.TempDir == "" {
		errs = append(errs, "downloads.tempDir is required")
	}
	if cfg.Downloads.Workers < 1 || cfg.Downloads.Workers > 32 {
		errs = append(errs, "downloads.workers must be between 1 and 32")
	}

	if cfg.History.Enabled && cfg.History.DBPath == "" {
		errs = append(errs, "history.dbPath is required when history is enabled")
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Addr == "" {
			errs = append(errs, "metrics.addr is required when metrics are enabled")
		}
		if !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
			errs = append(errs, "metrics.endpoint must start with /")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Problems: errs}
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
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
