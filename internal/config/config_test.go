package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const testToken = "123456789:ABCdefGHIjklMNOpqrSTUvwxyz"

func validConfig() *Config {
	cfg := Defaults()
	cfg.Telegram.Token = testToken
	return cfg
}

// clearEnv keeps the host environment from leaking into Load.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"TOKEN", "LINKRELAY_LOG_LEVEL", "LINKRELAY_YTDLP_PATH", "LINKRELAY_LOOKUP_ENDPOINT", "LINKRELAY_TEMP_DIR"} {
		t.Setenv(k, "")
	}
}

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MissingToken(t *testing.T) {
	err := Validate(Defaults())
	if err == nil {
		t.Fatal("expected error for missing token")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Problems) != 1 || !strings.Contains(verr.Problems[0], "telegram.token") {
		t.Fatalf("unexpected problems: %v", verr.Problems)
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Downloads.Workers = 0
	cfg.Instagram.TimeoutSeconds = 0

	var verr *ValidationError
	if !errors.As(Validate(cfg), &verr) {
		t.Fatal("expected *ValidationError")
	}
	if len(verr.Problems) != 3 {
		t.Fatalf("expected 3 problems, got %d: %v", len(verr.Problems), verr.Problems)
	}
}

func TestValidate_MaxConcurrentMessages_Boundary(t *testing.T) {
	cfg := validConfig()

	cfg.General.MaxConcurrentMessages = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxConcurrentMessages=1 should be valid: %v", err)
	}

	cfg.General.MaxConcurrentMessages = 100
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxConcurrentMessages=100 should be valid: %v", err)
	}

	cfg.General.MaxConcurrentMessages = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxConcurrentMessages=0")
	}
}

func TestValidate_SendRate(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.SendRate = 0
	cfg.Telegram.SendBurst = 0

	var verr *ValidationError
	if !errors.As(Validate(cfg), &verr) || len(verr.Problems) != 2 {
		t.Fatalf("expected sendRate and sendBurst problems, got %v", verr)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestValidate_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "saveinsta.app/api", "ftp://example.com/"} {
		cfg := validConfig()
		cfg.Instagram.Endpoint = endpoint
		if err := Validate(cfg); err == nil {
			t.Fatalf("expected error for endpoint %q", endpoint)
		}
	}
}

func TestValidate_HistoryRequiresPath(t *testing.T) {
	cfg := validConfig()
	cfg.History.Enabled = true
	cfg.History.DBPath = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty history.dbPath")
	}
}

func TestValidate_MetricsEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Endpoint = "metrics"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for relative metrics endpoint")
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")

	original := validConfig()
	original.Downloads.Workers = 4

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Downloads.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", loaded.Downloads.Workers)
	}
	if loaded.Telegram.Token != testToken {
		t.Fatalf("token not round-tripped: %q", loaded.Telegram.Token)
	}
}

func TestLoadSave_YAMLRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := validConfig()
	original.YouTube.Format = "best"
	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		t.Fatal("expected YAML output, got JSON")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.YouTube.Format != "best" {
		t.Fatalf("expected format 'best', got %q", loaded.YouTube.Format)
	}
}

func TestLoad_YAMLAllowFromNumbers(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "telegram:\n  token: abc\n  allowFrom: [123, \"456\"]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Telegram.AllowFrom) != 2 || cfg.Telegram.AllowFrom[0] != "123" || cfg.Telegram.AllowFrom[1] != "456" {
		t.Fatalf("unexpected allowFrom: %v", cfg.Telegram.AllowFrom)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"telegram": {"token": "abc"}, "downloads": {"workers": 0}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for workers=0, got %v", err)
	}
}

func TestLoadOrDefaults_MissingFileUsesEnvToken(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOKEN", "env-token")

	cfg, err := LoadOrDefaults(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadOrDefaults: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("expected env token, got %q", cfg.Telegram.Token)
	}
	if cfg.YouTube.MaxFileBytes != DefaultMaxFileBytes {
		t.Fatalf("expected default size cap, got %d", cfg.YouTube.MaxFileBytes)
	}
}

func TestLoadOrDefaults_MissingTokenIsValidationError(t *testing.T) {
	clearEnv(t)

	_, err := LoadOrDefaults(filepath.Join(t.TempDir(), "absent.json"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestLoadLocal_TokenOptional(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadLocal(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadLocal without token: %v", err)
	}
	if cfg.Telegram.Token != "" {
		t.Fatalf("expected empty token, got %q", cfg.Telegram.Token)
	}
}

func TestLoadLocal_StillValidatesOtherFields(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("downloads:\n  workers: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadLocal(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	for _, p := range verr.Problems {
		if strings.Contains(p, "token") {
			t.Fatalf("token must not be reported: %v", verr.Problems)
		}
	}
}

func TestApplyEnv_OverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOKEN", "from-env")
	t.Setenv("LINKRELAY_TEMP_DIR", "/var/tmp/relay")
	t.Setenv("LINKRELAY_LOOKUP_ENDPOINT", "http://127.0.0.1:9999/lookup")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"telegram": {"token": "from-file"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("expected env token to win, got %q", cfg.Telegram.Token)
	}
	if cfg.Downloads.TempDir != "/var/tmp/relay" {
		t.Fatalf("unexpected temp dir %q", cfg.Downloads.TempDir)
	}
	if cfg.Instagram.Endpoint != "http://127.0.0.1:9999/lookup" {
		t.Fatalf("unexpected endpoint %q", cfg.Instagram.Endpoint)
	}
}

func TestUpdate_KeepsEnvOutOfFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOKEN", "123456:SECRET-FROM-ENV")
	t.Setenv("LINKRELAY_TEMP_DIR", "/run/ephemeral")
	t.Setenv("TEST_LINKRELAY_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"general": {"logLevel": "${TEST_LINKRELAY_LEVEL}"}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	err := Update(path, func(cfg *Config) error {
		return SetByPath(cfg, "downloads.workers", "4")
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, leaked := range []string{"SECRET-FROM-ENV", "/run/ephemeral"} {
		if strings.Contains(string(data), leaked) {
			t.Fatalf("environment value %q written into config file:\n%s", leaked, data)
		}
	}
	if !strings.Contains(string(data), "${TEST_LINKRELAY_LEVEL}") {
		t.Fatalf("placeholder should survive, got:\n%s", data)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Downloads.Workers != 4 || cfg.General.LogLevel != "debug" {
		t.Fatalf("unexpected config after update: workers=%d level=%q", cfg.Downloads.Workers, cfg.General.LogLevel)
	}
}

func TestUpdate_RejectsInvalidResult(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")

	err := Update(path, func(cfg *Config) error {
		return SetByPath(cfg, "downloads.workers", "0")
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("invalid update must not create the file")
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_LINKRELAY_TMP", "/tmp/test-relay")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"telegram": {"token": "abc"},
		"downloads": {"tempDir": "${TEST_LINKRELAY_TMP}", "workers": 2}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Downloads.TempDir != "/tmp/test-relay" {
		t.Fatalf("expected tempDir '/tmp/test-relay', got %q", cfg.Downloads.TempDir)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	val, err := GetByPath(Defaults(), "youtube.format")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != DefaultYouTubeFormat {
		t.Fatalf("expected default format, got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	_, err := GetByPath(Defaults(), "nonexistent.path")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "downloads.workers", "8"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.Downloads.Workers != 8 {
		t.Fatalf("expected 8, got %d", cfg.Downloads.Workers)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "history.enabled", "true"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if !cfg.History.Enabled {
		t.Fatal("expected history.enabled=true")
	}
}

func TestSetByPath_FieldKinds(t *testing.T) {
	cfg := Defaults()
	for path, value := range map[string]string{
		"youtube.maxFileBytes": "104857600",
		"telegram.sendRate":    "2.5",
		"telegram.allowFrom":   "111, 222,",
		"youtube.format":       "best",
	} {
		if err := SetByPath(cfg, path, value); err != nil {
			t.Fatalf("set %s: %v", path, err)
		}
	}
	if cfg.YouTube.MaxFileBytes != 100*1024*1024 {
		t.Fatalf("unexpected maxFileBytes %d", cfg.YouTube.MaxFileBytes)
	}
	if cfg.Telegram.SendRate != 2.5 {
		t.Fatalf("unexpected sendRate %v", cfg.Telegram.SendRate)
	}
	if len(cfg.Telegram.AllowFrom) != 2 || cfg.Telegram.AllowFrom[1] != "222" {
		t.Fatalf("unexpected allowFrom %v", cfg.Telegram.AllowFrom)
	}
	if cfg.YouTube.Format != "best" {
		t.Fatalf("unexpected format %q", cfg.YouTube.Format)
	}
}

func TestSetByPath_RejectsBadValues(t *testing.T) {
	cfg := Defaults()
	for path, value := range map[string]string{
		"downloads.workers": "four",
		"history.enabled":   "maybe",
		"telegram.sendRate": "fast",
		"downloads":         "x",
		"downloads.nope":    "1",
		"nope.workers":      "1",
		"a.b.c":             "1",
	} {
		if err := SetByPath(cfg, path, value); err == nil {
			t.Errorf("expected error for %s=%s", path, value)
		}
	}
	if cfg.Downloads.Workers != Defaults().Downloads.Workers {
		t.Fatalf("rejected value must not change the config, got %d", cfg.Downloads.Workers)
	}
}

// --- Sanitize ---

func TestSanitize_MasksToken(t *testing.T) {
	cfg := validConfig()
	sanitized := Sanitize(cfg)

	if sanitized.Telegram.Token == cfg.Telegram.Token {
		t.Fatal("telegram token should be masked")
	}
	if cfg.Telegram.Token != testToken {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.Token = "short"
	if got := Sanitize(cfg).Telegram.Token; got != "***" {
		t.Fatalf("short secret should be '***', got %q", got)
	}
}

// --- ListPaths ---

func TestListPaths_EveryPathResolves(t *testing.T) {
	paths := ListPaths()
	for _, expected := range []string{"general.logLevel", "youtube.maxFileBytes", "instagram.endpoint", "downloads.tempDir", "telegram.sendBurst"} {
		if !slices.Contains(paths, expected) {
			t.Errorf("missing expected path: %s", expected)
		}
	}
	cfg := Defaults()
	for _, p := range paths {
		if _, err := GetByPath(cfg, p); err != nil {
			t.Errorf("get %s: %v", p, err)
		}
	}
}

// --- FlexStringList ---

func TestFlexStringList_MixedTypes(t *testing.T) {
	var list FlexStringList
	if err := json.Unmarshal([]byte(`["hello", 123, "world", 456.0]`), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("expected 4 items, got %d", len(list))
	}
	if list[1] != "123" || list[3] != "456" {
		t.Fatalf("number conversion mismatch: %v", list)
	}
}

func TestFlexStringList_InvalidJSON(t *testing.T) {
	var list FlexStringList
	if err := json.Unmarshal([]byte(`not json`), &list); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "abc123")
	result := ExpandEnvVars(`{"token": "${TEST_BOT_TOKEN}"}`)
	if result != `{"token": "abc123"}` {
		t.Fatalf("unexpected result %q", result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"workers": "${NONEXISTENT_VAR_12345:-2}"}`)
	if result != `{"workers": "2"}` {
		t.Fatalf("unexpected result %q", result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	input := `"${TOTALLY_UNSET_VAR_XYZ}"`
	if result := ExpandEnvVars(input); result != input {
		t.Fatalf("expected %q, got %q", input, result)
	}
}

func TestExpandEnvVars_DollarSignWithoutBraces(t *testing.T) {
	input := `"$HOME is not substituted"`
	if result := ExpandEnvVars(input); result != input {
		t.Fatalf("expected no change for bare $VAR, got %q", result)
	}
}

// --- Defaults ---

func TestDefaults_MatchRelayContract(t *testing.T) {
	cfg := Defaults()
	if cfg.YouTube.MaxFileBytes != 50*1024*1024 {
		t.Fatalf("expected 50 MiB cap, got %d", cfg.YouTube.MaxFileBytes)
	}
	if cfg.Instagram.TimeoutSeconds != 15 {
		t.Fatalf("expected 15s lookup timeout, got %d", cfg.Instagram.TimeoutSeconds)
	}
	if cfg.Instagram.UserAgent != "Mozilla/5.0" {
		t.Fatalf("unexpected user agent %q", cfg.Instagram.UserAgent)
	}
	if cfg.Instagram.Endpoint != "https://saveinsta.app/api/lookup/" {
		t.Fatalf("unexpected endpoint %q", cfg.Instagram.Endpoint)
	}
}
