package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Env != "prod" {
		t.Errorf("expected Env=prod, got %q", cfg.Env)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel=info, got %q", cfg.LogLevel)
	}
	if len(cfg.Sources) != 2 {
		t.Errorf("expected 2 default sources, got %v", cfg.Sources)
	}
	if cfg.Dedup || cfg.PruneStale {
		t.Errorf("dedup and prune_stale must default to false")
	}
	if cfg.FetchTimeout != 30*time.Second {
		t.Errorf("expected FetchTimeout=30s, got %v", cfg.FetchTimeout)
	}
	if cfg.EngineMaxRules != 30000 {
		t.Errorf("expected EngineMaxRules=30000, got %d", cfg.EngineMaxRules)
	}
}

func TestLoad_ValidOverrides(t *testing.T) {
	t.Setenv("DNRC_ENV", "dev")
	t.Setenv("DNRC_LOG_LEVEL", "debug")
	t.Setenv("DNRC_SOURCES", "https://a.example/list.txt, /etc/dnrc/custom.txt")
	t.Setenv("DNRC_REDIRECT_URL", "https://focus.example.org/")
	t.Setenv("DNRC_DB_PATH", "/tmp/dnrc.db")
	t.Setenv("DNRC_DEDUP", "true")
	t.Setenv("DNRC_PRUNE_STALE", "true")
	t.Setenv("DNRC_MAX_RULES", "5000")
	t.Setenv("DNRC_FETCH_TIMEOUT", "45s")
	t.Setenv("DNRC_FETCH_CONCURRENCY", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Env != "dev" || cfg.LogLevel != "debug" {
		t.Errorf("unexpected env/log level: %q %q", cfg.Env, cfg.LogLevel)
	}
	want := []string{"https://a.example/list.txt", "/etc/dnrc/custom.txt"}
	if len(cfg.Sources) != len(want) {
		t.Fatalf("expected sources %v, got %v", want, cfg.Sources)
	}
	for i, v := range want {
		if cfg.Sources[i] != v {
			t.Errorf("expected Sources[%d]=%q, got %q", i, v, cfg.Sources[i])
		}
	}
	if cfg.RedirectURL != "https://focus.example.org/" || cfg.DBPath != "/tmp/dnrc.db" {
		t.Errorf("unexpected redirect/db: %q %q", cfg.RedirectURL, cfg.DBPath)
	}
	if !cfg.Dedup || !cfg.PruneStale || cfg.MaxRules != 5000 {
		t.Errorf("unexpected compile options: %+v", cfg)
	}
	if cfg.FetchTimeout != 45*time.Second || cfg.FetchConcurrency != 8 {
		t.Errorf("unexpected fetch options: %v %d", cfg.FetchTimeout, cfg.FetchConcurrency)
	}
}

func TestLoad_SingleSource(t *testing.T) {
	t.Setenv("DNRC_SOURCES", "file:///srv/lists/easylist.txt")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0] != "file:///srv/lists/easylist.txt" {
		t.Fatalf("unexpected sources: %v", cfg.Sources)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"env", "DNRC_ENV", "staging"},
		{"log level", "DNRC_LOG_LEVEL", "trace"},
		{"redirect not a url", "DNRC_REDIRECT_URL", "not a url"},
		{"unsupported scheme", "DNRC_SOURCES", "ftp://lists.example/easylist.txt"},
		{"http without host", "DNRC_SOURCES", "https://"},
		{"negative max rules", "DNRC_MAX_RULES", "-1"},
		{"zero concurrency", "DNRC_FETCH_CONCURRENCY", "0"},
		{"bad timeout", "DNRC_FETCH_TIMEOUT", "soon"},
		{"fp rate out of range", "DNRC_BLOOM_FP_RATE", "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q, got nil", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_WhenKoanfDefaultLoadFails(t *testing.T) {
	orig := defaultLoader
	defaultLoader = func(k *koanf.Koanf) error { return errors.New("mocked error") }
	defer func() { defaultLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked error") {
		t.Fatal("expected error when loading defaults, got nil")
	}
}

func TestLoad_WhenKoanfEnvLoadFails(t *testing.T) {
	orig := envLoader
	envLoader = func(k *koanf.Koanf) error { return errors.New("mocked error") }
	defer func() { envLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked error") {
		t.Fatal("expected error when loading env, got nil")
	}
}

func TestLoadFile_YAMLBetweenDefaultsAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dnrc.yaml")
	body := `log_level: warn
redirect_url: https://file.example.org/
dedup: true
metrics_listen: 127.0.0.1:9464
sources:
  - /srv/lists/one.txt
  - https://lists.example.org/two.txt
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DNRC_LOG_LEVEL", "error")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() returned error: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("env should override file, got LogLevel=%q", cfg.LogLevel)
	}
	if cfg.RedirectURL != "https://file.example.org/" || !cfg.Dedup {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0] != "/srv/lists/one.txt" {
		t.Errorf("unexpected sources: %v", cfg.Sources)
	}
	if cfg.MetricsListen != "127.0.0.1:9464" {
		t.Errorf("unexpected metrics_listen: %q", cfg.MetricsListen)
	}
	if cfg.EngineMaxRules != 30000 {
		t.Errorf("defaults should survive, got EngineMaxRules=%d", cfg.EngineMaxRules)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file") {
		t.Fatalf("expected config file error, got %v", err)
	}
}

func TestLoadFile_WhenFileLoadFails(t *testing.T) {
	orig := fileLoader
	fileLoader = func(k *koanf.Koanf, path string) error { return errors.New("mocked error") }
	defer func() { fileLoader = orig }()

	_, err := LoadFile("/etc/dnrc.yaml")
	if err == nil || !strings.Contains(err.Error(), "mocked error") {
		t.Fatal("expected error when loading file, got nil")
	}
}

func TestLoad_InvalidMetricsListen(t *testing.T) {
	t.Setenv("DNRC_METRICS_LISTEN", "not-an-address")
	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for metrics_listen")
	}
}

func TestLoad_RegisterValidationFails(t *testing.T) {
	orig := registerValidation
	registerValidation = func(v *validator.Validate) error { return errors.New("mocked validation error") }
	defer func() { registerValidation = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked validation error") {
		t.Fatal("expected error when registering validation, got nil")
	}
}

func TestValidSourceLocator(t *testing.T) {
	v := validator.New()
	if err := v.RegisterValidation("source_locator", validSourceLocator); err != nil {
		t.Fatalf("register: %v", err)
	}
	tests := []struct {
		loc  string
		want bool
	}{
		{"https://easylist.to/easylist/easylist.txt", true},
		{"http://localhost:8080/list", true},
		{"file:///etc/dnrc/list.txt", true},
		{"./lists/custom.txt", true},
		{"/abs/path.txt", true},
		{"", false},
		{"   ", false},
		{"ftp://x/y", false},
		{"https://", false},
		{"file://", false},
	}
	for _, tt := range tests {
		err := v.Var(tt.loc, "source_locator")
		if got := err == nil; got != tt.want {
			t.Errorf("source_locator(%q) valid=%v, want %v (err=%v)", tt.loc, got, tt.want, err)
		}
	}
}
