package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Sources lists filter-list locators: http(s) or file URLs, or plain paths.
	// An empty list is valid and compiles to an empty bulk rule set.
	Sources []string `koanf:"sources" validate:"dive,source_locator"`

	// RedirectURL is where the overlay rule sends top-level navigations.
	RedirectURL string `koanf:"redirect_url" validate:"required,url"`

	// DBPath is the bbolt file holding the installed rule table and toggle state.
	DBPath string `koanf:"db_path" validate:"required"`

	// Dedup drops repeated patterns across sources when compiling.
	Dedup bool `koanf:"dedup"`

	// MaxRules caps the number of compiled bulk rules; 0 means unlimited.
	MaxRules int `koanf:"max_rules" validate:"gte=0"`

	// EngineMaxRules is the rule quota enforced by the local engine.
	EngineMaxRules int `koanf:"engine_max_rules" validate:"required,gte=1"`

	// PruneStale removes previously installed bulk ids missing from a new compile.
	PruneStale bool `koanf:"prune_stale"`

	// FetchTimeout bounds each individual source fetch.
	FetchTimeout time.Duration `koanf:"fetch_timeout" validate:"required,gt=0"`

	// FetchConcurrency bounds how many sources are fetched at once.
	FetchConcurrency int `koanf:"fetch_concurrency" validate:"required,gte=1,lte=64"`

	// MatchCacheSize is the LRU capacity for request match decisions; 0 disables it.
	MatchCacheSize int `koanf:"match_cache_size" validate:"gte=0"`

	// BloomFPRate is the target false-positive rate of the dedup prefilter.
	BloomFPRate float64 `koanf:"bloom_fp_rate" validate:"gt=0,lt=1"`

	// MetricsListen is the address "dnrc run" serves /metrics on; empty disables it.
	MetricsListen string `koanf:"metrics_listen" validate:"omitempty,hostname_port"`
}

// DEFAULT_APP_CONFIG defines the defaults applied before environment overrides.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:      "prod",
	LogLevel: "info",
	Sources: []string{
		"https://easylist.to/easylist/easylist.txt",
		"https://easylist.to/easylist/easyprivacy.txt",
	},
	RedirectURL:      "https://oldsite.example.com",
	DBPath:           "/var/lib/dnrc/dnrc.db",
	Dedup:            false,
	MaxRules:         0,
	EngineMaxRules:   30000,
	PruneStale:       false,
	FetchTimeout:     30 * time.Second,
	FetchConcurrency: 4,
	MatchCacheSize:   4096,
	BloomFPRate:      0.001,
}

// validSourceLocator accepts http, https and file URLs with a usable
// location, or any other non-empty string treated as a filesystem path.
func validSourceLocator(fl validator.FieldLevel) bool {
	loc := strings.TrimSpace(fl.Field().String())
	if loc == "" {
		return false
	}
	if !strings.Contains(loc, "://") {
		return true
	}
	u, err := url.Parse(loc)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https":
		return u.Host != ""
	case "file":
		return u.Path != ""
	default:
		return false
	}
}

// envLoader loads environment variables with the prefix "DNRC_".
// Values containing spaces or commas are split into lists.
// It is a variable so tests can replace it.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "DNRC_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "DNRC_"))
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if key == "sources" || strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("source_locator", validSourceLocator)
}

// fileLoader merges a YAML config file. It is a variable so tests can replace it.
var fileLoader = func(k *koanf.Koanf, path string) error {
	return k.Load(file.Provider(path), yaml.Parser())
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	return LoadFile("")
}

// LoadFile is Load with a YAML config file merged between the defaults and
// the environment. An empty path skips the file.
func LoadFile(path string) (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if path != "" {
		if err := fileLoader(k, path); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct validation, including the custom source_locator rule.
func Validate(cfg *AppConfig) error {
	validate := validator.New(validator.WithRequiredStructEnabled())

	if err := registerValidation(validate); err != nil {
		return fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
