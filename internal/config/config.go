// Package config layers defaults, the yaml config file, a .env file, WALLET_*
// environment variables and command flags into Settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/wallet-cli/internal/network"
)

const (
	ConsentPrompt = "prompt"
	ConsentWS     = "ws"
	ConsentYes    = "yes"
)

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	Retries        int
	MaxStale       string
	NoStale        bool
	NoCache        bool
	NoJournal      bool
	LogLevel       string
}

type Settings struct {
	OutputMode         string        `validate:"oneof=json plain"`
	SelectFields       []string
	ResultsOnly        bool
	EnableCommands     []string
	Timeout            time.Duration `validate:"gt=0"`
	Retries            int           `validate:"gte=0"`
	MaxStale           time.Duration
	NoStale            bool
	BalanceTTL         time.Duration
	CacheEnabled       bool
	CachePath          string
	CacheLockPath      string
	JournalEnabled     bool
	JournalPath        string
	JournalLockPath    string
	ConsentMode        string        `validate:"oneof=prompt ws yes"`
	ConsentAddr        string        `validate:"required"`
	ConsentTimeout     time.Duration `validate:"gte=0"`
	Origin             string
	LogLevel           string `validate:"oneof=debug info warn error fatal"`
	HardwareSignerURL  string `validate:"omitempty,url"`
	HardwarePublicKeys []string
	TronAPIKey         string
	Networks           []network.Identity
}

type fileConfig struct {
	Output   string `yaml:"output"`
	Timeout  string `yaml:"timeout"`
	Retries  *int   `yaml:"retries"`
	LogLevel string `yaml:"log_level"`
	Origin   string `yaml:"origin"`
	Cache    struct {
		Enabled    *bool  `yaml:"enabled"`
		MaxStale   string `yaml:"max_stale"`
		BalanceTTL string `yaml:"balance_ttl"`
		Path       string `yaml:"path"`
		LockPath   string `yaml:"lock_path"`
	} `yaml:"cache"`
	Journal struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"journal"`
	Consent struct {
		Mode    string `yaml:"mode"`
		Addr    string `yaml:"addr"`
		Timeout string `yaml:"timeout"`
	} `yaml:"consent"`
	Hardware struct {
		SignerURL  string   `yaml:"signer_url"`
		PublicKeys []string `yaml:"public_keys"`
	} `yaml:"hardware"`
	Tron struct {
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"tron"`
	Networks []network.Identity `yaml:"networks"`
}

var validate = validator.New()

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := loadEnvFile(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.MaxStale < 0 {
		settings.MaxStale = 5 * time.Minute
	}
	if err := validate.Struct(settings); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	for _, n := range settings.Networks {
		if err := n.Validate(); err != nil {
			return Settings{}, err
		}
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	dir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:      "json",
		Timeout:         10 * time.Second,
		Retries:         2,
		MaxStale:        5 * time.Minute,
		BalanceTTL:      15 * time.Second,
		CacheEnabled:    true,
		CachePath:       filepath.Join(dir, "cache.db"),
		CacheLockPath:   filepath.Join(dir, "cache.lock"),
		JournalEnabled:  true,
		JournalPath:     filepath.Join(dir, "requests.db"),
		JournalLockPath: filepath.Join(dir, "requests.lock"),
		ConsentMode:     ConsentPrompt,
		ConsentAddr:     "127.0.0.1:7465",
		LogLevel:        "error",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "wallet", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "wallet"), nil
}

// loadEnvFile reads KEY=VALUE pairs into the process environment. Variables
// already set are left alone. A missing default .env is not an error.
func loadEnvFile(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("parse env file: %w", err)
	}
	return nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if err := parseDuration(cfg.Timeout, "config timeout", &settings.Timeout); err != nil {
		return err
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = strings.ToLower(cfg.LogLevel)
	}
	if cfg.Origin != "" {
		settings.Origin = cfg.Origin
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if err := parseDuration(cfg.Cache.MaxStale, "config cache.max_stale", &settings.MaxStale); err != nil {
		return err
	}
	if err := parseDuration(cfg.Cache.BalanceTTL, "config cache.balance_ttl", &settings.BalanceTTL); err != nil {
		return err
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Journal.Enabled != nil {
		settings.JournalEnabled = *cfg.Journal.Enabled
	}
	if cfg.Journal.Path != "" {
		settings.JournalPath = cfg.Journal.Path
	}
	if cfg.Journal.LockPath != "" {
		settings.JournalLockPath = cfg.Journal.LockPath
	}
	if cfg.Consent.Mode != "" {
		settings.ConsentMode = strings.ToLower(cfg.Consent.Mode)
	}
	if cfg.Consent.Addr != "" {
		settings.ConsentAddr = cfg.Consent.Addr
	}
	if err := parseDuration(cfg.Consent.Timeout, "config consent.timeout", &settings.ConsentTimeout); err != nil {
		return err
	}
	if cfg.Hardware.SignerURL != "" {
		settings.HardwareSignerURL = cfg.Hardware.SignerURL
	}
	if len(cfg.Hardware.PublicKeys) > 0 {
		settings.HardwarePublicKeys = cfg.Hardware.PublicKeys
	}
	if cfg.Tron.APIKey != "" {
		settings.TronAPIKey = cfg.Tron.APIKey
	}
	if cfg.Tron.APIKeyEnv != "" {
		settings.TronAPIKey = os.Getenv(cfg.Tron.APIKeyEnv)
	}
	settings.Networks = append(settings.Networks, cfg.Networks...)
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("WALLET_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("WALLET_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("WALLET_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("WALLET_MAX_STALE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.MaxStale = d
		}
	}
	if v := os.Getenv("WALLET_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("WALLET_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("WALLET_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("WALLET_JOURNAL_PATH"); v != "" {
		settings.JournalPath = v
	}
	if v := os.Getenv("WALLET_JOURNAL_LOCK_PATH"); v != "" {
		settings.JournalLockPath = v
	}
	if v := os.Getenv("WALLET_CONSENT"); v != "" {
		settings.ConsentMode = strings.ToLower(v)
	}
	if v := os.Getenv("WALLET_CONSENT_ADDR"); v != "" {
		settings.ConsentAddr = v
	}
	if v := os.Getenv("WALLET_CONSENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.ConsentTimeout = d
		}
	}
	if v := os.Getenv("WALLET_ORIGIN"); v != "" {
		settings.Origin = v
	}
	if v := os.Getenv("WALLET_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("WALLET_HARDWARE_SIGNER_URL"); v != "" {
		settings.HardwareSignerURL = v
	}
	if v := os.Getenv("WALLET_HARDWARE_PUBLIC_KEYS"); v != "" {
		settings.HardwarePublicKeys = splitList(v)
	}
	if v := os.Getenv("WALLET_TRON_API_KEY"); v != "" {
		settings.TronAPIKey = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if fields := splitList(flags.Select); len(fields) > 0 {
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly
	if allowed := splitList(flags.EnableCommands); len(allowed) > 0 {
		settings.EnableCommands = allowed
	}
	if err := parseDuration(flags.Timeout, "parse --timeout", &settings.Timeout); err != nil {
		return err
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if err := parseDuration(flags.MaxStale, "parse --max-stale", &settings.MaxStale); err != nil {
		return err
	}
	if flags.NoStale {
		settings.NoStale = true
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if flags.NoJournal {
		settings.JournalEnabled = false
	}
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}

func parseDuration(raw, label string, dst *time.Duration) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	*dst = d
	return nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
