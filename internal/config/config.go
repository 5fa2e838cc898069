package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for groupbot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Telegram TelegramConfig `json:"telegram"`
	AI       AIConfig       `json:"ai"`
	History  HistoryConfig  `json:"history"`
	Digest   DigestConfig   `json:"digest"`
	Sports   SportsConfig   `json:"sports"`
	Weather  WeatherConfig  `json:"weather"`
	Currency CurrencyConfig `json:"currency"`
	Crypto   CryptoConfig   `json:"crypto"`
	Triggers TriggersConfig `json:"triggers"`
	Backup   BackupConfig   `json:"backup"`
	Monitor  MonitorConfig  `json:"monitor"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	Timezone string `json:"timezone"` // scheduler local time, e.g. "Europe/Moscow"
}

type TelegramConfig struct {
	Token          string `json:"token"`
	TargetUserID   int64  `json:"targetUserId,omitempty"`   // user whose messages get a reaction
	TargetReaction string `json:"targetReaction,omitempty"` // emoji for the reaction side effect
}

type AIConfig struct {
	APIKey       string  `json:"apiKey"`
	APIBase      string  `json:"apiBase"`
	Model        string  `json:"model"`
	MaxTokens    int     `json:"maxTokens"`
	Temperature  float64 `json:"temperature"`
	SystemPrompt string  `json:"systemPrompt,omitempty"`
}

type HistoryConfig struct {
	DBPath        string `json:"dbPath"`
	TrackedChatID int64  `json:"trackedChatId"` // the single chat whose history is persisted
	Limit         int    `json:"limit"`         // active-history window
	RetentionDays int    `json:"retentionDays"`
}

type DigestConfig struct {
	Enabled  bool        `json:"enabled"`
	ChatID   int64       `json:"chatId"`
	CronExpr string      `json:"cronExpr"` // default "0 8 * * *"
	Cities   []CityEntry `json:"cities"`
}

type CityEntry struct {
	Name  string `json:"name"`  // display name, e.g. "Минск"
	Query string `json:"query"` // API query, e.g. "Minsk,BY"
}

type SportsConfig struct {
	APIKey  string           `json:"apiKey"`
	APIBase string           `json:"apiBase,omitempty"`
	Teams   map[string]int64 `json:"teams"` // command name -> API team id
}

type WeatherConfig struct {
	APIKey  string `json:"apiKey"`
	APIBase string `json:"apiBase,omitempty"`
}

type CurrencyConfig struct {
	URL   string   `json:"url,omitempty"`
	Codes []string `json:"codes"` // rates to extract, e.g. ["byn", "rub"]
}

type CryptoConfig struct {
	APIBase string   `json:"apiBase,omitempty"`
	Coins   []string `json:"coins"` // coingecko ids, e.g. ["bitcoin", "worldcoin"]
}

// TriggersConfig holds the template-trigger response tables. Rules may be
// defined inline or loaded from a YAML file (File takes precedence).
type TriggersConfig struct {
	File  string        `json:"file,omitempty"`
	Rules []TriggerRule `json:"rules,omitempty"`
}

// TriggerRule maps a set of exact (case-insensitive) phrases to a reply
// strategy: a single fixed reply, a uniform-random choice, or a rare/common
// split when RareReply is set.
type TriggerRule struct {
	Phrases    []string `json:"phrases" yaml:"phrases"`
	Replies    []string `json:"replies" yaml:"replies"`
	RareReply  string   `json:"rareReply,omitempty" yaml:"rareReply"`
	RareChance float64  `json:"rareChance,omitempty" yaml:"rareChance"`
}

type BackupConfig struct {
	Enabled  bool   `json:"enabled"`
	Dir      string `json:"dir"`
	CronExpr string `json:"cronExpr"` // default "0 3 * * *"
}

type MonitorConfig struct {
	Enabled     bool  `json:"enabled"`
	AdminChatID int64 `json:"adminChatId"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// DefaultConfigDir returns the default config directory (~/.groupbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".groupbot"
	}
	return filepath.Join(home, ".groupbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
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
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)
	cfg.Backup.Dir = ExpandPath(cfg.Backup.Dir)
	cfg.Triggers.File = ExpandPath(cfg.Triggers.File)

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
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values. Missing required
// credentials are the only startup-fatal condition in the whole system.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required")
	}
	if cfg.AI.APIKey == "" {
		errs = append(errs, "ai.apiKey is required")
	}
	if cfg.AI.MaxTokens < 1 {
		errs = append(errs, "ai.maxTokens must be >= 1")
	}
	if cfg.History.Limit < 1 {
		errs = append(errs, "history.limit must be >= 1")
	}
	if cfg.History.RetentionDays < 1 {
		errs = append(errs, "history.retentionDays must be >= 1")
	}
	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if _, err := LoadLocation(cfg.General.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("general.timezone: %v", err))
	}
	for _, r := range cfg.Triggers.Rules {
		if len(r.Phrases) == 0 {
			errs = append(errs, "triggers.rules: every rule needs at least one phrase")
		}
		if len(r.Replies) == 0 {
			errs = append(errs, "triggers.rules: every rule needs at least one reply")
		}
		if r.RareChance < 0 || r.RareChance > 1 {
			errs = append(errs, "triggers.rules: rareChance must be within [0, 1]")
		}
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
