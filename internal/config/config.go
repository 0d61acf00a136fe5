package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds runtime configuration. Values come from defaults, an optional
// config file in ConfigDir, and TAOBOT_* environment variables (highest priority).
// Provider secrets are never written to the config file by the application.
type Config struct {
	// ConfigDir is where config.(json|yaml) and the device database live.
	ConfigDir string `mapstructure:"-"`

	LLM       LLMConfig       `mapstructure:"llm"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Session   SessionConfig   `mapstructure:"session"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	User      UserConfig      `mapstructure:"user"`
}

// LLMConfig selects and configures the model backend.
type LLMConfig struct {
	// Backend is "gemini" or "openrouter".
	Backend string `mapstructure:"backend"`
	Model   string `mapstructure:"model"`
	// APIKey is the credential; empty leaves the assistant NOT_CONFIGURED.
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ToolsConfig points the tool executor at the store backend.
type ToolsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// OutputMaxRunes caps serialized tool output (0 = no truncation).
	OutputMaxRunes int           `mapstructure:"output_max_runes"`
	CacheSize      int           `mapstructure:"cache_size"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// SessionConfig tunes conversation handling.
type SessionConfig struct {
	CompactThreshold int `mapstructure:"compact_threshold"`
	// DBPath is the device database holding the persisted session id.
	DBPath string `mapstructure:"db_path"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// AssistantConfig names the persona and the store it sells for.
type AssistantConfig struct {
	Name  string `mapstructure:"name"`
	Store string `mapstructure:"store"`
}

// UserConfig is the local device user's optional profile (terminal mode).
type UserConfig struct {
	Name        string   `mapstructure:"name"`
	Preferences []string `mapstructure:"preferences"`
}

// DefaultConfigDir returns the project-local .taobot if present, else ~/.config/taobot.
func DefaultConfigDir() string {
	if d := os.Getenv("TAOBOT_CONFIG_DIR"); d != "" {
		return d
	}
	cwd, _ := os.Getwd()
	local := filepath.Join(cwd, ".taobot")
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return local
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "taobot")
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("llm.backend", "gemini")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", "60s")

	v.SetDefault("tools.base_url", "http://localhost:8081/api")
	v.SetDefault("tools.timeout", "10s")
	v.SetDefault("tools.output_max_runes", 0)
	v.SetDefault("tools.cache_size", 256)
	v.SetDefault("tools.cache_ttl", "2m")

	v.SetDefault("session.compact_threshold", 30)
	v.SetDefault("session.db_path", filepath.Join(configDir, "taobot.db"))

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("assistant.name", "Táo")
	v.SetDefault("assistant.store", "Shop Táo Ngon")

	v.SetDefault("user.name", "")
	v.SetDefault("user.preferences", []string{})
}

// Load builds the config. configPath may name a config file explicitly; when
// empty, config.{json,yaml} is looked up in DefaultConfigDir. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	configDir := DefaultConfigDir()
	if configPath != "" {
		v.SetConfigFile(configPath)
		configDir = filepath.Dir(configPath)
	} else {
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
	}

	setDefaults(v, configDir)

	v.SetEnvPrefix("TAOBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(configPath == "" && os.IsNotExist(err)) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.ConfigDir = configDir
	cfg.applyProviderEnv()
	cfg.applyModelDefault()
	return &cfg, nil
}

// applyProviderEnv falls back to the providers' conventional key variables
// when no key was configured explicitly.
func (c *Config) applyProviderEnv() {
	if c.LLM.APIKey != "" {
		return
	}
	var names []string
	switch c.LLM.Backend {
	case "openrouter":
		names = []string{"OPENROUTER_API_KEY"}
	case "gemini":
		names = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY"}
	}
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			c.LLM.APIKey = v
			return
		}
	}
}

func (c *Config) applyModelDefault() {
	if c.LLM.Model != "" {
		return
	}
	switch c.LLM.Backend {
	case "openrouter":
		c.LLM.Model = "google/gemini-2.5-flash"
	default:
		c.LLM.Model = "gemini-2.5-flash"
	}
}
