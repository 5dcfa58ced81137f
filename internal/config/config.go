package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything the daemon and CLI need. Loaded from
// <config_dir>/codelatch/config.toml with CODELATCH_* env overrides.
type Config struct {
	TelegramBotToken   string `mapstructure:"telegram_bot_token" toml:"telegram_bot_token"`
	TelegramChatID     int64  `mapstructure:"telegram_chat_id" toml:"telegram_chat_id"`
	AutoDenySeconds    int64  `mapstructure:"auto_deny_seconds" toml:"auto_deny_seconds"`
	HookTimeoutSeconds int64  `mapstructure:"hook_timeout_seconds" toml:"hook_timeout_seconds"`
	ContextLines       int    `mapstructure:"context_lines" toml:"context_lines"`
	MaxInlineLength    int    `mapstructure:"max_inline_length" toml:"max_inline_length"`
	SocketPath         string `mapstructure:"socket_path" toml:"socket_path"`
	DBPath             string `mapstructure:"db_path" toml:"db_path"`
}

func (c Config) IsConfigured() bool {
	return strings.TrimSpace(c.TelegramBotToken) != "" && c.TelegramChatID != 0
}

func ConfigDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "codelatch")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "codelatch")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "codelatch")
}

func PidPath() string {
	return filepath.Join(DataDir(), "codelatchd.pid")
}

func LockPath() string {
	return filepath.Join(DataDir(), "codelatchd.lock")
}

func LogPath() string {
	return filepath.Join(DataDir(), "codelatch.log")
}

func ClaudeSettingsPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude", "settings.json")
}

func DefaultSocketPath() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "codelatch.sock")
	}
	return "/tmp/codelatch.sock"
}

func DefaultDBPath() string {
	return filepath.Join(DataDir(), "codelatch.db")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(ConfigPath())
	v.SetConfigType("toml")
	v.SetEnvPrefix("CODELATCH")
	v.AutomaticEnv()
	// Every key needs a default registered or AutomaticEnv will not
	// surface its CODELATCH_* override.
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("telegram_chat_id", int64(0))
	v.SetDefault("auto_deny_seconds", 600)
	v.SetDefault("hook_timeout_seconds", 3600)
	v.SetDefault("context_lines", 15)
	v.SetDefault("max_inline_length", 4096)
	v.SetDefault("socket_path", DefaultSocketPath())
	v.SetDefault("db_path", DefaultDBPath())
	return v
}

// Default returns the built-in defaults without reading any file.
func Default() Config {
	var cfg Config
	_ = newViper().Unmarshal(&cfg)
	return cfg
}

// Load reads the config file if present; a missing file yields defaults.
func Load() (Config, error) {
	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the config as TOML with mode 0600 (the bot token lives here).
func Save(cfg Config) error {
	if err := os.MkdirAll(ConfigDir(), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	v := newViper()
	v.Set("telegram_bot_token", cfg.TelegramBotToken)
	v.Set("telegram_chat_id", cfg.TelegramChatID)
	v.Set("auto_deny_seconds", cfg.AutoDenySeconds)
	v.Set("hook_timeout_seconds", cfg.HookTimeoutSeconds)
	v.Set("context_lines", cfg.ContextLines)
	v.Set("max_inline_length", cfg.MaxInlineLength)
	v.Set("socket_path", cfg.SocketPath)
	v.Set("db_path", cfg.DBPath)
	if err := v.WriteConfigAs(ConfigPath()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Chmod(ConfigPath(), 0600)
}
