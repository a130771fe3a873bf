package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultCoreModel      = "claude-sonnet-4-5-20250929"
	DefaultProModel       = "claude-opus-4-1-20250805"
	DefaultMaxTokens      = 8192
	DefaultUser           = "ak"
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 18790
	DefaultBufSize        = 100
	DefaultBackupSchedule = "0 0 3 * * *"

	// DefaultMaxRecordBytes caps one persisted vault record. Base64
	// images dominate record size; 5MB holds a long transcript with
	// several retained images.
	DefaultMaxRecordBytes = 5 * 1024 * 1024
)

type Config struct {
	Agent    AgentConfig    `json:"agent"`
	Provider ProviderConfig `json:"provider"`
	Tiers    TiersConfig    `json:"tiers"`
	Vault    VaultConfig    `json:"vault"`
	Channels ChannelsConfig `json:"channels"`
	Gateway  GatewayConfig  `json:"gateway"`
}

type AgentConfig struct {
	Workspace string `json:"workspace"`
	User      string `json:"user"` // default vault codename for the CLI
	MaxTokens int    `json:"maxTokens"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "anthropic" (default) or "openai"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// TiersConfig names the model behind each intelligence tier. Switching
// tiers means a differently-configured remote session, not a parameter
// on the current one.
type TiersConfig struct {
	Core TierConfig `json:"core"`
	Pro  TierConfig `json:"pro"`
}

type TierConfig struct {
	ChatModel string `json:"chatModel"`
}

type VaultConfig struct {
	Driver         string `json:"driver"` // "sqlite" (default), "file" or "memory"
	Path           string `json:"path,omitempty"`
	MaxRecordBytes int    `json:"maxRecordBytes,omitempty"`
	BackupEnabled  bool   `json:"backupEnabled"`
	BackupSchedule string `json:"backupSchedule,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	WebUI    WebUIConfig    `json:"webui"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type WebUIConfig struct {
	Enabled   bool     `json:"enabled"`
	AllowFrom []string `json:"allowFrom"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Agent: AgentConfig{
			Workspace: filepath.Join(home, ".eve", "workspace"),
			User:      DefaultUser,
			MaxTokens: DefaultMaxTokens,
		},
		Provider: ProviderConfig{},
		Tiers: TiersConfig{
			Core: TierConfig{ChatModel: DefaultCoreModel},
			Pro:  TierConfig{ChatModel: DefaultProModel},
		},
		Vault: VaultConfig{
			Driver:         "sqlite",
			MaxRecordBytes: DefaultMaxRecordBytes,
			BackupEnabled:  true,
			BackupSchedule: DefaultBackupSchedule,
		},
		Channels: ChannelsConfig{},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".eve")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("EVE_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_AUTH_TOKEN"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if url := os.Getenv("EVE_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if url := os.Getenv("ANTHROPIC_BASE_URL"); url != "" && cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = url
	}
	if user := os.Getenv("EVE_USER"); user != "" {
		cfg.Agent.User = user
	}
	if token := os.Getenv("EVE_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if driver := os.Getenv("EVE_VAULT_DRIVER"); driver != "" {
		cfg.Vault.Driver = driver
	}
	if path := os.Getenv("EVE_VAULT_PATH"); path != "" {
		cfg.Vault.Path = path
	}

	if cfg.Agent.Workspace == "" {
		cfg.Agent.Workspace = DefaultConfig().Agent.Workspace
	}
	if cfg.Agent.User == "" {
		cfg.Agent.User = DefaultUser
	}
	if cfg.Agent.MaxTokens <= 0 {
		cfg.Agent.MaxTokens = DefaultMaxTokens
	}
	if cfg.Tiers.Core.ChatModel == "" {
		cfg.Tiers.Core.ChatModel = DefaultCoreModel
	}
	if cfg.Tiers.Pro.ChatModel == "" {
		cfg.Tiers.Pro.ChatModel = DefaultProModel
	}
	if cfg.Vault.Driver == "" {
		cfg.Vault.Driver = "sqlite"
	}
	if cfg.Vault.Path == "" {
		cfg.Vault.Path = filepath.Join(ConfigDir(), "data", "vault.db")
	}
	if cfg.Vault.MaxRecordBytes <= 0 {
		cfg.Vault.MaxRecordBytes = DefaultMaxRecordBytes
	}
	if cfg.Vault.BackupSchedule == "" {
		cfg.Vault.BackupSchedule = DefaultBackupSchedule
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
