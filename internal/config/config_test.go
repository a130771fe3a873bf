package config

import (
	"os"
	"path/filepath"
	"testing"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{
		"EVE_API_KEY", "ANTHROPIC_API_KEY", "ANTHROPIC_AUTH_TOKEN",
		"OPENAI_API_KEY", "EVE_BASE_URL", "ANTHROPIC_BASE_URL",
		"EVE_USER", "EVE_TELEGRAM_TOKEN", "EVE_VAULT_DRIVER", "EVE_VAULT_PATH",
	} {
		t.Setenv(k, "")
	}
	return home
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := isolateHome(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Tiers.Core.ChatModel != DefaultCoreModel {
		t.Errorf("core model = %q", cfg.Tiers.Core.ChatModel)
	}
	if cfg.Tiers.Pro.ChatModel != DefaultProModel {
		t.Errorf("pro model = %q", cfg.Tiers.Pro.ChatModel)
	}
	if cfg.Vault.Driver != "sqlite" {
		t.Errorf("vault driver = %q, want sqlite", cfg.Vault.Driver)
	}
	if cfg.Vault.MaxRecordBytes != DefaultMaxRecordBytes {
		t.Errorf("max record bytes = %d", cfg.Vault.MaxRecordBytes)
	}
	if cfg.Agent.User != DefaultUser {
		t.Errorf("user = %q", cfg.Agent.User)
	}
	wantPath := filepath.Join(home, ".eve", "data", "vault.db")
	if cfg.Vault.Path != wantPath {
		t.Errorf("vault path = %q, want %q", cfg.Vault.Path, wantPath)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	home := isolateHome(t)

	dir := filepath.Join(home, ".eve")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	raw := `{
  "provider": {"apiKey": "sk-test"},
  "tiers": {"pro": {"chatModel": "custom-pro"}},
  "vault": {"driver": "memory"}
}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider.APIKey != "sk-test" {
		t.Errorf("apiKey = %q", cfg.Provider.APIKey)
	}
	if cfg.Tiers.Pro.ChatModel != "custom-pro" {
		t.Errorf("pro model = %q", cfg.Tiers.Pro.ChatModel)
	}
	if cfg.Vault.Driver != "memory" {
		t.Errorf("driver = %q", cfg.Vault.Driver)
	}
	// Omitted fields still fall back to defaults.
	if cfg.Tiers.Core.ChatModel != DefaultCoreModel {
		t.Errorf("core model = %q, want default", cfg.Tiers.Core.ChatModel)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	isolateHome(t)

	t.Setenv("EVE_API_KEY", "sk-env")
	t.Setenv("EVE_USER", "luna")
	t.Setenv("EVE_VAULT_DRIVER", "file")
	t.Setenv("EVE_VAULT_PATH", "/tmp/custom/vault.db")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider.APIKey != "sk-env" {
		t.Errorf("apiKey = %q", cfg.Provider.APIKey)
	}
	if cfg.Agent.User != "luna" {
		t.Errorf("user = %q", cfg.Agent.User)
	}
	if cfg.Vault.Driver != "file" || cfg.Vault.Path != "/tmp/custom/vault.db" {
		t.Errorf("vault = %q %q", cfg.Vault.Driver, cfg.Vault.Path)
	}
}

func TestLoadConfig_OpenAIKeyImpliesProvider(t *testing.T) {
	isolateHome(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider.APIKey != "sk-openai" || cfg.Provider.Type != "openai" {
		t.Errorf("provider = %+v, want openai key and type", cfg.Provider)
	}
}

func TestLoadConfig_EveKeyWinsOverAnthropic(t *testing.T) {
	isolateHome(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-anthropic")
	t.Setenv("EVE_API_KEY", "sk-eve")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider.APIKey != "sk-eve" {
		t.Errorf("apiKey = %q, want EVE_API_KEY to win", cfg.Provider.APIKey)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	isolateHome(t)

	cfg := DefaultConfig()
	cfg.Provider.APIKey = "sk-saved"
	cfg.Channels.Telegram.Enabled = true
	cfg.Channels.Telegram.Token = "12345:token"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Provider.APIKey != "sk-saved" {
		t.Errorf("apiKey = %q", loaded.Provider.APIKey)
	}
	if !loaded.Channels.Telegram.Enabled || loaded.Channels.Telegram.Token != "12345:token" {
		t.Errorf("telegram = %+v", loaded.Channels.Telegram)
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	home := isolateHome(t)

	dir := filepath.Join(home, ".eve")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(); err == nil {
		t.Error("malformed config should error, not silently use defaults")
	}
}
