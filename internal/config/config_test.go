package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearEnvOverrides blanks every environment variable LoadConfig consults
// so ambient shell state cannot leak into a test.
func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENROUTER_API_KEY", "OPENROUTER_MODEL", "SOLANA_RPC_URL",
		"BLUESKY_IDENTIFIER", "BLUESKY_PASSWORD",
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
		"CHAINVERSE_DATA_DIR", "PORT", "KEYWORD_INTERVAL_MINUTES",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Solana.RPCURL != DefaultRPCURL {
		t.Errorf("rpcUrl = %q, want %q", cfg.Solana.RPCURL, DefaultRPCURL)
	}
	if cfg.Generation.Model != DefaultModel {
		t.Errorf("model = %q, want %q", cfg.Generation.Model, DefaultModel)
	}
	if cfg.Generation.MinKeywords != DefaultMinKeywords {
		t.Errorf("minKeywords = %d, want %d", cfg.Generation.MinKeywords, DefaultMinKeywords)
	}
	if cfg.Generation.TargetKeywords != DefaultTargetKeywords {
		t.Errorf("targetKeywords = %d, want %d", cfg.Generation.TargetKeywords, DefaultTargetKeywords)
	}
	if cfg.Generation.MaxKeywordsPerDay != DefaultMaxKeywordsPerDay {
		t.Errorf("maxKeywordsPerDay = %d, want %d", cfg.Generation.MaxKeywordsPerDay, DefaultMaxKeywordsPerDay)
	}
	if cfg.Schedule.KeywordIntervalMinutes != DefaultKeywordInterval {
		t.Errorf("keywordIntervalMinutes = %d, want %d", cfg.Schedule.KeywordIntervalMinutes, DefaultKeywordInterval)
	}
	if cfg.Schedule.BlocksPerBatch != DefaultBlocksPerBatch {
		t.Errorf("blocksPerBatch = %d, want %d", cfg.Schedule.BlocksPerBatch, DefaultBlocksPerBatch)
	}
	if cfg.Server.Host != DefaultHost {
		t.Errorf("host = %q, want %q", cfg.Server.Host, DefaultHost)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Storage.ArchiveLimit != DefaultArchiveLimit {
		t.Errorf("archiveLimit = %d, want %d", cfg.Storage.ArchiveLimit, DefaultArchiveLimit)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("data dir should not be empty")
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	// Override config dir to a temp location
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	clearEnvOverrides(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Generation.Model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, cfg.Generation.Model)
	}
	if cfg.Solana.RPCURL != DefaultRPCURL {
		t.Errorf("expected default rpc url %q, got %q", DefaultRPCURL, cfg.Solana.RPCURL)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	clearEnvOverrides(t)

	// Create config file
	cfgDir := filepath.Join(tmpDir, ".chainverse")
	os.MkdirAll(cfgDir, 0755)

	testCfg := map[string]any{
		"solana": map[string]any{
			"rpcUrl": "https://rpc.example.com",
		},
		"generation": map[string]any{
			"apiKey": "sk-or-test",
			"model":  "qwen/qwen-2.5-72b-instruct",
		},
		"channels": map[string]any{
			"bluesky": map[string]any{
				"identifier": "poet.example.com",
				"password":   "app-password",
			},
		},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Solana.RPCURL != "https://rpc.example.com" {
		t.Errorf("rpcUrl = %q, want https://rpc.example.com", cfg.Solana.RPCURL)
	}
	if cfg.Generation.APIKey != "sk-or-test" {
		t.Errorf("apiKey = %q, want sk-or-test", cfg.Generation.APIKey)
	}
	if cfg.Generation.Model != "qwen/qwen-2.5-72b-instruct" {
		t.Errorf("model = %q, want qwen/qwen-2.5-72b-instruct", cfg.Generation.Model)
	}
	if cfg.Channels.Bluesky.Identifier != "poet.example.com" {
		t.Errorf("bluesky identifier = %q, want poet.example.com", cfg.Channels.Bluesky.Identifier)
	}
	// Fields absent from the file keep their defaults
	if cfg.Generation.MinKeywords != DefaultMinKeywords {
		t.Errorf("minKeywords = %d, want %d", cfg.Generation.MinKeywords, DefaultMinKeywords)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	clearEnvOverrides(t)
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	t.Setenv("OPENROUTER_MODEL", "google/gemini-2.0-flash-exp:free")
	t.Setenv("SOLANA_RPC_URL", "https://rpc.env.example.com")
	t.Setenv("BLUESKY_IDENTIFIER", "env.bsky.social")
	t.Setenv("BLUESKY_PASSWORD", "env-password")
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-telegram-token")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001234567890")
	t.Setenv("CHAINVERSE_DATA_DIR", "/tmp/chainverse-data")
	t.Setenv("PORT", "8080")
	t.Setenv("KEYWORD_INTERVAL_MINUTES", "45")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Generation.APIKey != "env-key" {
		t.Errorf("apiKey = %q, want env-key", cfg.Generation.APIKey)
	}
	if cfg.Generation.Model != "google/gemini-2.0-flash-exp:free" {
		t.Errorf("model = %q", cfg.Generation.Model)
	}
	if cfg.Solana.RPCURL != "https://rpc.env.example.com" {
		t.Errorf("rpcUrl = %q", cfg.Solana.RPCURL)
	}
	if cfg.Channels.Bluesky.Identifier != "env.bsky.social" {
		t.Errorf("bluesky identifier = %q", cfg.Channels.Bluesky.Identifier)
	}
	if cfg.Channels.Bluesky.Password != "env-password" {
		t.Errorf("bluesky password = %q", cfg.Channels.Bluesky.Password)
	}
	if cfg.Channels.Telegram.Token != "env-telegram-token" {
		t.Errorf("telegram token = %q", cfg.Channels.Telegram.Token)
	}
	if cfg.Channels.Telegram.ChatID != -1001234567890 {
		t.Errorf("telegram chat id = %d", cfg.Channels.Telegram.ChatID)
	}
	if cfg.Storage.DataDir != "/tmp/chainverse-data" {
		t.Errorf("data dir = %q", cfg.Storage.DataDir)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Schedule.KeywordIntervalMinutes != 45 {
		t.Errorf("keywordIntervalMinutes = %d, want 45", cfg.Schedule.KeywordIntervalMinutes)
	}
}

func TestLoadConfig_EnvBeatsFile(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	clearEnvOverrides(t)

	cfgDir := filepath.Join(tmpDir, ".chainverse")
	os.MkdirAll(cfgDir, 0755)
	testCfg := map[string]any{
		"generation": map[string]any{"model": "file-model"},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	t.Setenv("OPENROUTER_MODEL", "env-model")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Generation.Model != "env-model" {
		t.Errorf("model = %q, want env-model", cfg.Generation.Model)
	}
}

func TestLoadConfig_ClampsBadValues(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	clearEnvOverrides(t)

	cfgDir := filepath.Join(tmpDir, ".chainverse")
	os.MkdirAll(cfgDir, 0755)
	testCfg := map[string]any{
		"generation": map[string]any{
			"minKeywords":       0,
			"targetKeywords":    2,
			"maxKeywordsPerDay": 1,
		},
		"schedule": map[string]any{
			"keywordIntervalMinutes": 0,
			"blocksPerBatch":         -3,
		},
		"server":  map[string]any{"port": -1},
		"storage": map[string]any{"archiveLimit": 0},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Generation.MinKeywords != DefaultMinKeywords {
		t.Errorf("minKeywords = %d, want %d", cfg.Generation.MinKeywords, DefaultMinKeywords)
	}
	if cfg.Generation.TargetKeywords != DefaultMinKeywords {
		t.Errorf("targetKeywords = %d, want clamped to %d", cfg.Generation.TargetKeywords, DefaultMinKeywords)
	}
	if cfg.Generation.MaxKeywordsPerDay != cfg.Generation.TargetKeywords {
		t.Errorf("maxKeywordsPerDay = %d, want clamped to %d", cfg.Generation.MaxKeywordsPerDay, cfg.Generation.TargetKeywords)
	}
	if cfg.Schedule.KeywordIntervalMinutes != DefaultKeywordInterval {
		t.Errorf("keywordIntervalMinutes = %d, want %d", cfg.Schedule.KeywordIntervalMinutes, DefaultKeywordInterval)
	}
	if cfg.Schedule.BlocksPerBatch != DefaultBlocksPerBatch {
		t.Errorf("blocksPerBatch = %d, want %d", cfg.Schedule.BlocksPerBatch, DefaultBlocksPerBatch)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Storage.ArchiveLimit != DefaultArchiveLimit {
		t.Errorf("archiveLimit = %d, want %d", cfg.Storage.ArchiveLimit, DefaultArchiveLimit)
	}
}

func TestLoadConfig_BadChatIDIgnored(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	clearEnvOverrides(t)
	t.Setenv("TELEGRAM_CHAT_ID", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Channels.Telegram.ChatID != 0 {
		t.Errorf("chat id = %d, want 0", cfg.Channels.Telegram.ChatID)
	}
}

func TestSaveConfig(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfg := DefaultConfig()
	cfg.Generation.APIKey = "test-key"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, ".chainverse", "config.json"))
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal saved config: %v", err)
	}
	if loaded.Generation.APIKey != "test-key" {
		t.Errorf("saved apiKey = %q, want test-key", loaded.Generation.APIKey)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfgDir := filepath.Join(tmpDir, ".chainverse")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("invalid json"), 0644)

	_, err := LoadConfig()
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestPaths(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfg := DefaultConfig()
	cfg.Storage.DataDir = "/var/lib/chainverse"

	if got := cfg.DBPath(); got != filepath.Join("/var/lib/chainverse", "chainverse.db") {
		t.Errorf("DBPath = %q", got)
	}
	if got := cfg.ArchivePath(); got != filepath.Join("/var/lib/chainverse", "archive.json") {
		t.Errorf("ArchivePath = %q", got)
	}
	if got := cfg.ImageMarkerPath(); got != filepath.Join("/var/lib/chainverse", "last_image") {
		t.Errorf("ImageMarkerPath = %q", got)
	}
	if got := WordsPath(); !strings.HasPrefix(got, filepath.Join(tmpDir, ".chainverse")) {
		t.Errorf("WordsPath = %q, want under %s", got, filepath.Join(tmpDir, ".chainverse"))
	}
}
