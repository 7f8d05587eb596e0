package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultRPCURL            = "https://api.mainnet-beta.solana.com"
	DefaultModel             = "meta-llama/llama-3.2-3b-instruct:free"
	DefaultMinKeywords       = 8
	DefaultTargetKeywords    = 16
	DefaultMaxKeywordsPerDay = 24
	DefaultKeywordInterval   = 90
	DefaultBlocksPerBatch    = 12
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 3000
	DefaultArchiveLimit      = 30
	DefaultPostBudget        = 300
)

type Config struct {
	Solana     SolanaConfig     `json:"solana"`
	Generation GenerationConfig `json:"generation"`
	Channels   ChannelsConfig   `json:"channels"`
	Schedule   ScheduleConfig   `json:"schedule"`
	Server     ServerConfig     `json:"server"`
	Storage    StorageConfig    `json:"storage"`
}

type SolanaConfig struct {
	RPCURL string `json:"rpcUrl"`
}

type GenerationConfig struct {
	APIKey            string `json:"apiKey"`
	Model             string `json:"model"`
	MinKeywords       int    `json:"minKeywords"`
	TargetKeywords    int    `json:"targetKeywords"`
	MaxKeywordsPerDay int    `json:"maxKeywordsPerDay"`
}

type ChannelsConfig struct {
	Bluesky  BlueskyConfig  `json:"bluesky"`
	Telegram TelegramConfig `json:"telegram"`
}

type BlueskyConfig struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Footer     string `json:"footer,omitempty"`
	PostBudget int    `json:"postBudget,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chatId"`
}

type ScheduleConfig struct {
	KeywordIntervalMinutes int `json:"keywordIntervalMinutes"`
	BlocksPerBatch         int `json:"blocksPerBatch"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type StorageConfig struct {
	DataDir      string `json:"dataDir"`
	ArchiveLimit int    `json:"archiveLimit"`
	ImagesDir    string `json:"imagesDir,omitempty"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Solana: SolanaConfig{
			RPCURL: DefaultRPCURL,
		},
		Generation: GenerationConfig{
			Model:             DefaultModel,
			MinKeywords:       DefaultMinKeywords,
			TargetKeywords:    DefaultTargetKeywords,
			MaxKeywordsPerDay: DefaultMaxKeywordsPerDay,
		},
		Channels: ChannelsConfig{},
		Schedule: ScheduleConfig{
			KeywordIntervalMinutes: DefaultKeywordInterval,
			BlocksPerBatch:         DefaultBlocksPerBatch,
		},
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Storage: StorageConfig{
			DataDir:      filepath.Join(home, ".chainverse", "data"),
			ArchiveLimit: DefaultArchiveLimit,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".chainverse")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// WordsPath is the dictionary file next to the config; a missing file
// means the built-in dictionary is used.
func WordsPath() string {
	return filepath.Join(ConfigDir(), "words.json")
}

func (c *Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, "chainverse.db")
}

func (c *Config) ArchivePath() string {
	return filepath.Join(c.Storage.DataDir, "archive.json")
}

func (c *Config) ImageMarkerPath() string {
	return filepath.Join(c.Storage.DataDir, "last_image")
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
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		cfg.Generation.APIKey = key
	}
	if model := os.Getenv("OPENROUTER_MODEL"); model != "" {
		cfg.Generation.Model = model
	}
	if url := os.Getenv("SOLANA_RPC_URL"); url != "" {
		cfg.Solana.RPCURL = url
	}
	if id := os.Getenv("BLUESKY_IDENTIFIER"); id != "" {
		cfg.Channels.Bluesky.Identifier = id
	}
	if pw := os.Getenv("BLUESKY_PASSWORD"); pw != "" {
		cfg.Channels.Bluesky.Password = pw
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		if parsed, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			cfg.Channels.Telegram.ChatID = parsed
		}
	}
	if dir := os.Getenv("CHAINVERSE_DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if port := os.Getenv("PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if interval := os.Getenv("KEYWORD_INTERVAL_MINUTES"); interval != "" {
		if parsed, err := strconv.Atoi(interval); err == nil {
			cfg.Schedule.KeywordIntervalMinutes = parsed
		}
	}

	if cfg.Solana.RPCURL == "" {
		cfg.Solana.RPCURL = DefaultRPCURL
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = DefaultModel
	}
	if cfg.Generation.MinKeywords <= 0 {
		cfg.Generation.MinKeywords = DefaultMinKeywords
	}
	if cfg.Generation.TargetKeywords < cfg.Generation.MinKeywords {
		cfg.Generation.TargetKeywords = cfg.Generation.MinKeywords
	}
	if cfg.Generation.MaxKeywordsPerDay < cfg.Generation.TargetKeywords {
		cfg.Generation.MaxKeywordsPerDay = cfg.Generation.TargetKeywords
	}
	if cfg.Schedule.KeywordIntervalMinutes <= 0 {
		cfg.Schedule.KeywordIntervalMinutes = DefaultKeywordInterval
	}
	if cfg.Schedule.BlocksPerBatch <= 0 {
		cfg.Schedule.BlocksPerBatch = DefaultBlocksPerBatch
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = DefaultConfig().Storage.DataDir
	}
	if cfg.Storage.ArchiveLimit <= 0 {
		cfg.Storage.ArchiveLimit = DefaultArchiveLimit
	}
	if cfg.Channels.Bluesky.PostBudget <= 0 {
		cfg.Channels.Bluesky.PostBudget = DefaultPostBudget
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
