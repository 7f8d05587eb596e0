package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/chainverse/internal/api"
	"github.com/stellarlinkco/chainverse/internal/archive"
	"github.com/stellarlinkco/chainverse/internal/config"
	"github.com/stellarlinkco/chainverse/internal/daemon"
	"github.com/stellarlinkco/chainverse/internal/solana"
	"github.com/stellarlinkco/chainverse/internal/store"
	"github.com/stellarlinkco/chainverse/internal/words"
)

// Service is the slice of the daemon the commands drive (allows mocking
// in tests)
type Service interface {
	Run(ctx context.Context) error
	RunOnce(ctx context.Context) error
	Backfill(ctx context.Context, days int) error
	Close() error
}

// ServiceFactory creates a Service instance
type ServiceFactory func(cfg *config.Config) (Service, error)

// DefaultServiceFactory creates the real daemon
func DefaultServiceFactory(cfg *config.Config) (Service, error) {
	return daemon.New(cfg)
}

// CommandOptions for running commands with custom dependencies
type CommandOptions struct {
	ServiceFactory ServiceFactory
	SignalChan     chan os.Signal // for testing the api command
}

var rootCmd = &cobra.Command{
	Use:   "chainverse",
	Short: "chainverse - daily poems derived from Solana blocks",
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the full service (collector + scheduler + API)",
	RunE:  runDaemon,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect keywords and generate today's poem once",
	RunE:  runOnce,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Generate poems for past days from historical blocks",
	RunE:  runBackfill,
}

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the HTTP API without the collector",
	RunE:  runAPI,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chainverse status",
	RunE:  runStatus,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config, word list and data directory",
	RunE:  runOnboard,
}

var daysFlag int

func init() {
	backfillCmd.Flags().IntVarP(&daysFlag, "days", "d", 7, "Number of past days to backfill")
	rootCmd.AddCommand(daemonCmd, runCmd, backfillCmd, apiCmd, statusCmd, onboardCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newService(opts CommandOptions, cfg *config.Config) (Service, error) {
	factory := opts.ServiceFactory
	if factory == nil {
		factory = DefaultServiceFactory
	}
	return factory(cfg)
}

func requireAPIKey(cfg *config.Config) error {
	if cfg.Generation.APIKey == "" {
		return fmt.Errorf("OpenRouter API key not set. Run 'chainverse onboard' or set OPENROUTER_API_KEY")
	}
	return nil
}

// runDaemon is the command handler that uses default options
func runDaemon(cmd *cobra.Command, args []string) error {
	return runDaemonWithOptions(CommandOptions{})
}

// runDaemonWithOptions starts the daemon with injectable dependencies for testing
func runDaemonWithOptions(opts CommandOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	svc, err := newService(opts, cfg)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	return svc.Run(context.Background())
}

func runOnce(cmd *cobra.Command, args []string) error {
	return runOnceWithOptions(CommandOptions{})
}

func runOnceWithOptions(opts CommandOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	svc, err := newService(opts, cfg)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer svc.Close()

	return svc.RunOnce(context.Background())
}

func runBackfill(cmd *cobra.Command, args []string) error {
	return runBackfillWithOptions(CommandOptions{})
}

func runBackfillWithOptions(opts CommandOptions) error {
	if daysFlag < 1 {
		return fmt.Errorf("days must be at least 1")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	svc, err := newService(opts, cfg)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer svc.Close()

	return svc.Backfill(context.Background(), daysFlag)
}

func runAPI(cmd *cobra.Command, args []string) error {
	return runAPIWithOptions(CommandOptions{})
}

func runAPIWithOptions(opts CommandOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	srv := api.NewServer(st, cfg.Server.Host, cfg.Server.Port, cfg.Generation.MinKeywords)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start api: %w", err)
	}

	// Use injected signal channel for testing, or create default
	sigCh := opts.SignalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	return srv.Stop()
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Data dir: %s\n", cfg.Storage.DataDir)
	fmt.Printf("Model: %s\n", cfg.Generation.Model)
	fmt.Printf("RPC: %s\n", cfg.Solana.RPCURL)
	if dict, err := words.Load(config.WordsPath()); err == nil {
		fmt.Printf("Dictionary: %d words (%s)\n", dict.Count(), config.WordsPath())
	} else {
		fmt.Printf("Dictionary: %d words (built-in)\n", words.Default().Count())
	}
	if cfg.Generation.APIKey != "" && len(cfg.Generation.APIKey) > 8 {
		masked := cfg.Generation.APIKey[:4] + "..." + cfg.Generation.APIKey[len(cfg.Generation.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Generation.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}
	fmt.Printf("Bluesky: configured=%v\n", cfg.Channels.Bluesky.Identifier != "" && cfg.Channels.Bluesky.Password != "")
	fmt.Printf("Telegram: configured=%v\n", cfg.Channels.Telegram.Token != "")

	if _, err := os.Stat(cfg.DBPath()); err != nil {
		fmt.Println("Database: not found (run 'chainverse daemon' or 'chainverse run')")
	} else if st, err := store.Open(cfg.DBPath()); err != nil {
		fmt.Printf("Database: error (%v)\n", err)
	} else {
		defer st.Close()
		keywords, _ := st.KeywordCount()
		poems, _ := st.PoemCount()
		today, _ := st.CountForDate(store.Today())
		fmt.Printf("Database: %d keywords, %d poems (today: %d keywords)\n", keywords, poems, today)
		if p, err := st.PoemByDate(store.Today()); err == nil && p != nil {
			fmt.Println("Today's poem: ready")
		} else {
			fmt.Println("Today's poem: not yet generated")
		}
	}

	if records, err := archive.NewStore(cfg.ArchivePath(), cfg.Storage.ArchiveLimit).Load(); err != nil {
		fmt.Printf("Archive: error (%v)\n", err)
	} else {
		fmt.Printf("Archive: %d days\n", len(records))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := solana.NewClient(cfg.Solana.RPCURL).Health(ctx); err != nil {
		fmt.Printf("Solana RPC: unreachable (%v)\n", err)
	} else {
		fmt.Println("Solana RPC: ok")
	}

	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	wordsPath := config.WordsPath()
	if _, err := os.Stat(wordsPath); os.IsNotExist(err) {
		dict := words.Default()
		data, _ := json.MarshalIndent(dict, "", "  ")
		if err := os.WriteFile(wordsPath, data, 0644); err != nil {
			return fmt.Errorf("write word list: %w", err)
		}
		fmt.Printf("Created word list: %s (%d words)\n", wordsPath, dict.Count())
	} else {
		fmt.Printf("Word list already exists: %s\n", wordsPath)
	}

	cfg, _ := config.LoadConfig()
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	fmt.Printf("Data dir ready: %s\n", cfg.Storage.DataDir)

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your OpenRouter API key\n", cfgPath)
	fmt.Println("  2. Or set OPENROUTER_API_KEY environment variable")
	fmt.Println("  3. Run 'chainverse run' to generate today's poem")

	return nil
}
