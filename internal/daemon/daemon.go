// Package daemon assembles the collector, generator, publisher and API
// into the long-running service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/stellarlinkco/chainverse/internal/api"
	"github.com/stellarlinkco/chainverse/internal/archive"
	"github.com/stellarlinkco/chainverse/internal/channel"
	"github.com/stellarlinkco/chainverse/internal/config"
	"github.com/stellarlinkco/chainverse/internal/cron"
	"github.com/stellarlinkco/chainverse/internal/derive"
	"github.com/stellarlinkco/chainverse/internal/pipeline"
	"github.com/stellarlinkco/chainverse/internal/poem"
	"github.com/stellarlinkco/chainverse/internal/solana"
	"github.com/stellarlinkco/chainverse/internal/store"
	"github.com/stellarlinkco/chainverse/internal/words"
)

const collectJobName = "collect"

// Pipeline is the slice of the runner the daemon drives (allows mocking
// in tests).
type Pipeline interface {
	Tick(ctx context.Context) error
	RunOnce(ctx context.Context) error
	Backfill(ctx context.Context, days int) error
}

// Options for creating a Daemon.
type Options struct {
	Pipeline   Pipeline
	SignalChan chan os.Signal // for testing signal handling
}

// Daemon owns the scheduled collection loop and the HTTP API.
type Daemon struct {
	cfg        *config.Config
	store      *store.Store
	pipeline   Pipeline
	cron       *cron.Service
	api        *api.Server
	signalChan chan os.Signal // for testing
}

// New creates a Daemon with default options.
func New(cfg *config.Config) (*Daemon, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Daemon with custom options for testing.
func NewWithOptions(cfg *config.Config, opts Options) (*Daemon, error) {
	d := &Daemon{cfg: cfg}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	d.store = st

	// Pipeline (allows injection for testing)
	p := opts.Pipeline
	if p == nil {
		p, err = buildRunner(cfg, st)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	d.pipeline = p

	// Signal channel for testing
	d.signalChan = opts.SignalChan

	// Cron
	d.cron = cron.NewService()
	spec := fmt.Sprintf("@every %dm", cfg.Schedule.KeywordIntervalMinutes)
	if err := d.cron.Add(collectJobName, spec, d.pipeline.Tick); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("register collect job: %w", err)
	}

	// API
	d.api = api.NewServer(st, cfg.Server.Host, cfg.Server.Port, cfg.Generation.MinKeywords)

	return d, nil
}

func buildRunner(cfg *config.Config, st *store.Store) (*pipeline.Runner, error) {
	dict, err := words.Load(config.WordsPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[daemon] word list warning: %v (using built-in)", err)
		}
		dict = words.Default()
	}
	deriver, err := derive.NewDeriver(dict.All())
	if err != nil {
		return nil, fmt.Errorf("create deriver: %w", err)
	}

	chain := solana.NewClient(cfg.Solana.RPCURL)
	generator := poem.NewGenerator(poem.NewClient(cfg.Generation.APIKey), cfg.Generation.Model)

	bsky := channel.NewBlueskyChannel(
		"",
		cfg.Channels.Bluesky.Identifier,
		cfg.Channels.Bluesky.Password,
		cfg.Channels.Bluesky.Footer,
		cfg.Channels.Bluesky.PostBudget,
	)

	manager := channel.NewManager()
	if cfg.Channels.Telegram.Token != "" {
		tg, err := channel.NewTelegramChannel(cfg.Channels.Telegram.Token, cfg.Channels.Telegram.ChatID)
		if err != nil {
			log.Printf("[daemon] telegram channel warning: %v", err)
		} else {
			manager.Add(tg)
		}
	}

	return pipeline.NewRunner(pipeline.Options{
		Store:             st,
		Deriver:           deriver,
		Chain:             chain,
		Generator:         generator,
		Publisher:         bsky,
		Announcer:         manager,
		Archive:           archive.NewStore(cfg.ArchivePath(), cfg.Storage.ArchiveLimit),
		BlocksPerBatch:    cfg.Schedule.BlocksPerBatch,
		MinKeywords:       cfg.Generation.MinKeywords,
		TargetKeywords:    cfg.Generation.TargetKeywords,
		MaxKeywordsPerDay: cfg.Generation.MaxKeywordsPerDay,
		ImagesDir:         cfg.Storage.ImagesDir,
		ImageMarkerPath:   cfg.ImageMarkerPath(),
	}), nil
}

// Run starts the scheduler and API, then blocks until a termination
// signal arrives.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.cron.Start(ctx); err != nil {
		return fmt.Errorf("start cron: %w", err)
	}
	// First collection pass without waiting out the interval.
	d.cron.RunNow(collectJobName)

	if err := d.api.Start(); err != nil {
		return fmt.Errorf("start api: %w", err)
	}

	log.Printf("[daemon] running, api on %s:%d", d.cfg.Server.Host, d.cfg.Server.Port)

	// Use injected signal channel for testing, or create default
	sigCh := d.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[daemon] shutting down...")
	return d.Shutdown()
}

// Shutdown stops the scheduler and API and closes the store.
func (d *Daemon) Shutdown() error {
	d.cron.Stop()
	if err := d.api.Stop(); err != nil {
		log.Printf("[daemon] api stop warning: %v", err)
	}
	if err := d.store.Close(); err != nil {
		log.Printf("[daemon] close store warning: %v", err)
	}
	log.Printf("[daemon] shutdown complete")
	return nil
}

// RunOnce performs a single collect-and-generate pass and returns.
func (d *Daemon) RunOnce(ctx context.Context) error {
	return d.pipeline.RunOnce(ctx)
}

// Backfill generates poems for past days from historical blocks.
func (d *Daemon) Backfill(ctx context.Context, days int) error {
	return d.pipeline.Backfill(ctx, days)
}

// Close releases resources for one-shot commands that never call Run.
func (d *Daemon) Close() error {
	return d.store.Close()
}
