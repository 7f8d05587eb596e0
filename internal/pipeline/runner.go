// Package pipeline wires block sampling, keyword derivation, poem
// generation, publishing and archiving into the daily cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/stellarlinkco/chainverse/internal/archive"
	"github.com/stellarlinkco/chainverse/internal/channel"
	"github.com/stellarlinkco/chainverse/internal/derive"
	"github.com/stellarlinkco/chainverse/internal/poem"
	"github.com/stellarlinkco/chainverse/internal/solana"
	"github.com/stellarlinkco/chainverse/internal/store"
)

const (
	defaultBlocksPerBatch = 12
	defaultMinKeywords    = 8
)

// Blockchain is the slice of the Solana client the pipeline uses.
type Blockchain interface {
	CurrentSlot(ctx context.Context) (uint64, error)
	BlockNear(ctx context.Context, slot uint64, probes int) (solana.Block, error)
	RecentBlocks(ctx context.Context, count int) ([]solana.Block, error)
}

// Generator produces a poem from a keyword list.
type Generator interface {
	Generate(ctx context.Context, keywords []string) (poem.Poem, error)
}

// Publisher posts a poem thread to a social channel.
type Publisher interface {
	Configured() bool
	PublishThread(ctx context.Context, poem string, image *channel.ImageAttachment) (channel.PostRef, error)
}

// Announcer broadcasts a short text notification.
type Announcer interface {
	Announce(text string)
}

// Options wires the runner's collaborators and limits.
type Options struct {
	Store     *store.Store
	Deriver   *derive.Deriver
	Chain     Blockchain
	Generator Generator
	Publisher Publisher
	Announcer Announcer
	Archive   *archive.Store

	BlocksPerBatch    int
	MinKeywords       int
	TargetKeywords    int
	MaxKeywordsPerDay int
	ImagesDir         string
	ImageMarkerPath   string
}

// Runner drives the daily poem cycle.
type Runner struct {
	opts        Options
	sampleDelay time.Duration
	dayDelay    time.Duration
}

// NewRunner builds a runner, clamping nonsensical limits.
func NewRunner(opts Options) *Runner {
	if opts.BlocksPerBatch <= 0 {
		opts.BlocksPerBatch = defaultBlocksPerBatch
	}
	if opts.MinKeywords <= 0 {
		opts.MinKeywords = defaultMinKeywords
	}
	if opts.TargetKeywords < opts.MinKeywords {
		opts.TargetKeywords = opts.MinKeywords
	}
	if opts.MaxKeywordsPerDay < opts.TargetKeywords {
		opts.MaxKeywordsPerDay = opts.TargetKeywords
	}
	return &Runner{
		opts:        opts,
		sampleDelay: backfillSampleDelay,
		dayDelay:    backfillDayDelay,
	}
}

// CollectBatch samples recent blocks and stores newly derived keywords,
// bounded by the per-run target and the daily cap. Returns how many new
// keywords were stored.
func (r *Runner) CollectBatch(ctx context.Context) (int, error) {
	date := store.Today()
	count, err := r.opts.Store.CountForDate(date)
	if err != nil {
		return 0, fmt.Errorf("count keywords: %w", err)
	}
	if count >= r.opts.MaxKeywordsPerDay {
		log.Printf("[pipeline] daily keyword cap reached (%d)", count)
		return 0, nil
	}

	max := r.opts.TargetKeywords
	if room := r.opts.MaxKeywordsPerDay - count; room < max {
		max = room
	}

	blocks, err := r.opts.Chain.RecentBlocks(ctx, r.opts.BlocksPerBatch)
	if err != nil {
		return 0, fmt.Errorf("fetch blocks: %w", err)
	}
	seen, err := r.opts.Store.WordsForDate(date)
	if err != nil {
		return 0, fmt.Errorf("load seen words: %w", err)
	}
	kws, err := r.opts.Deriver.CollectWithSeen(blocks, max, 0, seen)
	if err != nil {
		return 0, err
	}

	inserted, err := r.opts.Store.InsertKeywords(kws)
	if err != nil {
		return inserted, err
	}
	log.Printf("[pipeline] collected %d keywords from %d blocks (day total %d)", inserted, len(blocks), count+inserted)
	return inserted, nil
}

// GenerateDaily turns today's keywords into the day's poem, publishes it
// and updates the archive. It fails when fewer than the minimum keywords
// have been collected or when every model in the chain fails. Publish and
// archive problems only log; the stored poem is already safe by then.
func (r *Runner) GenerateDaily(ctx context.Context) (*store.Poem, error) {
	date := store.Today()
	kws, err := r.opts.Store.KeywordsForDate(date)
	if err != nil {
		return nil, fmt.Errorf("load keywords: %w", err)
	}
	if len(kws) < r.opts.MinKeywords {
		return nil, fmt.Errorf("have %d keywords for %s, need %d: %w",
			len(kws), date, r.opts.MinKeywords, derive.ErrInsufficientKeywords)
	}

	generated, err := r.opts.Generator.Generate(ctx, derive.Words(kws))
	if err != nil {
		return nil, fmt.Errorf("generate poem: %w", err)
	}

	p := store.Poem{
		Date:        date,
		Content:     generated.Content,
		Model:       generated.Model,
		Keywords:    keywordEntries(kws),
		GeneratedAt: generated.GeneratedAt.Format(time.RFC3339),
	}
	if err := r.opts.Store.UpsertPoem(p); err != nil {
		return nil, fmt.Errorf("store poem: %w", err)
	}
	log.Printf("[pipeline] generated poem for %s with %s (%d keywords)", date, p.Model, len(kws))

	r.publish(ctx, &p)
	r.archiveDay(p)
	r.announce(p)
	return &p, nil
}

// Tick is one scheduled pass: top up today's keywords, then generate the
// poem once enough have accumulated. A day still below its keyword
// minimum is left to grow; that is not an error.
func (r *Runner) Tick(ctx context.Context) error {
	runID := uuid.New().String()[:8]
	log.Printf("[pipeline] tick %s started", runID)

	if _, err := r.CollectBatch(ctx); err != nil {
		return err
	}

	date := store.Today()
	existing, err := r.opts.Store.PoemByDate(date)
	if err != nil {
		return err
	}
	if existing != nil {
		log.Printf("[pipeline] tick %s: poem for %s already generated", runID, date)
		return nil
	}
	count, err := r.opts.Store.CountForDate(date)
	if err != nil {
		return err
	}
	if count < r.opts.MinKeywords {
		log.Printf("[pipeline] tick %s: %d of %d keywords, waiting", runID, count, r.opts.MinKeywords)
		return nil
	}
	_, err = r.GenerateDaily(ctx)
	return err
}

// RunOnce performs a full collect-and-generate pass. Unlike Tick it
// treats an under-collected day as an error, which suits one-shot runs.
func (r *Runner) RunOnce(ctx context.Context) error {
	runID := uuid.New().String()[:8]
	log.Printf("[pipeline] run %s started", runID)

	if _, err := r.CollectBatch(ctx); err != nil {
		return err
	}
	existing, err := r.opts.Store.PoemByDate(store.Today())
	if err != nil {
		return err
	}
	if existing != nil {
		log.Printf("[pipeline] run %s: poem for %s already generated", runID, existing.Date)
		return nil
	}
	_, err = r.GenerateDaily(ctx)
	return err
}

func (r *Runner) publish(ctx context.Context, p *store.Poem) {
	if r.opts.Publisher == nil || !r.opts.Publisher.Configured() {
		log.Printf("[pipeline] no publish channel configured, keeping poem local")
		return
	}

	var image *channel.ImageAttachment
	if r.opts.ImagesDir != "" {
		img, err := channel.NextImage(r.opts.ImagesDir, r.opts.ImageMarkerPath)
		if err != nil {
			log.Printf("[pipeline] image selection failed: %v", err)
		} else {
			image = img
		}
	}

	ref, err := r.opts.Publisher.PublishThread(ctx, p.Content, image)
	if err != nil {
		if !errors.Is(err, channel.ErrPublishPartial) {
			log.Printf("[pipeline] publish failed: %v", err)
			return
		}
		log.Printf("[pipeline] publish incomplete: %v", err)
	}
	if ref.URI == "" {
		return
	}
	p.PostURI = ref.URI
	if err := r.opts.Store.SetPostURI(p.Date, ref.URI); err != nil {
		log.Printf("[pipeline] record post uri: %v", err)
	}
}

func (r *Runner) archiveDay(p store.Poem) {
	if r.opts.Archive == nil {
		return
	}
	rec := archive.DayRecord{
		Date:     p.Date,
		Keywords: p.Keywords,
		Poem: &archive.PoemEntry{
			Content:     p.Content,
			Model:       p.Model,
			GeneratedAt: p.GeneratedAt,
		},
		PostURI: p.PostURI,
	}
	if err := r.opts.Archive.Upsert(rec); err != nil {
		log.Printf("[pipeline] archive update failed: %v", err)
	}
}

func (r *Runner) announce(p store.Poem) {
	if r.opts.Announcer == nil {
		return
	}
	text := fmt.Sprintf("Daily poem for %s\n\n%s", p.Date, p.Content)
	if url := channel.PostWebURL(p.PostURI); url != "" {
		text += "\n\n" + url
	}
	r.opts.Announcer.Announce(text)
}

func keywordEntries(kws []derive.Keyword) []archive.KeywordEntry {
	out := make([]archive.KeywordEntry, len(kws))
	for i, kw := range kws {
		out[i] = archive.KeywordEntry{Word: kw.Word, Slot: kw.Slot, Source: string(kw.Source)}
	}
	return out
}
