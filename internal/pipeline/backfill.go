package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stellarlinkco/chainverse/internal/derive"
	"github.com/stellarlinkco/chainverse/internal/solana"
	"github.com/stellarlinkco/chainverse/internal/store"
)

const (
	// backfillProbes bounds the backward search around each sampled
	// historical slot. Old slots are skipped far more often than recent
	// ones, so this is wider than the live-collection probe window.
	backfillProbes = 50

	// backfillKeywordsPerDay is how many keywords a reconstructed day
	// aims for before its poem is generated.
	backfillKeywordsPerDay = 12

	backfillSampleDelay = 100 * time.Millisecond
	backfillDayDelay    = 2 * time.Second
)

// Backfill generates poems for the last days that are missing one,
// oldest first. Backfilled poems are stored and archived but never
// published. Failed days are logged and skipped so one bad day cannot
// block the rest.
func (r *Runner) Backfill(ctx context.Context, days int) error {
	failed := 0
	for daysAgo := days; daysAgo >= 1; daysAgo-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		date := time.Now().UTC().AddDate(0, 0, -daysAgo).Format("2006-01-02")
		if err := r.BackfillDate(ctx, date, daysAgo); err != nil {
			log.Printf("[pipeline] backfill %s failed: %v", date, err)
			failed++
		}
		if r.dayDelay > 0 && daysAgo > 1 {
			time.Sleep(r.dayDelay)
		}
	}
	if failed > 0 {
		return fmt.Errorf("backfill incomplete: %d of %d days failed", failed, days)
	}
	return nil
}

// BackfillDate collects keywords for one past date by sampling slots
// spread evenly across that day, then generates and archives its poem.
// A date that already has a poem is skipped; one that already has some
// keywords only collects the shortfall.
func (r *Runner) BackfillDate(ctx context.Context, date string, daysAgo int) error {
	existing, err := r.opts.Store.PoemByDate(date)
	if err != nil {
		return err
	}
	if existing != nil {
		log.Printf("[pipeline] %s already has a poem, skipping", date)
		return nil
	}

	have, err := r.opts.Store.CountForDate(date)
	if err != nil {
		return fmt.Errorf("count keywords: %w", err)
	}
	if needed := backfillKeywordsPerDay - have; needed > 0 {
		if err := r.collectHistorical(ctx, date, daysAgo, needed); err != nil {
			return err
		}
	}

	kws, err := r.opts.Store.KeywordsForDate(date)
	if err != nil {
		return fmt.Errorf("load keywords: %w", err)
	}
	if len(kws) < r.opts.MinKeywords {
		return fmt.Errorf("collected %d keywords for %s, need %d: %w",
			len(kws), date, r.opts.MinKeywords, derive.ErrInsufficientKeywords)
	}
	generated, err := r.opts.Generator.Generate(ctx, derive.Words(kws))
	if err != nil {
		return fmt.Errorf("generate poem: %w", err)
	}
	p := store.Poem{
		Date:        date,
		Content:     generated.Content,
		Model:       generated.Model,
		Keywords:    keywordEntries(kws),
		GeneratedAt: generated.GeneratedAt.Format(time.RFC3339),
	}
	if err := r.opts.Store.UpsertPoem(p); err != nil {
		return fmt.Errorf("store poem: %w", err)
	}
	r.archiveDay(p)
	log.Printf("[pipeline] backfilled %s: %d keywords, model %s", date, len(kws), p.Model)
	return nil
}

// collectHistorical samples needed evenly spaced slots across the day
// daysAgo days back and stores one keyword per resolvable block. Sample
// points without a usable block are logged and skipped.
func (r *Runner) collectHistorical(ctx context.Context, date string, daysAgo, needed int) error {
	current, err := r.opts.Chain.CurrentSlot(ctx)
	if err != nil {
		return fmt.Errorf("current slot: %w", err)
	}
	span := uint64(daysAgo) * solana.SlotsPerDay
	if span > current {
		return fmt.Errorf("chain history does not reach %s", date)
	}
	base := current - span

	interval := uint64(solana.SlotsPerDay / (needed + 1))
	seen, err := r.opts.Store.WordsForDate(date)
	if err != nil {
		return fmt.Errorf("load seen words: %w", err)
	}

	var collected []derive.Keyword
	for i := 1; i <= needed; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := base + uint64(i)*interval
		blk, err := r.opts.Chain.BlockNear(ctx, target, backfillProbes)
		if err != nil {
			log.Printf("[pipeline] backfill %s: no block near %d: %v", date, target, err)
			continue
		}
		kws, err := r.opts.Deriver.CollectWithSeen([]solana.Block{blk}, 1, 0, seen)
		if err == nil {
			collected = append(collected, kws...)
		}
		if r.sampleDelay > 0 && i < needed {
			time.Sleep(r.sampleDelay)
		}
	}
	if len(collected) == 0 {
		return nil
	}
	if _, err := r.opts.Store.InsertKeywordsForDate(date, collected); err != nil {
		return err
	}
	return nil
}
