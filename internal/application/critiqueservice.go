// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/critchecker/internal/domain/model"
	"github.com/ericfisherdev/critchecker/internal/domain/port/driven"
)

// DefaultConcurrency is the number of transport calls allowed in flight.
const DefaultConcurrency = 8

// RunOptions tunes one critique collection run.
type RunOptions struct {
	// StartDate excludes batches and linked critiques posted before it.
	StartDate time.Time
	// Convenors are organizer handles whose comments are never critiques,
	// in addition to the launch post author and each batch owner.
	Convenors []string
	// ScanText also collects comment URLs written as plain text in batch
	// bodies.
	ScanText    bool
	Concurrency int
	MaxDepth    int
}

func (o RunOptions) withDefaults() RunOptions {
	if o.Concurrency < 1 {
		o.Concurrency = DefaultConcurrency
	}
	if o.MaxDepth < 1 {
		o.MaxDepth = DefaultMaxDepth
	}
	return o
}

// CritiqueService orchestrates batch discovery, reply traversal, report
// assembly and persistence for one launch post.
type CritiqueService struct {
	client   driven.CommentClient
	writer   driven.ReportWriter
	store    driven.ReportStore
	progress driven.Progress
}

// NewCritiqueService creates a CritiqueService. store may be nil when no
// database export is configured; progress may be nil to disable progress
// output.
func NewCritiqueService(
	client driven.CommentClient,
	writer driven.ReportWriter,
	store driven.ReportStore,
	progress driven.Progress,
) *CritiqueService {
	if progress == nil {
		progress = driven.NopProgress{}
	}
	return &CritiqueService{
		client:   client,
		writer:   writer,
		store:    store,
		progress: progress,
	}
}

// Run collects every critique posted for the launch post at launchURL and
// writes the report. Subtree-level failures are counted in the summary and do
// not fail the run. Launch-level failures, write failures and cancellation
// return an error, and in that case no report is written.
func (s *CritiqueService) Run(ctx context.Context, launchURL string, opts RunOptions) (model.RunSummary, error) {
	start := time.Now()
	opts = opts.withDefaults()

	var summary model.RunSummary

	launch, err := model.ParseDeviationURL(launchURL)
	if err != nil {
		return summary, err
	}
	if err := launch.Validate(); err != nil {
		return summary, err
	}

	cache := NewCommentCache(s.client, opts.Concurrency)

	batches, discovery, err := DiscoverBatches(ctx, cache, launch, opts)
	if err != nil {
		return summary, fmt.Errorf("discover batches: %w", err)
	}
	summary.Batches = len(batches)
	summary.ParseFailures = discovery.ParseFailures

	perBatch, traversal, err := s.traverseAll(ctx, cache, launch, batches, opts)
	if err != nil {
		return summary, fmt.Errorf("traverse batches: %w", err)
	}
	summary.FetchFailures += traversal.FetchFailures
	summary.ParseFailures += traversal.ParseFailures

	records, dropped := Assemble(batches, perBatch)
	summary.DuplicatesDropped = dropped
	summary.Critiques = len(records)
	for _, r := range records {
		if r.IsEmpty() {
			summary.EmptyCritiques++
		} else {
			summary.ValidCritiques++
		}
	}
	summary.CommentsFetched = cache.FetchCount()

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	if err := s.writer.Write(ctx, records); err != nil {
		return summary, fmt.Errorf("write report: %w", err)
	}

	if s.store != nil {
		// The CSV is already in place, so a failed export only warns.
		runID, err := s.store.ReplaceForLaunch(ctx, launch, records, summary)
		if err != nil {
			slog.Warn("report not stored", "launch", launch.ID, "error", err)
		} else {
			slog.Info("report stored", "run_id", runID, "launch", launch.ID)
		}
	}

	slog.Info("critique run complete",
		"launch", launch.ID,
		"batches", summary.Batches,
		"critiques", summary.Critiques,
		"duplicates", summary.DuplicatesDropped,
		"skipped", summary.Skipped(),
		"fetches", summary.CommentsFetched,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return summary, nil
}

// traverseAll walks every batch concurrently. Results are slotted by batch
// index so assembly sees them in discovery order.
func (s *CritiqueService) traverseAll(
	ctx context.Context,
	cache *CommentCache,
	launch model.Deviation,
	batches []model.CritiqueBatch,
	opts RunOptions,
) ([][]model.CritiqueRecord, TraversalStats, error) {
	traverser := NewTraverser(cache, launch, opts)

	perBatch := make([][]model.CritiqueRecord, len(batches))
	stats := make([]TraversalStats, len(batches))

	s.progress.Start(len(batches))
	defer s.progress.Finish()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, batch := range batches {
		g.Go(func() error {
			records, st, err := traverser.Traverse(gctx, batch)
			if err != nil {
				return err
			}
			perBatch[i] = records
			stats[i] = st
			s.progress.Advance()

			slog.Debug("batch traversed",
				"batch", batch.URL.String(),
				"author", batch.Author,
				"critiques", len(records),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, TraversalStats{}, err
	}

	var total TraversalStats
	for _, st := range stats {
		total.add(st)
	}
	return perBatch, total, nil
}
