package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/critchecker/internal/domain/commentbody"
	"github.com/ericfisherdev/critchecker/internal/domain/model"
	"github.com/ericfisherdev/critchecker/internal/domain/port/driven"
)

// DefaultMaxDepth bounds how deep a reply tree is followed.
const DefaultMaxDepth = 8

// TraversalStats counts what a traversal had to leave out.
type TraversalStats struct {
	Visited       int
	FetchFailures int
	ParseFailures int
}

func (s *TraversalStats) add(o TraversalStats) {
	s.Visited += o.Visited
	s.FetchFailures += o.FetchFailures
	s.ParseFailures += o.ParseFailures
}

// Traverser collects the critiques posted in reply to a batch.
type Traverser struct {
	cache       *CommentCache
	organizers  convenors
	startDate   time.Time
	maxDepth    int
	concurrency int
}

// NewTraverser creates a Traverser reading through cache. The launch post
// author is always treated as a convenor.
func NewTraverser(cache *CommentCache, launch model.Deviation, opts RunOptions) *Traverser {
	opts = opts.withDefaults()
	return &Traverser{
		cache:       cache,
		organizers:  newConvenors(append([]string{launch.Artist}, opts.Convenors...)...),
		startDate:   opts.StartDate,
		maxDepth:    opts.MaxDepth,
		concurrency: opts.Concurrency,
	}
}

// parentSlot is one node of the current level whose replies are requested.
type parentSlot struct {
	url     model.CommentURL
	replies []model.RawComment
	err     error
}

// Traverse walks the reply tree of batch breadth-first, then resolves the
// comments the batch links to. Records are returned in encounter order: direct
// replies in the order the platform lists them, followed by linked critiques
// in link order.
//
// A failure to read one node's replies abandons that subtree only. The
// returned error is non-nil only when ctx is done.
func (t *Traverser) Traverse(ctx context.Context, batch model.CritiqueBatch) ([]model.CritiqueRecord, TraversalStats, error) {
	var (
		records []model.CritiqueRecord
		stats   TraversalStats
	)

	visited := map[model.CommentID]bool{batch.URL.CommentID: true}
	frontier := []model.CommentURL{batch.URL}

	for depth := 1; len(frontier) > 0 && depth <= t.maxDepth; depth++ {
		slots, err := t.fetchLevel(ctx, frontier)
		if err != nil {
			return nil, stats, err
		}

		var next []model.CommentURL
		for _, slot := range slots {
			if slot.err != nil {
				stats.FetchFailures++
				slog.Warn("abandoning reply subtree",
					"batch", batch.URL.String(),
					"parent", slot.url.String(),
					"error", slot.err,
				)
				continue
			}

			for _, reply := range slot.replies {
				if visited[reply.ID()] {
					continue
				}
				visited[reply.ID()] = true
				stats.Visited++

				if rec, ok := t.classifyReply(batch, reply, depth, &stats); ok {
					records = append(records, rec)
				}
				if reply.Replies > 0 {
					next = append(next, reply.URL)
				}
			}
		}

		if depth == t.maxDepth && len(next) > 0 {
			slog.Debug("reply tree truncated at depth limit",
				"batch", batch.URL.String(),
				"depth", depth,
				"pending", len(next),
			)
		}
		frontier = next
	}

	linked, linkStats, err := t.resolveLinked(ctx, batch)
	if err != nil {
		return nil, stats, err
	}
	stats.add(linkStats)
	records = append(records, linked...)

	return records, stats, nil
}

// fetchLevel requests the replies of every parent concurrently. Results are
// slotted by parent position so ordering does not depend on completion order.
func (t *Traverser) fetchLevel(ctx context.Context, parents []model.CommentURL) ([]parentSlot, error) {
	slots := make([]parentSlot, len(parents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)

	for i, parent := range parents {
		slots[i].url = parent
		g.Go(func() error {
			replies, err := t.cache.Replies(gctx, parent)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slots[i].err = err
				return nil
			}
			slots[i].replies = replies
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slots, nil
}

// classifyReply decides whether a reply found in the tree is a critique.
// Only direct replies by participants count; everything deeper, and anything
// written by a convenor, is conversation about a critique.
func (t *Traverser) classifyReply(batch model.CritiqueBatch, reply model.RawComment, depth int, stats *TraversalStats) (model.CritiqueRecord, bool) {
	if depth != 1 || t.organizers.includes(reply.Author, batch.Author) {
		return model.CritiqueRecord{}, false
	}
	return t.toRecord(batch, reply, model.RecordSourceReply, stats)
}

// resolveLinked looks up every comment the batch body links to.
func (t *Traverser) resolveLinked(ctx context.Context, batch model.CritiqueBatch) ([]model.CritiqueRecord, TraversalStats, error) {
	var (
		records []model.CritiqueRecord
		stats   TraversalStats
	)

	for _, url := range batch.Linked {
		comment, err := t.cache.Get(ctx, url)
		if errors.Is(err, driven.ErrCommentNotFound) {
			// A deleted critique still counts toward the batch, as an empty one.
			slog.Debug("linked critique deleted", "batch", batch.URL.String(), "critique", url.String())
			records = append(records, model.CritiqueRecord{
				BatchURL:    batch.URL,
				CritiqueURL: url,
				Source:      model.RecordSourceLink,
			})
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, stats, ctxErr
			}
			stats.FetchFailures++
			slog.Warn("skipping linked critique",
				"batch", batch.URL.String(),
				"critique", url.String(),
				"error", err,
			)
			continue
		}

		if postedBefore(comment.Posted, t.startDate) || t.organizers.includes(comment.Author, batch.Author) {
			continue
		}
		if rec, ok := t.toRecord(batch, comment, model.RecordSourceLink, &stats); ok {
			records = append(records, rec)
		}
	}

	return records, stats, nil
}

func (t *Traverser) toRecord(batch model.CritiqueBatch, c model.RawComment, source model.RecordSource, stats *TraversalStats) (model.CritiqueRecord, bool) {
	body, err := commentbody.Parse(c.Body)
	if err != nil {
		stats.ParseFailures++
		slog.Warn("skipping unparseable critique",
			"batch", batch.URL.String(),
			"critique", c.URL.String(),
			"error", err,
		)
		return model.CritiqueRecord{}, false
	}

	return model.CritiqueRecord{
		BatchURL:    batch.URL,
		CritiqueURL: c.URL,
		Author:      c.Author,
		Posted:      c.Posted,
		Text:        body.Text,
		Words:       body.Words,
		Chars:       body.Chars,
		Source:      source,
	}, true
}
