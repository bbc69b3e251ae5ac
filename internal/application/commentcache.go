package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/critchecker/internal/domain/model"
	"github.com/ericfisherdev/critchecker/internal/domain/port/driven"
)

// CommentCache memoizes every comment and reply list fetched during one run.
// Each key is fetched at most once: concurrent callers for a key in flight
// wait for the same fetch, and the outcome, error included, is kept for the
// rest of the run. Aborts caused by context cancellation are not kept.
//
// CommentCache is safe for concurrent use. Entries are never evicted.
type CommentCache struct {
	client driven.CommentClient
	sem    *semaphore.Weighted
	flight singleflight.Group

	mu       sync.RWMutex
	comments map[model.CommentID]model.RawComment
	replies  map[model.CommentID][]model.CommentID
	failures map[string]error

	fetches atomic.Int64
}

// NewCommentCache creates an empty cache that allows at most concurrency
// transport calls in flight at once.
func NewCommentCache(client driven.CommentClient, concurrency int) *CommentCache {
	if concurrency < 1 {
		concurrency = 1
	}
	return &CommentCache{
		client:   client,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		comments: make(map[model.CommentID]model.RawComment),
		replies:  make(map[model.CommentID][]model.CommentID),
		failures: make(map[string]error),
	}
}

// Store records c unless a comment with the same id is already cached.
// It reports whether c was stored.
func (c *CommentCache) Store(comment model.RawComment) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storeLocked(comment)
}

func (c *CommentCache) storeLocked(comment model.RawComment) bool {
	if _, ok := c.comments[comment.ID()]; ok {
		return false
	}
	c.comments[comment.ID()] = comment
	return true
}

// FetchCount returns the number of transport calls issued so far.
func (c *CommentCache) FetchCount() int {
	return int(c.fetches.Load())
}

// Get returns the comment addressed by url, fetching it on first use.
func (c *CommentCache) Get(ctx context.Context, url model.CommentURL) (model.RawComment, error) {
	key := "comment:" + string(url.CommentID)

	if comment, ok, err := c.lookupComment(url.CommentID, key); ok {
		if err != nil {
			return model.RawComment{}, fmt.Errorf("fetch comment %s: %w", url.CommentID, err)
		}
		return comment, nil
	}

	_, err, _ := c.flight.Do(key, func() (any, error) {
		if _, ok, err := c.lookupComment(url.CommentID, key); ok {
			return nil, err
		}

		var comment model.RawComment
		err := c.call(ctx, func() error {
			var ferr error
			comment, ferr = c.client.FetchComment(ctx, url)
			return ferr
		})
		if err != nil {
			c.fail(key, err)
			return nil, err
		}

		c.Store(comment)
		return nil, nil
	})
	if err != nil {
		return model.RawComment{}, fmt.Errorf("fetch comment %s: %w", url.CommentID, err)
	}

	comment, _, _ := c.lookupComment(url.CommentID, key)
	return comment, nil
}

// Replies returns every direct reply to parent, exhausting pagination on
// first use. Each reply is also stored individually so later Get calls for it
// are cache hits.
func (c *CommentCache) Replies(ctx context.Context, parent model.CommentURL) ([]model.RawComment, error) {
	key := "replies:" + string(parent.CommentID)

	if replies, ok, err := c.lookupReplies(parent.CommentID, key); ok {
		if err != nil {
			return nil, fmt.Errorf("fetch replies to %s: %w", parent.CommentID, err)
		}
		return replies, nil
	}

	_, err, _ := c.flight.Do(key, func() (any, error) {
		if _, ok, err := c.lookupReplies(parent.CommentID, key); ok {
			return nil, err
		}

		children, err := c.paginate(ctx, func(offset int) (model.CommentPage, error) {
			return c.client.FetchReplies(ctx, parent, offset)
		})
		if err != nil {
			c.fail(key, err)
			return nil, err
		}

		c.remember(parent.CommentID, children)
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch replies to %s: %w", parent.CommentID, err)
	}

	replies, _, _ := c.lookupReplies(parent.CommentID, key)
	return replies, nil
}

// TopLevel returns every comment posted directly on dev. The launch post is
// read once per run, so the list itself is not memoized, but each comment is
// stored for later lookups.
func (c *CommentCache) TopLevel(ctx context.Context, dev model.Deviation) ([]model.RawComment, error) {
	comments, err := c.paginate(ctx, func(offset int) (model.CommentPage, error) {
		return c.client.FetchTopLevel(ctx, dev, offset)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch comments on %s: %w", dev.ID, err)
	}

	c.mu.Lock()
	for _, comment := range comments {
		c.storeLocked(comment)
	}
	c.mu.Unlock()

	return comments, nil
}

// paginate requests pages until the transport reports no more.
func (c *CommentCache) paginate(ctx context.Context, fetch func(offset int) (model.CommentPage, error)) ([]model.RawComment, error) {
	var all []model.RawComment
	offset := 0

	for {
		var page model.CommentPage
		err := c.call(ctx, func() error {
			var ferr error
			page, ferr = fetch(offset)
			return ferr
		})
		if err != nil {
			return nil, err
		}

		all = append(all, page.Comments...)

		if !page.HasMore || page.NextOffset <= offset {
			break
		}
		offset = page.NextOffset
	}

	return all, nil
}

// call runs one transport request under the concurrency bound.
func (c *CommentCache) call(ctx context.Context, fn func() error) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	c.fetches.Add(1)
	return fn()
}

func (c *CommentCache) remember(parent model.CommentID, children []model.RawComment) {
	ids := make([]model.CommentID, 0, len(children))

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, child := range children {
		c.storeLocked(child)
		ids = append(ids, child.ID())
	}
	c.replies[parent] = ids
}

func (c *CommentCache) fail(key string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	c.mu.Lock()
	c.failures[key] = err
	c.mu.Unlock()
}

// lookupComment reports a cached outcome for id. ok is false when the comment
// has neither been stored nor failed.
func (c *CommentCache) lookupComment(id model.CommentID, key string) (comment model.RawComment, ok bool, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if comment, ok := c.comments[id]; ok {
		return comment, true, nil
	}
	if err, ok := c.failures[key]; ok {
		return model.RawComment{}, true, err
	}
	return model.RawComment{}, false, nil
}

func (c *CommentCache) lookupReplies(parent model.CommentID, key string) ([]model.RawComment, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if ids, ok := c.replies[parent]; ok {
		replies := make([]model.RawComment, 0, len(ids))
		for _, id := range ids {
			replies = append(replies, c.comments[id])
		}
		return replies, true, nil
	}
	if err, ok := c.failures[key]; ok {
		return nil, true, err
	}
	return nil, false, nil
}
