package application

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ericfisherdev/critchecker/internal/domain/commentbody"
	"github.com/ericfisherdev/critchecker/internal/domain/model"
)

// batchAnnouncement matches the words participants use when opening a batch.
var batchAnnouncement = regexp.MustCompile(`(?i)\b(?:batch(?:es)?|crits?|critiques?)\b`)

// DiscoveryStats counts the top-level comments discovery had to skip.
type DiscoveryStats struct {
	Scanned       int
	ParseFailures int
}

// convenors identifies the organizers whose comments are never critiques.
// Names are compared case-insensitively.
type convenors map[string]bool

func newConvenors(names ...string) convenors {
	set := make(convenors, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			set[strings.ToLower(n)] = true
		}
	}
	return set
}

// includes reports whether author is a convenor or the owner of the batch
// being examined.
func (c convenors) includes(author, batchOwner string) bool {
	if author == "" {
		return false
	}
	return c[strings.ToLower(author)] || strings.EqualFold(author, batchOwner)
}

// DiscoverBatches reads every top-level comment on the launch post and returns
// those that open a critique batch, in the order the platform returns them.
// Failing to read the launch post is fatal; a top-level comment whose body
// cannot be parsed is skipped and counted.
func DiscoverBatches(ctx context.Context, cache *CommentCache, launch model.Deviation, opts RunOptions) ([]model.CritiqueBatch, DiscoveryStats, error) {
	var stats DiscoveryStats

	comments, err := cache.TopLevel(ctx, launch)
	if err != nil {
		return nil, stats, err
	}

	organizers := newConvenors(append([]string{launch.Artist}, opts.Convenors...)...)
	batches := make([]model.CritiqueBatch, 0, len(comments))

	for _, c := range comments {
		stats.Scanned++

		if postedBefore(c.Posted, opts.StartDate) {
			continue
		}
		if organizers.includes(c.Author, "") {
			continue
		}

		body, err := commentbody.Parse(c.Body)
		if err != nil {
			stats.ParseFailures++
			slog.Warn("skipping unparseable top-level comment",
				"comment", c.URL.String(),
				"error", err,
			)
			continue
		}

		linked := structuralLinks(body.Links)
		if opts.ScanText {
			linked = unionURLs(linked, model.ScanCommentURLs(body.Text))
		}
		linked = withoutSelf(linked, c.URL)

		if !isBatch(body, linked) {
			continue
		}

		batches = append(batches, model.CritiqueBatch{
			URL:    c.URL,
			Author: c.Author,
			Posted: c.Posted,
			Linked: linked,
		})
	}

	slog.Info("batch discovery complete",
		"launch", launch.ID,
		"comments", stats.Scanned,
		"batches", len(batches),
		"parse_failures", stats.ParseFailures,
	)

	return batches, stats, nil
}

// isBatch reports whether a top-level comment opens a critique round: it
// either links to critiques or announces itself as a batch. Replies alone do
// not make a batch, since holiday greetings collect replies too.
func isBatch(body model.Body, linked []model.CommentURL) bool {
	return len(linked) > 0 || batchAnnouncement.MatchString(body.Text)
}

// structuralLinks keeps the link targets that address a comment.
func structuralLinks(hrefs []string) []model.CommentURL {
	var urls []model.CommentURL
	for _, href := range hrefs {
		u, err := model.ParseCommentURL(href)
		if err != nil {
			continue
		}
		urls = unionURLs(urls, []model.CommentURL{u})
	}
	return urls
}

// unionURLs appends the members of extra that base does not hold yet,
// preserving first-appearance order.
func unionURLs(base, extra []model.CommentURL) []model.CommentURL {
	seen := make(map[model.CommentID]bool, len(base)+len(extra))
	for _, u := range base {
		seen[u.CommentID] = true
	}
	for _, u := range extra {
		if seen[u.CommentID] {
			continue
		}
		seen[u.CommentID] = true
		base = append(base, u)
	}
	return base
}

func withoutSelf(urls []model.CommentURL, self model.CommentURL) []model.CommentURL {
	var out []model.CommentURL
	for _, u := range urls {
		if u.CommentID != self.CommentID {
			out = append(out, u)
		}
	}
	return out
}

// postedBefore reports whether posted precedes the start of the event. A zero
// start disables the filter.
func postedBefore(posted, start time.Time) bool {
	return !start.IsZero() && posted.Before(start)
}
