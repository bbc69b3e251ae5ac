// Package deviantart implements the CommentClient port against DeviantArt's
// public comment API.
package deviantart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/critchecker/internal/domain/model"
	"github.com/ericfisherdev/critchecker/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CommentClient = (*Client)(nil)

const (
	// DefaultBaseURL is the production site root.
	DefaultBaseURL = "https://www.deviantart.com"

	threadPath = "/_napi/shared_api/comments/thread"
	// tokenPath is a page that does not exist; its 404 body is small and still
	// embeds the session CSRF token.
	tokenPath = "/_"

	pageLimit = 50
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

// ErrTokenNotFound is returned when the CSRF token cannot be scraped.
var ErrTokenNotFound = errors.New("csrf token not found")

var csrfPattern = regexp.MustCompile(`"csrf":"(.+?)"`)

// Client implements the driven.CommentClient port using resty.
// The CSRF token is fetched lazily on the first API call and reused.
type Client struct {
	http    *resty.Client
	baseURL string

	mu    sync.Mutex
	token string
}

// Options configures NewClient.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Retries int
}

// NewClient creates a DeviantArt client with the following transport stack:
//  1. httpcache (in-memory conditional request caching)
//  2. resty (timeouts, retries on 429 and 5xx)
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Transport: httpcache.NewMemoryCacheTransport(),
		Timeout:   opts.Timeout,
	}

	c := newClient(httpClient, opts.BaseURL)
	c.http.
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})
	return c
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) *Client {
	return newClient(httpClient, baseURL)
}

func newClient(httpClient *http.Client, baseURL string) *Client {
	r := resty.NewWithClient(httpClient).
		SetHeader("User-Agent", userAgent)

	return &Client{
		http:    r,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// FetchTopLevel retrieves one page of the comments posted directly on dev,
// newest first.
func (c *Client) FetchTopLevel(ctx context.Context, dev model.Deviation, offset int) (model.CommentPage, error) {
	params := map[string]string{
		"itemid": dev.ID,
		"typeid": strconv.Itoa(dev.TypeID()),
	}

	page, err := c.thread(ctx, params, offset)
	if err != nil {
		return model.CommentPage{}, fmt.Errorf("listing comments on %s (offset %d): %w", dev.ID, offset, err)
	}

	return mapPage(page, func(rc model.RawComment) bool { return rc.ParentID == "" })
}

// FetchReplies retrieves one page of the direct replies to parent.
func (c *Client) FetchReplies(ctx context.Context, parent model.CommentURL, offset int) (model.CommentPage, error) {
	page, err := c.thread(ctx, commentParams(parent), offset)
	if err != nil {
		return model.CommentPage{}, fmt.Errorf("listing replies to %s (offset %d): %w", parent.CommentID, offset, err)
	}

	return mapPage(page, func(rc model.RawComment) bool { return rc.ParentID == parent.CommentID })
}

// FetchComment retrieves the comment addressed by url from its permalink
// thread.
func (c *Client) FetchComment(ctx context.Context, url model.CommentURL) (model.RawComment, error) {
	page, err := c.thread(ctx, commentParams(url), 0)
	if err != nil {
		return model.RawComment{}, fmt.Errorf("fetching comment %s: %w", url.CommentID, err)
	}

	mapped, err := mapPage(page, func(rc model.RawComment) bool { return rc.ID() == url.CommentID })
	if err != nil {
		return model.RawComment{}, fmt.Errorf("fetching comment %s: %w", url.CommentID, err)
	}
	if len(mapped.Comments) == 0 {
		return model.RawComment{}, fmt.Errorf("%s: %w", url, driven.ErrCommentNotFound)
	}

	return mapped.Comments[0], nil
}

func commentParams(u model.CommentURL) map[string]string {
	return map[string]string{
		"itemid":    u.ItemID,
		"typeid":    u.TypeID,
		"commentid": string(u.CommentID),
	}
}

// thread performs one request against the thread endpoint.
func (c *Client) thread(ctx context.Context, params map[string]string, offset int) (threadPayload, error) {
	token, err := c.csrfToken(ctx)
	if err != nil {
		return threadPayload{}, err
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParams(map[string]string{
			"order":      "newest",
			"maxdepth":   "0",
			"offset":     strconv.Itoa(offset),
			"limit":      strconv.Itoa(pageLimit),
			"csrf_token": token,
		}).
		Get(c.baseURL + threadPath)
	if err != nil {
		return threadPayload{}, fmt.Errorf("%w: %w", driven.ErrConnection, err)
	}
	if res.IsError() {
		return threadPayload{}, fmt.Errorf("%w: %s", driven.ErrResponse, res.Status())
	}

	slog.Debug("comment page fetched",
		"item", params["itemid"],
		"comment", params["commentid"],
		"offset", offset,
		"bytes", len(res.Body()),
		"duration", res.Time().Round(time.Millisecond),
	)

	return decodeThread(res.Body())
}

// csrfToken returns the cached token, scraping it on first use.
func (c *Client) csrfToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}

	// The page is requested for its 404 body, so the status is not checked.
	res, err := c.http.R().
		SetContext(ctx).
		Get(c.baseURL + tokenPath)
	if err != nil {
		return "", fmt.Errorf("authenticating: %w: %w", driven.ErrConnection, err)
	}

	token, err := extractToken(string(res.Body()))
	if err != nil {
		return "", fmt.Errorf("authenticating: %w", err)
	}

	c.token = token
	return token, nil
}

// extractToken finds the CSRF token inside the inline scripts of a page.
func extractToken(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenNotFound, err)
	}

	var token string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := csrfPattern.FindStringSubmatch(s.Text()); m != nil {
			token = m[1]
			return false
		}
		return true
	})

	if token == "" {
		return "", ErrTokenNotFound
	}
	return token, nil
}
