package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// CommentURLPattern matches a DeviantArt comment permalink and captures the
// type id, item id and comment id. It is unanchored so it can scan free text.
var CommentURLPattern = regexp.MustCompile(`https?://(?:www\.)?deviantart\.com/comments/(\d+)/(\d+)/(\d+)`)

// ErrInvalidCommentURL is returned when a string is not a comment permalink.
var ErrInvalidCommentURL = errors.New("invalid comment URL")

// CommentID is the platform-assigned identifier of a comment.
type CommentID string

// CommentURL identifies a comment by the item it was posted on and its own id.
// Its String form is the canonical deduplication key of a critique.
type CommentURL struct {
	TypeID    string
	ItemID    string
	CommentID CommentID
}

// String returns the canonical permalink of the comment.
func (u CommentURL) String() string {
	return "https://www.deviantart.com/comments/" + u.TypeID + "/" + u.ItemID + "/" + string(u.CommentID)
}

// IsZero reports whether u is the zero CommentURL.
func (u CommentURL) IsZero() bool {
	return u == CommentURL{}
}

// ParseCommentURL parses a comment permalink. Scheme, the optional "www."
// host prefix, a trailing slash, query and fragment are tolerated; anything
// else must match the permalink form exactly.
func ParseCommentURL(raw string) (CommentURL, error) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, "/")

	m := CommentURLPattern.FindStringSubmatch(s)
	if m == nil || m[0] != s {
		return CommentURL{}, fmt.Errorf("%q: %w", raw, ErrInvalidCommentURL)
	}

	return CommentURL{TypeID: m[1], ItemID: m[2], CommentID: CommentID(m[3])}, nil
}

// ScanCommentURLs returns the unique comment permalinks found in text, in
// order of first appearance.
func ScanCommentURLs(text string) []CommentURL {
	var urls []CommentURL
	seen := make(map[CommentURL]bool)

	for _, m := range CommentURLPattern.FindAllStringSubmatch(text, -1) {
		u := CommentURL{TypeID: m[1], ItemID: m[2], CommentID: CommentID(m[3])}
		if seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}

	return urls
}

// RawBody is a comment body as delivered by the platform: a tagged variant of
// the encoding kind and its serialized markup.
type RawBody struct {
	Kind     BodyKind
	Markup   string
	Features string // JSON array of platform-computed features, may be empty.
}

// RawComment is one fetched comment. It is immutable once fetched and owned by
// the comment cache.
type RawComment struct {
	URL      CommentURL
	ParentID CommentID // Empty for top-level comments.
	Author   string
	Posted   time.Time
	Replies  int
	Body     RawBody
}

// ID returns the comment's identifier.
func (c RawComment) ID() CommentID {
	return c.URL.CommentID
}

// CommentPage is one page of comments returned by the transport.
type CommentPage struct {
	Comments   []RawComment
	HasMore    bool
	NextOffset int
}

// Body is the parsed, human-authored content of a comment.
type Body struct {
	Text  string
	Words int
	Chars int
	Links []string // Link targets carried by the body's structural link data.
}
