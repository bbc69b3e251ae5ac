package deviantart

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ericfisherdev/critchecker/internal/domain/model"
	"github.com/ericfisherdev/critchecker/internal/domain/port/driven"
)

// postedLayouts are the timestamp forms the comment API has been seen to use.
var postedLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
}

// threadPayload is one page of the comments/thread endpoint.
type threadPayload struct {
	HasMore    *bool            `json:"hasMore"`
	NextOffset *int             `json:"nextOffset"`
	Thread     []commentPayload `json:"thread"`
}

type commentPayload struct {
	CommentID   json.Number  `json:"commentId"`
	TypeID      json.Number  `json:"typeId"`
	ItemID      json.Number  `json:"itemId"`
	ParentID    *json.Number `json:"parentId"`
	Posted      string       `json:"posted"`
	Replies     int          `json:"replies"`
	User        *userPayload `json:"user"`
	TextContent *struct {
		HTML bodyPayload `json:"html"`
	} `json:"textContent"`
}

type userPayload struct {
	Username string `json:"username"`
}

type bodyPayload struct {
	Type     string `json:"type"`
	Markup   string `json:"markup"`
	Features string `json:"features"`
}

func decodeThread(data []byte) (threadPayload, error) {
	var page threadPayload
	if err := json.Unmarshal(data, &page); err != nil {
		return threadPayload{}, fmt.Errorf("%w: %w", driven.ErrBadJSON, err)
	}
	if page.HasMore == nil || page.Thread == nil {
		return threadPayload{}, fmt.Errorf("%w: missing thread fields", driven.ErrBadJSON)
	}
	return page, nil
}

// mapPage converts a decoded page into the domain form. keep filters the
// comments; a nil keep keeps everything.
func mapPage(page threadPayload, keep func(model.RawComment) bool) (model.CommentPage, error) {
	out := model.CommentPage{HasMore: *page.HasMore}
	if page.NextOffset != nil {
		out.NextOffset = *page.NextOffset
	}

	for _, p := range page.Thread {
		c, err := mapComment(p)
		if err != nil {
			return model.CommentPage{}, err
		}
		if keep == nil || keep(c) {
			out.Comments = append(out.Comments, c)
		}
	}
	return out, nil
}

func mapComment(p commentPayload) (model.RawComment, error) {
	if p.CommentID == "" || p.ItemID == "" || p.TypeID == "" {
		return model.RawComment{}, fmt.Errorf("%w: comment without ids", driven.ErrBadJSON)
	}

	posted, err := parsePosted(p.Posted)
	if err != nil {
		return model.RawComment{}, fmt.Errorf("%w: comment %s: %w", driven.ErrBadJSON, p.CommentID, err)
	}

	c := model.RawComment{
		URL: model.CommentURL{
			TypeID:    p.TypeID.String(),
			ItemID:    p.ItemID.String(),
			CommentID: model.CommentID(p.CommentID.String()),
		},
		Posted:  posted,
		Replies: p.Replies,
	}
	if p.ParentID != nil && *p.ParentID != "0" {
		c.ParentID = model.CommentID(p.ParentID.String())
	}
	if p.User != nil {
		c.Author = p.User.Username
	}

	// Deleted and hidden comments carry no text content; they are reported
	// as empty bodies rather than unsupported ones.
	if p.TextContent == nil {
		c.Body = model.RawBody{Kind: model.BodyKindWriter}
	} else {
		c.Body = model.RawBody{
			Kind:     model.BodyKind(p.TextContent.HTML.Type),
			Markup:   p.TextContent.HTML.Markup,
			Features: p.TextContent.HTML.Features,
		}
	}

	return c, nil
}

func parsePosted(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range postedLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
