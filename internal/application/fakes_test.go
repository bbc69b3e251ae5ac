package application_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ericfisherdev/critchecker/internal/domain/model"
	"github.com/ericfisherdev/critchecker/internal/domain/port/driven"
)

const (
	launchURL  = "https://www.deviantart.com/critmas/journal/Critmas-2023-Launch-100"
	launchItem = "100"
)

var (
	serverZone = time.FixedZone("PST", -8*60*60)
	startDate  = time.Date(2023, 12, 26, 0, 0, 0, 0, serverZone)
)

func at(day, hour int) time.Time {
	return time.Date(2023, 12, day, hour, 0, 0, 0, serverZone)
}

func commentURL(id string) model.CommentURL {
	return model.CommentURL{TypeID: "1", ItemID: launchItem, CommentID: model.CommentID(id)}
}

// --- Comment bodies ---

type textRun struct {
	text string
	href string
}

func tiptapBody(paragraphs ...string) model.RawBody {
	runs := make([][]textRun, 0, len(paragraphs))
	for _, p := range paragraphs {
		runs = append(runs, []textRun{{text: p}})
	}
	return tiptapRuns(runs...)
}

func tiptapRuns(paragraphs ...[]textRun) model.RawBody {
	content := make([]any, 0, len(paragraphs))
	for _, p := range paragraphs {
		var inline []any
		for _, r := range p {
			if r.text == "" {
				continue
			}
			n := map[string]any{"type": "text", "text": r.text}
			if r.href != "" {
				n["marks"] = []any{map[string]any{"type": "link", "attrs": map[string]any{"href": r.href}}}
			}
			inline = append(inline, n)
		}
		para := map[string]any{"type": "paragraph"}
		if inline != nil {
			para["content"] = inline
		}
		content = append(content, para)
	}

	b, err := json.Marshal(map[string]any{
		"version":  1,
		"document": map[string]any{"type": "doc", "content": content},
	})
	if err != nil {
		panic(err)
	}
	return model.RawBody{Kind: model.BodyKindTipTap, Markup: string(b)}
}

// --- Fake comment thread ---

// node describes one comment and its replies when building a fake thread.
type node struct {
	id       string
	author   string
	posted   time.Time
	body     model.RawBody
	children []node
}

// fakeClient serves a fixed comment tree and records every transport call.
type fakeClient struct {
	pageSize int

	mu       sync.Mutex
	top      []model.RawComment
	replies  map[model.CommentID][]model.RawComment
	comments map[model.CommentID]model.RawComment
	calls    map[string]int

	failTop      error
	failReplies  map[model.CommentID]error
	failComments map[model.CommentID]error

	// gate, when set, blocks FetchComment until closed.
	gate chan struct{}
}

var _ driven.CommentClient = (*fakeClient)(nil)

func newFakeClient(top ...node) *fakeClient {
	f := &fakeClient{
		pageSize:     50,
		replies:      make(map[model.CommentID][]model.RawComment),
		comments:     make(map[model.CommentID]model.RawComment),
		calls:        make(map[string]int),
		failReplies:  make(map[model.CommentID]error),
		failComments: make(map[model.CommentID]error),
	}
	for _, n := range top {
		f.top = append(f.top, f.add(n, ""))
	}
	return f
}

func (f *fakeClient) add(n node, parent model.CommentID) model.RawComment {
	c := model.RawComment{
		URL:      commentURL(n.id),
		ParentID: parent,
		Author:   n.author,
		Posted:   n.posted,
		Replies:  len(n.children),
		Body:     n.body,
	}
	f.comments[c.ID()] = c

	for _, child := range n.children {
		f.replies[c.ID()] = append(f.replies[c.ID()], f.add(child, c.ID()))
	}
	return c
}

func (f *fakeClient) record(key string) {
	f.mu.Lock()
	f.calls[key]++
	f.mu.Unlock()
}

func (f *fakeClient) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeClient) snapshot() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.calls))
	for k, v := range f.calls {
		out[k] = v
	}
	return out
}

func (f *fakeClient) page(all []model.RawComment, offset int) model.CommentPage {
	end := min(offset+f.pageSize, len(all))
	if offset > end {
		offset = end
	}
	return model.CommentPage{
		Comments:   all[offset:end],
		HasMore:    end < len(all),
		NextOffset: end,
	}
}

func (f *fakeClient) FetchTopLevel(ctx context.Context, dev model.Deviation, offset int) (model.CommentPage, error) {
	f.record(fmt.Sprintf("top:%s:%d", dev.ID, offset))
	if err := ctx.Err(); err != nil {
		return model.CommentPage{}, err
	}
	if f.failTop != nil {
		return model.CommentPage{}, f.failTop
	}
	return f.page(f.top, offset), nil
}

func (f *fakeClient) FetchReplies(ctx context.Context, parent model.CommentURL, offset int) (model.CommentPage, error) {
	f.record(fmt.Sprintf("replies:%s:%d", parent.CommentID, offset))
	if err := ctx.Err(); err != nil {
		return model.CommentPage{}, err
	}
	if err := f.failReplies[parent.CommentID]; err != nil {
		return model.CommentPage{}, err
	}
	return f.page(f.replies[parent.CommentID], offset), nil
}

func (f *fakeClient) FetchComment(ctx context.Context, url model.CommentURL) (model.RawComment, error) {
	f.record("comment:" + string(url.CommentID))
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return model.RawComment{}, ctx.Err()
		}
	}
	if err := f.failComments[url.CommentID]; err != nil {
		return model.RawComment{}, err
	}
	c, ok := f.comments[url.CommentID]
	if !ok {
		return model.RawComment{}, driven.ErrCommentNotFound
	}
	return c, nil
}

// --- Fake report sinks ---

type fakeWriter struct {
	calls   int
	records []model.CritiqueRecord
	err     error
}

func (w *fakeWriter) Write(_ context.Context, records []model.CritiqueRecord) error {
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.records = append([]model.CritiqueRecord(nil), records...)
	return nil
}

type fakeStore struct {
	err     error
	launch  model.Deviation
	records []model.CritiqueRecord
	summary model.RunSummary
}

func (s *fakeStore) ReplaceForLaunch(_ context.Context, launch model.Deviation, records []model.CritiqueRecord, summary model.RunSummary) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.launch = launch
	s.records = records
	s.summary = summary
	return "run-1", nil
}

func (s *fakeStore) ListByLaunch(_ context.Context, _ model.Deviation) ([]model.CritiqueRecord, error) {
	return s.records, nil
}

type countingProgress struct {
	mu       sync.Mutex
	total    int
	advanced int
	finished bool
}

func (p *countingProgress) Start(total int) { p.total = total }
func (p *countingProgress) Finish()         { p.finished = true }
func (p *countingProgress) Advance() {
	p.mu.Lock()
	p.advanced++
	p.mu.Unlock()
}
