package commentbody

import (
	"encoding/json"
	"strings"
)

type tiptapNode struct {
	Type    string         `json:"type"`
	Text    string         `json:"text"`
	Content []tiptapNode   `json:"content"`
	Marks   []tiptapMark   `json:"marks"`
	Attrs   map[string]any `json:"attrs"`
}

type tiptapMark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs"`
}

// tiptapEnvelope accepts both the wrapped form ({"version":1,"document":{...}})
// and a bare document node.
type tiptapEnvelope struct {
	Document *tiptapNode `json:"document"`
	tiptapNode
}

// textBlocks produce exactly one paragraph (split further by hard breaks).
var textBlocks = map[string]bool{
	"paragraph": true,
	"heading":   true,
	"codeBlock": true,
}

// embeddedNodes are structural references, never human-authored text.
var embeddedNodes = map[string]bool{
	"mention":         true,
	"da-mention":      true,
	"emoji":           true,
	"da-emoji":        true,
	"image":           true,
	"da-deviation":    true,
	"da-gif":          true,
	"da-video":        true,
	"da-embed":        true,
	"da-poll":         true,
	"horizontalRule":  true,
	"da-commission":   true,
	"da-sticker":      true,
	"da-embed-widget": true,
}

type tiptapWalker struct {
	paragraphs []string
	links      []string
}

func parseTipTap(markup string) ([]string, []string, error) {
	var env tiptapEnvelope
	if err := json.Unmarshal([]byte(markup), &env); err != nil {
		return nil, nil, ErrMalformedBody
	}

	root := env.Document
	if root == nil {
		root = &env.tiptapNode
	}
	if root.Type != "doc" {
		return nil, nil, ErrMalformedBody
	}

	w := &tiptapWalker{}
	w.block(*root)
	return w.paragraphs, w.links, nil
}

func (w *tiptapWalker) block(n tiptapNode) {
	switch {
	case embeddedNodes[n.Type]:
		return
	case textBlocks[n.Type]:
		w.paragraphs = append(w.paragraphs, w.inline(n.Content)...)
	case n.Type == "text":
		w.paragraphs = append(w.paragraphs, w.inline([]tiptapNode{n})...)
	default:
		for _, child := range n.Content {
			w.block(child)
		}
	}
}

// inline flattens the runs of one text block. A hard break ends the current
// line so that it is joined like any other paragraph boundary.
func (w *tiptapWalker) inline(nodes []tiptapNode) []string {
	var lines []string
	var current strings.Builder

	var visit func(nodes []tiptapNode)
	visit = func(nodes []tiptapNode) {
		for _, n := range nodes {
			switch {
			case n.Type == "text":
				current.WriteString(n.Text)
				w.collectLinks(n.Marks)
			case n.Type == "hardBreak":
				lines = append(lines, current.String())
				current.Reset()
			case embeddedNodes[n.Type]:
			default:
				visit(n.Content)
			}
		}
	}
	visit(nodes)

	return append(lines, current.String())
}

func (w *tiptapWalker) collectLinks(marks []tiptapMark) {
	for _, m := range marks {
		if m.Type != "link" {
			continue
		}
		if href, ok := m.Attrs["href"].(string); ok && href != "" {
			w.links = append(w.links, href)
		}
	}
}
