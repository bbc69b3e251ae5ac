// Package commentbody converts the rich-text encodings DeviantArt uses for
// comment bodies into plain text and measures it.
package commentbody

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/ericfisherdev/critchecker/internal/domain/model"
)

var (
	// ErrUnsupportedEncoding is returned for body kinds the parser does not know.
	ErrUnsupportedEncoding = errors.New("unsupported comment body encoding")
	// ErrMalformedBody is returned when the markup of a known kind cannot be decoded.
	ErrMalformedBody = errors.New("malformed comment body")
)

// paragraphSeparator joins the non-empty paragraphs of a flattened body.
const paragraphSeparator = "\n"

const wordCountFeature = "WORD_COUNT_FEATURE"

// Parse flattens raw into plain text and computes its lengths. The encoding is
// selected by raw.Kind; unknown kinds yield ErrUnsupportedEncoding.
func Parse(raw model.RawBody) (model.Body, error) {
	var (
		paragraphs []string
		links      []string
		err        error
	)

	switch raw.Kind {
	case model.BodyKindDraft:
		paragraphs, links, err = parseDraft(raw.Markup)
	case model.BodyKindTipTap:
		paragraphs, links, err = parseTipTap(raw.Markup)
	case model.BodyKindWriter:
		paragraphs, links = parseWriter(raw.Markup)
	default:
		return model.Body{}, fmt.Errorf("%q: %w", raw.Kind, ErrUnsupportedEncoding)
	}
	if err != nil {
		return model.Body{}, fmt.Errorf("%s body: %w", raw.Kind, err)
	}

	text := joinParagraphs(paragraphs)

	words, ok := featureWordCount(raw.Features)
	if !ok {
		words = len(strings.Fields(text))
	}
	if text == "" {
		words = 0
	}

	return model.Body{
		Text:  text,
		Words: words,
		Chars: utf8.RuneCountInString(text),
		Links: dedupe(links),
	}, nil
}

// joinParagraphs trims and NFC-normalizes each paragraph, drops blank ones and joins
// the rest with a single separator.
func joinParagraphs(paragraphs []string) string {
	kept := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		if strings.TrimSpace(p) == "" {
			continue
		}
		kept = append(kept, norm.NFC.String(strings.TrimSpace(p)))
	}
	return strings.Join(kept, paragraphSeparator)
}

type feature struct {
	Type string `json:"type"`
	Data struct {
		Words *int `json:"words"`
	} `json:"data"`
}

// featureWordCount extracts the platform's own word count from the features
// payload. ok is false when the payload is absent, malformed or lacks it.
func featureWordCount(features string) (words int, ok bool) {
	if strings.TrimSpace(features) == "" {
		return 0, false
	}

	var feats []feature
	if err := json.Unmarshal([]byte(features), &feats); err != nil {
		return 0, false
	}

	for _, f := range feats {
		if f.Type == wordCountFeature && f.Data.Words != nil {
			return *f.Data.Words, true
		}
	}
	return 0, false
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
