package commentbody

import (
	"encoding/json"
	"strconv"
	"unicode/utf16"
)

type draftDocument struct {
	Blocks    []draftBlock           `json:"blocks"`
	EntityMap map[string]draftEntity `json:"entityMap"`
}

type draftBlock struct {
	Text         string        `json:"text"`
	Type         string        `json:"type"`
	EntityRanges []draftRange `json:"entityRanges"`
}

// draftRange offsets and lengths are in UTF-16 code units, as produced by
// Draft.js in the browser.
type draftRange struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
	Key    int `json:"key"`
}

type draftEntity struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// parseDraft flattens a Draft.js document. Link entities keep their text and
// contribute their target; every other entity (mentions, emoji, embedded
// media) is structural and removed from the text. Atomic blocks carry no text.
func parseDraft(markup string) ([]string, []string, error) {
	var doc draftDocument
	if err := json.Unmarshal([]byte(markup), &doc); err != nil {
		return nil, nil, ErrMalformedBody
	}
	if doc.Blocks == nil {
		return nil, nil, ErrMalformedBody
	}

	paragraphs := make([]string, 0, len(doc.Blocks))
	var links []string

	for _, block := range doc.Blocks {
		if block.Type == "atomic" {
			continue
		}

		units := utf16.Encode([]rune(block.Text))
		removed := make([]bool, len(units))

		for _, r := range block.EntityRanges {
			entity, ok := doc.EntityMap[strconv.Itoa(r.Key)]
			if !ok {
				continue
			}
			if entity.Type == "LINK" {
				if href := linkTarget(entity.Data); href != "" {
					links = append(links, href)
				}
				continue
			}

			start, end := clampRange(r.Offset, r.Length, len(units))
			for i := start; i < end; i++ {
				removed[i] = true
			}
		}

		kept := make([]uint16, 0, len(units))
		for i, u := range units {
			if !removed[i] {
				kept = append(kept, u)
			}
		}
		paragraphs = append(paragraphs, string(utf16.Decode(kept)))
	}

	return paragraphs, links, nil
}

func linkTarget(data map[string]any) string {
	for _, key := range []string{"url", "href"} {
		if v, ok := data[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func clampRange(offset, length, size int) (int, int) {
	start := max(offset, 0)
	end := min(start+max(length, 0), size)
	if start > size {
		start = size
	}
	return start, end
}
