package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ServerZone is the fixed UTC-08:00 offset the platform reports times in.
// Start dates given as plain calendar days are interpreted in this zone.
var ServerZone = time.FixedZone("UTC-8", -8*60*60)

// deviationURLPattern captures the artist, category and numeric id of a
// deviation URL such as https://www.deviantart.com/artist/journal/Title-123.
var deviationURLPattern = regexp.MustCompile(`(?:www\.)?deviantart\.com/([A-Za-z0-9\-]+)/([a-z\-]+)/(?:.+-)?(\d+)$`)

var (
	// ErrInvalidDeviationURL is returned when a string is not a deviation URL.
	ErrInvalidDeviationURL = errors.New("invalid deviation URL")

	// ErrUnsupportedCategory is returned for deviations whose comments the
	// platform API cannot address.
	ErrUnsupportedCategory = errors.New("unsupported deviation category")

	// ErrInvalidStartDate is returned when a start date is not YYYY-MM-DD.
	ErrInvalidStartDate = errors.New("invalid start date")
)

// ParseStartDate parses a YYYY-MM-DD day as midnight in ServerZone.
func ParseStartDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), ServerZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", s, ErrInvalidStartDate)
	}
	return t, nil
}

// Deviation is a piece of content on DeviantArt that comments are attached to.
type Deviation struct {
	Artist   string
	Category string
	ID       string
}

// ParseDeviationURL builds a Deviation from its public URL.
func ParseDeviationURL(raw string) (Deviation, error) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, "/")

	m := deviationURLPattern.FindStringSubmatch(s)
	if m == nil {
		return Deviation{}, fmt.Errorf("%q: %w", raw, ErrInvalidDeviationURL)
	}

	return Deviation{Artist: m[1], Category: m[2], ID: m[3]}, nil
}

// TypeID returns the platform type id used by the comment API for this
// deviation's category, or 0 when the category is not supported.
func (d Deviation) TypeID() int {
	switch d.Category {
	case "art", "journal":
		return 1
	default:
		return 0
	}
}

// URL returns the canonical public address of the deviation.
func (d Deviation) URL() string {
	return "https://www.deviantart.com/" + d.Artist + "/" + d.Category + "/" + d.ID
}

// Validate reports ErrUnsupportedCategory when the comment API has no type id
// for d.
func (d Deviation) Validate() error {
	if d.TypeID() == 0 {
		return fmt.Errorf("%q: %w", d.Category, ErrUnsupportedCategory)
	}
	return nil
}
