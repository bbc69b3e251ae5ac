// Package csvreport implements the ReportWriter port as a CSV file.
package csvreport

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/critchecker/internal/domain/model"
	"github.com/ericfisherdev/critchecker/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ReportWriter = (*Writer)(nil)

// ErrReportLocked is returned when another process is writing the same report.
var ErrReportLocked = errors.New("report is locked by another process")

// Writer writes critique records to a CSV file. The file is replaced
// atomically, so readers never observe a partially written report.
type Writer struct {
	path             string
	includeTimestamp bool
	includeBody      bool
}

// Option customizes a Writer.
type Option func(*Writer)

// WithTimestamp adds a crit_posted_at column.
func WithTimestamp() Option {
	return func(w *Writer) { w.includeTimestamp = true }
}

// WithBody adds a crit_body column holding the plain text of each critique.
func WithBody() Option {
	return func(w *Writer) { w.includeBody = true }
}

// NewWriter creates a Writer for the report at path.
func NewWriter(path string, opts ...Option) *Writer {
	w := &Writer{path: path}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the report location.
func (w *Writer) Path() string {
	return w.path
}

// Write replaces the report with records, in order. Identical input produces
// byte-identical output.
func (w *Writer) Write(ctx context.Context, records []model.CritiqueRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := w.encode(records)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	lock := flock.New(w.path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire report lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", w.path, ErrReportLocked)
	}
	defer func() { _ = lock.Unlock() }()

	if err := atomic.WriteFile(w.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing report %s: %w", w.path, err)
	}

	return nil
}

func (w *Writer) header() []string {
	h := []string{"batch_url", "crit_url", "crit_author", "crit_words"}
	if w.includeTimestamp {
		h = append(h, "crit_posted_at")
	}
	if w.includeBody {
		h = append(h, "crit_body")
	}
	return h
}

func (w *Writer) encode(records []model.CritiqueRecord) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	if err := cw.Write(w.header()); err != nil {
		return nil, err
	}

	for _, r := range records {
		row := []string{
			r.BatchURL.String(),
			r.CritiqueURL.String(),
			r.Author,
			strconv.Itoa(r.Words),
		}
		if w.includeTimestamp {
			row = append(row, formatPosted(r.Posted))
		}
		if w.includeBody {
			row = append(row, r.Text)
		}
		if err := cw.Write(row); err != nil {
			return nil, err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatPosted(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
