// Package terminal renders run progress and the end-of-run summary for a
// human watching the console.
package terminal

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/mattn/go-isatty"

	"github.com/ericfisherdev/critchecker/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Progress = (*Tracker)(nil)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// NewProgress returns a live batch tracker drawing on out when out is a
// terminal, and a no-op otherwise so piped output stays clean.
func NewProgress(out io.Writer) driven.Progress {
	if !IsTerminal(out) {
		return driven.NopProgress{}
	}
	return NewTracker(out)
}

// Tracker draws a single go-pretty progress bar counting traversed batches.
type Tracker struct {
	pw progress.Writer

	mu      sync.Mutex
	tracker *progress.Tracker
	done    chan struct{}
}

// NewTracker creates a Tracker rendering to out.
func NewTracker(out io.Writer) *Tracker {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(true)
	pw.SetTrackerLength(30)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Percentage = true

	return &Tracker{pw: pw}
}

// Start begins rendering a bar for total batches.
func (t *Tracker) Start(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracker = &progress.Tracker{
		Message: "Traversing batches",
		Total:   int64(total),
		Units:   progress.UnitsDefault,
	}
	t.pw.AppendTracker(t.tracker)

	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		t.pw.Render()
	}()
}

// Advance marks one batch as traversed.
func (t *Tracker) Advance() {
	t.mu.Lock()
	tr := t.tracker
	t.mu.Unlock()

	if tr != nil {
		tr.Increment(1)
	}
}

// Finish completes the bar and waits for the final frame to be drawn.
func (t *Tracker) Finish() {
	t.mu.Lock()
	tr, done := t.tracker, t.done
	t.mu.Unlock()

	if tr == nil {
		return
	}

	tr.MarkAsDone()
	t.pw.Stop()
	<-done
}

// Value returns the number of batches counted so far.
func (t *Tracker) Value() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tracker == nil {
		return 0
	}
	return t.tracker.Value()
}
