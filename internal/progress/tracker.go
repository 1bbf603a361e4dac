package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Tracker tracks export progress in rows
type Tracker struct {
	bar       *progressbar.ProgressBar
	out       io.Writer
	total     int64
	current   atomic.Int64
	startTime time.Time
}

// New creates a progress tracker writing to stderr
func New() *Tracker {
	return NewWithWriter(os.Stderr)
}

// NewWithWriter creates a progress tracker writing to w
func NewWithWriter(w io.Writer) *Tracker {
	return &Tracker{
		out:       w,
		startTime: time.Now(),
	}
}

// SetTotal sets the total number of rows to export. -1 means unknown and
// renders a spinner.
func (t *Tracker) SetTotal(total int64) {
	t.total = total
	t.bar = progressbar.NewOptions64(
		total,
		progressbar.OptionSetWriter(t.out),
		progressbar.OptionSetDescription("Exporting"),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Describe changes the label shown before the bar, e.g. the current table
func (t *Tracker) Describe(label string) {
	if t.bar != nil {
		t.bar.Describe(label)
	}
}

// Add increments the progress counter
func (t *Tracker) Add(n int64) {
	t.current.Add(n)
	if t.bar != nil {
		t.bar.Add64(n)
	}
}

// Current returns the current count
func (t *Tracker) Current() int64 {
	return t.current.Load()
}

// Total returns the total set by SetTotal
func (t *Tracker) Total() int64 {
	return t.total
}

// Finish marks the progress as complete and prints a throughput summary
func (t *Tracker) Finish() {
	if t.bar != nil {
		t.bar.Finish()
	}

	elapsed := time.Since(t.startTime)
	rowsPerSec := float64(t.current.Load()) / max(elapsed.Seconds(), 0.001)

	fmt.Fprintln(t.out)
	fmt.Fprintf(t.out, "Exported %d rows in %s (%.0f rows/sec)\n",
		t.current.Load(), elapsed.Round(time.Millisecond), rowsPerSec)
}
