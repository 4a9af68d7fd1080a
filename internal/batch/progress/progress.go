// Package progress tracks and renders completion of a batch run.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const barLength = 20

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	Total      int           `json:"total"`
	Success    int           `json:"success"`
	Failed     int           `json:"failed"`
	Completed  int           `json:"completed"`
	Percentage float64       `json:"percentage"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	// ETA is negative until the first row completes.
	ETA time.Duration `json:"eta_ns"`
}

// Tracker counts finished rows and estimates the remaining time.
// It never influences control flow.
type Tracker struct {
	out   io.Writer
	now   func() time.Time
	start time.Time

	mu      sync.RWMutex
	total   int
	success int
	failed  int
}

// NewTracker starts tracking a run of total rows. A nil writer disables rendering.
func NewTracker(total int, out io.Writer) *Tracker {
	return newTracker(total, out, time.Now)
}

func newTracker(total int, out io.Writer, now func() time.Time) *Tracker {
	if out == nil {
		out = io.Discard
	}
	return &Tracker{
		out:   out,
		now:   now,
		start: now(),
		total: total,
	}
}

// Update records one finished row and redraws the progress line.
func (t *Tracker) Update(success bool) {
	t.mu.Lock()
	if success {
		t.success++
	} else {
		t.failed++
	}
	t.mu.Unlock()

	t.Render()
}

// Snapshot returns the current counters with percentage and ETA.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	completed := t.success + t.failed
	s := Snapshot{
		Total:     t.total,
		Success:   t.success,
		Failed:    t.failed,
		Completed: completed,
		Elapsed:   t.now().Sub(t.start),
		ETA:       -1,
	}
	if t.total > 0 {
		s.Percentage = float64(completed) / float64(t.total) * 100
	}
	if completed > 0 {
		remaining := t.total - completed
		if remaining < 0 {
			remaining = 0
		}
		s.ETA = time.Duration(float64(s.Elapsed) / float64(completed) * float64(remaining))
	}
	return s
}

// Render writes the single-line progress bar.
func (t *Tracker) Render() {
	s := t.Snapshot()

	filled := 0
	if s.Total > 0 {
		filled = barLength * s.Completed / s.Total
	}
	if filled > barLength {
		filled = barLength
	}
	// A finished run draws the full bar followed by the arrow head
	bar := strings.Repeat("=", filled) + ">" + strings.Repeat(" ", max(barLength-filled-1, 0))

	eta := "N/A"
	if s.ETA >= 0 {
		eta = FormatDuration(s.ETA)
	}

	_, _ = fmt.Fprintf(t.out,
		"\rProgress: [%s] %d/%d (%.1f%%) | Success: %d | Failed: %d | ETA: %s",
		bar, s.Completed, s.Total, s.Percentage, s.Success, s.Failed, eta)
}

// Summary writes the closing report block.
func (t *Tracker) Summary() {
	s := t.Snapshot()
	line := strings.Repeat("=", 40)

	_, _ = fmt.Fprintln(t.out)
	_, _ = fmt.Fprintln(t.out, line)
	_, _ = fmt.Fprintln(t.out, "Batch Processing Complete")
	_, _ = fmt.Fprintln(t.out, line)
	_, _ = fmt.Fprintf(t.out, "Total processed: %d\n", s.Completed)
	_, _ = fmt.Fprintf(t.out, "Successful: %d\n", s.Success)
	_, _ = fmt.Fprintf(t.out, "Failed: %d\n", s.Failed)
	_, _ = fmt.Fprintf(t.out, "Total time: %s\n", FormatDuration(s.Elapsed))
	_, _ = fmt.Fprintln(t.out, line)
}

// FormatDuration renders d as "42s", "3m 5s" or "2h 10m".
func FormatDuration(d time.Duration) string {
	secs := int(d.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	}
}
