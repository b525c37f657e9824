package logging

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Line is one retained log entry, formatted for /status consumption
// rather than as raw logrus fields.
type Line struct {
	Seq     uint64         `json:"-"`
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Ring is a bounded, non-blocking logrus.Hook: it keeps the most recent
// N log lines in memory for diagnostics (spec.md §12's /status
// endpoint) and never grows past that, overwriting the oldest entry
// once full. Every line also carries a monotonic Seq so a Flusher can
// persist exactly the lines it hasn't seen yet (spec.md §5: "a
// background flusher persists lines to disk").
type Ring struct {
	mu   sync.Mutex
	buf  []Line
	next int
	full bool
	seq  uint64
}

// NewRing creates a Ring retaining up to size lines.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1
	}
	return &Ring{buf: make([]Line, size)}
}

// Levels reports that Ring observes every level; filtering happens at
// the logger's own level threshold.
func (r *Ring) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire appends entry to the ring. Never returns an error: a full ring
// silently overwrites its oldest line rather than blocking or dropping
// the log call.
func (r *Ring) Fire(entry *logrus.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.buf[r.next] = Line{
		Seq:     r.seq,
		Time:    entry.Time,
		Level:   entry.Level.String(),
		Message: entry.Message,
		Fields:  map[string]any(entry.Data),
	}
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	return nil
}

// Since returns, in chronological order, every retained line with a Seq
// greater than after, plus the highest Seq observed (for the caller's
// next Since call). Lines overwritten before a Flusher got to them are
// silently skipped — the logger favors dropping history over
// backpressuring a request (spec.md §5).
func (r *Ring) Since(after uint64) ([]Line, uint64) {
	all := r.Recent()
	latest := after
	out := all[:0:0]
	for _, l := range all {
		if l.Seq > after {
			out = append(out, l)
		}
		if l.Seq > latest {
			latest = l.Seq
		}
	}
	return out, latest
}

// Recent returns the retained lines in chronological order, oldest
// first.
func (r *Ring) Recent() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]Line, r.next)
		copy(out, r.buf[:r.next])
		return out
	}

	out := make([]Line, len(r.buf))
	copy(out, r.buf[r.next:])
	copy(out[len(r.buf)-r.next:], r.buf[:r.next])
	return out
}
