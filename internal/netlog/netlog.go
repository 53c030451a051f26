// Package netlog carries structured network-activity events to the
// diagnostics collaborator. Entries are data, not control flow: emitting one
// never influences fetch behavior.
package netlog

import (
	"time"

	"github.com/rs/zerolog"
)

// Request lifecycle phases.
const (
	PhaseOpen    = "open"
	PhaseLoad    = "load"
	PhaseError   = "error"
	PhaseTimeout = "timeout"
)

// Entry is one structured network-activity event.
type Entry struct {
	Phase     string        `json:"phase"`
	Method    string        `json:"method"`
	URL       string        `json:"url"`
	Status    int           `json:"status,omitempty"`
	OK        bool          `json:"ok"`
	Duration  time.Duration `json:"duration_ms,omitempty"`
	Size      int64         `json:"size,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Sink consumes network-activity entries.
type Sink interface {
	Emit(e Entry)
}

// Logger emits entries as zerolog debug events.
type Logger struct {
	L zerolog.Logger
}

func NewLogger(l zerolog.Logger) *Logger {
	return &Logger{L: l.With().Str("component", "netlog").Logger()}
}

func (s *Logger) Emit(e Entry) {
	ev := s.L.Debug().
		Str("phase", e.Phase).
		Str("method", e.Method).
		Str("url", e.URL).
		Bool("ok", e.OK)
	if e.Status != 0 {
		ev = ev.Int("status", e.Status)
	}
	if e.Duration > 0 {
		ev = ev.Dur("duration", e.Duration)
	}
	if e.Size > 0 {
		ev = ev.Int64("size", e.Size)
	}
	ev.Msg("network")
}

// Nop discards all entries.
type Nop struct{}

func (Nop) Emit(Entry) {}
