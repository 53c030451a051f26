// Package recorder persists fetched quotes and fired alerts for later
// analysis. Recording is best effort: failures are logged by callers, never
// fatal to a fetch.
package recorder

import (
	"stockwatch/internal/model"
	"stockwatch/internal/watchlist"
)

// Recorder persists historical data.
type Recorder interface {
	RecordQuote(q *model.Quote) error
	RecordAlert(ev watchlist.AlertEvent) error
	Close() error
}

// Noop discards everything. Used when no database path is configured.
type Noop struct{}

func (Noop) RecordQuote(*model.Quote) error         { return nil }
func (Noop) RecordAlert(watchlist.AlertEvent) error { return nil }
func (Noop) Close() error                           { return nil }
