// Package provider defines the adapter contract shared by all market-data
// sources and the closed set of provider kinds.
package provider

import (
	"context"
	"fmt"

	"stockwatch/internal/model"
	"stockwatch/internal/symbol"
)

// Kind enumerates the known providers. Each kind is bound at compile time to
// one adapter, its timeframe mapping table, and its symbol projection.
type Kind string

const (
	KindUpstox       Kind = "upstox"
	KindYahoo        Kind = "yahoo"
	KindBhav         Kind = "bse_nse"
	KindMarketStack  Kind = "marketstack"
	KindAlphaVantage Kind = "alphavantage"
)

// FallbackOrder is the fixed priority of the free-source chain. The
// configured primary adapter is always tried first when credentialed.
var FallbackOrder = []Kind{KindYahoo, KindBhav, KindMarketStack, KindAlphaVantage}

// FormatSymbol projects a canonical symbol into the wire format k expects.
func FormatSymbol(c symbol.Canonical, k Kind) string {
	switch k {
	case KindYahoo:
		return c.Yahoo()
	case KindUpstox:
		return c.Broker()
	default:
		return c.Bare()
	}
}

// Adapter is one external market-data source and its request/response
// translation logic.
type Adapter interface {
	Kind() Kind
	// Ready reports whether the adapter has the credentials it needs. A
	// not-ready adapter is skipped by the orchestrator without counting as
	// a network failure.
	Ready() bool
	FetchQuote(ctx context.Context, sym symbol.Canonical) (*model.Quote, error)
	// FetchCandles returns a normalized series. An empty series with a nil
	// error is a valid "no data" result; the orchestrator treats it like a
	// failure for fallback purposes but it is not an error.
	FetchCandles(ctx context.Context, sym symbol.Canonical, tf model.Timeframe) (model.CandleSeries, error)
}

// ParseError is a response that arrived but was structurally unrecognized.
// It advances the fallback chain exactly like a transport error, while
// keeping the distinguishing detail for diagnostics.
type ParseError struct {
	Provider Kind
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse failed: %s", e.Provider, e.Reason)
}
