// Package fetcher orchestrates quote and candle retrieval: symbol
// validation, cache lookup, the prioritized provider chain, and the ordered
// side effects a successful fetch triggers.
package fetcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"stockwatch/internal/cache"
	"stockwatch/internal/market"
	"stockwatch/internal/model"
	"stockwatch/internal/provider"
	"stockwatch/internal/recorder"
	"stockwatch/internal/symbol"
	"stockwatch/internal/watchlist"
)

// Attempt records one provider's failure during a chain walk.
type Attempt struct {
	Provider provider.Kind `json:"provider"`
	Err      string        `json:"error"`
}

// ExhaustedError is returned when every eligible provider failed or returned
// no data. Attempts preserve chain order.
type ExhaustedError struct {
	Symbol   string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %s", a.Provider, a.Err)
	}
	return fmt.Sprintf("all providers failed for %s [%s]", e.Symbol, strings.Join(parts, "; "))
}

// ErrOffline is returned when offline mode is on and the cache has nothing,
// not even stale, for the request.
type ErrOffline struct {
	Symbol string
}

func (e *ErrOffline) Error() string {
	return fmt.Sprintf("offline and no cached data for %s", e.Symbol)
}

// InvalidSymbolError rejects a request before any provider is contacted.
type InvalidSymbolError struct {
	Symbol string
	Issues []string
}

func (e *InvalidSymbolError) Error() string {
	return fmt.Sprintf("invalid symbol %q: %s", e.Symbol, strings.Join(e.Issues, "; "))
}

// normalize validates then canonicalizes raw.
func normalize(raw string) (symbol.Canonical, error) {
	v := symbol.Validate(raw)
	if !v.IsValid {
		return symbol.Canonical{}, &InvalidSymbolError{Symbol: raw, Issues: v.Errors}
	}
	return symbol.Normalize(raw), nil
}

// Options tune a Fetcher at construction.
type Options struct {
	// Primary is tried before the fallback chain when set and ready.
	Primary provider.Kind
	// Fallback enables walking the chain after the primary fails. When off,
	// only the primary is tried.
	Fallback bool
	// Offline serves cached data only, stale included, and never touches the
	// network.
	Offline bool
}

// Fetcher walks the provider chain and applies side effects. Adapters are
// registered once at startup; the set is immutable afterwards.
type Fetcher struct {
	adapters map[provider.Kind]provider.Adapter
	cache    *cache.Cache
	lists    *watchlist.Manager
	rec      recorder.Recorder
	clock    *market.Clock
	log      zerolog.Logger

	mu   sync.RWMutex
	opts Options
}

func New(adapters []provider.Adapter, c *cache.Cache, lists *watchlist.Manager, rec recorder.Recorder, clock *market.Clock, opts Options, log zerolog.Logger) *Fetcher {
	byKind := make(map[provider.Kind]provider.Adapter, len(adapters))
	for _, a := range adapters {
		byKind[a.Kind()] = a
	}
	if rec == nil {
		rec = recorder.Noop{}
	}
	return &Fetcher{
		adapters: byKind,
		cache:    c,
		lists:    lists,
		rec:      rec,
		clock:    clock,
		opts:     opts,
		log:      log.With().Str("component", "fetcher").Logger(),
	}
}

// SetOffline toggles offline mode at runtime.
func (f *Fetcher) SetOffline(on bool) {
	f.mu.Lock()
	f.opts.Offline = on
	f.mu.Unlock()
}

// SetPrimary changes the preferred provider at runtime.
func (f *Fetcher) SetPrimary(k provider.Kind) {
	f.mu.Lock()
	f.opts.Primary = k
	f.mu.Unlock()
}

func (f *Fetcher) options() Options {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.opts
}

// chain builds the ordered adapter list for one walk: the primary first when
// configured and ready, then the fallback order minus the primary. Adapters
// that are not ready are skipped silently; missing credentials are a
// configuration state, not an error.
func (f *Fetcher) chain(opts Options) []provider.Adapter {
	var out []provider.Adapter
	if opts.Primary != "" {
		if a, ok := f.adapters[opts.Primary]; ok && a.Ready() {
			out = append(out, a)
		}
	}
	if !opts.Fallback && len(out) > 0 {
		return out
	}
	for _, k := range provider.FallbackOrder {
		if k == opts.Primary {
			continue
		}
		if a, ok := f.adapters[k]; ok && a.Ready() {
			out = append(out, a)
		}
	}
	return out
}

// FetchQuote returns the quote for raw, from cache when fresh, otherwise from
// the first provider in the chain that succeeds. On a network fetch the side
// effects run in order: cache write, price history append, alert check,
// recording.
func (f *Fetcher) FetchQuote(ctx context.Context, raw string) (*model.Quote, error) {
	canon, err := normalize(raw)
	if err != nil {
		return nil, err
	}
	opts := f.options()

	if opts.Offline {
		if q, ok := f.cache.GetQuoteStale(canon.Ticker); ok {
			return q, nil
		}
		return nil, &ErrOffline{Symbol: canon.Ticker}
	}
	if q, ok := f.cache.GetQuote(canon.Ticker); ok {
		return q, nil
	}

	var attempts []Attempt
	for _, a := range f.chain(opts) {
		q, err := a.FetchQuote(ctx, canon)
		if err != nil {
			attempts = append(attempts, Attempt{Provider: a.Kind(), Err: err.Error()})
			f.log.Debug().Str("symbol", canon.Ticker).Str("provider", string(a.Kind())).Err(err).Msg("provider failed, advancing")
			continue
		}
		f.applyQuoteEffects(q)
		return q, nil
	}

	// The chain is exhausted; stale cache is better than nothing.
	if q, ok := f.cache.GetQuoteStale(canon.Ticker); ok {
		f.log.Warn().Str("symbol", canon.Ticker).Msg("all providers failed, serving stale cache")
		return q, nil
	}
	return nil, &ExhaustedError{Symbol: canon.Ticker, Attempts: attempts}
}

// applyQuoteEffects runs the post-fetch side effects in their fixed order.
func (f *Fetcher) applyQuoteEffects(q *model.Quote) {
	f.cache.PutQuote(q)
	if f.lists != nil {
		f.lists.RecordPrice(q)
		for _, ev := range f.lists.CheckAlerts(q) {
			if err := f.rec.RecordAlert(ev); err != nil {
				f.log.Error().Err(err).Str("symbol", q.Symbol).Msg("record alert failed")
			}
		}
	}
	if err := f.rec.RecordQuote(q); err != nil {
		f.log.Error().Err(err).Str("symbol", q.Symbol).Msg("record quote failed")
	}
}

// FetchCandles returns the candle series for raw at tf, walking the same
// chain as quotes. Providers that return an empty series count as failed so
// the walk continues.
func (f *Fetcher) FetchCandles(ctx context.Context, raw string, tf model.Timeframe) (model.CandleSeries, error) {
	canon, err := normalize(raw)
	if err != nil {
		return nil, err
	}
	opts := f.options()

	if opts.Offline {
		if s, ok := f.cache.GetCandlesStale(canon.Ticker, tf); ok {
			return s, nil
		}
		return nil, &ErrOffline{Symbol: canon.Ticker}
	}
	if s, ok := f.cache.GetCandles(canon.Ticker, tf); ok {
		return s, nil
	}

	var attempts []Attempt
	for _, a := range f.chain(opts) {
		series, err := a.FetchCandles(ctx, canon, tf)
		if err != nil {
			attempts = append(attempts, Attempt{Provider: a.Kind(), Err: err.Error()})
			continue
		}
		if len(series) == 0 {
			attempts = append(attempts, Attempt{Provider: a.Kind(), Err: "no data"})
			continue
		}
		f.cache.PutCandles(canon.Ticker, tf, series)
		return series, nil
	}

	if s, ok := f.cache.GetCandlesStale(canon.Ticker, tf); ok {
		f.log.Warn().Str("symbol", canon.Ticker).Str("timeframe", string(tf)).Msg("all providers failed, serving stale cache")
		return s, nil
	}
	return nil, &ExhaustedError{Symbol: canon.Ticker, Attempts: attempts}
}

// FetchMultiple fetches quotes for all symbols concurrently. Failed symbols
// are omitted from the result rather than failing the batch; the error is
// non-nil only when every symbol failed.
func (f *Fetcher) FetchMultiple(ctx context.Context, symbols []string) (map[string]*model.Quote, error) {
	out := make(map[string]*model.Quote, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, raw := range symbols {
		raw := raw
		g.Go(func() error {
			q, err := f.FetchQuote(gctx, raw)
			if err != nil {
				f.log.Warn().Str("symbol", raw).Err(err).Msg("batch fetch symbol failed")
				return nil
			}
			mu.Lock()
			out[q.Symbol] = q
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	if len(out) == 0 && len(symbols) > 0 {
		return out, fmt.Errorf("no quotes fetched for %d symbols", len(symbols))
	}
	return out, nil
}

// RefreshWatched fetches every watched symbol once. When market hours
// checking is on and the market is closed, the refresh is skipped.
func (f *Fetcher) RefreshWatched(ctx context.Context) {
	if f.lists == nil {
		return
	}
	if f.clock != nil && !f.clock.IsOpen() {
		f.log.Debug().Msg("market closed, skipping refresh")
		return
	}
	symbols := f.lists.AllSymbols()
	if len(symbols) == 0 {
		return
	}
	start := time.Now()
	quotes, err := f.FetchMultiple(ctx, symbols)
	if err != nil {
		f.log.Warn().Err(err).Msg("watchlist refresh failed")
		return
	}
	f.log.Info().Int("requested", len(symbols)).Int("fetched", len(quotes)).Dur("took", time.Since(start)).Msg("watchlist refreshed")
}
