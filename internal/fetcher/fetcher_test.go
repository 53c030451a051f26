package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/cache"
	"stockwatch/internal/model"
	"stockwatch/internal/provider"
	"stockwatch/internal/store"
	"stockwatch/internal/symbol"
	"stockwatch/internal/watchlist"
)

type fakeAdapter struct {
	kind    provider.Kind
	ready   bool
	quote   *model.Quote
	candles model.CandleSeries
	err     error

	mu    sync.Mutex
	calls *[]provider.Kind
}

func (f *fakeAdapter) Kind() provider.Kind { return f.kind }
func (f *fakeAdapter) Ready() bool         { return f.ready }

func (f *fakeAdapter) record() {
	f.mu.Lock()
	*f.calls = append(*f.calls, f.kind)
	f.mu.Unlock()
}

func (f *fakeAdapter) FetchQuote(_ context.Context, sym symbol.Canonical) (*model.Quote, error) {
	f.record()
	if f.err != nil {
		return nil, f.err
	}
	q := *f.quote
	q.Symbol = sym.Ticker
	return &q, nil
}

func (f *fakeAdapter) FetchCandles(_ context.Context, _ symbol.Canonical, _ model.Timeframe) (model.CandleSeries, error) {
	f.record()
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

type recordedEvent struct {
	kind   string // "quote" or "alert"
	symbol string
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *fakeRecorder) RecordQuote(q *model.Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{"quote", q.Symbol})
	return nil
}

func (r *fakeRecorder) RecordAlert(ev watchlist.AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{"alert", ev.Alert.Symbol})
	return nil
}

func (r *fakeRecorder) Close() error { return nil }

func quoteOf(price float64) *model.Quote {
	q := &model.Quote{CurrentPrice: price, PreviousClose: price - 1, Timestamp: time.Now().UTC()}
	q.ComputeChange()
	return q
}

func newLists(t *testing.T) *watchlist.Manager {
	t.Helper()
	m, err := watchlist.NewManager(store.NewMemory(), nil, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func newFetcher(t *testing.T, adapters []provider.Adapter, opts Options) (*Fetcher, *fakeRecorder) {
	t.Helper()
	rec := &fakeRecorder{}
	f := New(adapters, cache.New(time.Minute), newLists(t), rec, nil, opts, zerolog.Nop())
	return f, rec
}

func TestFallbackOrder(t *testing.T) {
	var calls []provider.Kind
	adapters := []provider.Adapter{
		&fakeAdapter{kind: provider.KindYahoo, ready: true, err: errors.New("boom"), calls: &calls},
		&fakeAdapter{kind: provider.KindBhav, ready: true, err: errors.New("boom"), calls: &calls},
		&fakeAdapter{kind: provider.KindMarketStack, ready: true, quote: quoteOf(100), calls: &calls},
		&fakeAdapter{kind: provider.KindAlphaVantage, ready: true, quote: quoteOf(999), calls: &calls},
	}
	f, _ := newFetcher(t, adapters, Options{Fallback: true})

	q, err := f.FetchQuote(t.Context(), "TCS")
	require.NoError(t, err)
	require.Equal(t, 100.0, q.CurrentPrice)
	require.Equal(t, []provider.Kind{provider.KindYahoo, provider.KindBhav, provider.KindMarketStack}, calls)
}

func TestNotReadySkippedSilently(t *testing.T) {
	var calls []provider.Kind
	adapters := []provider.Adapter{
		&fakeAdapter{kind: provider.KindYahoo, ready: false, quote: quoteOf(1), calls: &calls},
		&fakeAdapter{kind: provider.KindBhav, ready: true, quote: quoteOf(2), calls: &calls},
	}
	f, _ := newFetcher(t, adapters, Options{Fallback: true})

	q, err := f.FetchQuote(t.Context(), "TCS")
	require.NoError(t, err)
	require.Equal(t, 2.0, q.CurrentPrice)
	require.Equal(t, []provider.Kind{provider.KindBhav}, calls)
}

func TestPrimaryTriedFirst(t *testing.T) {
	var calls []provider.Kind
	adapters := []provider.Adapter{
		&fakeAdapter{kind: provider.KindYahoo, ready: true, quote: quoteOf(1), calls: &calls},
		&fakeAdapter{kind: provider.KindAlphaVantage, ready: true, quote: quoteOf(2), calls: &calls},
	}
	f, _ := newFetcher(t, adapters, Options{Primary: provider.KindAlphaVantage, Fallback: true})

	q, err := f.FetchQuote(t.Context(), "TCS")
	require.NoError(t, err)
	require.Equal(t, 2.0, q.CurrentPrice)
	require.Equal(t, []provider.Kind{provider.KindAlphaVantage}, calls)
}

func TestFallbackDisabledStopsAfterPrimary(t *testing.T) {
	var calls []provider.Kind
	adapters := []provider.Adapter{
		&fakeAdapter{kind: provider.KindUpstox, ready: true, err: errors.New("boom"), calls: &calls},
		&fakeAdapter{kind: provider.KindYahoo, ready: true, quote: quoteOf(1), calls: &calls},
	}
	f, _ := newFetcher(t, adapters, Options{Primary: provider.KindUpstox, Fallback: false})

	_, err := f.FetchQuote(t.Context(), "TCS")
	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	require.Equal(t, []provider.Kind{provider.KindUpstox}, calls)
}

func TestExhaustedPreservesAttemptOrder(t *testing.T) {
	var calls []provider.Kind
	adapters := []provider.Adapter{
		&fakeAdapter{kind: provider.KindYahoo, ready: true, err: errors.New("e1"), calls: &calls},
		&fakeAdapter{kind: provider.KindBhav, ready: true, err: errors.New("e2"), calls: &calls},
	}
	f, _ := newFetcher(t, adapters, Options{Fallback: true})

	_, err := f.FetchQuote(t.Context(), "TCS")
	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	require.Equal(t, "TCS", ex.Symbol)
	require.Len(t, ex.Attempts, 2)
	require.Equal(t, provider.KindYahoo, ex.Attempts[0].Provider)
	require.Equal(t, provider.KindBhav, ex.Attempts[1].Provider)
}

func TestCacheHitSkipsProviders(t *testing.T) {
	var calls []provider.Kind
	adapters := []provider.Adapter{
		&fakeAdapter{kind: provider.KindYahoo, ready: true, quote: quoteOf(10), calls: &calls},
	}
	f, _ := newFetcher(t, adapters, Options{Fallback: true})

	_, err := f.FetchQuote(t.Context(), "TCS")
	require.NoError(t, err)
	_, err = f.FetchQuote(t.Context(), "TCS")
	require.NoError(t, err)
	require.Len(t, calls, 1, "second fetch must be served from cache")
}

func TestStaleCacheServedWhenChainExhausted(t *testing.T) {
	var calls []provider.Kind
	working := &fakeAdapter{kind: provider.KindYahoo, ready: true, quote: quoteOf(10), calls: &calls}
	adapters := []provider.Adapter{working}

	rec := &fakeRecorder{}
	// nanosecond TTL: every entry is immediately stale
	f := New(adapters, cache.New(time.Nanosecond), newLists(t), rec, nil, Options{Fallback: true}, zerolog.Nop())

	_, err := f.FetchQuote(t.Context(), "TCS")
	require.NoError(t, err)

	working.err = errors.New("down")
	q, err := f.FetchQuote(t.Context(), "TCS")
	require.NoError(t, err, "stale cache should cover a failed chain")
	require.Equal(t, 10.0, q.CurrentPrice)
}

func TestOfflineMode(t *testing.T) {
	var calls []provider.Kind
	adapters := []provider.Adapter{
		&fakeAdapter{kind: provider.KindYahoo, ready: true, quote: quoteOf(10), calls: &calls},
	}
	f, _ := newFetcher(t, adapters, Options{Fallback: true})

	// warm the cache, then go offline
	_, err := f.FetchQuote(t.Context(), "TCS")
	require.NoError(t, err)
	f.SetOffline(true)

	q, err := f.FetchQuote(t.Context(), "TCS")
	require.NoError(t, err)
	require.Equal(t, 10.0, q.CurrentPrice)

	_, err = f.FetchQuote(t.Context(), "INFY")
	var off *ErrOffline
	require.ErrorAs(t, err, &off)
	require.Len(t, calls, 1, "offline mode must never contact providers")
}

func TestInvalidSymbolRejectedBeforeFetch(t *testing.T) {
	var calls []provider.Kind
	adapters := []provider.Adapter{
		&fakeAdapter{kind: provider.KindYahoo, ready: true, quote: quoteOf(10), calls: &calls},
	}
	f, _ := newFetcher(t, adapters, Options{Fallback: true})

	for _, raw := range []string{"", "CASH", "123", "X"} {
		_, err := f.FetchQuote(t.Context(), raw)
		var inv *InvalidSymbolError
		require.ErrorAs(t, err, &inv, "raw=%q", raw)
	}
	require.Empty(t, calls)
}

func TestQuoteSideEffects(t *testing.T) {
	var calls []provider.Kind
	adapters := []provider.Adapter{
		&fakeAdapter{kind: provider.KindYahoo, ready: true, quote: quoteOf(150), calls: &calls},
	}
	lists := newLists(t)
	wl, err := lists.Create("main")
	require.NoError(t, err)
	require.NoError(t, lists.AddSymbol(wl.ID, "TCS"))
	_, err = lists.AddAlert(wl.ID, watchlist.PriceAlert{
		Symbol: "TCS", Condition: watchlist.CondAbove, Threshold: 100,
	})
	require.NoError(t, err)

	rec := &fakeRecorder{}
	f := New(adapters, cache.New(time.Minute), lists, rec, nil, Options{Fallback: true}, zerolog.Nop())

	_, err = f.FetchQuote(t.Context(), "TCS")
	require.NoError(t, err)

	// history appended
	require.Len(t, lists.PriceHistory("TCS", 0), 1)
	// alert fired, then the quote was recorded
	require.Equal(t, []recordedEvent{{"alert", "TCS"}, {"quote", "TCS"}}, rec.events)
}

func TestFetchCandlesAdvancesOnEmptySeries(t *testing.T) {
	var calls []provider.Kind
	ts := time.Now().UTC()
	adapters := []provider.Adapter{
		&fakeAdapter{kind: provider.KindYahoo, ready: true, candles: model.CandleSeries{}, calls: &calls},
		&fakeAdapter{kind: provider.KindBhav, ready: true, candles: model.CandleSeries{{Timestamp: ts, Close: 5}}, calls: &calls},
	}
	f, _ := newFetcher(t, adapters, Options{Fallback: true})

	series, err := f.FetchCandles(t.Context(), "TCS", model.TF1Day)
	require.NoError(t, err)
	require.Len(t, series, 1)
	require.Equal(t, []provider.Kind{provider.KindYahoo, provider.KindBhav}, calls)
}

func TestFetchMultipleOmitsFailures(t *testing.T) {
	var calls []provider.Kind
	adapters := []provider.Adapter{
		&fakeAdapter{kind: provider.KindYahoo, ready: true, quote: quoteOf(10), calls: &calls},
	}
	f, _ := newFetcher(t, adapters, Options{Fallback: true})

	// CASH is a reserved token and fails validation; the others succeed
	quotes, err := f.FetchMultiple(t.Context(), []string{"TCS", "CASH", "INFY"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	require.Contains(t, quotes, "TCS")
	require.Contains(t, quotes, "INFY")
}

func TestFetchMultipleAllFailed(t *testing.T) {
	var calls []provider.Kind
	adapters := []provider.Adapter{
		&fakeAdapter{kind: provider.KindYahoo, ready: true, err: errors.New("down"), calls: &calls},
	}
	f, _ := newFetcher(t, adapters, Options{Fallback: true})

	quotes, err := f.FetchMultiple(t.Context(), []string{"TCS", "INFY"})
	require.Error(t, err)
	require.Empty(t, quotes)
}
