// Package cache holds recently fetched quotes and candle series for a
// freshness window. Entries expire lazily on read; stale entries remain
// readable for offline operation until explicitly invalidated.
package cache

import (
	"sync"
	"time"

	"stockwatch/internal/model"
)

// RequestKind separates quote and candle entries in the key space.
type RequestKind string

const (
	KindQuote   RequestKind = "quote"
	KindCandles RequestKind = "candles"
)

// Key identifies one cached entry. Timeframe is empty for quotes.
type Key struct {
	Kind      RequestKind
	Symbol    string
	Timeframe model.Timeframe
}

// QuoteKey builds the key for a symbol's quote entry.
func QuoteKey(symbol string) Key {
	return Key{Kind: KindQuote, Symbol: symbol}
}

// CandleKey builds the key for a symbol's candle entry at a timeframe.
func CandleKey(symbol string, tf model.Timeframe) Key {
	return Key{Kind: KindCandles, Symbol: symbol, Timeframe: tf}
}

type entry struct {
	quote    *model.Quote
	candles  model.CandleSeries
	storedAt time.Time
}

// Cache is a freshness-windowed store keyed by request. The zero value is not
// usable; construct with New.
type Cache struct {
	ttl time.Duration

	mu    sync.RWMutex
	items map[Key]entry
}

// DefaultTTL matches the default refresh interval so a cache hit is never
// older than one refresh cycle.
const DefaultTTL = 30 * time.Second

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, items: make(map[Key]entry)}
}

// GetQuote returns the cached quote for symbol if one exists within the
// freshness window.
func (c *Cache) GetQuote(symbol string) (*model.Quote, bool) {
	e, ok := c.lookup(QuoteKey(symbol), false)
	if !ok || e.quote == nil {
		return nil, false
	}
	return e.quote, true
}

// GetQuoteStale returns the cached quote regardless of age. Used when
// providers are unreachable or offline mode is on.
func (c *Cache) GetQuoteStale(symbol string) (*model.Quote, bool) {
	e, ok := c.lookup(QuoteKey(symbol), true)
	if !ok || e.quote == nil {
		return nil, false
	}
	return e.quote, true
}

// GetCandles returns the cached series for symbol and timeframe if one exists
// within the freshness window.
func (c *Cache) GetCandles(symbol string, tf model.Timeframe) (model.CandleSeries, bool) {
	e, ok := c.lookup(CandleKey(symbol, tf), false)
	if !ok || e.candles == nil {
		return nil, false
	}
	return e.candles, true
}

// GetCandlesStale returns the cached series regardless of age.
func (c *Cache) GetCandlesStale(symbol string, tf model.Timeframe) (model.CandleSeries, bool) {
	e, ok := c.lookup(CandleKey(symbol, tf), true)
	if !ok || e.candles == nil {
		return nil, false
	}
	return e.candles, true
}

func (c *Cache) lookup(k Key, allowStale bool) (entry, bool) {
	c.mu.RLock()
	e, ok := c.items[k]
	c.mu.RUnlock()
	if !ok {
		return entry{}, false
	}
	if !allowStale && time.Since(e.storedAt) >= c.ttl {
		return entry{}, false
	}
	return e, true
}

// PutQuote stores a quote, overwriting any prior entry for the symbol.
func (c *Cache) PutQuote(q *model.Quote) {
	if q == nil {
		return
	}
	c.mu.Lock()
	c.items[QuoteKey(q.Symbol)] = entry{quote: q, storedAt: time.Now()}
	c.mu.Unlock()
}

// PutCandles stores a series, overwriting any prior entry for the key.
func (c *Cache) PutCandles(symbol string, tf model.Timeframe, series model.CandleSeries) {
	c.mu.Lock()
	c.items[CandleKey(symbol, tf)] = entry{candles: series, storedAt: time.Now()}
	c.mu.Unlock()
}

// Invalidate drops every entry for the symbol across both request kinds and
// all timeframes.
func (c *Cache) Invalidate(symbol string) {
	c.mu.Lock()
	for k := range c.items {
		if k.Symbol == symbol {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.items = make(map[Key]entry)
	c.mu.Unlock()
}

// Len reports the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
