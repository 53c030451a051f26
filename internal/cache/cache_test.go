package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stockwatch/internal/model"
)

func TestQuoteFreshnessWindow(t *testing.T) {
	c := New(50 * time.Millisecond)
	c.PutQuote(&model.Quote{Symbol: "TCS", CurrentPrice: 100})

	q, ok := c.GetQuote("TCS")
	require.True(t, ok)
	require.Equal(t, 100.0, q.CurrentPrice)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.GetQuote("TCS")
	require.False(t, ok, "entry past the freshness window must miss")

	// but stale reads still serve it
	q, ok = c.GetQuoteStale("TCS")
	require.True(t, ok)
	require.Equal(t, 100.0, q.CurrentPrice)
}

func TestPutOverwrites(t *testing.T) {
	c := New(time.Minute)
	c.PutQuote(&model.Quote{Symbol: "TCS", CurrentPrice: 100})
	c.PutQuote(&model.Quote{Symbol: "TCS", CurrentPrice: 101})

	q, ok := c.GetQuote("TCS")
	require.True(t, ok)
	require.Equal(t, 101.0, q.CurrentPrice)
	require.Equal(t, 1, c.Len())
}

func TestCandleKeysIncludeTimeframe(t *testing.T) {
	c := New(time.Minute)
	c.PutCandles("TCS", model.TF1Day, model.CandleSeries{{Close: 1}})
	c.PutCandles("TCS", model.TF1Hour, model.CandleSeries{{Close: 2}})

	daily, ok := c.GetCandles("TCS", model.TF1Day)
	require.True(t, ok)
	require.Equal(t, 1.0, daily[0].Close)

	hourly, ok := c.GetCandles("TCS", model.TF1Hour)
	require.True(t, ok)
	require.Equal(t, 2.0, hourly[0].Close)

	_, ok = c.GetCandles("TCS", model.TF1Week)
	require.False(t, ok)
}

func TestInvalidateDropsAllEntriesForSymbol(t *testing.T) {
	c := New(time.Minute)
	c.PutQuote(&model.Quote{Symbol: "TCS"})
	c.PutCandles("TCS", model.TF1Day, model.CandleSeries{{Close: 1}})
	c.PutQuote(&model.Quote{Symbol: "INFY"})

	c.Invalidate("TCS")
	_, ok := c.GetQuoteStale("TCS")
	require.False(t, ok)
	_, ok = c.GetCandlesStale("TCS", model.TF1Day)
	require.False(t, ok)
	_, ok = c.GetQuote("INFY")
	require.True(t, ok)
}
