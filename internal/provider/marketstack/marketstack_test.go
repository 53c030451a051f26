package marketstack

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/provider"
	"stockwatch/internal/symbol"
)

func testAdapter() *Adapter {
	return New(Config{APIKey: "test"}, nil, zerolog.Nop())
}

func TestReady(t *testing.T) {
	require.False(t, New(Config{}, nil, zerolog.Nop()).Ready())
	require.True(t, testAdapter().Ready())
}

func TestParseQuote(t *testing.T) {
	body := `{
	  "data": [
	    {"open": 2480.0, "high": 2510.0, "low": 2470.0, "close": 2500.0, "volume": 100000, "date": "2025-08-29T00:00:00+0000"},
	    {"open": 2450.0, "high": 2495.0, "low": 2440.0, "close": 2475.0, "volume": 90000, "date": "2025-08-28T00:00:00+0000"}
	  ]
	}`
	q, err := testAdapter().ParseQuote([]byte(body), symbol.Normalize("RELIANCE"))
	require.NoError(t, err)

	require.Equal(t, 2500.0, q.CurrentPrice)
	require.Equal(t, 2480.0, q.OpenPrice)
	// previous close from the second row
	require.Equal(t, 2475.0, q.PreviousClose)
	require.InDelta(t, 25.0, q.DayChange, 1e-9)
	require.Equal(t, string(provider.KindMarketStack), q.Provider)
}

func TestParseQuoteSingleRowHasNoChange(t *testing.T) {
	body := `{"data": [{"open": 10, "high": 11, "low": 9, "close": 10.5, "volume": 100, "date": "2025-08-29"}]}`
	q, err := testAdapter().ParseQuote([]byte(body), symbol.Normalize("TCS"))
	require.NoError(t, err)
	require.Zero(t, q.PreviousClose)
	require.Zero(t, q.DayChange)
	require.Zero(t, q.DayChangePercent)
}

func TestParseQuoteFailures(t *testing.T) {
	var perr *provider.ParseError
	_, err := testAdapter().ParseQuote([]byte(`{"data": []}`), symbol.Normalize("TCS"))
	require.ErrorAs(t, err, &perr)

	_, err = testAdapter().ParseQuote([]byte(`{"error":{"code":"invalid_access_key","message":"bad key"}}`), symbol.Normalize("TCS"))
	require.ErrorAs(t, err, &perr)
}

func TestParseCandles(t *testing.T) {
	body := `{
	  "data": [
	    {"open": 10, "high": 11, "low": 9, "close": 10.5, "volume": 100, "date": "2025-08-29T00:00:00+0000"},
	    {"open": 9, "high": 10, "low": 8, "close": 9.5, "volume": 90, "date": "2025-08-28T00:00:00+0000"},
	    {"open": 1, "high": 2, "low": 0, "close": 0, "volume": 5, "date": "2025-08-27T00:00:00+0000"}
	  ]
	}`
	series := testAdapter().ParseCandles([]byte(body), symbol.Normalize("TCS"))
	// zero-close row dropped, remainder sorted oldest first
	require.Len(t, series, 2)
	require.Equal(t, 9.5, series[0].Close)
	require.Equal(t, 10.5, series[1].Close)
}
