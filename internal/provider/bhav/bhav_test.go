package bhav

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/provider"
	"stockwatch/internal/symbol"
)

func testAdapter() *Adapter {
	return New(nil, zerolog.Nop())
}

func TestParseQuote(t *testing.T) {
	body := `{
	  "stockInfo": {
	    "LTP": "1520.50",
	    "Open": "1500.00",
	    "High": "1530.00",
	    "Low": "1495.00",
	    "prevClose": "1510.00",
	    "volumeQty": "250000"
	  }
	}`
	q, err := testAdapter().ParseQuote([]byte(body), symbol.Normalize("HDFCBANK"))
	require.NoError(t, err)

	require.Equal(t, 1520.50, q.CurrentPrice)
	require.Equal(t, 1500.0, q.OpenPrice)
	require.Equal(t, 1510.0, q.PreviousClose)
	require.Equal(t, int64(250000), q.Volume)
	require.Equal(t, "INR", q.Currency)
	require.InDelta(t, 10.5, q.DayChange, 1e-9)
}

func TestParseQuoteAlternateFieldNames(t *testing.T) {
	// numeric values and the newer field-name generation
	body := `{"equityInfo": {"lastPrice": 99.5, "openPrice": 98, "previousClose": 100}}`
	q, err := testAdapter().ParseQuote([]byte(body), symbol.Normalize("SBIN"))
	require.NoError(t, err)
	require.Equal(t, 99.5, q.CurrentPrice)
	require.Equal(t, 98.0, q.OpenPrice)
	require.Equal(t, 100.0, q.PreviousClose)
	require.InDelta(t, -0.5, q.DayChange, 1e-9)
}

func TestParseQuoteMissingOHLCFallsBackToLTP(t *testing.T) {
	body := `{"stockInfo": {"LTP": "50"}}`
	q, err := testAdapter().ParseQuote([]byte(body), symbol.Normalize("SBIN"))
	require.NoError(t, err)
	require.Equal(t, 50.0, q.OpenPrice)
	require.Equal(t, 50.0, q.HighPrice)
	require.Equal(t, 50.0, q.LowPrice)
	// no previous close: change fields stay zero
	require.Zero(t, q.DayChange)
	require.Zero(t, q.DayChangePercent)
}

func TestParseQuoteFailures(t *testing.T) {
	var perr *provider.ParseError
	_, err := testAdapter().ParseQuote([]byte(`{}`), symbol.Normalize("SBIN"))
	require.ErrorAs(t, err, &perr)

	_, err = testAdapter().ParseQuote([]byte(`{"stockInfo":{"LTP":"0"}}`), symbol.Normalize("SBIN"))
	require.ErrorAs(t, err, &perr)

	_, err = testAdapter().ParseQuote([]byte(`not json`), symbol.Normalize("SBIN"))
	require.ErrorAs(t, err, &perr)
}

func TestFetchCandlesIsEmpty(t *testing.T) {
	series, err := testAdapter().FetchCandles(t.Context(), symbol.Normalize("SBIN"), "1d")
	require.NoError(t, err)
	require.Empty(t, series)
}
