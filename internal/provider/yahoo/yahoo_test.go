package yahoo

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/provider"
	"stockwatch/internal/symbol"
)

const chartFixture = `{
  "chart": {
    "result": [{
      "meta": {"currency": "INR", "marketCap": 123456789},
      "timestamp": [1756700100, 1756700160, 1756700220],
      "indicators": {
        "quote": [{
          "open":   [100.0, 101.0, null],
          "high":   [102.0, 103.0, 104.5],
          "low":    [99.0, 100.5, 103.0],
          "close":  [101.0, 102.5, 104.0],
          "volume": [1000, 2000, 1500]
        }]
      }
    }],
    "error": null
  }
}`

func testAdapter() *Adapter {
	return New(nil, zerolog.Nop())
}

func TestParseQuote(t *testing.T) {
	a := testAdapter()
	q, err := a.ParseQuote([]byte(chartFixture), symbol.Normalize("RELIANCE"))
	require.NoError(t, err)

	require.Equal(t, "RELIANCE", q.Symbol)
	require.Equal(t, 104.0, q.CurrentPrice)
	// null open on the latest bar falls back to the close
	require.Equal(t, 104.0, q.OpenPrice)
	require.Equal(t, 104.5, q.HighPrice)
	require.Equal(t, 103.0, q.LowPrice)
	require.Equal(t, int64(1500), q.Volume)
	require.Equal(t, "INR", q.Currency)
	require.Equal(t, string(provider.KindYahoo), q.Provider)

	// previous close comes from the prior bar
	require.Equal(t, 102.5, q.PreviousClose)
	require.InDelta(t, 1.5, q.DayChange, 1e-9)
	require.InDelta(t, 1.5/102.5*100, q.DayChangePercent, 1e-9)
}

func TestParseQuoteAPIError(t *testing.T) {
	body := `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`
	_, err := testAdapter().ParseQuote([]byte(body), symbol.Normalize("NOSUCH"))
	var perr *provider.ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, provider.KindYahoo, perr.Provider)
}

func TestParseQuoteMalformed(t *testing.T) {
	_, err := testAdapter().ParseQuote([]byte("<html>rate limited</html>"), symbol.Normalize("TCS"))
	var perr *provider.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseCandlesSkipsNullBars(t *testing.T) {
	body := `{
	  "chart": {"result": [{
	    "meta": {"currency": "INR"},
	    "timestamp": [1756700100, 1756700160, 1756700220],
	    "indicators": {"quote": [{
	      "open": [100.0, null, 102.0],
	      "high": [101.0, null, 103.0],
	      "low": [99.0, null, 101.0],
	      "close": [100.5, null, 102.5],
	      "volume": [10, null, 30]
	    }]}
	  }]}
	}`
	series := testAdapter().ParseCandles([]byte(body), symbol.Normalize("TCS"))
	require.Len(t, series, 2)
	require.Equal(t, 100.5, series[0].Close)
	require.Equal(t, 102.5, series[1].Close)
}

func TestParseCandlesMalformedYieldsEmpty(t *testing.T) {
	series := testAdapter().ParseCandles([]byte("not json"), symbol.Normalize("TCS"))
	require.Empty(t, series)
}

func TestSafeRange(t *testing.T) {
	require.Equal(t, "1d", SafeRange("1m", "1d"))
	// minute data cannot cover a month; clamp to the widest legal range
	require.Equal(t, "5d", SafeRange("1m", "1mo"))
	require.Equal(t, "1mo", SafeRange("5m", "1mo"))
	require.Equal(t, "10y", SafeRange("1d", "20y"))
	require.Equal(t, "1mo", SafeRange("bogus", "5d"))
}
