// Package yahoo implements the chart-provider adapter. It needs no API key
// and is the first link of the free fallback chain.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"stockwatch/internal/httpx"
	"stockwatch/internal/model"
	"stockwatch/internal/provider"
	"stockwatch/internal/symbol"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// intervals maps abstract timeframe tokens to the chart API vocabulary.
var intervals = map[model.Timeframe]string{
	model.TF1Min:   "1m",
	model.TF5Min:   "5m",
	model.TF15Min:  "15m",
	model.TF30Min:  "30m",
	model.TF1Hour:  "60m",
	model.TF1Day:   "1d",
	model.TF1Week:  "1wk",
	model.TF1Month: "1mo",
}

// ranges is the default range requested per timeframe.
var ranges = map[model.Timeframe]string{
	model.TF1Min:   "1d",
	model.TF5Min:   "1d",
	model.TF15Min:  "5d",
	model.TF30Min:  "5d",
	model.TF1Hour:  "1mo",
	model.TF1Day:   "1mo",
	model.TF1Week:  "6mo",
	model.TF1Month: "1y",
}

// safeRanges lists the ranges the chart API accepts per interval. Minute
// granularity is capped at days, not months; requests outside the table are
// widened/narrowed to the nearest legal value instead of being sent to fail.
var safeRanges = map[string][]string{
	"1m":  {"1d", "5d"},
	"5m":  {"5d", "1mo"},
	"15m": {"1mo"},
	"30m": {"1mo"},
	"60m": {"1mo"},
	"1d":  {"1mo", "3mo", "6mo", "1y", "2y", "5y", "10y"},
	"1wk": {"1y", "2y", "5y", "10y"},
	"1mo": {"1y", "2y", "5y", "10y"},
}

type Adapter struct {
	BaseURL string
	Client  *httpx.Client
	Log     zerolog.Logger
}

func New(client *httpx.Client, log zerolog.Logger) *Adapter {
	return &Adapter{
		BaseURL: defaultBaseURL,
		Client:  client,
		Log:     log.With().Str("component", "yahoo").Logger(),
	}
}

func (a *Adapter) Kind() provider.Kind { return provider.KindYahoo }

// Ready is always true: the chart API requires no credentials.
func (a *Adapter) Ready() bool { return true }

func intervalFor(tf model.Timeframe) string {
	if iv, ok := intervals[tf]; ok {
		return iv
	}
	return "1d"
}

func rangeFor(tf model.Timeframe) string {
	if r, ok := ranges[tf]; ok {
		return r
	}
	return "1mo"
}

// SafeRange clamps desired to a range the API accepts for interval.
func SafeRange(interval, desired string) string {
	list, ok := safeRanges[interval]
	if !ok {
		return "1mo"
	}
	for _, r := range list {
		if r == desired {
			return desired
		}
	}
	return list[len(list)-1]
}

func (a *Adapter) chartURL(sym symbol.Canonical, interval, rng string) string {
	return fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		a.BaseURL, url.PathEscape(provider.FormatSymbol(sym, provider.KindYahoo)), interval, rng)
}

func (a *Adapter) FetchQuote(ctx context.Context, sym symbol.Canonical) (*model.Quote, error) {
	body, err := a.Client.Get(ctx, a.chartURL(sym, "1d", "5d"), nil)
	if err != nil {
		return nil, err
	}
	q, err := a.ParseQuote(body, sym)
	if err != nil {
		a.Log.Warn().Str("symbol", sym.Ticker).Err(err).Msg("quote parse failed")
		return nil, err
	}
	return q, nil
}

func (a *Adapter) FetchCandles(ctx context.Context, sym symbol.Canonical, tf model.Timeframe) (model.CandleSeries, error) {
	interval := intervalFor(tf)
	rng := SafeRange(interval, rangeFor(tf))
	body, err := a.Client.Get(ctx, a.chartURL(sym, interval, rng), nil)
	if err != nil {
		return nil, err
	}
	return a.ParseCandles(body, sym), nil
}

// chartResponse mirrors chart.result[0].{meta,timestamp[],indicators.quote[0]}.
// Price arrays use pointers because the API emits explicit nulls for
// holidays and halts.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency  string  `json:"currency"`
				MarketCap float64 `json:"marketCap"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// ParseQuote converts a chart response into a Quote built from the latest
// bar. Structural mismatch yields a *provider.ParseError, never a panic.
func (a *Adapter) ParseQuote(body []byte, sym symbol.Canonical) (*model.Quote, error) {
	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ParseError{Provider: provider.KindYahoo, Reason: "invalid JSON: " + err.Error()}
	}
	if resp.Chart.Error != nil {
		return nil, &provider.ParseError{Provider: provider.KindYahoo, Reason: "api error: " + resp.Chart.Error.Description}
	}
	if len(resp.Chart.Result) == 0 {
		return nil, &provider.ParseError{Provider: provider.KindYahoo, Reason: "empty result"}
	}
	result := resp.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return nil, &provider.ParseError{Provider: provider.KindYahoo, Reason: "no price data"}
	}
	quotes := result.Indicators.Quote[0]
	last := len(result.Timestamp) - 1
	if last >= len(quotes.Close) || quotes.Close[last] == nil {
		return nil, &provider.ParseError{Provider: provider.KindYahoo, Reason: "no close for latest bar"}
	}

	current := *quotes.Close[last]
	q := &model.Quote{
		Symbol:       sym.Ticker,
		CurrentPrice: current,
		OpenPrice:    deref(quotes.Open, last, current),
		HighPrice:    deref(quotes.High, last, current),
		LowPrice:     deref(quotes.Low, last, current),
		Volume:       derefInt(quotes.Volume, last),
		Timestamp:    time.Unix(result.Timestamp[last], 0).UTC(),
		Currency:     orDefault(result.Meta.Currency, "INR"),
		Provider:     string(provider.KindYahoo),
		MarketCap:    result.Meta.MarketCap,
	}
	// No previous-close field on the chart payload; fall back to the prior
	// bar's close.
	if last > 0 && quotes.Close[last-1] != nil {
		q.PreviousClose = *quotes.Close[last-1]
	}
	q.ComputeChange()
	return q, nil
}

// ParseCandles converts a chart response into a normalized series. Bars with
// a null close are dropped; a malformed body yields an empty series, which is
// a valid "no data" result distinct from an error.
func (a *Adapter) ParseCandles(body []byte, sym symbol.Canonical) model.CandleSeries {
	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		a.Log.Warn().Str("symbol", sym.Ticker).Err(err).Msg("candle parse failed")
		return model.CandleSeries{}
	}
	if resp.Chart.Error != nil || len(resp.Chart.Result) == 0 {
		return model.CandleSeries{}
	}
	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return model.CandleSeries{}
	}
	quotes := result.Indicators.Quote[0]

	series := make(model.CandleSeries, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quotes.Close) || quotes.Close[i] == nil {
			continue
		}
		c := *quotes.Close[i]
		series = append(series, model.Candle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      deref(quotes.Open, i, c),
			High:      deref(quotes.High, i, c),
			Low:       deref(quotes.Low, i, c),
			Close:     c,
			Volume:    derefInt(quotes.Volume, i),
		})
	}
	return series.Normalize()
}

func deref(vals []*float64, i int, fallback float64) float64 {
	if i < len(vals) && vals[i] != nil {
		return *vals[i]
	}
	return fallback
}

func derefInt(vals []*int64, i int) int64 {
	if i < len(vals) && vals[i] != nil {
		return *vals[i]
	}
	return 0
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
