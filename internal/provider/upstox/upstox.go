// Package upstox implements the brokerage adapter. It is the only provider
// with quote, candle, portfolio, and instrument-master endpoints, and the
// only one that requires both an API key and an access token.
package upstox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"stockwatch/internal/httpx"
	"stockwatch/internal/model"
	"stockwatch/internal/portfolio"
	"stockwatch/internal/provider"
	"stockwatch/internal/symbol"
)

const defaultBaseURL = "https://api.upstox.com"

// intervals maps abstract timeframe tokens to the historical-candle
// vocabulary.
var intervals = map[model.Timeframe]string{
	model.TF1Min:   "1minute",
	model.TF5Min:   "5minute",
	model.TF15Min:  "15minute",
	model.TF30Min:  "30minute",
	model.TF1Hour:  "1hour",
	model.TF1Day:   "1day",
	model.TF1Week:  "1week",
	model.TF1Month: "1month",
}

// lookback is how many days of history to request per timeframe. Minute
// granularity is kept to short windows the API actually serves.
var lookback = map[model.Timeframe]int{
	model.TF1Min:   1,
	model.TF5Min:   1,
	model.TF15Min:  2,
	model.TF30Min:  3,
	model.TF1Hour:  7,
	model.TF1Day:   30,
	model.TF1Week:  90,
	model.TF1Month: 365,
}

type Config struct {
	BaseURL     string
	APIKey      string
	APISecret   string
	AccessToken string
}

type Adapter struct {
	cfg    Config
	client *httpx.Client
	log    zerolog.Logger

	instruments *instrumentCache
}

func New(cfg Config, client *httpx.Client, log zerolog.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Adapter{
		cfg:         cfg,
		client:      client,
		log:         log.With().Str("component", "upstox").Logger(),
		instruments: newInstrumentCache(6 * time.Hour),
	}
}

func (a *Adapter) Kind() provider.Kind { return provider.KindUpstox }

// Ready requires both the API key and an already-valid access token; token
// refresh is the host's concern.
func (a *Adapter) Ready() bool {
	return a.cfg.APIKey != "" && a.cfg.AccessToken != ""
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{
		"Accept":        "application/json",
		"Api-Key":       a.cfg.APIKey,
		"Authorization": "Bearer " + a.cfg.AccessToken,
	}
}

func (a *Adapter) FetchQuote(ctx context.Context, sym symbol.Canonical) (*model.Quote, error) {
	u := fmt.Sprintf("%s/v2/quote/%s", a.cfg.BaseURL, url.PathEscape(provider.FormatSymbol(sym, provider.KindUpstox)))
	body, err := a.client.Get(ctx, u, a.headers())
	if err != nil {
		return nil, err
	}
	q, err := a.ParseQuote(body, sym)
	if err != nil {
		a.log.Warn().Str("symbol", sym.Ticker).Err(err).Msg("quote parse failed")
		return nil, err
	}
	return q, nil
}

func (a *Adapter) FetchCandles(ctx context.Context, sym symbol.Canonical, tf model.Timeframe) (model.CandleSeries, error) {
	interval, ok := intervals[tf]
	if !ok {
		interval = "1day"
		tf = model.TF1Day
	}
	days, ok := lookback[tf]
	if !ok {
		days = 30
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)
	u := fmt.Sprintf("%s/v2/historical-candle/%s/%s/%s/%s",
		a.cfg.BaseURL,
		url.PathEscape(provider.FormatSymbol(sym, provider.KindUpstox)),
		interval,
		from.Format("2006-01-02"),
		to.Format("2006-01-02"))
	body, err := a.client.Get(ctx, u, a.headers())
	if err != nil {
		return nil, err
	}
	return a.ParseCandles(body, sym), nil
}

// quoteResponse mirrors data.{ltp,ohlc,closed_price,volume,last_update_time,
// market_cap,pe}.
type quoteResponse struct {
	Data *struct {
		LTP  float64 `json:"ltp"`
		OHLC *struct {
			Open float64 `json:"open"`
			High float64 `json:"high"`
			Low  float64 `json:"low"`
		} `json:"ohlc"`
		ClosedPrice    float64 `json:"closed_price"`
		Volume         int64   `json:"volume"`
		LastUpdateTime string  `json:"last_update_time"`
		MarketCap      float64 `json:"market_cap"`
		PE             float64 `json:"pe"`
	} `json:"data"`
}

// ParseQuote converts a market-quote payload into a Quote. The
// provider-supplied closed_price is the previous close; missing OHLC falls
// back to the last traded price.
func (a *Adapter) ParseQuote(body []byte, sym symbol.Canonical) (*model.Quote, error) {
	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ParseError{Provider: provider.KindUpstox, Reason: "invalid JSON: " + err.Error()}
	}
	if resp.Data == nil {
		return nil, &provider.ParseError{Provider: provider.KindUpstox, Reason: "missing data object"}
	}
	d := resp.Data
	if d.LTP == 0 {
		return nil, &provider.ParseError{Provider: provider.KindUpstox, Reason: "zero last traded price"}
	}

	q := &model.Quote{
		Symbol:        sym.Ticker,
		CurrentPrice:  d.LTP,
		OpenPrice:     d.LTP,
		HighPrice:     d.LTP,
		LowPrice:      d.LTP,
		PreviousClose: d.ClosedPrice,
		Volume:        d.Volume,
		Timestamp:     parseUpdateTime(d.LastUpdateTime),
		Currency:      "INR",
		Provider:      string(provider.KindUpstox),
		MarketCap:     d.MarketCap,
		PERatio:       d.PE,
	}
	if d.OHLC != nil {
		q.OpenPrice = d.OHLC.Open
		q.HighPrice = d.OHLC.High
		q.LowPrice = d.OHLC.Low
	}
	q.ComputeChange()
	return q, nil
}

// candleResponse mirrors data.candles, each candle being
// [ISO timestamp, open, high, low, close, volume].
type candleResponse struct {
	Data *struct {
		Candles [][]any `json:"candles"`
	} `json:"data"`
}

// ParseCandles converts a historical-candle payload into a normalized
// series. Malformed rows are skipped; a malformed body yields an empty
// series.
func (a *Adapter) ParseCandles(body []byte, sym symbol.Canonical) model.CandleSeries {
	var resp candleResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Data == nil {
		a.log.Warn().Str("symbol", sym.Ticker).Msg("candle parse failed")
		return model.CandleSeries{}
	}
	series := make(model.CandleSeries, 0, len(resp.Data.Candles))
	for _, row := range resp.Data.Candles {
		if len(row) < 6 {
			continue
		}
		tsRaw, ok := row[0].(string)
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339, tsRaw)
		if err != nil {
			continue
		}
		series = append(series, model.Candle{
			Timestamp: ts.UTC(),
			Open:      asFloat(row[1]),
			High:      asFloat(row[2]),
			Low:       asFloat(row[3]),
			Close:     asFloat(row[4]),
			Volume:    int64(asFloat(row[5])),
		})
	}
	return series.Normalize()
}

// positionsResponse mirrors the long-term-positions payload. Field names
// vary across API revisions, so both spellings are accepted.
type positionsResponse struct {
	Data []struct {
		TradingSymbol    string  `json:"trading_symbol"`
		TradingSymbolAlt string  `json:"tradingsymbol"`
		Exchange         string  `json:"exchange"`
		NetQuantity      int64   `json:"net_quantity"`
		AveragePrice     float64 `json:"average_price"`
		LTP              float64 `json:"ltp"`
		LastPrice        float64 `json:"last_price"`
		UnrealizedPnl    float64 `json:"unrealized_pnl"`
		RealizedPnl      float64 `json:"realized_pnl"`
		DayChange        float64 `json:"day_change"`
		DayChangePct     float64 `json:"day_change_percent"`
	} `json:"data"`
}

// FetchPositions retrieves and normalizes the long-term portfolio positions.
func (a *Adapter) FetchPositions(ctx context.Context) ([]portfolio.Position, error) {
	u := a.cfg.BaseURL + "/v2/portfolio/long-term-positions"
	body, err := a.client.Get(ctx, u, a.headers())
	if err != nil {
		return nil, err
	}
	var resp positionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ParseError{Provider: provider.KindUpstox, Reason: "invalid positions JSON: " + err.Error()}
	}

	out := make([]portfolio.Position, 0, len(resp.Data))
	for _, d := range resp.Data {
		sym := d.TradingSymbol
		if sym == "" {
			sym = d.TradingSymbolAlt
		}
		if sym == "" {
			continue
		}
		price := d.LTP
		if price == 0 {
			price = d.LastPrice
		}
		exch := d.Exchange
		if exch == "" {
			exch = symbol.NSE
		}
		p := portfolio.Position{
			Symbol:           sym,
			Exchange:         exch,
			Quantity:         d.NetQuantity,
			AveragePrice:     d.AveragePrice,
			CurrentPrice:     price,
			Currency:         "INR",
			LastUpdate:       time.Now().UTC(),
			UnrealizedPL:     d.UnrealizedPnl,
			RealizedPL:       d.RealizedPnl,
			DayChange:        d.DayChange,
			DayChangePercent: d.DayChangePct,
		}
		p.ComputeMetrics()
		out = append(out, p)
	}
	return out, nil
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

// parseUpdateTime accepts the handful of timestamp shapes the quote endpoint
// emits; anything unparseable resolves to now.
func parseUpdateTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "02-01-2006 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
