// Package alphavantage implements the last-resort adapter. Quotes come from
// the GLOBAL_QUOTE function, candles from the intraday or daily time series.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stockwatch/internal/httpx"
	"stockwatch/internal/model"
	"stockwatch/internal/provider"
	"stockwatch/internal/symbol"
)

const defaultBaseURL = "https://www.alphavantage.co"

// intraday maps minute and hour timeframes to the intraday interval
// parameter. Daily and coarser timeframes use the daily function instead.
var intraday = map[model.Timeframe]string{
	model.TF1Min:  "1min",
	model.TF5Min:  "5min",
	model.TF15Min: "15min",
	model.TF30Min: "30min",
	model.TF1Hour: "60min",
}

type Config struct {
	BaseURL string
	APIKey  string
}

type Adapter struct {
	cfg    Config
	client *httpx.Client
	log    zerolog.Logger
}

func New(cfg Config, client *httpx.Client, log zerolog.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Adapter{
		cfg:    cfg,
		client: client,
		log:    log.With().Str("component", "alphavantage").Logger(),
	}
}

func (a *Adapter) Kind() provider.Kind { return provider.KindAlphaVantage }

func (a *Adapter) Ready() bool { return a.cfg.APIKey != "" }

func (a *Adapter) queryURL(params map[string]string) string {
	v := url.Values{}
	for k, val := range params {
		v.Set(k, val)
	}
	v.Set("apikey", a.cfg.APIKey)
	return fmt.Sprintf("%s/query?%s", a.cfg.BaseURL, v.Encode())
}

func (a *Adapter) FetchQuote(ctx context.Context, sym symbol.Canonical) (*model.Quote, error) {
	u := a.queryURL(map[string]string{
		"function": "GLOBAL_QUOTE",
		"symbol":   provider.FormatSymbol(sym, provider.KindAlphaVantage),
	})
	body, err := a.client.Get(ctx, u, nil)
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
	params := map[string]string{
		"symbol":     provider.FormatSymbol(sym, provider.KindAlphaVantage),
		"outputsize": "compact",
	}
	if interval, ok := intraday[tf]; ok {
		params["function"] = "TIME_SERIES_INTRADAY"
		params["interval"] = interval
	} else {
		params["function"] = "TIME_SERIES_DAILY"
	}
	body, err := a.client.Get(ctx, a.queryURL(params), nil)
	if err != nil {
		return nil, err
	}
	return a.ParseCandles(body, sym), nil
}

// globalQuote mirrors the numbered-key payload. All values arrive as strings.
type globalQuote struct {
	Symbol        string `json:"01. symbol"`
	Open          string `json:"02. open"`
	High          string `json:"03. high"`
	Low           string `json:"04. low"`
	Price         string `json:"05. price"`
	Volume        string `json:"06. volume"`
	PreviousClose string `json:"08. previous close"`
}

// ParseQuote converts a GLOBAL_QUOTE payload into a Quote. The endpoint
// signals throttling with a "Note" field and bad input with "Error Message";
// both surface as parse errors so the chain advances.
func (a *Adapter) ParseQuote(body []byte, sym symbol.Canonical) (*model.Quote, error) {
	var resp struct {
		GlobalQuote *globalQuote `json:"Global Quote"`
		Note        string       `json:"Note"`
		ErrMsg      string       `json:"Error Message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ParseError{Provider: provider.KindAlphaVantage, Reason: "invalid JSON: " + err.Error()}
	}
	if resp.Note != "" {
		return nil, &provider.ParseError{Provider: provider.KindAlphaVantage, Reason: "rate limited"}
	}
	if resp.ErrMsg != "" {
		return nil, &provider.ParseError{Provider: provider.KindAlphaVantage, Reason: "api error: " + resp.ErrMsg}
	}
	if resp.GlobalQuote == nil || resp.GlobalQuote.Price == "" {
		return nil, &provider.ParseError{Provider: provider.KindAlphaVantage, Reason: "missing Global Quote"}
	}
	g := resp.GlobalQuote

	current := parseNum(g.Price)
	if current == 0 {
		return nil, &provider.ParseError{Provider: provider.KindAlphaVantage, Reason: "zero price"}
	}
	q := &model.Quote{
		Symbol:        sym.Ticker,
		CurrentPrice:  current,
		OpenPrice:     numOr(g.Open, current),
		HighPrice:     numOr(g.High, current),
		LowPrice:      numOr(g.Low, current),
		PreviousClose: parseNum(g.PreviousClose),
		Volume:        int64(parseNum(g.Volume)),
		Timestamp:     time.Now().UTC(),
		Currency:      "INR",
		Provider:      string(provider.KindAlphaVantage),
	}
	q.ComputeChange()
	return q, nil
}

// bar mirrors one time-series entry.
type bar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

// ParseCandles converts an intraday or daily time-series payload into a
// normalized series. The series key varies with the interval ("Time Series
// (5min)", "Time Series (Daily)"), so it is located by prefix.
func (a *Adapter) ParseCandles(body []byte, sym symbol.Canonical) model.CandleSeries {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		a.log.Warn().Str("symbol", sym.Ticker).Msg("candle parse failed")
		return model.CandleSeries{}
	}

	var bars map[string]bar
	for key, msg := range raw {
		if strings.HasPrefix(key, "Time Series") {
			if err := json.Unmarshal(msg, &bars); err != nil {
				return model.CandleSeries{}
			}
			break
		}
	}
	if bars == nil {
		return model.CandleSeries{}
	}

	series := make(model.CandleSeries, 0, len(bars))
	for tsRaw, b := range bars {
		ts := parseBarTime(tsRaw)
		if ts.IsZero() {
			continue
		}
		close := parseNum(b.Close)
		if close == 0 {
			continue
		}
		series = append(series, model.Candle{
			Timestamp: ts,
			Open:      numOr(b.Open, close),
			High:      numOr(b.High, close),
			Low:       numOr(b.Low, close),
			Close:     close,
			Volume:    int64(parseNum(b.Volume)),
		})
	}
	return series.Normalize()
}

func parseBarTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseNum(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func numOr(s string, fallback float64) float64 {
	if f := parseNum(s); f != 0 {
		return f
	}
	return fallback
}
