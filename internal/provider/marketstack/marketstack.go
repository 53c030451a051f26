// Package marketstack implements the end-of-day adapter. Data is daily only,
// so finer timeframes are served at daily granularity.
package marketstack

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

const defaultBaseURL = "https://api.marketstack.com"

// limits is how many EOD rows to request per timeframe.
var limits = map[model.Timeframe]int{
	model.TF1Day:   30,
	model.TF1Week:  90,
	model.TF1Month: 365,
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
		log:    log.With().Str("component", "marketstack").Logger(),
	}
}

func (a *Adapter) Kind() provider.Kind { return provider.KindMarketStack }

func (a *Adapter) Ready() bool { return a.cfg.APIKey != "" }

func (a *Adapter) eodURL(sym symbol.Canonical, limit int) string {
	return fmt.Sprintf("%s/v1/eod?access_key=%s&symbols=%s&sort=DESC&limit=%d",
		a.cfg.BaseURL, url.QueryEscape(a.cfg.APIKey),
		url.QueryEscape(provider.FormatSymbol(sym, provider.KindMarketStack)), limit)
}

// FetchQuote requests the two most recent EOD rows so the older one can serve
// as the previous close.
func (a *Adapter) FetchQuote(ctx context.Context, sym symbol.Canonical) (*model.Quote, error) {
	body, err := a.client.Get(ctx, a.eodURL(sym, 2), nil)
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
	limit, ok := limits[tf]
	if !ok {
		limit = 30
	}
	body, err := a.client.Get(ctx, a.eodURL(sym, limit), nil)
	if err != nil {
		return nil, err
	}
	return a.ParseCandles(body, sym), nil
}

// eodRow is one entry of the data array, newest first.
type eodRow struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Date   string  `json:"date"`
}

type eodResponse struct {
	Data  []eodRow `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseQuote builds a Quote from the newest EOD row; the next row, when
// present, supplies the previous close.
func (a *Adapter) ParseQuote(body []byte, sym symbol.Canonical) (*model.Quote, error) {
	var resp eodResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ParseError{Provider: provider.KindMarketStack, Reason: "invalid JSON: " + err.Error()}
	}
	if resp.Error != nil {
		return nil, &provider.ParseError{Provider: provider.KindMarketStack, Reason: "api error: " + resp.Error.Message}
	}
	if len(resp.Data) == 0 {
		return nil, &provider.ParseError{Provider: provider.KindMarketStack, Reason: "empty data array"}
	}
	latest := resp.Data[0]
	if latest.Close == 0 {
		return nil, &provider.ParseError{Provider: provider.KindMarketStack, Reason: "zero close"}
	}

	q := &model.Quote{
		Symbol:       sym.Ticker,
		CurrentPrice: latest.Close,
		OpenPrice:    latest.Open,
		HighPrice:    latest.High,
		LowPrice:     latest.Low,
		Volume:       int64(latest.Volume),
		Timestamp:    parseEODDate(latest.Date),
		Currency:     "INR",
		Provider:     string(provider.KindMarketStack),
	}
	if len(resp.Data) > 1 {
		q.PreviousClose = resp.Data[1].Close
	}
	q.ComputeChange()
	return q, nil
}

// ParseCandles converts the EOD rows into a normalized series. Rows with a
// zero close or an unparseable date are skipped.
func (a *Adapter) ParseCandles(body []byte, sym symbol.Canonical) model.CandleSeries {
	var resp eodResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error != nil {
		a.log.Warn().Str("symbol", sym.Ticker).Msg("candle parse failed")
		return model.CandleSeries{}
	}
	series := make(model.CandleSeries, 0, len(resp.Data))
	for _, row := range resp.Data {
		if row.Close == 0 {
			continue
		}
		ts := parseEODDate(row.Date)
		if ts.IsZero() {
			continue
		}
		series = append(series, model.Candle{
			Timestamp: ts,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    int64(row.Volume),
		})
	}
	return series.Normalize()
}

func parseEODDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-0700", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
