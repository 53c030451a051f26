// Package bhav implements the exchange stock-info adapter. It serves quotes
// only; candle requests report "no data" so the chain can move on.
package bhav

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stockwatch/internal/httpx"
	"stockwatch/internal/model"
	"stockwatch/internal/provider"
	"stockwatch/internal/symbol"
)

const defaultBaseURL = "https://www.bseindia.com"

type Adapter struct {
	BaseURL string
	Client  *httpx.Client
	Log     zerolog.Logger
}

func New(client *httpx.Client, log zerolog.Logger) *Adapter {
	return &Adapter{
		BaseURL: defaultBaseURL,
		Client:  client,
		Log:     log.With().Str("component", "bhav").Logger(),
	}
}

func (a *Adapter) Kind() provider.Kind { return provider.KindBhav }

func (a *Adapter) Ready() bool { return true }

func (a *Adapter) FetchQuote(ctx context.Context, sym symbol.Canonical) (*model.Quote, error) {
	u := fmt.Sprintf("%s/stockinfo/stockinfoeq_eq_%s.json", a.BaseURL, provider.FormatSymbol(sym, provider.KindBhav))
	body, err := a.Client.Get(ctx, u, nil)
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

// FetchCandles always yields an empty series: the stock-info feed has no
// historical endpoint.
func (a *Adapter) FetchCandles(_ context.Context, _ symbol.Canonical, _ model.Timeframe) (model.CandleSeries, error) {
	return model.CandleSeries{}, nil
}

// flexNum decodes a number that the feed emits sometimes quoted, sometimes
// bare. Unparseable values decode to zero rather than failing the body.
type flexNum float64

func (n *flexNum) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = flexNum(f)
	return nil
}

// stockInfo tolerates both the stockInfo and equityInfo envelope and both
// field-name generations the feed has used.
type stockInfo struct {
	LTP       flexNum `json:"LTP"`
	LastPrice flexNum `json:"lastPrice"`
	Open      flexNum `json:"Open"`
	OpenAlt   flexNum `json:"openPrice"`
	High      flexNum `json:"High"`
	HighAlt   flexNum `json:"highPrice"`
	Low       flexNum `json:"Low"`
	LowAlt    flexNum `json:"lowPrice"`
	PrevClose flexNum `json:"prevClose"`
	PrevAlt   flexNum `json:"previousClose"`
	VolumeQty flexNum `json:"volumeQty"`
	Volume    flexNum `json:"volume"`
	Exchange  string  `json:"exchange"`
}

func (a *Adapter) ParseQuote(body []byte, sym symbol.Canonical) (*model.Quote, error) {
	var resp struct {
		StockInfo  *stockInfo `json:"stockInfo"`
		EquityInfo *stockInfo `json:"equityInfo"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.ParseError{Provider: provider.KindBhav, Reason: "invalid JSON: " + err.Error()}
	}
	info := resp.StockInfo
	if info == nil {
		info = resp.EquityInfo
	}
	if info == nil {
		return nil, &provider.ParseError{Provider: provider.KindBhav, Reason: "missing stockInfo object"}
	}

	current := num(info.LTP, info.LastPrice)
	if current == 0 {
		return nil, &provider.ParseError{Provider: provider.KindBhav, Reason: "zero last traded price"}
	}

	q := &model.Quote{
		Symbol:        sym.Ticker,
		CurrentPrice:  current,
		OpenPrice:     numOr(current, info.Open, info.OpenAlt),
		HighPrice:     numOr(current, info.High, info.HighAlt),
		LowPrice:      numOr(current, info.Low, info.LowAlt),
		PreviousClose: num(info.PrevClose, info.PrevAlt),
		Volume:        int64(num(info.VolumeQty, info.Volume)),
		Timestamp:     time.Now().UTC(),
		Currency:      "INR",
		Provider:      string(provider.KindBhav),
	}
	q.ComputeChange()
	return q, nil
}

func num(candidates ...flexNum) float64 {
	for _, c := range candidates {
		if c != 0 {
			return float64(c)
		}
	}
	return 0
}

func numOr(fallback float64, candidates ...flexNum) float64 {
	if f := num(candidates...); f != 0 {
		return f
	}
	return fallback
}
