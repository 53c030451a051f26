package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/cache"
	"stockwatch/internal/fetcher"
	"stockwatch/internal/market"
	"stockwatch/internal/model"
	"stockwatch/internal/provider"
	"stockwatch/internal/provider/upstox"
	"stockwatch/internal/recorder"
	"stockwatch/internal/store"
	"stockwatch/internal/symbol"
	"stockwatch/internal/watchlist"
)

type stubAdapter struct {
	kind  provider.Kind
	price float64
	fail  bool
}

func (s stubAdapter) Kind() provider.Kind { return s.kind }
func (s stubAdapter) Ready() bool         { return true }

func (s stubAdapter) FetchQuote(_ context.Context, sym symbol.Canonical) (*model.Quote, error) {
	if s.fail {
		return nil, &provider.ParseError{Provider: s.kind, Reason: "no data"}
	}
	q := &model.Quote{Symbol: sym.Ticker, CurrentPrice: s.price, PreviousClose: s.price - 1, Timestamp: time.Now().UTC()}
	q.ComputeChange()
	return q, nil
}

func (s stubAdapter) FetchCandles(_ context.Context, _ symbol.Canonical, _ model.Timeframe) (model.CandleSeries, error) {
	if s.fail {
		return nil, &provider.ParseError{Provider: s.kind, Reason: "no data"}
	}
	return model.CandleSeries{{Timestamp: time.Now().UTC(), Close: s.price}}, nil
}

func newTestServer(t *testing.T, adapters ...provider.Adapter) *apiServer {
	t.Helper()
	lists, err := watchlist.NewManager(store.NewMemory(), nil, zerolog.Nop())
	require.NoError(t, err)
	f := fetcher.New(adapters, cache.New(time.Minute), lists, recorder.Noop{}, nil, fetcher.Options{Fallback: true}, zerolog.Nop())
	return &apiServer{
		fetcher: f,
		lists:   lists,
		clock:   market.NewClock(false, nil),
		upstox:  upstox.New(upstox.Config{}, nil, zerolog.Nop()),
		log:     zerolog.Nop(),
	}
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestQuoteEndpoint(t *testing.T) {
	h := newTestServer(t, stubAdapter{kind: provider.KindYahoo, price: 100}).routes()

	rr := do(t, h, http.MethodGet, "/api/quote?symbol=TCS", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var q model.Quote
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &q))
	require.Equal(t, "TCS", q.Symbol)
	require.Equal(t, 100.0, q.CurrentPrice)
}

func TestQuoteEndpointErrors(t *testing.T) {
	h := newTestServer(t, stubAdapter{kind: provider.KindYahoo, fail: true}).routes()

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/quote", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/quote?symbol=CASH", "").Code)
	require.Equal(t, http.StatusBadGateway, do(t, h, http.MethodGet, "/api/quote?symbol=TCS", "").Code)
}

func TestQuotesBatchOmitsFailed(t *testing.T) {
	h := newTestServer(t, stubAdapter{kind: provider.KindYahoo, price: 50}).routes()

	rr := do(t, h, http.MethodPost, "/api/quotes", `{"symbols":["TCS","CASH"]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Quotes map[string]model.Quote `json:"quotes"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Quotes, 1)
	require.Contains(t, resp.Quotes, "TCS")
}

func TestValidateEndpoint(t *testing.T) {
	h := newTestServer(t).routes()

	rr := do(t, h, http.MethodGet, "/api/validate?symbol=RELIANCE.NS", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var v symbol.Validation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	require.True(t, v.IsValid)
	require.Equal(t, "RELIANCE", v.Normalized)
}

func TestCandlesEndpoint(t *testing.T) {
	h := newTestServer(t, stubAdapter{kind: provider.KindYahoo, price: 42}).routes()

	rr := do(t, h, http.MethodGet, "/api/candles?symbol=TCS&timeframe=1h", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Candles model.CandleSeries `json:"candles"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Candles, 1)
	require.Equal(t, 42.0, resp.Candles[0].Close)
}

func TestWatchlistLifecycle(t *testing.T) {
	h := newTestServer(t).routes()

	rr := do(t, h, http.MethodPost, "/api/watchlists", `{"name":"main"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var wl watchlist.Watchlist
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &wl))

	require.Equal(t, http.StatusNoContent,
		do(t, h, http.MethodPost, "/api/watchlists/"+wl.ID+"/symbols", `{"symbol":"TCS"}`).Code)
	require.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodPost, "/api/watchlists/"+wl.ID+"/symbols", `{"symbol":"CASH"}`).Code)

	rr = do(t, h, http.MethodPost, "/api/watchlists/"+wl.ID+"/alerts",
		`{"symbol":"TCS","condition":"above","threshold":100}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var alert watchlist.PriceAlert
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &alert))

	require.Equal(t, http.StatusNoContent,
		do(t, h, http.MethodPost, "/api/watchlists/"+wl.ID+"/alerts/"+alert.ID+"/toggle", "").Code)
	require.Equal(t, http.StatusNoContent,
		do(t, h, http.MethodDelete, "/api/watchlists/"+wl.ID+"/symbols/TCS", "").Code)
	require.Equal(t, http.StatusNoContent,
		do(t, h, http.MethodDelete, "/api/watchlists/"+wl.ID, "").Code)
	require.Equal(t, http.StatusNotFound,
		do(t, h, http.MethodDelete, "/api/watchlists/"+wl.ID, "").Code)
}

func TestMarketStatusEndpoint(t *testing.T) {
	h := newTestServer(t).routes()
	rr := do(t, h, http.MethodGet, "/api/market-status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var st market.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	require.True(t, st.Open, "hours check disabled in tests")
}

func TestPortfolioRequiresCredentials(t *testing.T) {
	h := newTestServer(t).routes()
	require.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/portfolio", "").Code)
	require.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/search?q=rel", "").Code)
}
