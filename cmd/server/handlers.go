package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stockwatch/internal/fetcher"
	"stockwatch/internal/market"
	"stockwatch/internal/model"
	"stockwatch/internal/portfolio"
	"stockwatch/internal/provider/upstox"
	"stockwatch/internal/symbol"
	"stockwatch/internal/watchlist"
)

type apiServer struct {
	fetcher *fetcher.Fetcher
	lists   *watchlist.Manager
	clock   *market.Clock
	upstox  *upstox.Adapter
	log     zerolog.Logger
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("GET /api/quote", s.handleQuote)
	mux.HandleFunc("GET /api/quotes", s.handleQuotes)
	mux.HandleFunc("POST /api/quotes", s.handleQuotesPost)
	mux.HandleFunc("GET /api/candles", s.handleCandles)
	mux.HandleFunc("GET /api/validate", s.handleValidate)
	mux.HandleFunc("GET /api/market-status", s.handleMarketStatus)
	mux.HandleFunc("GET /api/trending", s.handleTrending)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/portfolio", s.handlePortfolio)

	mux.HandleFunc("GET /api/watchlists", s.handleListWatchlists)
	mux.HandleFunc("POST /api/watchlists", s.handleCreateWatchlist)
	mux.HandleFunc("GET /api/watchlists/{id}", s.handleGetWatchlist)
	mux.HandleFunc("DELETE /api/watchlists/{id}", s.handleDeleteWatchlist)
	mux.HandleFunc("POST /api/watchlists/{id}/symbols", s.handleAddSymbol)
	mux.HandleFunc("DELETE /api/watchlists/{id}/symbols/{symbol}", s.handleRemoveSymbol)
	mux.HandleFunc("POST /api/watchlists/{id}/alerts", s.handleAddAlert)
	mux.HandleFunc("DELETE /api/watchlists/{id}/alerts/{alertID}", s.handleRemoveAlert)
	mux.HandleFunc("POST /api/watchlists/{id}/alerts/{alertID}/toggle", s.handleToggleAlert)
	mux.HandleFunc("POST /api/watchlists/{id}/alerts/{alertID}/reset", s.handleResetAlert)

	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("POST /api/import", s.handleImport)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fetchStatus maps fetch errors to HTTP statuses: bad symbols are the
// caller's fault, exhausted chains are upstream failures.
func fetchStatus(err error) int {
	var inv *fetcher.InvalidSymbolError
	var off *fetcher.ErrOffline
	switch {
	case errors.As(err, &inv):
		return http.StatusBadRequest
	case errors.As(err, &off):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *apiServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	sym := r.URL.Query().Get("symbol")
	if strings.TrimSpace(sym) == "" {
		writeError(w, http.StatusBadRequest, "missing symbol query param")
		return
	}
	q, err := s.fetcher.FetchQuote(r.Context(), sym)
	if err != nil {
		writeError(w, fetchStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *apiServer) handleQuotes(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	if strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusBadRequest, "missing symbols query param")
		return
	}
	s.writeQuotes(w, r, splitCSV(raw))
}

func (s *apiServer) handleQuotesPost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Symbols []string `json:"symbols"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(body.Symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols cannot be empty")
		return
	}
	s.writeQuotes(w, r, body.Symbols)
}

func (s *apiServer) writeQuotes(w http.ResponseWriter, r *http.Request, symbols []string) {
	if len(symbols) > 100 {
		writeError(w, http.StatusBadRequest, "too many symbols (max 100)")
		return
	}
	quotes, err := s.fetcher.FetchMultiple(r.Context(), symbols)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotes": quotes})
}

func (s *apiServer) handleCandles(w http.ResponseWriter, r *http.Request) {
	sym := r.URL.Query().Get("symbol")
	if strings.TrimSpace(sym) == "" {
		writeError(w, http.StatusBadRequest, "missing symbol query param")
		return
	}
	tf := model.Timeframe(r.URL.Query().Get("timeframe"))
	if tf == "" {
		tf = model.TF1Day
	}
	series, err := s.fetcher.FetchCandles(r.Context(), sym, tf)
	if err != nil {
		writeError(w, fetchStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": sym, "timeframe": tf, "candles": series})
}

func (s *apiServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, symbol.Validate(r.URL.Query().Get("symbol")))
}

func (s *apiServer) handleMarketStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.clock.CurrentStatus())
}

func (s *apiServer) handleTrending(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trending": s.lists.TrendingSymbols(limit)})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	sym := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if sym == "" {
		writeError(w, http.StatusBadRequest, "missing symbol query param")
		return
	}
	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid window duration")
			return
		}
		window = d
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": sym, "points": s.lists.PriceHistory(sym, window)})
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.lists.Statistics())
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.upstox.Ready() {
		writeError(w, http.StatusServiceUnavailable, "instrument search requires brokerage credentials")
		return
	}
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeError(w, http.StatusBadRequest, "missing q query param")
		return
	}
	results, err := s.upstox.SearchInstruments(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *apiServer) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if !s.upstox.Ready() {
		writeError(w, http.StatusServiceUnavailable, "portfolio requires brokerage credentials")
		return
	}
	positions, err := s.upstox.FetchPositions(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"positions": positions,
		"summary":   portfolio.Summarize(positions),
	})
}

func (s *apiServer) handleListWatchlists(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"watchlists": s.lists.Lists()})
}

func (s *apiServer) handleCreateWatchlist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	wl, err := s.lists.Create(body.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, wl)
}

func (s *apiServer) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	wl, ok := s.lists.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "watchlist not found")
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

func (s *apiServer) handleDeleteWatchlist(w http.ResponseWriter, r *http.Request) {
	if err := s.lists.Delete(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleAddSymbol(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if v := symbol.Validate(body.Symbol); !v.IsValid {
		writeError(w, http.StatusBadRequest, strings.Join(v.Errors, "; "))
		return
	}
	if err := s.lists.AddSymbol(r.PathValue("id"), body.Symbol); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleRemoveSymbol(w http.ResponseWriter, r *http.Request) {
	if err := s.lists.RemoveSymbol(r.PathValue("id"), r.PathValue("symbol")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleAddAlert(w http.ResponseWriter, r *http.Request) {
	var alert watchlist.PriceAlert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := s.lists.AddAlert(r.PathValue("id"), alert)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *apiServer) handleRemoveAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.lists.RemoveAlert(r.PathValue("id"), r.PathValue("alertID")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleToggleAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.lists.ToggleAlert(r.PathValue("id"), r.PathValue("alertID")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleResetAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.lists.ResetAlert(r.PathValue("id"), r.PathValue("alertID")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.lists.Export()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *apiServer) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	if err := s.lists.Import(data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
