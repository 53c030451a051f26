package upstox

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"stockwatch/internal/provider"
)

// Instrument is one row of the tradable-instrument master.
type Instrument struct {
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Exchange      string `json:"exchange"`
	InstrumentKey string `json:"instrument_key"`
	ISIN          string `json:"isin"`
}

// instrumentCache holds the parsed master for a TTL so searches do not
// re-download the full CSV.
type instrumentCache struct {
	ttl time.Duration

	mu       sync.RWMutex
	list     []Instrument
	loadedAt time.Time
}

func newInstrumentCache(ttl time.Duration) *instrumentCache {
	return &instrumentCache{ttl: ttl}
}

func (c *instrumentCache) get() ([]Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.list == nil || time.Since(c.loadedAt) >= c.ttl {
		return nil, false
	}
	return c.list, true
}

func (c *instrumentCache) set(list []Instrument) {
	c.mu.Lock()
	c.list = list
	c.loadedAt = time.Now()
	c.mu.Unlock()
}

// FetchInstruments returns the instrument master, downloading it at most
// once per cache TTL. The bulk CSV download is retried with exponential
// backoff because it is large and the endpoint is flaky under load.
func (a *Adapter) FetchInstruments(ctx context.Context) ([]Instrument, error) {
	if list, ok := a.instruments.get(); ok {
		return list, nil
	}

	body, err := a.client.Get(ctx, a.cfg.BaseURL+"/v2/instruments", a.headers())
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data *struct {
			CSVFileDownloadURL string `json:"csv_file_download_url"`
		} `json:"data"`
	}
	var csvText string
	if err := json.Unmarshal(body, &resp); err == nil && resp.Data != nil && resp.Data.CSVFileDownloadURL != "" {
		csvText, err = a.downloadCSV(ctx, resp.Data.CSVFileDownloadURL)
		if err != nil {
			return nil, err
		}
	} else if strings.Contains(string(body), "instrument_key") {
		// Some deployments serve the CSV inline.
		csvText = string(body)
	} else {
		return nil, &provider.ParseError{Provider: provider.KindUpstox, Reason: "unexpected instruments response"}
	}

	list, err := ParseInstrumentsCSV(csvText)
	if err != nil {
		return nil, err
	}
	a.instruments.set(list)
	a.log.Info().Int("count", len(list)).Msg("instrument master loaded")
	return list, nil
}

func (a *Adapter) downloadCSV(ctx context.Context, url string) (string, error) {
	var text string
	op := func() error {
		body, err := a.client.Get(ctx, url, a.headers())
		if err != nil {
			return err
		}
		text = string(body)
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return "", err
	}
	return text, nil
}

// ParseInstrumentsCSV parses the master by header name, tolerating both
// trading_symbol and tradingsymbol column spellings. Rows without a symbol
// are skipped.
func ParseInstrumentsCSV(text string) ([]Instrument, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, &provider.ParseError{Provider: provider.KindUpstox, Reason: "instruments CSV: " + err.Error()}
	}
	if len(rows) < 2 {
		return []Instrument{}, nil
	}

	idx := map[string]int{}
	for i, col := range rows[0] {
		idx[strings.TrimSpace(col)] = i
	}
	col := func(row []string, names ...string) string {
		for _, n := range names {
			if i, ok := idx[n]; ok && i < len(row) {
				return row[i]
			}
		}
		return ""
	}

	out := make([]Instrument, 0, len(rows)-1)
	for _, row := range rows[1:] {
		sym := col(row, "trading_symbol", "tradingsymbol")
		if sym == "" {
			continue
		}
		out = append(out, Instrument{
			Symbol:        sym,
			Name:          col(row, "name"),
			Exchange:      col(row, "exchange"),
			InstrumentKey: col(row, "instrument_key"),
			ISIN:          col(row, "isin"),
		})
	}
	return out, nil
}

// SearchInstruments filters the master by a case-insensitive substring match
// on symbol or name, capped at 25 results.
func (a *Adapter) SearchInstruments(ctx context.Context, query string) ([]Instrument, error) {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return []Instrument{}, nil
	}
	list, err := a.FetchInstruments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Instrument, 0, 25)
	for _, it := range list {
		if strings.Contains(strings.ToUpper(it.Symbol), q) || strings.Contains(strings.ToUpper(it.Name), q) {
			out = append(out, it)
			if len(out) == 25 {
				break
			}
		}
	}
	return out, nil
}
