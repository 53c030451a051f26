// Package watchlist manages named symbol lists, price alerts, and the
// per-symbol price history that trending is derived from. State is persisted
// through a store.Store as JSON under fixed keys.
package watchlist

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stockwatch/internal/model"
	"stockwatch/internal/store"
)

// Store keys. Everything lives under two keys so import/export round-trips
// the full state.
const (
	keyWatchlists = "watchlists"
	keyHistory    = "price_history"
)

// historyCap bounds the per-symbol price history ring.
const historyCap = 100

// Condition is what an alert compares against.
type Condition string

const (
	CondAbove         Condition = "above"
	CondBelow         Condition = "below"
	CondChangePercent Condition = "changePercent"
)

// PriceAlert fires once when its condition is met and stays triggered until
// explicitly reset.
type PriceAlert struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Condition   Condition `json:"condition"`
	Threshold   float64   `json:"threshold"`
	Enabled     bool      `json:"enabled"`
	Sound       bool      `json:"sound"`
	Triggered   bool      `json:"triggered"`
	TriggeredAt time.Time `json:"triggered_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Note        string    `json:"note,omitempty"`
}

// Watchlist is a named, ordered set of symbols with its alerts.
type Watchlist struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Symbols       []string     `json:"symbols"`
	Alerts        []PriceAlert `json:"alerts"`
	CreatedAt     time.Time    `json:"created_at"`
	LastUpdatedAt time.Time    `json:"last_updated_at"`
}

// AlertEvent is delivered to the Notifier when an alert fires.
type AlertEvent struct {
	Alert    PriceAlert `json:"alert"`
	Price    float64    `json:"price"`
	Change   float64    `json:"change_percent"`
	FiredAt  time.Time  `json:"fired_at"`
	ListID   string     `json:"list_id"`
	ListName string     `json:"list_name"`
}

// Notifier receives fired alerts. Implementations must not block.
type Notifier interface {
	Notify(ev AlertEvent)
}

// NopNotifier drops events.
type NopNotifier struct{}

func (NopNotifier) Notify(AlertEvent) {}

// Stats summarizes alert state across all lists.
type Stats struct {
	Lists          int `json:"lists"`
	Symbols        int `json:"symbols"`
	Alerts         int `json:"alerts"`
	EnabledAlerts  int `json:"enabled_alerts"`
	TriggeredToday int `json:"triggered_today"`
}

// Manager owns all watchlists and histories. Every mutation persists before
// returning.
type Manager struct {
	store    store.Store
	notifier Notifier
	log      zerolog.Logger

	mu      sync.RWMutex
	lists   []Watchlist
	history map[string][]model.PriceHistoryPoint
}

// NewManager loads persisted state; missing keys start empty.
func NewManager(st store.Store, notifier Notifier, log zerolog.Logger) (*Manager, error) {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	m := &Manager{
		store:    st,
		notifier: notifier,
		log:      log.With().Str("component", "watchlist").Logger(),
		history:  make(map[string][]model.PriceHistoryPoint),
	}
	if raw, ok, err := st.Get(keyWatchlists); err != nil {
		return nil, fmt.Errorf("load watchlists: %w", err)
	} else if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &m.lists); err != nil {
			return nil, fmt.Errorf("parse watchlists: %w", err)
		}
	}
	if raw, ok, err := st.Get(keyHistory); err != nil {
		return nil, fmt.Errorf("load price history: %w", err)
	} else if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &m.history); err != nil {
			return nil, fmt.Errorf("parse price history: %w", err)
		}
	}
	return m, nil
}

func (m *Manager) persistListsLocked() error {
	data, err := json.Marshal(m.lists)
	if err != nil {
		return err
	}
	return m.store.Set(keyWatchlists, string(data))
}

func (m *Manager) persistHistoryLocked() error {
	data, err := json.Marshal(m.history)
	if err != nil {
		return err
	}
	return m.store.Set(keyHistory, string(data))
}

// Lists returns a deep copy of all watchlists.
func (m *Manager) Lists() []Watchlist {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Watchlist, len(m.lists))
	for i, wl := range m.lists {
		out[i] = copyList(wl)
	}
	return out
}

// Get returns the watchlist with the given id.
func (m *Manager) Get(id string) (Watchlist, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, wl := range m.lists {
		if wl.ID == id {
			return copyList(wl), true
		}
	}
	return Watchlist{}, false
}

// Create adds an empty watchlist with the given name.
func (m *Manager) Create(name string) (Watchlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Watchlist{}, fmt.Errorf("watchlist name is empty")
	}
	now := time.Now().UTC()
	wl := Watchlist{
		ID:            uuid.NewString(),
		Name:          name,
		Symbols:       []string{},
		Alerts:        []PriceAlert{},
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists = append(m.lists, wl)
	if err := m.persistListsLocked(); err != nil {
		m.lists = m.lists[:len(m.lists)-1]
		return Watchlist{}, err
	}
	return copyList(wl), nil
}

// Rename changes a watchlist's name.
func (m *Manager) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("watchlist name is empty")
	}
	return m.mutate(id, func(wl *Watchlist) error {
		wl.Name = name
		return nil
	})
}

// Delete removes a watchlist entirely.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, wl := range m.lists {
		if wl.ID == id {
			m.lists = append(m.lists[:i], m.lists[i+1:]...)
			return m.persistListsLocked()
		}
	}
	return fmt.Errorf("watchlist %s not found", id)
}

// AddSymbol appends a symbol if not already present.
func (m *Manager) AddSymbol(id, sym string) error {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	if sym == "" {
		return fmt.Errorf("symbol is empty")
	}
	return m.mutate(id, func(wl *Watchlist) error {
		for _, s := range wl.Symbols {
			if s == sym {
				return nil
			}
		}
		wl.Symbols = append(wl.Symbols, sym)
		return nil
	})
}

// RemoveSymbol drops a symbol and its alerts from the list.
func (m *Manager) RemoveSymbol(id, sym string) error {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	return m.mutate(id, func(wl *Watchlist) error {
		kept := wl.Symbols[:0]
		for _, s := range wl.Symbols {
			if s != sym {
				kept = append(kept, s)
			}
		}
		wl.Symbols = kept
		alerts := wl.Alerts[:0]
		for _, a := range wl.Alerts {
			if a.Symbol != sym {
				alerts = append(alerts, a)
			}
		}
		wl.Alerts = alerts
		return nil
	})
}

// AllSymbols returns the deduplicated union of symbols across lists, in
// first-seen order. This is what the background refresher polls.
func (m *Manager) AllSymbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]struct{}{}
	var out []string
	for _, wl := range m.lists {
		for _, s := range wl.Symbols {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// AddAlert attaches a new alert to a list. changePercent thresholds are
// compared against the quote's absolute day change.
func (m *Manager) AddAlert(id string, a PriceAlert) (PriceAlert, error) {
	a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))
	if a.Symbol == "" {
		return PriceAlert{}, fmt.Errorf("alert symbol is empty")
	}
	switch a.Condition {
	case CondAbove, CondBelow, CondChangePercent:
	default:
		return PriceAlert{}, fmt.Errorf("unknown alert condition %q", a.Condition)
	}
	a.ID = uuid.NewString()
	a.Enabled = true
	a.Triggered = false
	a.TriggeredAt = time.Time{}
	a.CreatedAt = time.Now().UTC()
	err := m.mutate(id, func(wl *Watchlist) error {
		wl.Alerts = append(wl.Alerts, a)
		return nil
	})
	if err != nil {
		return PriceAlert{}, err
	}
	return a, nil
}

// RemoveAlert deletes an alert by id.
func (m *Manager) RemoveAlert(listID, alertID string) error {
	return m.mutate(listID, func(wl *Watchlist) error {
		for i, a := range wl.Alerts {
			if a.ID == alertID {
				wl.Alerts = append(wl.Alerts[:i], wl.Alerts[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("alert %s not found", alertID)
	})
}

// ToggleAlert flips an alert's enabled state.
func (m *Manager) ToggleAlert(listID, alertID string) error {
	return m.mutate(listID, func(wl *Watchlist) error {
		for i := range wl.Alerts {
			if wl.Alerts[i].ID == alertID {
				wl.Alerts[i].Enabled = !wl.Alerts[i].Enabled
				return nil
			}
		}
		return fmt.Errorf("alert %s not found", alertID)
	})
}

// ResetAlert re-arms a fired alert. This is the only path back to the armed
// state; firing never auto-resets.
func (m *Manager) ResetAlert(listID, alertID string) error {
	return m.mutate(listID, func(wl *Watchlist) error {
		for i := range wl.Alerts {
			if wl.Alerts[i].ID == alertID {
				wl.Alerts[i].Triggered = false
				wl.Alerts[i].TriggeredAt = time.Time{}
				return nil
			}
		}
		return fmt.Errorf("alert %s not found", alertID)
	})
}

// CheckAlerts evaluates every armed, enabled alert for the quote's symbol.
// Matching alerts fire exactly once: they are marked triggered, persisted,
// and delivered to the notifier. Fired events are returned for recording.
func (m *Manager) CheckAlerts(q *model.Quote) []AlertEvent {
	if q == nil {
		return nil
	}
	now := time.Now().UTC()
	var fired []AlertEvent

	m.mu.Lock()
	for li := range m.lists {
		wl := &m.lists[li]
		for ai := range wl.Alerts {
			a := &wl.Alerts[ai]
			if a.Symbol != q.Symbol || !a.Enabled || a.Triggered {
				continue
			}
			if !conditionMet(a, q) {
				continue
			}
			a.Triggered = true
			a.TriggeredAt = now
			wl.LastUpdatedAt = now
			fired = append(fired, AlertEvent{
				Alert:    *a,
				Price:    q.CurrentPrice,
				Change:   q.DayChangePercent,
				FiredAt:  now,
				ListID:   wl.ID,
				ListName: wl.Name,
			})
		}
	}
	var persistErr error
	if len(fired) > 0 {
		persistErr = m.persistListsLocked()
	}
	m.mu.Unlock()

	if persistErr != nil {
		m.log.Error().Err(persistErr).Msg("persist after alert fire failed")
	}
	for _, ev := range fired {
		m.log.Info().
			Str("symbol", ev.Alert.Symbol).
			Str("condition", string(ev.Alert.Condition)).
			Float64("threshold", ev.Alert.Threshold).
			Float64("price", ev.Price).
			Msg("alert fired")
		m.notifier.Notify(ev)
	}
	return fired
}

func conditionMet(a *PriceAlert, q *model.Quote) bool {
	switch a.Condition {
	case CondAbove:
		return q.CurrentPrice >= a.Threshold
	case CondBelow:
		return q.CurrentPrice <= a.Threshold
	case CondChangePercent:
		pct := q.DayChangePercent
		if pct < 0 {
			pct = -pct
		}
		return pct >= a.Threshold
	}
	return false
}

// RecordPrice appends a history point for the symbol, keeping at most
// historyCap points.
func (m *Manager) RecordPrice(q *model.Quote) {
	if q == nil {
		return
	}
	point := model.PriceHistoryPoint{
		Symbol:    q.Symbol,
		Price:     q.CurrentPrice,
		Timestamp: q.Timestamp,
	}
	if point.Timestamp.IsZero() {
		point.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	hist := append(m.history[q.Symbol], point)
	if len(hist) > historyCap {
		hist = hist[len(hist)-historyCap:]
	}
	m.history[q.Symbol] = hist
	err := m.persistHistoryLocked()
	m.mu.Unlock()

	if err != nil {
		m.log.Error().Err(err).Str("symbol", q.Symbol).Msg("persist price history failed")
	}
}

// PriceHistory returns the points for symbol newer than the window, oldest
// first. A zero window returns everything retained.
func (m *Manager) PriceHistory(symbol string, window time.Duration) []model.PriceHistoryPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hist := m.history[symbol]
	if window <= 0 {
		out := make([]model.PriceHistoryPoint, len(hist))
		copy(out, hist)
		return out
	}
	cutoff := time.Now().Add(-window)
	out := make([]model.PriceHistoryPoint, 0, len(hist))
	for _, p := range hist {
		if p.Timestamp.After(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// TrendingSymbol is one trending entry: the symbol and its percent move over
// the window.
type TrendingSymbol struct {
	Symbol        string  `json:"symbol"`
	ChangePercent float64 `json:"change_percent"`
	LastPrice     float64 `json:"last_price"`
}

// TrendingSymbols ranks watched symbols by absolute percent move over the
// last 24 hours, computed from first to last retained point in the window.
// Symbols with fewer than two points in the window are skipped.
func (m *Manager) TrendingSymbols(limit int) []TrendingSymbol {
	const window = 24 * time.Hour
	cutoff := time.Now().Add(-window)

	m.mu.RLock()
	out := make([]TrendingSymbol, 0, len(m.history))
	for sym, hist := range m.history {
		var windowed []model.PriceHistoryPoint
		for _, p := range hist {
			if p.Timestamp.After(cutoff) {
				windowed = append(windowed, p)
			}
		}
		if len(windowed) < 2 {
			continue
		}
		first, last := windowed[0], windowed[len(windowed)-1]
		if first.Price == 0 {
			continue
		}
		out = append(out, TrendingSymbol{
			Symbol:        sym,
			ChangePercent: (last.Price - first.Price) / first.Price * 100,
			LastPrice:     last.Price,
		})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return abs(out[i].ChangePercent) > abs(out[j].ChangePercent)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Statistics summarizes lists and alert state. "Today" is the current UTC
// day.
func (m *Manager) Statistics() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var st Stats
	st.Lists = len(m.lists)
	seen := map[string]struct{}{}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	for _, wl := range m.lists {
		for _, s := range wl.Symbols {
			seen[s] = struct{}{}
		}
		st.Alerts += len(wl.Alerts)
		for _, a := range wl.Alerts {
			if a.Enabled {
				st.EnabledAlerts++
			}
			if a.Triggered && !a.TriggeredAt.Before(today) {
				st.TriggeredToday++
			}
		}
	}
	st.Symbols = len(seen)
	return st
}

// Export serializes all watchlists as JSON.
func (m *Manager) Export() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.MarshalIndent(m.lists, "", "  ")
}

// Import replaces all watchlists with the given JSON export. Price history is
// untouched.
func (m *Manager) Import(data []byte) error {
	var lists []Watchlist
	if err := json.Unmarshal(data, &lists); err != nil {
		return fmt.Errorf("parse import: %w", err)
	}
	for i := range lists {
		if lists[i].ID == "" {
			lists[i].ID = uuid.NewString()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.lists
	m.lists = lists
	if err := m.persistListsLocked(); err != nil {
		m.lists = prev
		return err
	}
	return nil
}

func (m *Manager) mutate(id string, fn func(*Watchlist) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.lists {
		if m.lists[i].ID != id {
			continue
		}
		if err := fn(&m.lists[i]); err != nil {
			return err
		}
		m.lists[i].LastUpdatedAt = time.Now().UTC()
		return m.persistListsLocked()
	}
	return fmt.Errorf("watchlist %s not found", id)
}

func copyList(wl Watchlist) Watchlist {
	out := wl
	out.Symbols = append([]string(nil), wl.Symbols...)
	out.Alerts = append([]PriceAlert(nil), wl.Alerts...)
	return out
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
