package model

import (
	"sort"
	"time"
)

// Timeframe is the provider-independent candle interval token. Each adapter
// maps these to its own interval/range vocabulary; unknown tokens fall back
// to the daily interval.
type Timeframe string

const (
	TF1Min   Timeframe = "1m"
	TF5Min   Timeframe = "5m"
	TF15Min  Timeframe = "15m"
	TF30Min  Timeframe = "30m"
	TF1Hour  Timeframe = "1h"
	TF1Day   Timeframe = "1d"
	TF1Week  Timeframe = "1w"
	TF1Month Timeframe = "1M"
)

// Quote is the normalized per-symbol snapshot shared by all providers.
// A Quote is never mutated after construction; a newer fetch supersedes it.
type Quote struct {
	Symbol           string    `json:"symbol"`
	CurrentPrice     float64   `json:"current_price"`
	OpenPrice        float64   `json:"open_price"`
	HighPrice        float64   `json:"high_price"`
	LowPrice         float64   `json:"low_price"`
	PreviousClose    float64   `json:"previous_close,omitempty"` // 0 when unknown
	Volume           int64     `json:"volume"`
	Timestamp        time.Time `json:"timestamp"`
	DayChange        float64   `json:"day_change"`
	DayChangePercent float64   `json:"day_change_percent"`
	Currency         string    `json:"currency"`
	Provider         string    `json:"provider"`
	MarketCap        float64   `json:"market_cap,omitempty"`
	PERatio          float64   `json:"pe_ratio,omitempty"`
}

// ComputeChange fills DayChange and DayChangePercent from PreviousClose.
// When PreviousClose is unknown or zero both fields are exactly 0.
func (q *Quote) ComputeChange() {
	if q.PreviousClose == 0 {
		q.DayChange = 0
		q.DayChangePercent = 0
		return
	}
	q.DayChange = q.CurrentPrice - q.PreviousClose
	q.DayChangePercent = q.DayChange / q.PreviousClose * 100
}

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// CandleSeries is an ordered sequence of candles, strictly increasing by
// timestamp once normalized. An empty series is a valid "no data" result.
type CandleSeries []Candle

// Normalize sorts the series by timestamp and drops duplicate-timestamp bars,
// keeping the last occurrence of each timestamp. The receiver is not modified.
func (s CandleSeries) Normalize() CandleSeries {
	if len(s) == 0 {
		return CandleSeries{}
	}
	out := make(CandleSeries, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	dedup := out[:0]
	for _, c := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Timestamp.Equal(c.Timestamp) {
			dedup[n-1] = c
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}

// Last returns the final candle of the series, or false when empty.
func (s CandleSeries) Last() (Candle, bool) {
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[len(s)-1], true
}

// PriceHistoryPoint is one intra-process price observation, used only for
// trend scoring, not as authoritative candle history.
type PriceHistoryPoint struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}
