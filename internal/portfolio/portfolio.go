// Package portfolio models holdings and derives per-position and rollup
// metrics, including sector allocation and a diversification score.
package portfolio

import (
	"math"
	"time"
)

// Position is one holding. Metric fields are derived by ComputeMetrics and
// recomputed whenever quantity or prices change.
type Position struct {
	ID               string    `json:"id"`
	Symbol           string    `json:"symbol"`
	Name             string    `json:"name,omitempty"`
	Exchange         string    `json:"exchange"`
	Quantity         int64     `json:"quantity"`
	AveragePrice     float64   `json:"average_price"`
	CurrentPrice     float64   `json:"current_price"`
	Currency         string    `json:"currency"`
	Sector           string    `json:"sector,omitempty"`
	LastUpdate       time.Time `json:"last_update"`
	DayChange        float64   `json:"day_change"`
	DayChangePercent float64   `json:"day_change_percent"`
	TotalValue       float64   `json:"total_value"`
	TotalCost        float64   `json:"total_cost"`
	ProfitLoss       float64   `json:"profit_loss"`
	ProfitLossPct    float64   `json:"profit_loss_percent"`
	UnrealizedPL     float64   `json:"unrealized_pnl,omitempty"`
	RealizedPL       float64   `json:"realized_pnl,omitempty"`
}

// ComputeMetrics fills the derived fields from quantity and prices.
func (p *Position) ComputeMetrics() {
	p.TotalCost = float64(p.Quantity) * p.AveragePrice
	p.TotalValue = float64(p.Quantity) * p.CurrentPrice
	p.ProfitLoss = p.TotalValue - p.TotalCost
	if p.TotalCost > 0 {
		p.ProfitLossPct = p.ProfitLoss / p.TotalCost * 100
	} else {
		p.ProfitLossPct = 0
	}
}

// SectorSlice is one sector's share of a portfolio.
type SectorSlice struct {
	Value     float64 `json:"value"`
	Weight    float64 `json:"weight"` // percent of total value
	Positions int     `json:"positions"`
}

// Summary is the portfolio rollup.
type Summary struct {
	TotalValue       float64                `json:"total_value"`
	TotalCost        float64                `json:"total_cost"`
	TotalProfitLoss  float64                `json:"total_profit_loss"`
	TotalPLPercent   float64                `json:"total_profit_loss_percent"`
	DayChange        float64                `json:"day_change"`
	DayChangePercent float64                `json:"day_change_percent"`
	Positions        int                    `json:"positions"`
	Winning          int                    `json:"winning"`
	Losing           int                    `json:"losing"`
	TopGainer        *Position              `json:"top_gainer,omitempty"`
	TopLoser         *Position              `json:"top_loser,omitempty"`
	Sectors          map[string]SectorSlice `json:"sectors"`
	Diversification  int                    `json:"diversification"`
}

// Summarize computes the rollup over positions. Position metrics are
// recomputed first so the summary never mixes stale derived values.
func Summarize(positions []Position) Summary {
	sum := Summary{Sectors: map[string]SectorSlice{}, Positions: len(positions)}
	var maxGain, maxLoss float64

	for i := range positions {
		p := &positions[i]
		p.ComputeMetrics()
		sum.TotalCost += p.TotalCost
		sum.TotalValue += p.TotalValue
		sum.DayChange += p.DayChangePercent * p.TotalValue / 100

		if p.ProfitLoss > 0 {
			sum.Winning++
		} else if p.ProfitLoss < 0 {
			sum.Losing++
		}
		if p.ProfitLossPct > maxGain {
			maxGain = p.ProfitLossPct
			sum.TopGainer = p
		}
		if p.ProfitLossPct < maxLoss {
			maxLoss = p.ProfitLossPct
			sum.TopLoser = p
		}

		sector := p.Sector
		if sector == "" {
			sector = "Unknown"
		}
		slice := sum.Sectors[sector]
		slice.Value += p.TotalValue
		slice.Positions++
		sum.Sectors[sector] = slice
	}

	sum.TotalProfitLoss = sum.TotalValue - sum.TotalCost
	if sum.TotalCost > 0 {
		sum.TotalPLPercent = sum.TotalProfitLoss / sum.TotalCost * 100
	}
	if sum.TotalValue > 0 {
		sum.DayChangePercent = sum.DayChange / sum.TotalValue * 100
		for name, slice := range sum.Sectors {
			slice.Weight = slice.Value / sum.TotalValue * 100
			sum.Sectors[name] = slice
		}
	}
	sum.Diversification = DiversificationScore(sum.Sectors)
	return sum
}

// DiversificationScore converts the Herfindahl-Hirschman Index over sector
// value-weights into a 0-100 score; one sector or fewer scores 0.
func DiversificationScore(sectors map[string]SectorSlice) int {
	if len(sectors) <= 1 {
		return 0
	}
	var hhi float64
	for _, slice := range sectors {
		w := slice.Weight / 100
		hhi += w * w
	}
	return int(math.Round((1 - hhi) * 100))
}
