// Package report renders replay results for people and machines.
package report

import (
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/internal/ledger"
)

const ratioPlaces = 8

// DayReturn is the return of a single snapshot date.
type DayReturn struct {
	Date   time.Time       `json:"date"`
	Return decimal.Decimal `json:"return"`
}

// Stats summarizes a replay's equity curve.
type Stats struct {
	InitialCash   decimal.Decimal `json:"initial_cash"`
	FinalValue    decimal.Decimal `json:"final_value"`
	TotalReturn   decimal.Decimal `json:"total_return"`
	TradingDays   int             `json:"trading_days"`
	MaxDrawdown   decimal.Decimal `json:"max_drawdown"`
	PeakValue     decimal.Decimal `json:"peak_value"`
	PeakDate      time.Time       `json:"peak_date"`
	TroughValue   decimal.Decimal `json:"trough_value"`
	TroughDate    time.Time       `json:"trough_date"`
	BestDay       DayReturn       `json:"best_day"`
	WorstDay      DayReturn       `json:"worst_day"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Commissions   decimal.Decimal `json:"commissions"`
}

// ComputeStats derives Stats from res. Drawdown is measured from the
// running peak of total value, starting at the initial cash.
func ComputeStats(res *ledger.Result) Stats {
	st := Stats{
		InitialCash: res.InitialCash,
		FinalValue:  res.FinalCash,
		RealizedPnL: res.RealizedPnL,
		Commissions: res.Commissions,
		PeakValue:   res.InitialCash,
		TroughValue: res.InitialCash,
	}
	if len(res.Snapshots) == 0 {
		return st
	}

	last := res.Snapshots[len(res.Snapshots)-1]
	st.FinalValue = last.TotalValue
	st.UnrealizedPnL = last.UnrealizedPnL
	st.TradingDays = len(res.Snapshots)
	if res.InitialCash.IsPositive() {
		st.TotalReturn = st.FinalValue.Div(res.InitialCash).Sub(decimal.NewFromInt(1)).Round(ratioPlaces)
	}

	peak, peakDate := res.InitialCash, res.Start
	st.PeakDate, st.TroughDate = res.Start, res.Start
	for i, snap := range res.Snapshots {
		if i == 0 || snap.DailyReturn.GreaterThan(st.BestDay.Return) {
			st.BestDay = DayReturn{Date: snap.Date, Return: snap.DailyReturn}
		}
		if i == 0 || snap.DailyReturn.LessThan(st.WorstDay.Return) {
			st.WorstDay = DayReturn{Date: snap.Date, Return: snap.DailyReturn}
		}

		if snap.TotalValue.GreaterThan(peak) {
			peak, peakDate = snap.TotalValue, snap.Date
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(snap.TotalValue).Div(peak).Round(ratioPlaces)
		if dd.GreaterThan(st.MaxDrawdown) {
			st.MaxDrawdown = dd
			st.PeakValue, st.PeakDate = peak, peakDate
			st.TroughValue, st.TroughDate = snap.TotalValue, snap.Date
		}
	}
	if st.MaxDrawdown.IsZero() {
		st.PeakValue, st.PeakDate = peak, peakDate
		st.TroughValue, st.TroughDate = peak, peakDate
	}
	return st
}
