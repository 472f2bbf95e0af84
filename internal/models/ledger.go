package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is a cost-basis batch opened by a single buy order.
type Lot struct {
	Symbol   string          `json:"symbol"`
	OrderID  string          `json:"order_id"`
	OpenDate time.Time       `json:"open_date"`
	Quantity int64           `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// Cost returns the remaining cost of the lot.
func (l Lot) Cost() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(l.Quantity))
}

// PositionValue is one symbol's contribution to a daily snapshot.
type PositionValue struct {
	Symbol      string          `json:"symbol"`
	Quantity    int64           `json:"quantity"`
	Close       decimal.Decimal `json:"close"`
	PriceDate   time.Time       `json:"price_date"`
	MarketValue decimal.Decimal `json:"market_value"`
	// Stale is set when the symbol had no bar on the snapshot date.
	Stale bool `json:"stale,omitempty"`
}

// Snapshot is the account valuation at the close of one trading day.
type Snapshot struct {
	Date          time.Time       `json:"date"`
	Cash          decimal.Decimal `json:"cash"`
	Positions     []PositionValue `json:"positions"`
	MarketValue   decimal.Decimal `json:"market_value"`
	TotalValue    decimal.Decimal `json:"total_value"`
	DailyReturn   decimal.Decimal `json:"daily_return"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Commissions   decimal.Decimal `json:"commissions"`
}

// Position returns the snapshot entry for symbol.
func (s Snapshot) Position(symbol string) (PositionValue, bool) {
	for _, p := range s.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return PositionValue{}, false
}

// Holding is one row of the final position table.
type Holding struct {
	Symbol        string          `json:"symbol"`
	Quantity      int64           `json:"quantity"`
	Lots          int             `json:"lots"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	LastPrice     decimal.Decimal `json:"last_price"`
	PriceDate     time.Time       `json:"price_date"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	Commissions   decimal.Decimal `json:"commissions"`
}
