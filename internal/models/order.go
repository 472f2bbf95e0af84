package models

import (
	"fmt"
	"time"
)

// Order is a single trade event in a portfolio's order log.
// Once appended it is never modified; corrections are new orders.
type Order struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolio_id"`
	Seq         int64     `json:"seq"`
	OrderDate   time.Time `json:"order_date"`
	TradeDate   time.Time `json:"trade_date"`
	Symbol      string    `json:"symbol"`
	Side        OrderSide `json:"side"`
	Quantity    int64     `json:"quantity"`
	AssetType   string    `json:"asset_type,omitempty"`
	BatchKey    string    `json:"batch_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// String names the order the way a human would look it up in the source file.
func (o Order) String() string {
	return fmt.Sprintf("%s %d %s on %s", o.Side, o.Quantity, o.Symbol, FormatDay(o.TradeDate))
}

// IsBuy reports whether the order is a buy.
func (o Order) IsBuy() bool {
	return o.Side == OrderSideBuy
}

// OrderLogSummary describes a portfolio's order log.
type OrderLogSummary struct {
	PortfolioID    string      `json:"portfolio_id"`
	TotalOrders    int         `json:"total_orders"`
	FirstTradeDate time.Time   `json:"first_trade_date"`
	LastTradeDate  time.Time   `json:"last_trade_date"`
	FirstOrderDate time.Time   `json:"first_order_date"`
	LastOrderDate  time.Time   `json:"last_order_date"`
	Symbols        []string    `json:"symbols"`
	BatchDates     []time.Time `json:"batch_dates"`
}
