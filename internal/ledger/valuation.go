package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/internal/models"
)

// value builds the close-of-day snapshot for date.
func (s *state) value(date time.Time, prices *models.PriceBook) models.Snapshot {
	snap := models.Snapshot{
		Date:          date,
		Cash:          s.cash,
		Positions:     make([]models.PositionValue, 0, len(s.everHeld)),
		MarketValue:   decimal.Zero,
		UnrealizedPnL: decimal.Zero,
		RealizedPnL:   s.totalRealized(),
		Commissions:   s.totalCommissions(),
	}

	for _, symbol := range s.everHeld {
		book := s.books[symbol]
		pos := models.PositionValue{
			Symbol:      symbol,
			Quantity:    book.quantity(),
			Close:       decimal.Zero,
			MarketValue: decimal.Zero,
		}

		bar, ok := prices.Bar(symbol, date)
		switch {
		case ok:
			pos.Close, pos.PriceDate = bar.Close, bar.Date
		case pos.Quantity == 0:
			if last, found := prices.LastBar(symbol, date); found {
				pos.Close, pos.PriceDate = last.Close, last.Date
			}
		case s.cfg.MissingPrice == CarryForward:
			pos.Stale = true
			if last, found := prices.LastBar(symbol, date); found {
				pos.Close, pos.PriceDate = last.Close, last.Date
			}
		default:
			// excluded: no valuation contribution today
			pos.Stale = true
		}

		if pos.Quantity > 0 && !pos.PriceDate.IsZero() {
			pos.MarketValue = pos.Close.Mul(decimal.NewFromInt(pos.Quantity))
			snap.UnrealizedPnL = snap.UnrealizedPnL.Add(pos.MarketValue.Sub(book.cost()))
		}
		snap.MarketValue = snap.MarketValue.Add(pos.MarketValue)
		snap.Positions = append(snap.Positions, pos)
	}

	snap.TotalValue = snap.Cash.Add(snap.MarketValue)
	return snap
}

// holdings builds the final position table as of end.
func (s *state) holdings(end time.Time, prices *models.PriceBook) []models.Holding {
	out := make([]models.Holding, 0, len(s.everHeld))
	for _, symbol := range s.everHeld {
		book := s.books[symbol]
		h := models.Holding{
			Symbol:        symbol,
			Quantity:      book.quantity(),
			Lots:          len(book.lots),
			CostBasis:     book.cost(),
			AverageCost:   decimal.Zero,
			LastPrice:     decimal.Zero,
			MarketValue:   decimal.Zero,
			UnrealizedPnL: decimal.Zero,
			RealizedPnL:   s.realized[symbol],
			Commissions:   s.commissions[symbol],
		}
		if h.Quantity > 0 {
			h.AverageCost = h.CostBasis.Div(decimal.NewFromInt(h.Quantity))
		}
		if bar, ok := prices.LastBar(symbol, end); ok {
			h.LastPrice, h.PriceDate = bar.Close, bar.Date
			h.MarketValue = bar.Close.Mul(decimal.NewFromInt(h.Quantity))
			h.UnrealizedPnL = h.MarketValue.Sub(h.CostBasis)
		}
		out = append(out, h)
	}
	return out
}
