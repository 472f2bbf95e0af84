package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/internal/models"
)

// lotBook holds the open lots of one symbol, oldest first.
type lotBook struct {
	symbol string
	method CostBasisMethod
	lots   []models.Lot
	// pooled is the exact open cost under AverageCost. Lot unit costs are
	// only a display of pooled / quantity there.
	pooled decimal.Decimal
}

func (b *lotBook) quantity() int64 {
	var total int64
	for _, l := range b.lots {
		total += l.Quantity
	}
	return total
}

func (b *lotBook) cost() decimal.Decimal {
	if b.method == AverageCost {
		return b.pooled
	}
	total := decimal.Zero
	for _, l := range b.lots {
		total = total.Add(l.Cost())
	}
	return total
}

// open adds a new lot. Buys are never merged into existing lots.
func (b *lotBook) open(orderID string, date time.Time, qty int64, unitCost decimal.Decimal) {
	b.lots = append(b.lots, models.Lot{
		Symbol:   b.symbol,
		OrderID:  orderID,
		OpenDate: date,
		Quantity: qty,
		UnitCost: unitCost,
	})
	if b.method == AverageCost {
		b.pooled = b.pooled.Add(unitCost.Mul(decimal.NewFromInt(qty)))
		b.remarkAverage()
	}
}

// close consumes qty units at price and returns the realized profit.
// The caller must have checked qty against quantity().
func (b *lotBook) close(qty int64, price decimal.Decimal) decimal.Decimal {
	if b.method == AverageCost {
		return b.closeAverage(qty, price)
	}

	realized := decimal.Zero
	b.consume(qty, func(lot models.Lot, take int64) {
		realized = realized.Add(price.Sub(lot.UnitCost).Mul(decimal.NewFromInt(take)))
	})
	return realized
}

// closeAverage releases the pro-rata share of the pooled cost. Closing the
// whole position releases all of it, so realized profit over a round trip
// equals proceeds minus cost exactly.
func (b *lotBook) closeAverage(qty int64, price decimal.Decimal) decimal.Decimal {
	held := b.quantity()
	released := b.pooled
	if qty < held {
		released = b.pooled.Mul(decimal.NewFromInt(qty)).Div(decimal.NewFromInt(held))
	}
	b.pooled = b.pooled.Sub(released)
	b.consume(qty, func(models.Lot, int64) {})
	b.remarkAverage()
	return price.Mul(decimal.NewFromInt(qty)).Sub(released)
}

// consume takes qty units oldest lot first and drops emptied lots.
func (b *lotBook) consume(qty int64, fn func(lot models.Lot, take int64)) {
	remaining := qty
	kept := b.lots[:0]
	for _, lot := range b.lots {
		if remaining > 0 {
			take := lot.Quantity
			if take > remaining {
				take = remaining
			}
			fn(lot, take)
			lot.Quantity -= take
			remaining -= take
		}
		if lot.Quantity > 0 {
			kept = append(kept, lot)
		}
	}
	b.lots = kept
}

// remarkAverage sets every open lot's unit cost to the pooled average.
func (b *lotBook) remarkAverage() {
	qty := b.quantity()
	if qty == 0 {
		b.pooled = decimal.Zero
		return
	}
	avg := b.pooled.Div(decimal.NewFromInt(qty))
	for i := range b.lots {
		b.lots[i].UnitCost = avg
	}
}

func (b *lotBook) snapshot() []models.Lot {
	out := make([]models.Lot, len(b.lots))
	copy(out, b.lots)
	return out
}
