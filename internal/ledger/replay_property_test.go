package ledger

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"tradeledger/internal/models"
)

var propertySymbols = []string{"0005.HK", "0700.HK", "2800.HK"}

// randomScenario builds a valid order log (no oversells) with a gappy price book.
// Orders are only placed on days where their symbol has a bar.
func randomScenario(seed int64) ([]models.Order, *models.PriceBook) {
	r := rand.New(rand.NewSource(seed))
	book := models.NewPriceBook()
	for _, symbol := range propertySymbols {
		var bars []models.PriceBar
		for i := 0; i < 30; i++ {
			if r.Intn(6) == 0 {
				continue
			}
			open := decimal.New(int64(100+r.Intn(9900)), -2)
			last := decimal.New(int64(100+r.Intn(9900)), -2)
			bars = append(bars, models.PriceBar{Date: d(i), Open: open, Close: last})
		}
		book.Add(symbol, bars...)
	}

	held := make(map[string]int64)
	var orders []models.Order
	seq := int64(0)
	for day := 0; day < 30; day++ {
		for n := r.Intn(3); n > 0; n-- {
			symbol := propertySymbols[r.Intn(len(propertySymbols))]
			if _, ok := book.Bar(symbol, d(day)); !ok {
				continue
			}
			seq++
			if held[symbol] > 0 && r.Intn(2) == 0 {
				qty := 1 + r.Int63n(held[symbol])
				held[symbol] -= qty
				orders = append(orders, sell(seq, d(day), symbol, qty))
				continue
			}
			qty := int64(1 + r.Intn(500))
			held[symbol] += qty
			orders = append(orders, buy(seq, d(day), symbol, qty))
		}
	}
	return orders, book
}

func propertyParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	return parameters
}

// Property: replaying the same log and prices twice, in any input order,
// yields byte-identical JSON.
func TestProperty_ReplayDeterminism(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("replay output is byte-identical across runs", prop.ForAll(
		func(seed int64, method string) bool {
			orders, book := randomScenario(seed)
			cfg := DefaultConfig()
			cfg.CostBasis = CostBasisMethod(method)

			first, err := Replay(orders, book, cfg)
			if err != nil {
				t.Logf("replay failed: %v", err)
				return false
			}

			shuffled := make([]models.Order, len(orders))
			copy(shuffled, orders)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			second, err := Replay(shuffled, book, cfg)
			if err != nil {
				t.Logf("second replay failed: %v", err)
				return false
			}

			a, _ := json.Marshal(first)
			b, _ := json.Marshal(second)
			if !bytes.Equal(a, b) {
				t.Logf("outputs differ for seed %d", seed)
				return false
			}
			return true
		},
		gen.Int64(),
		gen.OneConstOf("fifo", "average"),
	))

	properties.TestingRun(t)
}

// Property: every snapshot satisfies total = cash + sum(market value) exactly.
func TestProperty_Conservation(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("total value equals cash plus market value", prop.ForAll(
		func(seed int64, policy string) bool {
			orders, book := randomScenario(seed)
			cfg := DefaultConfig()
			cfg.MissingPrice = MissingPricePolicy(policy)

			res, err := Replay(orders, book, cfg)
			if err != nil {
				t.Logf("replay failed: %v", err)
				return false
			}
			for _, snap := range res.Snapshots {
				sum := decimal.Zero
				for _, p := range snap.Positions {
					sum = sum.Add(p.MarketValue)
				}
				if !sum.Equal(snap.MarketValue) || !snap.Cash.Add(sum).Equal(snap.TotalValue) {
					t.Logf("conservation broken on %s: cash %s mv %s total %s",
						models.FormatDay(snap.Date), snap.Cash, sum, snap.TotalValue)
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.OneConstOf("carry_forward", "exclude"),
	))

	properties.TestingRun(t)
}

// Property: remaining lot quantities always add up to the holding, and under
// either cost basis the cash flows reconcile exactly with realized profit and
// open cost.
func TestProperty_CostBasisConsistency(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("lots reconcile with holdings and cash", prop.ForAll(
		func(seed int64, method string) bool {
			orders, book := randomScenario(seed)
			cfg := DefaultConfig()
			cfg.CostBasis = CostBasisMethod(method)
			res, err := Replay(orders, book, cfg)
			if err != nil {
				t.Logf("replay failed: %v", err)
				return false
			}

			lotQty := make(map[string]int64)
			openCost := decimal.Zero
			for _, l := range res.Lots {
				if l.Quantity <= 0 {
					t.Logf("empty lot kept: %+v", l)
					return false
				}
				lotQty[l.Symbol] += l.Quantity
			}
			for _, h := range res.Holdings {
				openCost = openCost.Add(h.CostBasis)
				if lotQty[h.Symbol] != h.Quantity {
					t.Logf("%s: lots %d != holding %d", h.Symbol, lotQty[h.Symbol], h.Quantity)
					return false
				}
			}

			bought, sold := decimal.Zero, decimal.Zero
			for _, o := range orders {
				b, _ := book.Bar(o.Symbol, o.TradeDate)
				notional := b.Open.Mul(decimal.NewFromInt(o.Quantity))
				if o.IsBuy() {
					bought = bought.Add(notional)
				} else {
					sold = sold.Add(notional)
				}
			}
			// consumed cost = proceeds - realized
			if !openCost.Add(sold).Sub(res.RealizedPnL).Equal(bought) {
				t.Logf("cost basis drift: open %s sold %s realized %s bought %s", openCost, sold, res.RealizedPnL, bought)
				return false
			}
			wantCash := res.InitialCash.Sub(bought).Add(sold).Sub(res.Commissions)
			if !wantCash.Equal(res.FinalCash) {
				t.Logf("cash %s, want %s", res.FinalCash, wantCash)
				return false
			}
			return true
		},
		gen.Int64(),
		gen.OneConstOf("fifo", "average"),
	))

	properties.TestingRun(t)
}
