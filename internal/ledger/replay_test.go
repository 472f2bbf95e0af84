package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/models"
)

// day0 is a Monday.
var day0 = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func d(n int) time.Time { return day0.AddDate(0, 0, n) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func bar(date time.Time, open, close string) models.PriceBar {
	return models.PriceBar{Date: date, Open: dec(open), Close: dec(close)}
}

func buy(seq int64, date time.Time, symbol string, qty int64) models.Order {
	return mkOrder(seq, date, symbol, models.OrderSideBuy, qty)
}

func sell(seq int64, date time.Time, symbol string, qty int64) models.Order {
	return mkOrder(seq, date, symbol, models.OrderSideSell, qty)
}

func mkOrder(seq int64, date time.Time, symbol string, side models.OrderSide, qty int64) models.Order {
	return models.Order{
		ID:          fmt.Sprintf("o%02d", seq),
		PortfolioID: "test",
		Seq:         seq,
		OrderDate:   date,
		TradeDate:   date,
		Symbol:      symbol,
		Side:        side,
		Quantity:    qty,
	}
}

func noCommission() Config {
	cfg := DefaultConfig()
	cfg.CommissionRate = decimal.Zero
	return cfg
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func fifoBook() *models.PriceBook {
	book := models.NewPriceBook()
	book.Add("A.HK",
		bar(d(0), "10", "10.5"),
		bar(d(1), "12", "12.5"),
		bar(d(2), "15", "15"),
	)
	return book
}

func fifoOrders() []models.Order {
	return []models.Order{
		buy(1, d(0), "A.HK", 100),
		buy(2, d(1), "A.HK", 100),
		sell(3, d(2), "A.HK", 150),
	}
}

func TestReplay_FIFORealization(t *testing.T) {
	res, err := Replay(fifoOrders(), fifoBook(), noCommission())
	require.NoError(t, err)

	assertDec(t, "650", res.RealizedPnL)
	require.Len(t, res.Lots, 1)
	assert.Equal(t, int64(50), res.Lots[0].Quantity)
	assertDec(t, "12", res.Lots[0].UnitCost)
	assert.Equal(t, "o02", res.Lots[0].OrderID)

	assertDec(t, "100050", res.FinalCash)
	require.Len(t, res.Snapshots, 3)
	last, _ := res.Last()
	assertDec(t, "750", last.MarketValue)
	assertDec(t, "100800", last.TotalValue)
	assertDec(t, "150", last.UnrealizedPnL)

	h, ok := res.Holding("a.hk")
	require.True(t, ok)
	assert.Equal(t, int64(50), h.Quantity)
	assert.Equal(t, 1, h.Lots)
	assertDec(t, "600", h.CostBasis)
	assertDec(t, "12", h.AverageCost)
	assertDec(t, "650", h.RealizedPnL)
	assert.True(t, res.Complete)
}

func TestReplay_Commissions(t *testing.T) {
	res, err := Replay(fifoOrders(), fifoBook(), DefaultConfig())
	require.NoError(t, err)

	// 1000*0.001 + 1200*0.001 + 2250*0.001
	assertDec(t, "4.45", res.Commissions)
	assertDec(t, "100045.55", res.FinalCash)
	// realized profit is measured against unit cost only
	assertDec(t, "650", res.RealizedPnL)
}

func TestReplay_CommissionRoundsToCurrencyPrecision(t *testing.T) {
	book := models.NewPriceBook()
	book.Add("A.HK", bar(d(0), "5", "5"))

	res, err := Replay([]models.Order{buy(1, d(0), "A.HK", 1)}, book, DefaultConfig())
	require.NoError(t, err)
	// 0.005 rounds half away from zero
	assertDec(t, "0.01", res.Commissions)
	assertDec(t, "99994.99", res.FinalCash)

	cfg := DefaultConfig()
	cfg.Currency = "JPY"
	res, err = Replay([]models.Order{buy(1, d(0), "A.HK", 1)}, book, cfg)
	require.NoError(t, err)
	assertDec(t, "0", res.Commissions)
}

func TestReplay_OversellFailsWholeReplay(t *testing.T) {
	book := fifoBook()
	orders := []models.Order{
		buy(1, d(0), "A.HK", 100),
		sell(2, d(1), "A.HK", 150),
	}

	res, err := Replay(orders, book, DefaultConfig())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperrors.ErrOversell)

	var oversell *apperrors.OversellError
	require.ErrorAs(t, err, &oversell)
	assert.Equal(t, "o02", oversell.Order.ID)
	assert.Equal(t, int64(100), oversell.Available)
	assert.Equal(t, int64(50), oversell.Shortfall)
	assert.Contains(t, err.Error(), "SELL 150 A.HK on 2026-01-06")
}

func TestReplay_SellOfUnknownSymbolIsOversell(t *testing.T) {
	_, err := Replay([]models.Order{sell(1, d(0), "A.HK", 1)}, fifoBook(), DefaultConfig())
	var oversell *apperrors.OversellError
	require.ErrorAs(t, err, &oversell)
	assert.Equal(t, int64(0), oversell.Available)
}

func TestReplay_SameDayBuysOpenSeparateLots(t *testing.T) {
	orders := []models.Order{
		buy(1, d(0), "A.HK", 100),
		buy(2, d(0), "A.HK", 50),
	}
	res, err := Replay(orders, fifoBook(), noCommission())
	require.NoError(t, err)

	require.Len(t, res.Lots, 2)
	assert.Equal(t, int64(100), res.Lots[0].Quantity)
	assert.Equal(t, int64(50), res.Lots[1].Quantity)
	h, _ := res.Holding("A.HK")
	assert.Equal(t, 2, h.Lots)
	assert.Equal(t, int64(150), h.Quantity)
}

func TestReplay_SameDayOrdersFollowSeq(t *testing.T) {
	// supplied out of order; Seq decides intra-day sequencing
	orders := []models.Order{
		sell(2, d(0), "A.HK", 100),
		buy(1, d(0), "A.HK", 100),
	}
	res, err := Replay(orders, fifoBook(), noCommission())
	require.NoError(t, err)
	assert.Empty(t, res.Lots)
	assert.Equal(t, "o02", orders[0].ID, "input must not be reordered")

	reversed := []models.Order{
		sell(1, d(0), "A.HK", 100),
		buy(2, d(0), "A.HK", 100),
	}
	_, err = Replay(reversed, fifoBook(), noCommission())
	assert.ErrorIs(t, err, apperrors.ErrOversell)
}

func TestReplay_FullyClosedSymbolStillReported(t *testing.T) {
	book := models.NewPriceBook()
	book.Add("A.HK", bar(d(0), "10", "10"), bar(d(1), "11", "11"), bar(d(2), "12", "12"), bar(d(3), "13", "13"))
	book.Add("B.HK", bar(d(2), "20", "20"), bar(d(3), "21", "21"))

	orders := []models.Order{
		buy(1, d(0), "A.HK", 100),
		sell(2, d(1), "A.HK", 100),
		buy(3, d(2), "B.HK", 10),
	}
	res, err := Replay(orders, book, noCommission())
	require.NoError(t, err)

	last, _ := res.Last()
	a, ok := last.Position("A.HK")
	require.True(t, ok)
	assert.Equal(t, int64(0), a.Quantity)
	assertDec(t, "0", a.MarketValue)
	assert.False(t, a.Stale)

	h, ok := res.Holding("A.HK")
	require.True(t, ok)
	assert.Equal(t, int64(0), h.Quantity)
	assert.Equal(t, 0, h.Lots)
	assertDec(t, "100", h.RealizedPnL)
	assertDec(t, "0", h.MarketValue)

	require.Len(t, res.Holdings, 2)
	assert.Equal(t, "A.HK", res.Holdings[0].Symbol)
	assert.Equal(t, "B.HK", res.Holdings[1].Symbol)
}

func missingPriceFixture() ([]models.Order, *models.PriceBook) {
	book := models.NewPriceBook()
	book.Add("A.HK", bar(d(0), "10", "10"), bar(d(1), "11", "11"), bar(d(2), "12", "12"))
	book.Add("B.HK", bar(d(0), "20", "20"), bar(d(1), "21", "21"))
	orders := []models.Order{
		buy(1, d(0), "A.HK", 10),
		buy(2, d(0), "B.HK", 10),
	}
	return orders, book
}

func TestReplay_MissingValuationPriceCarryForward(t *testing.T) {
	orders, book := missingPriceFixture()
	res, err := Replay(orders, book, noCommission())
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 3)

	last := res.Snapshots[2]
	assert.Equal(t, d(2), last.Date)
	b, _ := last.Position("B.HK")
	assert.True(t, b.Stale)
	assert.Equal(t, d(1), b.PriceDate)
	assertDec(t, "210", b.MarketValue)
	a, _ := last.Position("A.HK")
	assert.False(t, a.Stale)
	assertDec(t, "120", a.MarketValue)
	// cash 100000 - 100 - 200
	assertDec(t, "100030", last.TotalValue)
	assert.True(t, res.Complete)
}

func TestReplay_MissingValuationPriceExclude(t *testing.T) {
	orders, book := missingPriceFixture()
	cfg := noCommission()
	cfg.MissingPrice = Exclude
	res, err := Replay(orders, book, cfg)
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 3)

	last := res.Snapshots[2]
	b, _ := last.Position("B.HK")
	assert.True(t, b.Stale)
	assert.Equal(t, int64(10), b.Quantity)
	assertDec(t, "0", b.MarketValue)
	assertDec(t, "99820", last.TotalValue)
	assertDec(t, "20", last.UnrealizedPnL)
}

func TestReplay_MissingFillPriceLenient(t *testing.T) {
	book := models.NewPriceBook()
	book.Add("A.HK", bar(d(0), "10", "10"), bar(d(1), "11", "11"))
	book.Add("B.HK", bar(d(0), "20", "20"))
	orders := []models.Order{
		buy(1, d(0), "A.HK", 10),
		buy(2, d(1), "B.HK", 10),
		buy(3, d(1), "A.HK", 5),
	}

	res, err := Replay(orders, book, noCommission())
	require.NoError(t, err)
	assert.False(t, res.Complete)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "o02", res.Skipped[0].Order.ID)
	assert.ErrorIs(t, res.Skipped[0].Err, apperrors.ErrMissingPrice)

	_, held := res.Holding("B.HK")
	assert.False(t, held)
	h, _ := res.Holding("A.HK")
	assert.Equal(t, int64(15), h.Quantity)
}

func TestReplay_SellAfterUnfilledBuyIsSkipped(t *testing.T) {
	book := models.NewPriceBook()
	book.Add("A.HK", bar(d(0), "10", "10"), bar(d(2), "12", "12"))
	book.Add("B.HK", bar(d(0), "20", "20"), bar(d(2), "22", "22"))
	orders := []models.Order{
		buy(1, d(0), "A.HK", 10),
		buy(2, d(1), "B.HK", 10),
		sell(3, d(2), "B.HK", 10),
		sell(4, d(2), "A.HK", 5),
	}

	res, err := Replay(orders, book, noCommission())
	require.NoError(t, err)
	assert.False(t, res.Complete)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, "o02", res.Skipped[0].Order.ID)
	assert.Equal(t, "o03", res.Skipped[1].Order.ID)
	assert.ErrorIs(t, res.Skipped[1].Err, apperrors.ErrOversell)
	assert.Contains(t, res.Skipped[1].Reason, "unfilled buys: [o02]")

	h, _ := res.Holding("A.HK")
	assert.Equal(t, int64(5), h.Quantity)
	assertDec(t, "10", res.RealizedPnL)
}

func TestReplay_OversellBeyondUnfilledBuysCitesThem(t *testing.T) {
	book := models.NewPriceBook()
	book.Add("B.HK", bar(d(0), "20", "20"), bar(d(2), "22", "22"))
	orders := []models.Order{
		buy(1, d(0), "B.HK", 5),
		buy(2, d(1), "B.HK", 10),
		sell(3, d(2), "B.HK", 20),
	}

	_, err := Replay(orders, book, noCommission())
	var oversell *apperrors.OversellError
	require.ErrorAs(t, err, &oversell)
	assert.Equal(t, "o03", oversell.Order.ID)
	assert.Equal(t, int64(5), oversell.Available)
	assert.Equal(t, int64(15), oversell.Shortfall)
	require.Len(t, oversell.Unfilled, 1)
	assert.Contains(t, err.Error(), "unfilled buys: [o02]")
}

func TestReplay_MissingFillPriceStrict(t *testing.T) {
	book := models.NewPriceBook()
	book.Add("A.HK", bar(d(0), "10", "10"), bar(d(1), "11", "11"))
	orders := []models.Order{
		buy(1, d(0), "A.HK", 10),
		buy(2, d(1), "B.HK", 10),
	}
	cfg := noCommission()
	cfg.Strict = true

	_, err := Replay(orders, book, cfg)
	var missing *apperrors.MissingPriceDataError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "B.HK", missing.Symbol)
	assert.Equal(t, d(1), missing.Date)
}

func TestReplay_NonPositiveOpenIsMissing(t *testing.T) {
	book := models.NewPriceBook()
	book.Add("A.HK", bar(d(0), "0", "10"))
	res, err := Replay([]models.Order{buy(1, d(0), "A.HK", 10)}, book, noCommission())
	require.NoError(t, err)
	assert.Len(t, res.Skipped, 1)
}

func TestReplay_AverageCost(t *testing.T) {
	cfg := noCommission()
	cfg.CostBasis = AverageCost
	res, err := Replay(fifoOrders(), fifoBook(), cfg)
	require.NoError(t, err)

	assertDec(t, "600", res.RealizedPnL)
	require.Len(t, res.Lots, 1)
	assert.Equal(t, int64(50), res.Lots[0].Quantity)
	assertDec(t, "11", res.Lots[0].UnitCost)
}

func TestReplay_AverageCostReconcilesWithCash(t *testing.T) {
	book := models.NewPriceBook()
	book.Add("A.HK", bar(d(0), "10", "10"), bar(d(1), "11", "11"), bar(d(2), "12", "12"), bar(d(3), "12", "12"))
	cfg := noCommission()
	cfg.CostBasis = AverageCost

	t.Run("single close-out", func(t *testing.T) {
		res, err := Replay([]models.Order{
			buy(1, d(0), "A.HK", 1),
			buy(2, d(1), "A.HK", 2),
			sell(3, d(2), "A.HK", 3),
		}, book, cfg)
		require.NoError(t, err)
		assertDec(t, "4", res.RealizedPnL)
		assertDec(t, "4", res.FinalCash.Sub(cfg.InitialCash))
		assert.Empty(t, res.Lots)
	})

	t.Run("partial sells", func(t *testing.T) {
		res, err := Replay([]models.Order{
			buy(1, d(0), "A.HK", 1),
			buy(2, d(1), "A.HK", 2),
			sell(3, d(2), "A.HK", 1),
			sell(4, d(3), "A.HK", 2),
		}, book, cfg)
		require.NoError(t, err)
		assertDec(t, "4", res.RealizedPnL)
		assertDec(t, "4", res.FinalCash.Sub(cfg.InitialCash))
		h, ok := res.Holding("A.HK")
		require.True(t, ok)
		assertDec(t, "0", h.CostBasis)
	})
}

func TestReplay_SkipsDatesWithoutRelevantBars(t *testing.T) {
	book := models.NewPriceBook()
	book.Add("A.HK", bar(d(0), "10", "10"), bar(d(2), "10", "10"), bar(d(3), "10", "10"))
	book.Add("B.HK", bar(d(1), "5", "5"), bar(d(3), "5", "5"))
	orders := []models.Order{
		buy(1, d(0), "A.HK", 1),
		buy(2, d(3), "B.HK", 1),
	}

	res, err := Replay(orders, book, noCommission())
	require.NoError(t, err)
	var dates []time.Time
	for _, s := range res.Snapshots {
		dates = append(dates, s.Date)
	}
	assert.Equal(t, []time.Time{d(0), d(2), d(3)}, dates)
}

func TestReplay_DailyReturn(t *testing.T) {
	book := models.NewPriceBook()
	book.Add("A.HK", bar(d(0), "10", "11"), bar(d(1), "11", "10.45"))
	res, err := Replay([]models.Order{buy(1, d(0), "A.HK", 100)}, book, noCommission())
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 2)

	// 100100 / 100000 - 1
	assertDec(t, "0.001", res.Snapshots[0].DailyReturn)
	// 100045 / 100100 - 1
	assertDec(t, "-0.00054945", res.Snapshots[1].DailyReturn)
}

func TestReplay_EndLimitsAxis(t *testing.T) {
	cfg := noCommission()
	cfg.End = d(1)
	res, err := Replay(fifoOrders(), fifoBook(), cfg)
	require.NoError(t, err)

	require.Len(t, res.Snapshots, 2)
	assert.Equal(t, d(1), res.End)
	h, _ := res.Holding("A.HK")
	assert.Equal(t, int64(200), h.Quantity)
}

func TestReplay_EmptyLog(t *testing.T) {
	res, err := Replay(nil, nil, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, res.Snapshots)
	assert.Empty(t, res.Holdings)
	assert.True(t, res.Complete)
	assertDec(t, "100000", res.FinalCash)
}

func TestReplay_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CostBasis = "lifo"
	_, err := Replay(fifoOrders(), fifoBook(), cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.CommissionRate = dec("-0.1")
	_, err = Replay(fifoOrders(), fifoBook(), cfg)
	assert.Error(t, err)
}

func TestParsePolicies(t *testing.T) {
	m, err := ParseCostBasisMethod("")
	require.NoError(t, err)
	assert.Equal(t, FIFO, m)
	m, err = ParseCostBasisMethod("AVERAGE")
	require.NoError(t, err)
	assert.Equal(t, AverageCost, m)

	p, err := ParseMissingPricePolicy("exclude")
	require.NoError(t, err)
	assert.Equal(t, Exclude, p)
	_, err = ParseMissingPricePolicy("interpolate")
	assert.Error(t, err)
}
