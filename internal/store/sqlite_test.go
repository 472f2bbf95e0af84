package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/models"
)

var jan5 = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_Orders(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	empty, err := s.LoadOrders(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)

	first := []models.Order{
		{ID: "01A", PortfolioID: "p1", Seq: 1, OrderDate: jan5, TradeDate: jan5, Symbol: "2800.HK", Side: models.OrderSideBuy, Quantity: 100, AssetType: "Stock", BatchKey: "20260105", CreatedAt: jan5},
	}
	require.NoError(t, s.SaveOrders(ctx, "p1", first))

	second := append(first, models.Order{
		ID: "01B", PortfolioID: "p1", Seq: 2, OrderDate: jan5, TradeDate: jan5.AddDate(0, 0, 1),
		Symbol: "0700.HK", Side: models.OrderSideSell, Quantity: 5, AssetType: "Stock", CreatedAt: jan5,
	})
	require.NoError(t, s.SaveOrders(ctx, "p1", second))

	loaded, err := s.LoadOrders(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "01A", loaded[0].ID)
	assert.Equal(t, models.OrderSideSell, loaded[1].Side)
	assert.Equal(t, jan5.AddDate(0, 0, 1), loaded[1].TradeDate)

	require.NoError(t, s.SaveOrders(ctx, "p2", []models.Order{
		{ID: "02A", Seq: 1, TradeDate: jan5, OrderDate: jan5, Symbol: "0005.HK", Side: models.OrderSideBuy, Quantity: 1, CreatedAt: jan5},
	}))
	ids, err := s.ListPortfolios(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids)
}

func TestSQLiteStore_DeletePortfolio(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveOrders(ctx, "p1", []models.Order{
		{ID: "a", Seq: 1, TradeDate: jan5, OrderDate: jan5, Symbol: "A", Side: models.OrderSideBuy, Quantity: 1, CreatedAt: jan5},
		{ID: "b", Seq: 2, TradeDate: jan5, OrderDate: jan5, Symbol: "B", Side: models.OrderSideBuy, Quantity: 1, CreatedAt: jan5},
	}))
	require.NoError(t, s.SaveOrders(ctx, "p2", []models.Order{
		{ID: "c", Seq: 1, TradeDate: jan5, OrderDate: jan5, Symbol: "A", Side: models.OrderSideBuy, Quantity: 1, CreatedAt: jan5},
	}))

	n, err := s.DeletePortfolio(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	loaded, err := s.LoadOrders(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, loaded)
	ids, err := s.ListPortfolios(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, ids)

	n, err = s.DeletePortfolio(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, n)

	// seq numbering restarts after a reset
	require.NoError(t, s.SaveOrders(ctx, "p1", []models.Order{
		{ID: "d", Seq: 1, TradeDate: jan5, OrderDate: jan5, Symbol: "A", Side: models.OrderSideBuy, Quantity: 3, CreatedAt: jan5},
	}))
	loaded, err = s.LoadOrders(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.EqualValues(t, 3, loaded[0].Quantity)
}

func TestSQLiteStore_RejectsForeignOrders(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveOrders(context.Background(), "p1", []models.Order{
		{ID: "x", PortfolioID: "p2", Seq: 1, TradeDate: jan5, OrderDate: jan5, Symbol: "A", Side: models.OrderSideBuy, Quantity: 1},
	})
	assert.Error(t, err)
}

func TestSQLiteStore_DuplicateSeqFailsTransaction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	orders := []models.Order{
		{ID: "a", Seq: 1, TradeDate: jan5, OrderDate: jan5, Symbol: "A", Side: models.OrderSideBuy, Quantity: 1},
		{ID: "b", Seq: 1, TradeDate: jan5, OrderDate: jan5, Symbol: "B", Side: models.OrderSideBuy, Quantity: 1},
	}
	require.Error(t, s.SaveOrders(ctx, "p1", orders))

	loaded, err := s.LoadOrders(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, loaded, "failed save must not leave partial rows")
}

func TestSQLiteStore_PriceBarsAndCoverage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	bars := []models.PriceBar{
		{Date: jan5, Open: decimal.RequireFromString("25.10"), Close: decimal.RequireFromString("25.35")},
		{Date: jan5.AddDate(0, 0, 1), Open: decimal.RequireFromString("25.40"), Close: decimal.RequireFromString("25.00")},
	}
	require.NoError(t, s.SavePriceBars(ctx, "2800.hk", bars))

	got, err := s.GetPriceBars(ctx, "2800.HK", jan5, jan5.AddDate(0, 0, 10))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "25.1", got[0].Open.String())
	assert.True(t, got[1].Close.Equal(decimal.NewFromInt(25)))

	cov, err := s.GetCoverage(ctx, "2800.HK")
	require.NoError(t, err)
	assert.True(t, cov.FetchedAt.IsZero())
	assert.False(t, cov.Covers(jan5, jan5))

	fetched := time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetCoverage(ctx, Coverage{Symbol: "2800.HK", From: jan5, To: jan5.AddDate(0, 0, 5), FetchedAt: fetched}))
	cov, err = s.GetCoverage(ctx, "2800.HK")
	require.NoError(t, err)
	assert.True(t, cov.Covers(jan5, jan5.AddDate(0, 0, 5)))
	assert.False(t, cov.Covers(jan5, jan5.AddDate(0, 0, 6)))
	assert.True(t, fetched.Equal(cov.FetchedAt))

	require.NoError(t, s.Ping(ctx))
}

func TestPriceCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)
	cache := NewPriceCache(s, time.Hour)
	cache.now = func() time.Time { return now }

	_, ok, err := cache.GetBars(ctx, "2800.HK", jan5, jan5.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.False(t, ok)

	bars := []models.PriceBar{{Date: jan5, Open: decimal.NewFromInt(25), Close: decimal.NewFromInt(26)}}
	require.NoError(t, cache.PutBars(ctx, "2800.HK", jan5, jan5.AddDate(0, 0, 3), bars))

	got, ok, err := cache.GetBars(ctx, "2800.HK", jan5, jan5.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 1)

	// extending an overlapping range keeps the earlier start
	require.NoError(t, cache.PutBars(ctx, "2800.HK", jan5.AddDate(0, 0, 2), jan5.AddDate(0, 0, 6), nil))
	_, ok, err = cache.GetBars(ctx, "2800.HK", jan5, jan5.AddDate(0, 0, 6))
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Hour)
	_, ok, err = cache.GetBars(ctx, "2800.HK", jan5, jan5.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.False(t, ok, "expired coverage is a miss")
}
