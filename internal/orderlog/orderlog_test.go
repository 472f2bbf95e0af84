package orderlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/models"
)

var (
	jan5  = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	clock = time.Date(2026, 1, 20, 15, 0, 0, 0, time.UTC)
)

func newOrder(date time.Time, symbol string, side models.OrderSide, qty int64, batch string) models.Order {
	return models.Order{TradeDate: date, Symbol: symbol, Side: side, Quantity: qty, BatchKey: batch}
}

func newLog(store Store) *Log {
	return New(store, zerolog.Nop(),
		WithClock(func() time.Time { return clock }),
		WithIDGenerator(NewSeededIDGenerator(1)))
}

func TestValidate_RejectsWholeBatch(t *testing.T) {
	events := []models.Order{
		newOrder(jan5, "2800.HK", models.OrderSideBuy, 100, ""),
		newOrder(jan5, "0700.HK", models.OrderSideBuy, 0, ""),
		newOrder(jan5, "0005.HK", "HOLD", 10, ""),
		newOrder(jan5, "", models.OrderSideSell, 10, ""),
		newOrder(jan5, "bad symbol!", models.OrderSideSell, 10, ""),
		newOrder(time.Time{}, "0388.HK", models.OrderSideBuy, 10, ""),
		newOrder(clock.AddDate(0, 0, 1), "0388.HK", models.OrderSideBuy, 10, ""),
		newOrder(time.Date(1, 1, 2, 0, 0, 0, 0, time.UTC), "0388.HK", models.OrderSideBuy, 10, ""),
	}

	err := Validate(events, clock)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrder)

	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Issues, 7)
	rows := make([]int, len(verr.Issues))
	for i, issue := range verr.Issues {
		rows[i] = issue.Row
	}
	assert.Equal(t, []int{2, 3, 4, 5, 6, 7, 8}, rows)
	assert.Contains(t, verr.Issues[6].Reason, "before 1970-01-01")
	assert.Equal(t, "0700.HK", verr.Issues[0].Symbol)
	assert.Contains(t, err.Error(), "2026-01-05")
}

func TestValidate_AcceptsTodayAndLowercase(t *testing.T) {
	events := []models.Order{
		newOrder(models.Day(clock), "2800.hk", models.OrderSideBuy, 1, ""),
		newOrder(jan5, "BRK-B", models.OrderSideSell, 1, ""),
	}
	assert.NoError(t, Validate(events, clock))
	assert.NoError(t, Validate(nil, clock))
}

func TestMerge_StampsAndSorts(t *testing.T) {
	existing := []models.Order{
		{ID: "a", Seq: 1, TradeDate: jan5, Symbol: "2800.HK", Side: models.OrderSideBuy, Quantity: 100, BatchKey: "20260102"},
		{ID: "b", Seq: 2, TradeDate: jan5.AddDate(0, 0, 2), Symbol: "2800.HK", Side: models.OrderSideSell, Quantity: 50, BatchKey: "20260102"},
	}
	incoming := []models.Order{
		newOrder(jan5.AddDate(0, 0, 1), "0700.hk", models.OrderSideBuy, 10, "20260105"),
		newOrder(jan5, "0005.HK", models.OrderSideBuy, 20, "20260105"),
	}

	res := Merge(existing, incoming, Stamp{PortfolioID: "p1", Now: clock, IDs: NewSeededIDGenerator(7)})
	require.Len(t, res.Appended, 2)
	assert.Empty(t, res.SkippedBatches)

	first := res.Appended[0]
	assert.Equal(t, int64(3), first.Seq)
	assert.Equal(t, "p1", first.PortfolioID)
	assert.Equal(t, "0700.HK", first.Symbol)
	assert.Equal(t, models.AssetStock, first.AssetType)
	assert.Equal(t, first.TradeDate, first.OrderDate)
	assert.Equal(t, clock, first.CreatedAt)
	assert.Len(t, first.ID, 26)
	assert.Less(t, res.Appended[0].ID, res.Appended[1].ID)

	var order []string
	for _, o := range res.Orders {
		order = append(order, o.Symbol)
	}
	// jan5: existing seq1 before appended seq4; then jan6, jan7
	assert.Equal(t, []string{"2800.HK", "0005.HK", "0700.HK", "2800.HK"}, order)
}

func TestMerge_SkipsKnownBatch(t *testing.T) {
	existing := []models.Order{
		{ID: "a", Seq: 1, TradeDate: jan5, Symbol: "2800.HK", Side: models.OrderSideBuy, Quantity: 100, BatchKey: "20260102"},
	}
	incoming := []models.Order{
		newOrder(jan5, "2800.HK", models.OrderSideBuy, 100, "20260102"),
		newOrder(jan5, "0700.HK", models.OrderSideBuy, 10, "20260105"),
	}

	res := Merge(existing, incoming, Stamp{PortfolioID: "p1", Now: clock})
	assert.Equal(t, []string{"20260102"}, res.SkippedBatches)
	require.Len(t, res.Appended, 1)
	assert.Equal(t, "0700.HK", res.Appended[0].Symbol)
	assert.Len(t, res.Orders, 2)
}

func TestLog_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	log := newLog(store)

	orders, err := log.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, orders)

	res, err := log.Append(ctx, "p1", []models.Order{
		newOrder(jan5, "2800.HK", models.OrderSideBuy, 100, "20260102"),
	})
	require.NoError(t, err)
	assert.Len(t, res.Orders, 1)
	assert.Equal(t, 1, store.Saves())

	loaded, err := log.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, res.Orders, loaded)

	ids, err := log.Portfolios(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
}

func TestLog_EmptyAppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	log := newLog(store)

	first, err := log.Append(ctx, "p1", []models.Order{
		newOrder(jan5, "2800.HK", models.OrderSideBuy, 100, "20260102"),
	})
	require.NoError(t, err)

	again, err := log.Append(ctx, "p1", nil)
	require.NoError(t, err)
	assert.Empty(t, again.Appended)
	assert.Equal(t, first.Orders, again.Orders)
	assert.Equal(t, 1, store.Saves(), "no write without new orders")

	resubmit, err := log.Append(ctx, "p1", []models.Order{
		newOrder(jan5, "2800.HK", models.OrderSideBuy, 100, "20260102"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"20260102"}, resubmit.SkippedBatches)
	assert.Equal(t, 1, store.Saves())
}

func TestLog_ValidationFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	log := newLog(store)

	_, err := log.Append(ctx, "p1", []models.Order{
		newOrder(jan5, "2800.HK", models.OrderSideBuy, 100, ""),
		newOrder(jan5, "2800.HK", models.OrderSideBuy, -1, ""),
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrder)
	assert.Equal(t, 0, store.Saves())
}

func TestLog_SaveFailureIsPersistenceError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SaveErr = errors.New("disk full")
	log := newLog(store)

	_, err := log.Append(ctx, "p1", []models.Order{
		newOrder(jan5, "2800.HK", models.OrderSideBuy, 100, ""),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
	var perr *apperrors.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "save", perr.Op)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSummary(t *testing.T) {
	orders := []models.Order{
		{TradeDate: jan5, OrderDate: jan5.AddDate(0, 0, -3), Symbol: "2800.HK"},
		{TradeDate: jan5.AddDate(0, 0, 3), OrderDate: jan5.AddDate(0, 0, 2), Symbol: "0700.HK"},
		{TradeDate: jan5.AddDate(0, 0, 3), OrderDate: jan5.AddDate(0, 0, 2), Symbol: "2800.HK"},
	}
	s := Summary("p1", orders)
	assert.Equal(t, 3, s.TotalOrders)
	assert.Equal(t, jan5, s.FirstTradeDate)
	assert.Equal(t, jan5.AddDate(0, 0, 3), s.LastTradeDate)
	assert.Equal(t, jan5.AddDate(0, 0, -3), s.FirstOrderDate)
	assert.Equal(t, []string{"0700.HK", "2800.HK"}, s.Symbols)
	assert.Len(t, s.BatchDates, 2)

	empty := Summary("p2", nil)
	assert.Zero(t, empty.TotalOrders)
	assert.Empty(t, empty.Symbols)
}
