package orderlog

import (
	"sort"
	"time"

	"tradeledger/internal/models"
)

// Stamp carries the append-time metadata assigned to new orders.
type Stamp struct {
	PortfolioID string
	Now         time.Time
	IDs         *IDGenerator
}

// MergeResult is the outcome of merging a batch into an existing log.
type MergeResult struct {
	// Orders is the full log sorted by (TradeDate, Seq).
	Orders []models.Order
	// Appended holds the newly stamped orders in supplied order.
	Appended []models.Order
	// SkippedBatches lists batch keys already present in the log.
	SkippedBatches []string
}

// Merge appends incoming to existing. Incoming orders receive an ID, the next
// Seq values and the stamp's portfolio and time in the order supplied. Orders
// whose BatchKey already appears in existing are skipped, which makes
// resubmitting the same order file a no-op. Existing orders are never dropped
// nor reordered relative to each other.
func Merge(existing, incoming []models.Order, stamp Stamp) MergeResult {
	var maxSeq int64
	present := make(map[string]bool)
	for _, o := range existing {
		if o.Seq > maxSeq {
			maxSeq = o.Seq
		}
		if o.BatchKey != "" {
			present[o.BatchKey] = true
		}
	}

	ids := stamp.IDs
	if ids == nil {
		ids = NewIDGenerator()
	}

	res := MergeResult{}
	skipped := make(map[string]bool)
	for _, o := range incoming {
		if o.BatchKey != "" && present[o.BatchKey] {
			if !skipped[o.BatchKey] {
				skipped[o.BatchKey] = true
				res.SkippedBatches = append(res.SkippedBatches, o.BatchKey)
			}
			continue
		}
		maxSeq++
		res.Appended = append(res.Appended, normalize(o, stamp, ids.New(stamp.Now), maxSeq))
	}

	merged := make([]models.Order, 0, len(existing)+len(res.Appended))
	merged = append(merged, existing...)
	merged = append(merged, res.Appended...)
	SortLog(merged)
	res.Orders = merged
	return res
}

func normalize(o models.Order, stamp Stamp, id string, seq int64) models.Order {
	o.ID = id
	o.Seq = seq
	o.PortfolioID = stamp.PortfolioID
	o.CreatedAt = stamp.Now.UTC()
	o.Symbol = models.NormalizeSymbol(o.Symbol)
	o.TradeDate = models.Day(o.TradeDate)
	if o.OrderDate.IsZero() {
		o.OrderDate = o.TradeDate
	} else {
		o.OrderDate = models.Day(o.OrderDate)
	}
	if o.AssetType == "" {
		o.AssetType = models.AssetStock
	}
	return o
}

// SortLog stable-sorts orders in place by (TradeDate, Seq).
func SortLog(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].TradeDate.Equal(orders[j].TradeDate) {
			return orders[i].TradeDate.Before(orders[j].TradeDate)
		}
		return orders[i].Seq < orders[j].Seq
	})
}
