package market

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tradeledger/internal/models"
)

// FetchAll fetches bars for every symbol with at most parallelism requests
// in flight. A failed symbol does not stop the others; its error is
// returned in the map and its bars are absent from the book. Only ctx
// cancellation aborts the whole fetch.
func FetchAll(ctx context.Context, p Provider, symbols []string, from, to time.Time, parallelism int) (*models.PriceBook, map[string]error, error) {
	if parallelism < 1 {
		parallelism = 1
	}

	book := models.NewPriceBook()
	failures := make(map[string]error)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	seen := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		symbol = models.NormalizeSymbol(symbol)
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true

		g.Go(func() error {
			bars, err := p.DailyPrices(gctx, symbol, from, to)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[symbol] = err
				return nil
			}
			book.Add(symbol, bars...)
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, failures, err
	}
	return book, failures, nil
}
