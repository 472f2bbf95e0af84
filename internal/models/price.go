package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar is one daily observation for a symbol.
type PriceBar struct {
	Date  time.Time       `json:"date"`
	Open  decimal.Decimal `json:"open"`
	Close decimal.Decimal `json:"close"`
}

// PriceBook is an in-memory, per-symbol daily price lookup.
// It is built once before replay and never mutated by it.
type PriceBook struct {
	bars  map[string]map[string]PriceBar
	dates map[string][]time.Time
}

// NewPriceBook creates an empty price book.
func NewPriceBook() *PriceBook {
	return &PriceBook{
		bars:  make(map[string]map[string]PriceBar),
		dates: make(map[string][]time.Time),
	}
}

// Add records bars for symbol. A later bar for the same date replaces the earlier one.
func (b *PriceBook) Add(symbol string, bars ...PriceBar) {
	symbol = NormalizeSymbol(symbol)
	byDate, ok := b.bars[symbol]
	if !ok {
		byDate = make(map[string]PriceBar, len(bars))
		b.bars[symbol] = byDate
	}
	for _, bar := range bars {
		bar.Date = Day(bar.Date)
		byDate[FormatDay(bar.Date)] = bar
	}

	dates := make([]time.Time, 0, len(byDate))
	for _, bar := range byDate {
		dates = append(dates, bar.Date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	b.dates[symbol] = dates
}

// Bar returns the bar for symbol on date.
func (b *PriceBook) Bar(symbol string, date time.Time) (PriceBar, bool) {
	if b == nil {
		return PriceBar{}, false
	}
	bar, ok := b.bars[NormalizeSymbol(symbol)][FormatDay(Day(date))]
	return bar, ok
}

// LastBar returns the most recent bar for symbol dated on or before date.
func (b *PriceBook) LastBar(symbol string, date time.Time) (PriceBar, bool) {
	if b == nil {
		return PriceBar{}, false
	}
	symbol = NormalizeSymbol(symbol)
	dates := b.dates[symbol]
	date = Day(date)
	// first index strictly after date
	i := sort.Search(len(dates), func(i int) bool { return dates[i].After(date) })
	if i == 0 {
		return PriceBar{}, false
	}
	return b.bars[symbol][FormatDay(dates[i-1])], true
}

// Dates returns every date in [from, to] on which any of symbols has a bar, ascending.
// When symbols is empty all symbols are considered.
func (b *PriceBook) Dates(from, to time.Time, symbols ...string) []time.Time {
	if b == nil {
		return nil
	}
	if len(symbols) == 0 {
		symbols = b.Symbols()
	}
	from, to = Day(from), Day(to)
	seen := make(map[string]time.Time)
	for _, symbol := range symbols {
		for _, d := range b.dates[NormalizeSymbol(symbol)] {
			if d.Before(from) || d.After(to) {
				continue
			}
			seen[FormatDay(d)] = d
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Symbols returns the symbols with at least one bar, sorted.
func (b *PriceBook) Symbols() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.dates))
	for symbol, dates := range b.dates {
		if len(dates) > 0 {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns how many bars are recorded for symbol.
func (b *PriceBook) Len(symbol string) int {
	if b == nil {
		return 0
	}
	return len(b.dates[NormalizeSymbol(symbol)])
}
