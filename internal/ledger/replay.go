package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/models"
)

// returnPlaces is the rounding precision of daily returns.
const returnPlaces = 8

// SkippedFill is an order that could not be filled and was left out of the ledger.
type SkippedFill struct {
	Order  models.Order `json:"order"`
	Reason string       `json:"reason"`
	Err    error        `json:"-"`
}

// Result is the outcome of a replay.
type Result struct {
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	InitialCash decimal.Decimal   `json:"initial_cash"`
	Snapshots   []models.Snapshot `json:"snapshots"`
	Holdings    []models.Holding  `json:"holdings"`
	Lots        []models.Lot      `json:"lots"`
	Skipped     []SkippedFill     `json:"skipped,omitempty"`
	RealizedPnL decimal.Decimal   `json:"realized_pnl"`
	Commissions decimal.Decimal   `json:"commissions"`
	FinalCash   decimal.Decimal   `json:"final_cash"`
	// Complete is false when at least one order was skipped.
	Complete bool `json:"complete"`
}

// Last returns the final snapshot, if any.
func (r *Result) Last() (models.Snapshot, bool) {
	if r == nil || len(r.Snapshots) == 0 {
		return models.Snapshot{}, false
	}
	return r.Snapshots[len(r.Snapshots)-1], true
}

// Holding returns the final holding row for symbol.
func (r *Result) Holding(symbol string) (models.Holding, bool) {
	symbol = models.NormalizeSymbol(symbol)
	for _, h := range r.Holdings {
		if h.Symbol == symbol {
			return h, true
		}
	}
	return models.Holding{}, false
}

// state is the mutable ledger rebuilt on every replay.
type state struct {
	cfg         Config
	cash        decimal.Decimal
	books       map[string]*lotBook
	realized    map[string]decimal.Decimal
	commissions map[string]decimal.Decimal
	// everHeld lists symbols that had a nonzero holding at some point, sorted.
	everHeld []string
	traded   map[string]bool
}

func newState(cfg Config) *state {
	return &state{
		cfg:         cfg,
		cash:        cfg.InitialCash,
		books:       make(map[string]*lotBook),
		realized:    make(map[string]decimal.Decimal),
		commissions: make(map[string]decimal.Decimal),
		traded:      make(map[string]bool),
	}
}

func (s *state) book(symbol string) *lotBook {
	b, ok := s.books[symbol]
	if !ok {
		b = &lotBook{symbol: symbol, method: s.cfg.CostBasis}
		s.books[symbol] = b
		i := sort.SearchStrings(s.everHeld, symbol)
		s.everHeld = append(s.everHeld, "")
		copy(s.everHeld[i+1:], s.everHeld[i:])
		s.everHeld[i] = symbol
	}
	return b
}

// apply folds one order into the state. It returns a *MissingPriceDataError
// when the order cannot be priced and an *OversellError when a sell exceeds
// the open quantity; in both cases the state is left untouched.
func (s *state) apply(o models.Order, prices *models.PriceBook) error {
	bar, ok := prices.Bar(o.Symbol, o.TradeDate)
	if !ok || !bar.Open.IsPositive() {
		return apperrors.NewMissingPriceDataError(o)
	}

	qty := decimal.NewFromInt(o.Quantity)
	notional := bar.Open.Mul(qty)
	commission := s.cfg.Commission(notional)

	switch o.Side {
	case models.OrderSideBuy:
		s.book(o.Symbol).open(o.ID, o.TradeDate, o.Quantity, bar.Open)
		s.cash = s.cash.Sub(notional).Sub(commission)
	case models.OrderSideSell:
		var available int64
		if b, ok := s.books[o.Symbol]; ok {
			available = b.quantity()
		}
		if available < o.Quantity {
			return apperrors.NewOversellError(o, available)
		}
		gain := s.books[o.Symbol].close(o.Quantity, bar.Open)
		s.realized[o.Symbol] = s.realized[o.Symbol].Add(gain)
		s.cash = s.cash.Add(notional).Sub(commission)
	}
	s.commissions[o.Symbol] = s.commissions[o.Symbol].Add(commission)
	return nil
}

func (s *state) totalRealized() decimal.Decimal {
	total := decimal.Zero
	for _, symbol := range s.everHeld {
		total = total.Add(s.realized[symbol])
	}
	return total
}

func (s *state) totalCommissions() decimal.Decimal {
	total := decimal.Zero
	for _, c := range s.commissions {
		total = total.Add(c)
	}
	return total
}

// Replay rebuilds the ledger from events and prices.
//
// Events are ordered by (TradeDate, Seq) before replay; the input slice is not
// modified. The valuation axis runs from the first trade date to cfg.End.
func Replay(events []models.Order, prices *models.PriceBook, cfg Config) (*Result, error) {
	cfg, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	if prices == nil {
		prices = models.NewPriceBook()
	}

	orders := SortOrders(events)
	st := newState(cfg)
	res := &Result{
		InitialCash: cfg.InitialCash,
		Snapshots:   []models.Snapshot{},
		Holdings:    []models.Holding{},
		Lots:        []models.Lot{},
		RealizedPnL: decimal.Zero,
		Commissions: decimal.Zero,
		FinalCash:   cfg.InitialCash,
		Complete:    true,
	}
	if len(orders) == 0 {
		return res, nil
	}

	symbols := symbolsOf(orders)
	start := orders[0].TradeDate
	end := cfg.End
	if end.IsZero() {
		end = lastDate(orders, prices, symbols)
	}
	end = models.Day(end)
	res.Start, res.End = start, end

	byDate := make(map[time.Time][]models.Order)
	for _, o := range orders {
		byDate[o.TradeDate] = append(byDate[o.TradeDate], o)
	}

	// unfilled holds skipped buys per symbol. A sell that only oversells
	// because of them is skipped too rather than failing the replay.
	unfilled := make(map[string][]models.Order)
	skip := func(o models.Order, err error) {
		res.Skipped = append(res.Skipped, SkippedFill{Order: o, Reason: err.Error(), Err: err})
		res.Complete = false
	}

	prevTotal := cfg.InitialCash
	for _, date := range axis(orders, prices, symbols, start, end) {
		for _, o := range byDate[date] {
			st.traded[o.Symbol] = true
			err := st.apply(o, prices)
			if err == nil {
				continue
			}
			var (
				missing  *apperrors.MissingPriceDataError
				oversell *apperrors.OversellError
			)
			switch {
			case apperrors.As(err, &missing) && !cfg.Strict:
				skip(o, missing)
				if o.IsBuy() {
					unfilled[o.Symbol] = append(unfilled[o.Symbol], o)
				}
			case apperrors.As(err, &oversell) && len(unfilled[o.Symbol]) > 0:
				oversell.Unfilled = unfilled[o.Symbol]
				if oversell.UnfilledQuantity() < oversell.Shortfall {
					return nil, oversell
				}
				skip(o, oversell)
			default:
				return nil, err
			}
		}

		if !st.priced(date, prices) {
			continue
		}
		snap := st.value(date, prices)
		snap.DailyReturn = dailyReturn(snap.TotalValue, prevTotal)
		prevTotal = snap.TotalValue
		res.Snapshots = append(res.Snapshots, snap)
	}

	res.Holdings = st.holdings(end, prices)
	for _, symbol := range st.everHeld {
		res.Lots = append(res.Lots, st.books[symbol].snapshot()...)
	}
	res.RealizedPnL = st.totalRealized()
	res.Commissions = st.totalCommissions()
	res.FinalCash = st.cash
	return res, nil
}

// SortOrders returns a copy of orders stable-sorted by (TradeDate, Seq) with
// dates truncated to calendar days and symbols normalized.
func SortOrders(orders []models.Order) []models.Order {
	out := make([]models.Order, len(orders))
	for i, o := range orders {
		o.TradeDate = models.Day(o.TradeDate)
		o.Symbol = models.NormalizeSymbol(o.Symbol)
		out[i] = o
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TradeDate.Equal(out[j].TradeDate) {
			return out[i].TradeDate.Before(out[j].TradeDate)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func symbolsOf(orders []models.Order) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range orders {
		if !seen[o.Symbol] {
			seen[o.Symbol] = true
			out = append(out, o.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

// lastDate is the later of the last trade date and the last bar of any log symbol.
func lastDate(orders []models.Order, prices *models.PriceBook, symbols []string) time.Time {
	last := orders[len(orders)-1].TradeDate
	for _, symbol := range symbols {
		if bar, ok := prices.LastBar(symbol, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)); ok && bar.Date.After(last) {
			last = bar.Date
		}
	}
	return last
}

// axis is the union of bar dates for the log's symbols and the trade dates, within [start, end].
func axis(orders []models.Order, prices *models.PriceBook, symbols []string, start, end time.Time) []time.Time {
	dates := prices.Dates(start, end, symbols...)
	seen := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		seen[d] = true
	}
	for _, o := range orders {
		if o.TradeDate.After(end) || seen[o.TradeDate] {
			continue
		}
		seen[o.TradeDate] = true
		dates = append(dates, o.TradeDate)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// priced reports whether any symbol traded so far has a bar on date.
func (s *state) priced(date time.Time, prices *models.PriceBook) bool {
	for symbol := range s.traded {
		if _, ok := prices.Bar(symbol, date); ok {
			return true
		}
	}
	return false
}

func dailyReturn(total, prev decimal.Decimal) decimal.Decimal {
	if prev.IsZero() {
		return decimal.Zero
	}
	return total.Div(prev).Sub(decimal.NewFromInt(1)).Round(returnPlaces)
}
