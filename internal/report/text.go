package report

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"tradeledger/internal/ledger"
	"tradeledger/internal/models"
)

// TextOptions controls WriteText.
type TextOptions struct {
	Currency string
	Color    bool
	// Days is the number of trailing daily snapshots listed; 0 lists none.
	Days int
}

type palette struct {
	bold, dim, green, red, yellow, cyan *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		bold:   color.New(color.Bold),
		dim:    color.New(color.Faint),
		green:  color.New(color.FgGreen),
		red:    color.New(color.FgRed),
		yellow: color.New(color.FgYellow),
		cyan:   color.New(color.FgCyan, color.Bold),
	}
	for _, c := range []*color.Color{p.bold, p.dim, p.green, p.red, p.yellow, p.cyan} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// pnl colors gains green and losses red.
func (p palette) pnl(amount decimal.Decimal, text string) string {
	switch {
	case amount.IsPositive():
		return p.green.Sprint(text)
	case amount.IsNegative():
		return p.red.Sprint(text)
	}
	return text
}

// WriteText writes a human-readable report: holdings, account summary,
// performance and any skipped fills.
func WriteText(w io.Writer, portfolioID string, res *ledger.Result, opts TextOptions) error {
	if opts.Currency == "" {
		opts.Currency = "HKD"
	}
	p := newPalette(opts.Color)
	cur := opts.Currency
	stats := ComputeStats(res)
	tw := &textWriter{w: w}

	tw.printf("%s\n", p.cyan.Sprintf("Portfolio %s (%s)", portfolioID, cur))
	if !res.Start.IsZero() {
		tw.printf("%s\n", p.dim.Sprintf("%s to %s", models.FormatDay(res.Start), models.FormatDay(res.End)))
	}
	tw.printf("\n")

	if len(res.Holdings) > 0 {
		t := newTable(p, "SYMBOL", "QTY", "LOTS", "AVG COST", "LAST", "PRICE DATE", "VALUE", "UNREALIZED", "REALIZED")
		for _, h := range res.Holdings {
			t.addRow(
				h.Symbol,
				formatQuantity(h.Quantity),
				fmt.Sprintf("%d", h.Lots),
				h.AverageCost.StringFixed(4),
				h.LastPrice.String(),
				priceDate(h),
				formatMoney(h.MarketValue, cur),
				p.pnl(h.UnrealizedPnL, formatSignedMoney(h.UnrealizedPnL, cur)),
				p.pnl(h.RealizedPnL, formatSignedMoney(h.RealizedPnL, cur)),
			)
		}
		t.render(tw)
		tw.printf("\n")
	} else {
		tw.printf("No holdings.\n\n")
	}

	last, _ := res.Last()
	tw.printf("%s\n", p.bold.Sprint("Account"))
	tw.printf("  Cash          %s\n", formatMoney(res.FinalCash, cur))
	tw.printf("  Market value  %s\n", formatMoney(last.MarketValue, cur))
	tw.printf("  Total value   %s\n", formatMoney(stats.FinalValue, cur))
	tw.printf("  Realized      %s\n", p.pnl(stats.RealizedPnL, formatSignedMoney(stats.RealizedPnL, cur)))
	tw.printf("  Unrealized    %s\n", p.pnl(stats.UnrealizedPnL, formatSignedMoney(stats.UnrealizedPnL, cur)))
	tw.printf("  Commissions   %s\n", formatMoney(stats.Commissions, cur))
	tw.printf("\n")

	tw.printf("%s\n", p.bold.Sprint("Performance"))
	tw.printf("  Total return  %s\n", p.pnl(stats.TotalReturn, formatPercent(stats.TotalReturn)))
	tw.printf("  Trading days  %d\n", stats.TradingDays)
	if stats.TradingDays > 0 {
		tw.printf("  Max drawdown  %s (%s to %s)\n", formatPercent(stats.MaxDrawdown.Neg()),
			models.FormatDay(stats.PeakDate), models.FormatDay(stats.TroughDate))
		tw.printf("  Best day      %s on %s\n", p.pnl(stats.BestDay.Return, formatPercent(stats.BestDay.Return)), models.FormatDay(stats.BestDay.Date))
		tw.printf("  Worst day     %s on %s\n", p.pnl(stats.WorstDay.Return, formatPercent(stats.WorstDay.Return)), models.FormatDay(stats.WorstDay.Date))
	}

	if opts.Days > 0 && len(res.Snapshots) > 0 {
		tw.printf("\n%s\n", p.bold.Sprint("Daily"))
		snaps := res.Snapshots
		if len(snaps) > opts.Days {
			snaps = snaps[len(snaps)-opts.Days:]
		}
		t := newTable(p, "DATE", "CASH", "MARKET VALUE", "TOTAL", "RETURN")
		for _, s := range snaps {
			t.addRow(models.FormatDay(s.Date), formatMoney(s.Cash, cur), formatMoney(s.MarketValue, cur),
				formatMoney(s.TotalValue, cur), p.pnl(s.DailyReturn, formatPercent(s.DailyReturn)))
		}
		t.render(tw)
	}

	if len(res.Skipped) > 0 {
		tw.printf("\n%s\n", p.yellow.Sprintf("%d order(s) skipped for missing prices:", len(res.Skipped)))
		for _, s := range res.Skipped {
			tw.printf("  - %s\n", s.Order)
		}
	}

	return tw.err
}

func priceDate(h models.Holding) string {
	if h.PriceDate.IsZero() {
		return "-"
	}
	return models.FormatDay(h.PriceDate)
}

// textWriter keeps the first write error.
type textWriter struct {
	w   io.Writer
	err error
}

func (t *textWriter) printf(format string, args ...interface{}) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// visibleLen is the printed width of s without color escapes.
func visibleLen(s string) int {
	return len([]rune(ansiPattern.ReplaceAllString(s, "")))
}

// table is a simple aligned table.
type table struct {
	p       palette
	headers []string
	rows    [][]string
}

func newTable(p palette, headers ...string) *table {
	return &table{p: p, headers: headers}
}

func (t *table) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(tw *textWriter) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visibleLen(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && visibleLen(cell) > widths[i] {
				widths[i] = visibleLen(cell)
			}
		}
	}

	t.printRow(tw, t.headers, widths, true)
	seps := make([]string, len(widths))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	tw.printf("%s\n", t.p.dim.Sprint(strings.Join(seps, "  ")))
	for _, row := range t.rows {
		t.printRow(tw, row, widths, false)
	}
}

func (t *table) printRow(tw *textWriter, cells []string, widths []int, header bool) {
	parts := make([]string, 0, len(cells))
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		pad := widths[i] - visibleLen(cell)
		if pad < 0 {
			pad = 0
		}
		padded := cell + strings.Repeat(" ", pad)
		if header {
			padded = t.p.bold.Sprint(padded)
		}
		parts = append(parts, padded)
	}
	tw.printf("%s\n", strings.TrimRight(strings.Join(parts, "  "), " "))
}
