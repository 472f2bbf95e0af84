package report

import (
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// formatMoney renders amount in the currency's display format, rounded
// to its minor unit.
func formatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2)
	}
	minor := amount.Round(int32(cur.Fraction)).Shift(int32(cur.Fraction))
	return money.New(minor.IntPart(), cur.Code).Display()
}

// formatSignedMoney prefixes gains with "+".
func formatSignedMoney(amount decimal.Decimal, currency string) string {
	s := formatMoney(amount, currency)
	if amount.IsPositive() {
		return "+" + s
	}
	return s
}

// formatPercent renders a ratio such as 0.0123 as "+1.23%".
func formatPercent(ratio decimal.Decimal) string {
	pct := ratio.Shift(2).StringFixed(2)
	if ratio.IsPositive() {
		return "+" + pct + "%"
	}
	return pct + "%"
}

func formatQuantity(q int64) string {
	return fmt.Sprintf("%d", q)
}
