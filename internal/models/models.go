// Package models provides domain models for the order ledger.
package models

import (
	"fmt"
	"strings"
	"time"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether s is a known side.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// ParseSide normalizes a side string. It accepts any case.
func ParseSide(s string) (OrderSide, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return OrderSideBuy, nil
	case "SELL":
		return OrderSideSell, nil
	default:
		return "", fmt.Errorf("unknown order side %q", s)
	}
}

// AssetStock is the default asset type recorded with orders.
const AssetStock = "Stock"

// DateLayout is the canonical calendar date format.
const DateLayout = "2006-01-02"

// compactDateLayout is the batch folder format used by order files (YYYYMMDD).
const compactDateLayout = "20060102"

// Day truncates t to its calendar date, expressed as UTC midnight.
// All trade dates and price dates in the ledger are Day values.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses "2006-01-02" or "20060102".
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateLayout, compactDateLayout, "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD or YYYYMMDD)", s)
}

// FormatDay formats a calendar date.
func FormatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// BatchKeyFor returns the batch key used for an order file submitted on date.
func BatchKeyFor(date time.Time) string {
	return Day(date).Format(compactDateLayout)
}

// NextTradingDay returns the first weekday strictly after date.
func NextTradingDay(date time.Time) time.Time {
	next := Day(date).AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// NormalizeSymbol upper-cases and trims an instrument identifier.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
