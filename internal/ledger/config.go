// Package ledger rebuilds account state by replaying an order log against daily prices.
//
// Replay is a pure fold over (date, orders-on-date) pairs: it performs no I/O,
// never reads the clock, and produces byte-identical output for identical input.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// CostBasisMethod selects how sells consume lots.
type CostBasisMethod string

const (
	// FIFO consumes the oldest lot first.
	FIFO CostBasisMethod = "fifo"
	// AverageCost realizes against the pooled average cost of all open lots.
	AverageCost CostBasisMethod = "average"
)

// ParseCostBasisMethod parses a policy name. The empty string means FIFO.
func ParseCostBasisMethod(s string) (CostBasisMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fifo":
		return FIFO, nil
	case "average", "avg", "average_cost":
		return AverageCost, nil
	default:
		return "", fmt.Errorf("unknown cost basis policy %q (want fifo or average)", s)
	}
}

// MissingPricePolicy decides how a held symbol without a bar on a snapshot date is valued.
type MissingPricePolicy string

const (
	// CarryForward values the position at its last known close.
	CarryForward MissingPricePolicy = "carry_forward"
	// Exclude gives the position zero market value that day.
	Exclude MissingPricePolicy = "exclude"
)

// ParseMissingPricePolicy parses a policy name. The empty string means CarryForward.
func ParseMissingPricePolicy(s string) (MissingPricePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "carry_forward", "carry-forward", "carry":
		return CarryForward, nil
	case "exclude", "skip":
		return Exclude, nil
	default:
		return "", fmt.Errorf("unknown missing price policy %q (want carry_forward or exclude)", s)
	}
}

// Config is the explicit parameter set of a replay.
type Config struct {
	InitialCash    decimal.Decimal
	CommissionRate decimal.Decimal
	CostBasis      CostBasisMethod
	MissingPrice   MissingPricePolicy
	// Strict fails the replay on the first order that cannot be filled.
	Strict bool
	// Currency is an ISO 4217 code; it fixes the commission rounding precision.
	Currency string
	// End is the last valuation date. Zero means the last date with data.
	End time.Time
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		InitialCash:    decimal.NewFromInt(100000),
		CommissionRate: decimal.RequireFromString("0.001"),
		CostBasis:      FIFO,
		MissingPrice:   CarryForward,
		Currency:       "HKD",
	}
}

func (c Config) normalized() (Config, error) {
	var err error
	if c.CostBasis, err = ParseCostBasisMethod(string(c.CostBasis)); err != nil {
		return c, err
	}
	if c.MissingPrice, err = ParseMissingPricePolicy(string(c.MissingPrice)); err != nil {
		return c, err
	}
	if c.Currency == "" {
		c.Currency = "HKD"
	}
	c.Currency = strings.ToUpper(c.Currency)
	if money.GetCurrency(c.Currency) == nil {
		return c, fmt.Errorf("unknown currency %q", c.Currency)
	}
	if c.InitialCash.IsNegative() {
		return c, fmt.Errorf("initial cash must be non-negative, got %s", c.InitialCash)
	}
	if c.CommissionRate.IsNegative() || c.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return c, fmt.Errorf("commission rate must be in [0, 1), got %s", c.CommissionRate)
	}
	return c, nil
}

// Validate reports whether the configuration can drive a replay.
func (c Config) Validate() error {
	_, err := c.normalized()
	return err
}

// precision returns the number of decimal places of the configured currency.
func (c Config) precision() int32 {
	if cur := money.GetCurrency(c.Currency); cur != nil {
		return int32(cur.Fraction)
	}
	return 2
}

// Commission returns the commission charged on a fill of notional value,
// rounded half away from zero to the currency precision.
func (c Config) Commission(notional decimal.Decimal) decimal.Decimal {
	return notional.Mul(c.CommissionRate).Round(c.precision())
}
