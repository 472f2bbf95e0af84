package orderlog

import (
	"fmt"
	"regexp"
	"time"

	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/models"
)

// earliestTradeDate bounds trade dates from below; anything older is a
// parsing accident such as a blank date cell.
var earliestTradeDate = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// symbolPattern accepts exchange-suffixed tickers such as 2800.HK, BRK-B or ^HSI.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9._\-=]{0,31}$`)

// ValidSymbol reports whether s, once normalized, is a well-formed instrument identifier.
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(models.NormalizeSymbol(s))
}

// Validate checks a batch of new orders against the session clock.
// Any malformed order rejects the whole batch; the returned
// *errors.ValidationError lists every offending row (1-based).
func Validate(events []models.Order, today time.Time) error {
	verr := &apperrors.ValidationError{}
	today = models.Day(today)

	for i, o := range events {
		row := i + 1
		symbol := models.NormalizeSymbol(o.Symbol)
		reject := func(reason string) {
			verr.Add(row, symbol, o.TradeDate, o.Quantity, reason)
		}

		if o.Quantity <= 0 {
			reject("quantity must be positive")
		}
		if !o.Side.Valid() {
			reject(fmt.Sprintf("unknown side %q", o.Side))
		}
		switch {
		case symbol == "":
			reject("empty symbol")
		case !symbolPattern.MatchString(symbol):
			reject(fmt.Sprintf("malformed symbol %q", o.Symbol))
		}
		switch {
		case o.TradeDate.IsZero():
			reject("missing trade date")
		case models.Day(o.TradeDate).Before(earliestTradeDate):
			reject(fmt.Sprintf("trade date is before %s", models.FormatDay(earliestTradeDate)))
		case models.Day(o.TradeDate).After(today):
			reject(fmt.Sprintf("trade date is after %s", models.FormatDay(today)))
		}
	}

	return verr.OrNil()
}
