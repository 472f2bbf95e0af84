// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tradeledger/internal/models"
)

// Standard sentinel errors
var (
	ErrInvalidOrder    = errors.New("invalid order")
	ErrOversell        = errors.New("oversell")
	ErrMissingPrice    = errors.New("missing price data")
	ErrPersistence     = errors.New("persistence failure")
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrDataNotFound    = errors.New("data not found")
	ErrPortfolioBusy   = errors.New("portfolio run in progress")
	ErrProviderFailure = errors.New("price provider failure")
)

// Issue is one rejected row of an order batch.
type Issue struct {
	Row      int
	Symbol   string
	Date     time.Time
	Quantity int64
	Reason   string
}

func (i Issue) String() string {
	return fmt.Sprintf("row %d (%s %s qty %d): %s", i.Row, i.Symbol, models.FormatDay(i.Date), i.Quantity, i.Reason)
}

// ValidationError reports every malformed order of a rejected batch.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("validation error: %s", e.Issues[0])
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("validation error: %d rows rejected: %s", len(e.Issues), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidOrder
}

// Add records a rejected row.
func (e *ValidationError) Add(row int, symbol string, date time.Time, qty int64, reason string) {
	e.Issues = append(e.Issues, Issue{Row: row, Symbol: symbol, Date: date, Quantity: qty, Reason: reason})
}

// OrNil returns e when it holds issues and nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

// OversellError is returned when a sell exceeds the quantity held across all lots.
type OversellError struct {
	Order     models.Order
	Available int64
	Shortfall int64
	// Unfilled lists earlier buys of the symbol that were skipped for lack
	// of a price.
	Unfilled []models.Order
}

func (e *OversellError) Error() string {
	msg := fmt.Sprintf("oversell [%s] %s: %d available, short by %d", e.Order.ID, e.Order, e.Available, e.Shortfall)
	if len(e.Unfilled) > 0 {
		refs := make([]string, len(e.Unfilled))
		for i, o := range e.Unfilled {
			refs[i] = fmt.Sprintf("[%s] %s", o.ID, o)
		}
		msg += "; unfilled buys: " + strings.Join(refs, ", ")
	}
	return msg
}

// UnfilledQuantity is the total quantity of the unfilled buys.
func (e *OversellError) UnfilledQuantity() int64 {
	var n int64
	for _, o := range e.Unfilled {
		n += o.Quantity
	}
	return n
}

func (e *OversellError) Unwrap() error {
	return ErrOversell
}

// NewOversellError creates a new OversellError.
func NewOversellError(order models.Order, available int64) *OversellError {
	return &OversellError{
		Order:     order,
		Available: available,
		Shortfall: order.Quantity - available,
	}
}

// MissingPriceDataError is returned when an order cannot be filled for lack of a price.
type MissingPriceDataError struct {
	Order  models.Order
	Symbol string
	Date   time.Time
}

func (e *MissingPriceDataError) Error() string {
	if e.Order.ID != "" {
		return fmt.Sprintf("missing price data [%s] %s: no open price for %s on %s", e.Order.ID, e.Order, e.Symbol, models.FormatDay(e.Date))
	}
	return fmt.Sprintf("missing price data: no price for %s on %s", e.Symbol, models.FormatDay(e.Date))
}

func (e *MissingPriceDataError) Unwrap() error {
	return ErrMissingPrice
}

// NewMissingPriceDataError creates a MissingPriceDataError for an order fill.
func NewMissingPriceDataError(order models.Order) *MissingPriceDataError {
	return &MissingPriceDataError{
		Order:  order,
		Symbol: order.Symbol,
		Date:   order.TradeDate,
	}
}

// PersistenceError represents a storage failure during load or save.
type PersistenceError struct {
	Op          string
	PortfolioID string
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error [%s] %s: %v", e.Op, e.PortfolioID, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// NewPersistenceError creates a new PersistenceError. It returns nil for a nil err.
func NewPersistenceError(op, portfolioID string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, PortfolioID: portfolioID, Err: err}
}

// DataError represents a price-data retrieval error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
