// Package ingest turns order form files into order events.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/models"
)

// TradeDatePolicy derives a trade date from the batch order date.
type TradeDatePolicy string

const (
	// NextTradingDay executes on the first weekday after the order date.
	NextTradingDay TradeDatePolicy = "next_trading_day"
	// SameDay executes on the order date.
	SameDay TradeDatePolicy = "same_day"
)

// TradeDate applies the policy to orderDate.
func (p TradeDatePolicy) TradeDate(orderDate time.Time) time.Time {
	if p == SameDay {
		return models.Day(orderDate)
	}
	return models.NextTradingDay(orderDate)
}

// Options controls how an order file is read.
type Options struct {
	OrderDate time.Time
	Policy    TradeDatePolicy
	Mapper    *Mapper
}

// headerAliases maps normalized header names to canonical columns.
var headerAliases = map[string]string{
	"asset name": "symbol",
	"ticker":     "symbol",
	"symbol":     "symbol",
	"资产名称":       "symbol",
	"action":     "side",
	"side":       "side",
	"操作":         "side",
	"quantity":   "quantity",
	"qty":        "quantity",
	"数量":         "quantity",
	"asset type": "asset_type",
	"资产类型":       "asset_type",
	"trade date": "trade_date",
	"交易日期":       "trade_date",
}

// orderRow is one order form row after header normalization.
type orderRow struct {
	Symbol    string `csv:"symbol"`
	Side      string `csv:"side"`
	Quantity  string `csv:"quantity"`
	AssetType string `csv:"asset_type"`
	TradeDate string `csv:"trade_date"`
}

// canonicalHeader resolves a raw header cell. Headers that merely contain
// "action" or "asset type" (e.g. "Action (Buy/Sell)") are accepted too.
func canonicalHeader(raw string) string {
	h := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))
	if c, ok := headerAliases[h]; ok {
		return c
	}
	switch {
	case strings.Contains(h, "action"):
		return "side"
	case strings.Contains(h, "asset type"):
		return "asset_type"
	}
	return h
}

// parseSide accepts buy/b/买入 and sell/s/卖出. ok is false for hold rows.
func parseSide(s string) (side models.OrderSide, ok bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b", "买入":
		return models.OrderSideBuy, true, nil
	case "sell", "s", "卖出":
		return models.OrderSideSell, true, nil
	case "hold", "持有":
		return "", false, nil
	default:
		return "", false, fmt.Errorf("unknown action %q", s)
	}
}

// parseQuantity accepts whole numbers, including spreadsheet renderings like "100.0".
func parseQuantity(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("fractional quantity %q", s)
	}
	if !d.BigInt().IsInt64() {
		return 0, fmt.Errorf("quantity %q out of range", s)
	}
	return d.IntPart(), nil
}

// ParseCSV reads an order form. Rows with an empty asset name or a hold
// action are skipped. Any other row that cannot be normalized rejects the
// whole file with a ValidationError numbered by data row.
func ParseCSV(r io.Reader, opts Options) ([]models.Order, error) {
	if opts.Mapper == nil {
		opts.Mapper = NewMapper(nil, ".HK")
	}
	if opts.Policy == "" {
		opts.Policy = NextTradingDay
	}

	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read order file: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	seen := map[string]bool{}
	for i, h := range records[0] {
		records[0][i] = canonicalHeader(h)
		seen[records[0][i]] = true
	}
	for _, required := range []string{"symbol", "side", "quantity"} {
		if !seen[required] {
			return nil, fmt.Errorf("%w: order file has no %s column", apperrors.ErrInvalidOrder, required)
		}
	}
	if !seen["trade_date"] && opts.OrderDate.IsZero() {
		return nil, fmt.Errorf("%w: order file has no trade date column and no order date was given", apperrors.ErrInvalidOrder)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}

	var rows []orderRow
	if err := gocsv.UnmarshalBytes(buf.Bytes(), &rows); err != nil {
		return nil, fmt.Errorf("failed to decode order file: %w", err)
	}

	verr := &apperrors.ValidationError{}
	orders := make([]models.Order, 0, len(rows))
	for i, row := range rows {
		o, keep, err := normalizeRow(row, opts)
		if err != nil {
			verr.Add(i+1, strings.TrimSpace(row.Symbol), o.TradeDate, o.Quantity, err.Error())
			continue
		}
		if keep {
			orders = append(orders, o)
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return orders, nil
}

func normalizeRow(row orderRow, opts Options) (models.Order, bool, error) {
	var o models.Order
	if strings.TrimSpace(row.Symbol) == "" {
		return o, false, nil
	}
	side, ok, err := parseSide(row.Side)
	if err != nil || !ok {
		return o, false, err
	}

	o.Side = side
	o.AssetType = strings.TrimSpace(row.AssetType)
	if o.AssetType == "" {
		o.AssetType = models.AssetStock
	}

	if o.Quantity, err = parseQuantity(row.Quantity); err != nil {
		return o, false, err
	}

	o.OrderDate = models.Day(opts.OrderDate)
	if strings.TrimSpace(row.TradeDate) != "" {
		if o.TradeDate, err = models.ParseDay(row.TradeDate); err != nil {
			return o, false, err
		}
		if o.OrderDate.IsZero() {
			o.OrderDate = o.TradeDate
		}
	} else {
		if opts.OrderDate.IsZero() {
			return o, false, fmt.Errorf("missing trade date and no order date")
		}
		o.TradeDate = opts.Policy.TradeDate(opts.OrderDate)
	}
	o.BatchKey = models.BatchKeyFor(o.OrderDate)

	if o.Symbol, err = opts.Mapper.Symbol(row.Symbol); err != nil {
		return o, false, err
	}
	return o, true, nil
}

// ParseFile reads an order form from path. A zero OrderDate is taken from
// a YYYYMMDD parent directory, e.g. orders/20260105/order.csv.
func ParseFile(path string, opts Options) ([]models.Order, error) {
	if opts.OrderDate.IsZero() {
		if d, err := OrderDateFromPath(path); err == nil {
			opts.OrderDate = d
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCSV(f, opts)
}

// OrderDateFromPath parses the YYYYMMDD name of path's parent directory.
func OrderDateFromPath(path string) (time.Time, error) {
	name := filepath.Base(filepath.Dir(path))
	if len(name) != 8 {
		return time.Time{}, fmt.Errorf("directory %q is not YYYYMMDD", name)
	}
	return models.ParseDay(name)
}

var orderFileNames = []string{
	"Trade Order Form.csv",
	"Trade_Order_Form.csv",
	"order.csv",
}

// FindOrderFile returns the order form inside dir: a known file name, or
// else the first .csv file.
func FindOrderFile(dir string) (string, error) {
	for _, name := range orderFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: no order file in %s", apperrors.ErrDataNotFound, dir)
	}
	return matches[0], nil
}
