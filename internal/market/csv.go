package market

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/models"
	"tradeledger/pkg/utils"
)

// csvBar is one row of a <SYMBOL>.csv price file.
type csvBar struct {
	Date  string `csv:"date"`
	Open  string `csv:"open"`
	Close string `csv:"close"`
}

// CSVProvider reads bars from <dir>/<SYMBOL>.csv files with a
// date,open,close header.
type CSVProvider struct {
	dir string
}

// NewCSVProvider creates a provider over dir.
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{dir: dir}
}

// DailyPrices reads and filters the symbol's file.
func (p *CSVProvider) DailyPrices(_ context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	symbol = models.NormalizeSymbol(symbol)
	path := filepath.Join(p.dir, symbol+".csv")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, utils.Permanent(apperrors.NewDataError("csv", symbol, "no price file "+path, apperrors.ErrDataNotFound))
	}
	if err != nil {
		return nil, apperrors.NewDataError("csv", symbol, "failed to read price file", err)
	}

	var rows []csvBar
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, utils.Permanent(apperrors.NewDataError("csv", symbol, "failed to parse price file", err))
	}

	bars := make([]models.PriceBar, 0, len(rows))
	for i, row := range rows {
		bar, err := parseCSVBar(row)
		if err != nil {
			return nil, utils.Permanent(apperrors.NewDataError("csv", symbol, fmt.Sprintf("line %d", i+2), err))
		}
		bars = append(bars, bar)
	}
	return clip(sortBars(bars), from, to), nil
}

func parseCSVBar(row csvBar) (models.PriceBar, error) {
	date, err := models.ParseDay(row.Date)
	if err != nil {
		return models.PriceBar{}, err
	}
	open, err := decimal.NewFromString(row.Open)
	if err != nil {
		return models.PriceBar{}, fmt.Errorf("invalid open %q: %w", row.Open, err)
	}
	closing, err := decimal.NewFromString(row.Close)
	if err != nil {
		return models.PriceBar{}, fmt.Errorf("invalid close %q: %w", row.Close, err)
	}
	return models.PriceBar{Date: date, Open: open, Close: closing}, nil
}

// WriteCSV writes bars in the format read by CSVProvider.
func WriteCSV(path string, bars []models.PriceBar) error {
	rows := make([]csvBar, len(bars))
	for i, b := range bars {
		rows[i] = csvBar{Date: models.FormatDay(b.Date), Open: b.Open.String(), Close: b.Close.String()}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.Marshal(rows, f)
}
