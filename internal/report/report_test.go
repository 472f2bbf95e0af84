package report

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"tradeledger/internal/ledger"
	"tradeledger/internal/models"
)

var day0 = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func d(n int) time.Time { return day0.AddDate(0, 0, n) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func snap(n int, total, ret string) models.Snapshot {
	return models.Snapshot{Date: d(n), TotalValue: dec(total), DailyReturn: dec(ret)}
}

func TestComputeStats(t *testing.T) {
	res := &ledger.Result{
		Start:       d(0),
		End:         d(3),
		InitialCash: dec("100000"),
		FinalCash:   dec("50000"),
		RealizedPnL: dec("120"),
		Commissions: dec("4.5"),
		Snapshots: []models.Snapshot{
			snap(0, "100100", "0.001"),
			snap(1, "99000", "-0.01098901"),
			snap(2, "99500", "0.00505051"),
			snap(3, "101000", "0.01507538"),
		},
	}

	st := ComputeStats(res)
	assert.Equal(t, "101000", st.FinalValue.String())
	assert.Equal(t, "0.01", st.TotalReturn.String())
	assert.Equal(t, 4, st.TradingDays)
	assert.Equal(t, "0.01098901", st.MaxDrawdown.String())
	assert.Equal(t, "100100", st.PeakValue.String())
	assert.True(t, st.PeakDate.Equal(d(0)))
	assert.Equal(t, "99000", st.TroughValue.String())
	assert.True(t, st.TroughDate.Equal(d(1)))
	assert.True(t, st.BestDay.Date.Equal(d(3)))
	assert.True(t, st.WorstDay.Date.Equal(d(1)))
	assert.Equal(t, "120", st.RealizedPnL.String())
}

func TestComputeStats_NoSnapshots(t *testing.T) {
	res := &ledger.Result{InitialCash: dec("1000"), FinalCash: dec("1000")}
	st := ComputeStats(res)
	assert.Equal(t, "1000", st.FinalValue.String())
	assert.True(t, st.TotalReturn.IsZero())
	assert.Zero(t, st.TradingDays)
}

func replayed(t *testing.T) *ledger.Result {
	t.Helper()
	book := models.NewPriceBook()
	book.Add("2800.HK",
		models.PriceBar{Date: d(0), Open: dec("10"), Close: dec("11")},
		models.PriceBar{Date: d(1), Open: dec("11"), Close: dec("12")},
	)
	book.Add("0700.HK", models.PriceBar{Date: d(1), Open: dec("300"), Close: dec("290")})

	orders := []models.Order{
		{ID: "o1", Seq: 1, TradeDate: d(0), Symbol: "2800.HK", Side: models.OrderSideBuy, Quantity: 100},
		{ID: "o2", Seq: 2, TradeDate: d(1), Symbol: "0700.HK", Side: models.OrderSideBuy, Quantity: 10},
		{ID: "o3", Seq: 3, TradeDate: d(2), Symbol: "2800.HK", Side: models.OrderSideSell, Quantity: 10},
	}
	cfg := ledger.DefaultConfig()
	cfg.CommissionRate = decimal.Zero
	res, err := ledger.Replay(orders, book, cfg)
	require.NoError(t, err)
	return res
}

func TestWriteText(t *testing.T) {
	res := replayed(t)
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, "p1", res, TextOptions{Currency: "HKD", Days: 5}))
	out := buf.String()

	assert.Contains(t, out, "Portfolio p1 (HKD)")
	assert.Contains(t, out, "2800.HK")
	assert.Contains(t, out, "0700.HK")
	assert.Contains(t, out, "Total return")
	assert.Contains(t, out, "Daily")
	assert.Contains(t, out, "1 order(s) skipped")
	assert.NotContains(t, out, "\x1b[")

	buf.Reset()
	require.NoError(t, WriteText(&buf, "p1", res, TextOptions{Currency: "HKD", Color: true}))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestFormatMoney(t *testing.T) {
	assert.Contains(t, formatMoney(dec("100050.005"), "HKD"), "100,050.01")
	assert.Contains(t, formatMoney(dec("1234.4"), "JPY"), "1,234")
	assert.True(t, strings.HasPrefix(formatSignedMoney(dec("5"), "HKD"), "+"))
	assert.Equal(t, "+1.23%", formatPercent(dec("0.0123")))
	assert.Equal(t, "-0.50%", formatPercent(dec("-0.005")))
}

func TestWriteJSONAndYAML(t *testing.T) {
	res := replayed(t)
	doc := NewDocument("p1", "HKD", res)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, doc))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "p1", decoded["portfolio"])
	assert.Equal(t, false, decoded["complete"])
	assert.Len(t, decoded["holdings"], 2)
	assert.Len(t, decoded["skipped"], 1)

	buf.Reset()
	require.NoError(t, WriteYAML(&buf, doc))
	out := buf.String()
	assert.Contains(t, out, "portfolio: p1")
	assert.Contains(t, out, "holdings:")
	assert.Contains(t, out, "final_cash:")
	assert.NotContains(t, out, "{")
	assert.NotContains(t, out, `"portfolio"`)

	var fromYAML map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, "p1", fromYAML["portfolio"])
	assert.Equal(t, res.FinalCash.String(), fromYAML["final_cash"], "decimals stay strings")
}

func TestWriteCSV(t *testing.T) {
	res := replayed(t)

	var buf bytes.Buffer
	require.NoError(t, WriteEquityCSV(&buf, res))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "date,cash,market_value,total_value,daily_return,realized_pnl,unrealized_pnl,commissions", lines[0])
	assert.Len(t, lines, 1+len(res.Snapshots))

	buf.Reset()
	require.NoError(t, WritePositionsCSV(&buf, res))
	assert.True(t, strings.HasPrefix(buf.String(), "date,symbol,quantity,close,price_date,market_value,stale"))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestFileReporter(t *testing.T) {
	dir := t.TempDir()
	r := NewFileReporter(dir, "HKD")
	r.Formats = append(r.Formats, FormatYAML)
	require.NoError(t, r.Report(context.Background(), "p1", replayed(t)))

	for _, name := range []string{"report.txt", "report.json", "report.yaml", "equity.csv", "positions.csv"} {
		_, err := os.Stat(filepath.Join(dir, "p1", name))
		assert.NoError(t, err, name)
	}
}
