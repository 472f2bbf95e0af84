package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"tradeledger/internal/ledger"
	"tradeledger/internal/models"
)

// Format is an output format accepted by Write.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatText, FormatJSON, FormatYAML, FormatCSV:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown report format %q (text, json, yaml, csv)", s)
	}
}

// Skipped is a fill left out of the ledger.
type Skipped struct {
	Order  models.Order `json:"order"`
	Reason string       `json:"reason"`
}

// Document is the machine-readable report.
type Document struct {
	Portfolio string            `json:"portfolio"`
	Currency  string            `json:"currency"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
	Complete  bool              `json:"complete"`
	Stats     Stats             `json:"stats"`
	FinalCash decimal.Decimal   `json:"final_cash"`
	Holdings  []models.Holding  `json:"holdings"`
	Lots      []models.Lot      `json:"lots"`
	Snapshots []models.Snapshot `json:"snapshots"`
	Skipped   []Skipped         `json:"skipped,omitempty"`
}

// NewDocument assembles the report document for res.
func NewDocument(portfolioID, currency string, res *ledger.Result) Document {
	doc := Document{
		Portfolio: portfolioID,
		Currency:  currency,
		Start:     res.Start,
		End:       res.End,
		Complete:  res.Complete,
		Stats:     ComputeStats(res),
		FinalCash: res.FinalCash,
		Holdings:  res.Holdings,
		Lots:      res.Lots,
		Snapshots: res.Snapshots,
	}
	for _, s := range res.Skipped {
		doc.Skipped = append(doc.Skipped, Skipped{Order: s.Order, Reason: s.Reason})
	}
	return doc
}

// WriteJSON writes the document as indented JSON.
func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteYAML writes the document as YAML with the same keys as the JSON form.
func WriteYAML(w io.Writer, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle clears the flow and quoting styles inherited from JSON. The
// encoder still quotes strings that would otherwise read back as numbers or
// timestamps, so decimals stay strings.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// equityRow is one line of the equity curve CSV.
type equityRow struct {
	Date          string `csv:"date"`
	Cash          string `csv:"cash"`
	MarketValue   string `csv:"market_value"`
	TotalValue    string `csv:"total_value"`
	DailyReturn   string `csv:"daily_return"`
	RealizedPnL   string `csv:"realized_pnl"`
	UnrealizedPnL string `csv:"unrealized_pnl"`
	Commissions   string `csv:"commissions"`
}

// positionRow is one symbol on one snapshot date.
type positionRow struct {
	Date        string `csv:"date"`
	Symbol      string `csv:"symbol"`
	Quantity    int64  `csv:"quantity"`
	Close       string `csv:"close"`
	PriceDate   string `csv:"price_date"`
	MarketValue string `csv:"market_value"`
	Stale       bool   `csv:"stale"`
}

// WriteEquityCSV writes one row per snapshot.
func WriteEquityCSV(w io.Writer, res *ledger.Result) error {
	rows := make([]equityRow, len(res.Snapshots))
	for i, s := range res.Snapshots {
		rows[i] = equityRow{
			Date:          models.FormatDay(s.Date),
			Cash:          s.Cash.String(),
			MarketValue:   s.MarketValue.String(),
			TotalValue:    s.TotalValue.String(),
			DailyReturn:   s.DailyReturn.String(),
			RealizedPnL:   s.RealizedPnL.String(),
			UnrealizedPnL: s.UnrealizedPnL.String(),
			Commissions:   s.Commissions.String(),
		}
	}
	return marshalCSV(w, &rows)
}

// WritePositionsCSV writes one row per (snapshot date, symbol).
func WritePositionsCSV(w io.Writer, res *ledger.Result) error {
	var rows []positionRow
	for _, s := range res.Snapshots {
		for _, p := range s.Positions {
			rows = append(rows, positionRow{
				Date:        models.FormatDay(s.Date),
				Symbol:      p.Symbol,
				Quantity:    p.Quantity,
				Close:       p.Close.String(),
				PriceDate:   models.FormatDay(p.PriceDate),
				MarketValue: p.MarketValue.String(),
				Stale:       p.Stale,
			})
		}
	}
	if rows == nil {
		rows = []positionRow{}
	}
	return marshalCSV(w, &rows)
}

func marshalCSV(w io.Writer, rows interface{}) error {
	var buf bytes.Buffer
	if err := gocsv.Marshal(rows, &buf); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Write renders res in format.
func Write(w io.Writer, format Format, portfolioID string, res *ledger.Result, opts TextOptions) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, NewDocument(portfolioID, opts.Currency, res))
	case FormatYAML:
		return WriteYAML(w, NewDocument(portfolioID, opts.Currency, res))
	case FormatCSV:
		return WriteEquityCSV(w, res)
	default:
		return WriteText(w, portfolioID, res, opts)
	}
}
