package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/models"
	"tradeledger/pkg/utils"
)

// DefaultEODHDBaseURL is the EOD Historical Data API root.
const DefaultEODHDBaseURL = "https://eodhd.com/api"

// EODHDProvider fetches end-of-day bars from eodhd.com.
type EODHDProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewEODHDProvider creates a provider. An empty baseURL uses DefaultEODHDBaseURL.
func NewEODHDProvider(baseURL, apiKey string, client *http.Client) *EODHDProvider {
	if baseURL == "" {
		baseURL = DefaultEODHDBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &EODHDProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// eodhdBar is one element of the /eod response.
type eodhdBar struct {
	Date  string          `json:"date"`
	Open  decimal.Decimal `json:"open"`
	Close decimal.Decimal `json:"close"`
}

// DailyPrices calls GET {base}/eod/{symbol}?fmt=json&from=&to=&api_token=.
// Not-found and other client errors are permanent; 429 and 5xx may be retried.
func (p *EODHDProvider) DailyPrices(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	symbol = models.NormalizeSymbol(symbol)
	q := url.Values{}
	q.Set("fmt", "json")
	q.Set("from", models.FormatDay(models.Day(from)))
	q.Set("to", models.FormatDay(models.Day(to)))
	q.Set("api_token", p.apiKey)
	addr := fmt.Sprintf("%s/eod/%s?%s", p.baseURL, url.PathEscape(symbol), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, utils.Permanent(fmt.Errorf("failed to build request: %w", err))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperrors.NewDataError("eodhd", symbol, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		derr := apperrors.NewDataError("eodhd", symbol,
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
		switch {
		case resp.StatusCode == http.StatusNotFound:
			derr.Err = apperrors.ErrDataNotFound
			return nil, utils.Permanent(derr)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			derr.Err = apperrors.ErrProviderFailure
			return nil, derr
		default:
			derr.Err = apperrors.ErrProviderFailure
			return nil, utils.Permanent(derr)
		}
	}

	var payload []eodhdBar
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, utils.Permanent(apperrors.NewDataError("eodhd", symbol, "failed to decode response", err))
	}

	bars := make([]models.PriceBar, 0, len(payload))
	for _, b := range payload {
		date, err := models.ParseDay(b.Date)
		if err != nil {
			return nil, utils.Permanent(apperrors.NewDataError("eodhd", symbol, "bad date in response", err))
		}
		bars = append(bars, models.PriceBar{Date: date, Open: b.Open, Close: b.Close})
	}
	return clip(sortBars(bars), from, to), nil
}
