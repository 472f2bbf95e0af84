package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/models"
	"tradeledger/pkg/utils"
)

// kiteClient is the subset of the Kite Connect client used for prices.
type kiteClient interface {
	GetInstruments() (kiteconnect.Instruments, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
}

// KiteProvider fetches daily candles from Zerodha Kite Connect.
// Symbols are written TRADINGSYMBOL.EXCHANGE, e.g. INFY.NSE; a bare
// tradingsymbol uses the default exchange.
type KiteProvider struct {
	client          kiteClient
	defaultExchange string
	tokens          map[string]int
	loaded          bool
	mu              sync.RWMutex
}

// NewKiteProvider creates a provider authenticated with an API key and access token.
func NewKiteProvider(apiKey, accessToken string) *KiteProvider {
	client := kiteconnect.New(apiKey)
	client.SetAccessToken(accessToken)
	return newKiteProvider(client)
}

func newKiteProvider(client kiteClient) *KiteProvider {
	return &KiteProvider{
		client:          client,
		defaultExchange: "NSE",
		tokens:          make(map[string]int),
	}
}

// splitKiteSymbol turns INFY.NSE into (NSE, INFY).
func (p *KiteProvider) splitKiteSymbol(symbol string) (exchange, tradingsymbol string) {
	symbol = models.NormalizeSymbol(symbol)
	if i := strings.LastIndex(symbol, "."); i > 0 && i < len(symbol)-1 {
		return symbol[i+1:], symbol[:i]
	}
	return p.defaultExchange, symbol
}

// DailyPrices fetches "day" candles for symbol.
func (p *KiteProvider) DailyPrices(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	token, err := p.instrumentToken(symbol)
	if err != nil {
		return nil, err
	}

	data, err := p.client.GetHistoricalData(token, "day", models.Day(from), models.Day(to).Add(24*time.Hour-time.Second), false, false)
	if err != nil {
		return nil, apperrors.NewDataError("kite", symbol, "failed to get historical data", err)
	}

	bars := make([]models.PriceBar, 0, len(data))
	for _, d := range data {
		bars = append(bars, models.PriceBar{
			Date:  models.Day(d.Date.Time),
			Open:  decimal.NewFromFloat(d.Open),
			Close: decimal.NewFromFloat(d.Close),
		})
	}
	return clip(sortBars(bars), from, to), nil
}

func (p *KiteProvider) instrumentToken(symbol string) (int, error) {
	exchange, tradingsymbol := p.splitKiteSymbol(symbol)
	key := fmt.Sprintf("%s:%s", exchange, tradingsymbol)

	p.mu.RLock()
	token, ok := p.tokens[key]
	loaded := p.loaded
	p.mu.RUnlock()

	if ok {
		return token, nil
	}
	if !loaded {
		if err := p.loadInstruments(); err != nil {
			return 0, err
		}
		p.mu.RLock()
		token, ok = p.tokens[key]
		p.mu.RUnlock()
		if ok {
			return token, nil
		}
	}

	return 0, utils.Permanent(apperrors.NewDataError("kite", symbol, "instrument not found", apperrors.ErrDataNotFound))
}

// loadInstruments caches every instrument token, keyed EXCHANGE:TRADINGSYMBOL.
func (p *KiteProvider) loadInstruments() error {
	instruments, err := p.client.GetInstruments()
	if err != nil {
		return apperrors.NewDataError("kite", "", "failed to get instruments", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, inst := range instruments {
		key := fmt.Sprintf("%s:%s", inst.Exchange, strings.ToUpper(inst.Tradingsymbol))
		p.tokens[key] = inst.InstrumentToken
	}
	p.loaded = true
	return nil
}
