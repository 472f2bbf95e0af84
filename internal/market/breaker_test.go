package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tradeledger/internal/errors"
	"tradeledger/internal/models"
	"tradeledger/pkg/utils"
)

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Cooldown: time.Minute})
	cb.now = func() time.Time { return now }

	down := true
	calls := 0
	p := WithCircuitBreaker(ProviderFunc(func(context.Context, string, time.Time, time.Time) ([]models.PriceBar, error) {
		calls++
		if down {
			return nil, errors.New("connection refused")
		}
		return []models.PriceBar{bar(jan5, "1", "1")}, nil
	}), cb)

	for i := 0; i < 2; i++ {
		_, err := p.DailyPrices(ctx, "2800.HK", jan5, jan9)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := p.DailyPrices(ctx, "2800.HK", jan5, jan9)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, utils.IsPermanent(err))
	assert.Equal(t, 2, calls, "open circuit does not call the provider")

	down = false
	now = now.Add(2 * time.Minute)
	bars, err := p.DailyPrices(ctx, "2800.HK", jan5, jan9)
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Cooldown: time.Second})
	cb.now = func() time.Time { return now }

	cb.record(errors.New("boom"))
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(2 * time.Second)
	require.NoError(t, cb.allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())
	cb.record(nil)
	assert.Equal(t, CircuitHalfOpen, cb.State(), "needs two successes")
	cb.record(errors.New("boom"))
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_IgnoresMissingData(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})
	cb.record(utils.Permanent(&apperrors.DataError{Symbol: "XXXX.HK", Err: apperrors.ErrDataNotFound}))
	cb.record(context.Canceled)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_StopsRetries(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	calls := 0
	p := WithRetry(WithCircuitBreaker(ProviderFunc(func(context.Context, string, time.Time, time.Time) ([]models.PriceBar, error) {
		calls++
		return nil, errors.New("503")
	}), cb), fastRetry())

	_, err := p.DailyPrices(context.Background(), "2800.HK", jan5, jan9)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}
