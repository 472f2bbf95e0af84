package server

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tradeledger/internal/session"
)

// Scheduler runs jobs on six-field cron specs (seconds first).
type Scheduler struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	baseCtx context.Context
}

// NewScheduler creates a scheduler whose jobs receive baseCtx.
func NewScheduler(baseCtx context.Context, logger zerolog.Logger) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger.With().Str("component", "scheduler").Logger(),
		baseCtx: baseCtx,
	}
}

// Add registers job under spec.
func (s *Scheduler) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, func() { job(s.baseCtx) })
}

// Start starts the scheduler in the background.
func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// RefreshJob replays every portfolio and logs each outcome.
func RefreshJob(sess *session.Session, logger zerolog.Logger) func(context.Context) {
	return func(ctx context.Context) {
		outcomes, err := sess.RefreshAll(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Scheduled refresh failed")
			return
		}
		for _, o := range outcomes {
			if o.Err != nil {
				logger.Error().Err(o.Err).Str("portfolio", o.PortfolioID).Msg("Scheduled refresh failed for portfolio")
				continue
			}
			event := logger.Info().Str("portfolio", o.PortfolioID).Int("orders", o.Run.Orders)
			if last, ok := o.Run.Result.Last(); ok {
				event = event.Str("total_value", last.TotalValue.String())
			}
			event.Msg("Portfolio refreshed")
		}
	}
}
