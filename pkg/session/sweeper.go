package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/federate/pkg/observability"
)

// Sweeper removes expired sessions on a cron schedule. Stores that expire
// entries on their own (Redis) do not need one.
type Sweeper struct {
	store   Store
	cron    *cron.Cron
	metrics *observability.Metrics
	logger  *observability.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewSweeper creates a sweeper for store. Metrics may be nil.
func NewSweeper(store Store, metrics *observability.Metrics, logger *observability.Logger) *Sweeper {
	return &Sweeper{
		store:   store,
		cron:    cron.New(),
		metrics: metrics,
		logger:  logger,
		timeout: 30 * time.Second,
		now:     time.Now,
	}
}

// Schedule registers the sweep under a cron spec such as "@every 15m"
func (s *Sweeper) Schedule(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.WithError(err).Error("expired session sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid session cleanup schedule %q: %w", spec, err)
	}
	return nil
}

// Sweep deletes every session expired at the current time
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	removed, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.SessionsCleanedTotal.Add(float64(removed))
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("expired sessions removed")
	}
	return removed, nil
}

// Start runs the scheduler in the background
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once a running
// sweep has finished.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}
