// Package scheduler runs the periodic watchlist refresh.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"stockwatch/internal/fetcher"
)

// Scheduler drives the background refresh loop on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	f    *fetcher.Fetcher
	log  zerolog.Logger
}

func New(f *fetcher.Fetcher, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		f:    f,
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start schedules a refresh every interval and begins running. Each refresh
// gets its own timeout slightly under the interval so runs never overlap
// badly.
func (s *Scheduler) Start(interval time.Duration) error {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	spec := fmt.Sprintf("@every %s", interval)
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval*9/10)
		defer cancel()
		s.f.RefreshWatched(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	s.cron.Start()
	s.log.Info().Dur("interval", interval).Msg("refresh scheduler started")
	return nil
}

// Stop halts scheduling and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("refresh scheduler stopped")
}
