package crontab

import (
	"context"
	"fmt"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"github.com/janhq/chat-stream-api/internal/utils/platformerrors"
)

const (
	DefaultSweepInterval = 1 // in minutes
	SweepJobTimeout      = 30 * time.Second
)

// Sweeper removes stale stream sessions.
type Sweeper interface {
	SweepSessions(ctx context.Context) int
}

type Crontab struct {
	ctab         *crontab.Crontab
	sweeper      Sweeper
	intervalMins int
	log          zerolog.Logger
}

func NewCrontab(sweeper Sweeper, intervalMinutes int, log zerolog.Logger) *Crontab {
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultSweepInterval
	}
	return &Crontab{
		ctab:         crontab.New(),
		sweeper:      sweeper,
		intervalMins: intervalMinutes,
		log:          log.With().Str("component", "crontab").Logger(),
	}
}

// Run schedules the session sweep and blocks until ctx is done.
func (c *Crontab) Run(ctx context.Context) error {
	cronExpr := fmt.Sprintf("*/%d * * * *", c.intervalMins)
	if err := c.ctab.AddJob(cronExpr, func() { c.sweep(context.Background()) }); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add session sweep job")
	}
	c.log.Info().Msgf("Session sweep scheduled: every %d minute(s)", c.intervalMins)

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) sweep(ctx context.Context) int {
	jobCtx, cancel := context.WithTimeout(ctx, SweepJobTimeout)
	defer cancel()
	removed := c.sweeper.SweepSessions(jobCtx)
	if removed > 0 {
		c.log.Debug().Int("removed", removed).Msg("session sweep finished")
	}
	return removed
}
