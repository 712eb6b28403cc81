package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/computebaker/tekir-quota/internal/config"
	"github.com/computebaker/tekir-quota/internal/model"
	"github.com/computebaker/tekir-quota/internal/service"
)

// Janitor drives the unattended sweep variants on a timer, decoupled from
// request traffic. The expiry sweep runs every tick; the daily reset runs
// once per UTC day rollover, re-triggered on subsequent ticks while the
// sweep reports more work.
type Janitor struct {
	sweeper  *service.Sweeper
	interval time.Duration
	done     chan struct{}

	now          func() time.Time
	lastResetDay time.Time
}

func NewJanitor(sweeper *service.Sweeper, interval time.Duration) *Janitor {
	return &Janitor{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

func (j *Janitor) Start() {
	// Counters issued before a restart keep their day; resets only happen
	// on a rollover observed while running.
	j.lastResetDay = model.UsageDay(j.now())
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("janitor started")
}

func (j *Janitor) Stop() {
	close(j.done)
	log.Info().Msg("janitor stopped")
}

func (j *Janitor) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), config.JanitorSweepTimeout)
	defer cancel()

	if result, err := j.sweeper.SweepExpired(ctx); err != nil {
		log.Error().Err(err).Msg("expiry sweep failed")
	} else if result.Processed > 0 || result.HasMore {
		log.Info().Int("deleted", result.Processed).Bool("hasMore", result.HasMore).Msg("expiry sweep")
	}

	day := model.UsageDay(j.now())
	if !day.After(j.lastResetDay) {
		return
	}

	result, err := j.sweeper.ResetDailyCounts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("daily reset sweep failed")
		return
	}
	log.Info().Int("reset", result.Processed).Bool("hasMore", result.HasMore).Msg("daily reset sweep")

	// Only advance the day marker once the backlog is fully drained so the
	// next tick resumes the reset.
	if !result.HasMore {
		j.lastResetDay = day
	}
}
