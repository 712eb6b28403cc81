package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/computebaker/tekir-quota/internal/config"
	apperrors "github.com/computebaker/tekir-quota/internal/errors"
	"github.com/computebaker/tekir-quota/internal/repository"
)

// SweepResult reports one sweep invocation. HasMore tells the scheduler to
// re-invoke; it is a normal outcome, not an error.
type SweepResult struct {
	Processed int  `json:"processed"`
	HasMore   bool `json:"hasMore"`
}

// Sweeper runs the batched maintenance passes. Every pass self-limits its
// work per invocation so a large backlog cannot starve the timer that
// re-invokes it. Both sweeps are idempotent and safe to re-run.
type Sweeper struct {
	sessions repository.SessionRepository
}

func NewSweeper(sessions repository.SessionRepository) *Sweeper {
	return &Sweeper{sessions: sessions}
}

// SweepExpired deletes sessions whose expiry has passed, in batches. A row
// that fails to delete (already gone) is skipped, not fatal.
func (s *Sweeper) SweepExpired(ctx context.Context) (*SweepResult, error) {
	deleted := 0
	for batch := 0; batch < config.ExpirySweepMaxBatches; batch++ {
		ids, err := s.sessions.FindExpiredIDs(ctx, time.Now(), config.ExpirySweepBatchSize)
		if err != nil {
			return nil, apperrors.Database(err)
		}

		for _, id := range ids {
			if err := s.sessions.DeleteByID(ctx, id); err != nil {
				log.Warn().Err(err).Str("sessionId", id).Msg("expired session delete failed, skipping")
				continue
			}
			deleted++
		}

		if len(ids) < config.ExpirySweepBatchSize {
			return &SweepResult{Processed: deleted, HasMore: false}, nil
		}
	}
	return &SweepResult{Processed: deleted, HasMore: true}, nil
}

// ResetDailyCounts zeroes the session-level counters of active, unexpired
// sessions, in batches up to a per-invocation safety ceiling. Device-day
// rows need no reset: a new day is a new key.
func (s *Sweeper) ResetDailyCounts(ctx context.Context) (*SweepResult, error) {
	total := 0
	for batch := 0; batch < config.ResetSweepMaxBatches; batch++ {
		n, err := s.sessions.ResetRequestCounts(ctx, time.Now(), config.ResetSweepBatchSize)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		total += int(n)

		if n < int64(config.ResetSweepBatchSize) {
			return &SweepResult{Processed: total, HasMore: false}, nil
		}
	}
	return &SweepResult{Processed: total, HasMore: true}, nil
}
