package service

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/computebaker/tekir-quota/internal/config"
	"github.com/computebaker/tekir-quota/internal/database"
	apperrors "github.com/computebaker/tekir-quota/internal/errors"
	"github.com/computebaker/tekir-quota/internal/model"
	"github.com/computebaker/tekir-quota/internal/repository"
	"github.com/computebaker/tekir-quota/internal/telemetry"
)

// errCounterConflict signals that a concurrent enforcement call won the
// optimistic increment; the transaction is rolled back and the committed
// count is reread once. The increment is never retried.
var errCounterConflict = errors.New("session counter modified concurrently")

type ConsumeResult struct {
	Allowed bool `json:"allowed"`
	Count   int  `json:"count"`
	Limit   int  `json:"limit"`
}

type StatusResult struct {
	IsValid         bool      `json:"isValid"`
	CurrentCount    int       `json:"currentCount"`
	Limit           int       `json:"limit"`
	Remaining       int       `json:"remaining"`
	IsAuthenticated bool      `json:"isAuthenticated"`
	ResetTime       time.Time `json:"resetTime"`
}

// QuotaService decides, per inbound request, whether one more request is
// allowed for a session, incrementing the session counter and the
// device-day counter together only on an allow.
type QuotaService struct {
	db       database.TxRunner
	sessions repository.SessionRepository
	usage    repository.DeviceUsageRepository
	policy   *QuotaPolicy
	emitter  *telemetry.Emitter
}

func NewQuotaService(
	db database.TxRunner,
	sessions repository.SessionRepository,
	usage repository.DeviceUsageRepository,
	policy *QuotaPolicy,
	emitter *telemetry.Emitter,
) *QuotaService {
	return &QuotaService{
		db:       db,
		sessions: sessions,
		usage:    usage,
		policy:   policy,
		emitter:  emitter,
	}
}

// Consume atomically checks and increments both counters for one request.
// The request is allowed iff the tentative session count stays within the
// tier ceiling and, when a device key exists, the tentative device-day
// count stays within the device cap (the same value). Either limit failing
// denies the whole request; there is no partial increment.
func (s *QuotaService) Consume(ctx context.Context, token string) (*ConsumeResult, error) {
	now := time.Now().UTC()

	var result *ConsumeResult
	var sessionID string
	var contended *model.Session
	var contendedLimit int

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		sessions := s.sessions.WithTx(tx)
		usage := s.usage.WithTx(tx)

		session, err := sessions.FindByToken(ctx, token)
		if err != nil {
			return err
		}
		if session == nil {
			result = &ConsumeResult{Allowed: false, Count: 0, Limit: config.AnonymousDailyLimit}
			return nil
		}
		sessionID = session.ID

		limit := s.policy.DailyLimitFor(ctx, session.UserID)
		if session.Expired(now) {
			result = &ConsumeResult{Allowed: false, Count: session.RequestCount, Limit: limit}
			return nil
		}

		day := model.UsageDay(now)
		deviceKey := session.DeviceKey()
		deviceCount := 0
		if deviceKey != "" {
			deviceCount, err = usage.CountForDay(ctx, day, deviceKey)
			if err != nil {
				return err
			}
		}

		if session.RequestCount+1 > limit || (deviceKey != "" && deviceCount+1 > limit) {
			result = &ConsumeResult{Allowed: false, Count: session.RequestCount, Limit: limit}
			return nil
		}

		ok, err := sessions.IncrementRequestCount(ctx, session.ID, session.RequestCount)
		if err != nil {
			return err
		}
		if !ok {
			contended = session
			contendedLimit = limit
			return errCounterConflict
		}

		if deviceKey != "" {
			if err := usage.Increment(ctx, day, deviceKey); err != nil {
				return err
			}
		}

		result = &ConsumeResult{Allowed: true, Count: session.RequestCount + 1, Limit: limit}
		return nil
	})

	if errors.Is(err, errCounterConflict) {
		return s.resolveConflict(ctx, contended, contendedLimit)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}

	if s.emitter != nil {
		if result.Allowed {
			s.emitter.RecordHit(now)
		} else if sessionID != "" {
			s.emitter.QuotaDenied(sessionID, result.Count, result.Limit)
		}
	}
	return result, nil
}

// resolveConflict handles a lost optimistic increment: reread the committed
// count once and allow only if it is still below the ceiling. No counter is
// incremented on this path; a retry loop would risk double counting and
// starvation under hot contention.
func (s *QuotaService) resolveConflict(ctx context.Context, session *model.Session, limit int) (*ConsumeResult, error) {
	committed, err := s.sessions.RequestCount(ctx, session.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	allowed := committed < limit
	log.Debug().
		Str("sessionId", session.ID).
		Int("committedCount", committed).
		Bool("allowed", allowed).
		Msg("enforcement conflict resolved by reread")

	return &ConsumeResult{Allowed: allowed, Count: committed, Limit: limit}, nil
}

// Status reports remaining allowance without mutating anything, so it is
// safe to poll for display. Remaining is the tighter of the session and
// device budgets, floored at zero. A missing or expired session reports
// zero remaining against the anonymous ceiling.
func (s *QuotaService) Status(ctx context.Context, token string) (*StatusResult, error) {
	now := time.Now().UTC()
	resetTime := model.UsageDay(now).Add(24 * time.Hour)

	session, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil || session.Expired(now) {
		return &StatusResult{
			IsValid:   false,
			Limit:     config.AnonymousDailyLimit,
			ResetTime: resetTime,
		}, nil
	}

	limit := s.policy.DailyLimitFor(ctx, session.UserID)
	remaining := limit - session.RequestCount

	if deviceKey := session.DeviceKey(); deviceKey != "" {
		deviceCount, err := s.usage.CountForDay(ctx, model.UsageDay(now), deviceKey)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if deviceRemaining := limit - deviceCount; deviceRemaining < remaining {
			remaining = deviceRemaining
		}
	}
	if remaining < 0 {
		remaining = 0
	}

	return &StatusResult{
		IsValid:         true,
		CurrentCount:    session.RequestCount,
		Limit:           limit,
		Remaining:       remaining,
		IsAuthenticated: session.UserID != nil,
		ResetTime:       resetTime,
	}, nil
}
