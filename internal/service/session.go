package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/computebaker/tekir-quota/internal/audit"
	"github.com/computebaker/tekir-quota/internal/config"
	"github.com/computebaker/tekir-quota/internal/database"
	apperrors "github.com/computebaker/tekir-quota/internal/errors"
	"github.com/computebaker/tekir-quota/internal/model"
	"github.com/computebaker/tekir-quota/internal/repository"
	"github.com/computebaker/tekir-quota/internal/util"
)

type IssueParams struct {
	UserID   *string
	HashedIP *string
	DeviceID *string
	TTL      time.Duration
}

type IssueResult struct {
	Token      string    `json:"token"`
	DailyLimit int       `json:"dailyLimit"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Reused     bool      `json:"reused"`
}

type LinkResult struct {
	Token  string `json:"token"`
	Linked bool   `json:"linked"`
	Merged bool   `json:"merged"`
}

// SessionService issues canonical session tokens and merges duplicate
// identities. A burst of concurrent requests from one browser, or a user
// signing in from several tabs, converges on a single quota bucket instead
// of fragmenting limits across tokens.
type SessionService struct {
	db       database.TxRunner
	sessions repository.SessionRepository
	policy   *QuotaPolicy
}

func NewSessionService(
	db database.TxRunner,
	sessions repository.SessionRepository,
	policy *QuotaPolicy,
) *SessionService {
	return &SessionService{
		db:       db,
		sessions: sessions,
		policy:   policy,
	}
}

// Issue returns the canonical session token for the caller's identity,
// creating a fresh session only when no active, unexpired one exists for
// the user (or, for anonymous callers, the hashed IP).
func (s *SessionService) Issue(ctx context.Context, params IssueParams) (*IssueResult, error) {
	now := time.Now()
	if params.TTL <= 0 {
		params.TTL = config.DefaultSessionTTL
	}
	limit := s.policy.DailyLimitFor(ctx, params.UserID)

	existing, err := s.findCanonical(ctx, params, now)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if existing != nil {
		return s.reuse(ctx, existing, params, now, limit)
	}

	result, err := s.create(ctx, params, now, limit)
	if err == nil {
		return result, nil
	}
	if !database.IsUniqueViolation(err) {
		return nil, apperrors.Database(err)
	}

	// A concurrent request created the canonical row first; adopt it.
	existing, ferr := s.findCanonical(ctx, params, now)
	if ferr != nil {
		return nil, apperrors.Database(ferr)
	}
	if existing == nil {
		return nil, apperrors.Database(err)
	}
	return s.reuse(ctx, existing, params, now, limit)
}

func (s *SessionService) findCanonical(ctx context.Context, params IssueParams, now time.Time) (*model.Session, error) {
	if params.UserID != nil && *params.UserID != "" {
		return s.sessions.FindActiveByUserID(ctx, *params.UserID, now)
	}
	if params.HashedIP != nil && *params.HashedIP != "" {
		return s.sessions.FindActiveAnonymousByIP(ctx, *params.HashedIP, now)
	}
	return nil, nil
}

// reuse extends the canonical session's expiry only when less than half of
// the requested window remains, to avoid a write on every request, and
// backfills a missing device id.
func (s *SessionService) reuse(ctx context.Context, session *model.Session, params IssueParams, now time.Time, limit int) (*IssueResult, error) {
	expiresAt := session.ExpiresAt
	if session.ExpiresAt.Sub(now) < params.TTL/2 {
		expiresAt = now.Add(params.TTL)
		if err := s.sessions.ExtendExpiry(ctx, session.ID, expiresAt); err != nil {
			return nil, apperrors.Database(err)
		}
	}

	if session.DeviceID == nil && params.DeviceID != nil && *params.DeviceID != "" {
		if err := s.sessions.SetDeviceID(ctx, session.ID, *params.DeviceID); err != nil {
			return nil, apperrors.Database(err)
		}
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionReuse,
		SessionID: session.ID,
		UserID:    stringValue(session.UserID),
	})

	return &IssueResult{
		Token:      session.Token,
		DailyLimit: limit,
		ExpiresAt:  expiresAt,
		Reused:     true,
	}, nil
}

func (s *SessionService) create(ctx context.Context, params IssueParams, now time.Time, limit int) (*IssueResult, error) {
	token, err := util.GenerateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	expiresAt := now.Add(params.TTL)

	// Clear stale active-but-expired rows for this key so the partial
	// unique index cannot block the insert.
	if params.UserID != nil && *params.UserID != "" {
		if err := s.sessions.DeactivateExpiredForUser(ctx, *params.UserID, now); err != nil {
			return nil, err
		}
	} else if params.HashedIP != nil && *params.HashedIP != "" {
		if err := s.sessions.DeactivateExpiredForIP(ctx, *params.HashedIP, now); err != nil {
			return nil, err
		}
	}

	session, err := s.sessions.Create(ctx, model.CreateSessionParams{
		ID:        uuid.NewString(),
		Token:     token,
		HashedIP:  params.HashedIP,
		DeviceID:  params.DeviceID,
		UserID:    params.UserID,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("sessionId", session.ID).
		Bool("authenticated", session.UserID != nil).
		Time("expiresAt", expiresAt).
		Msg("session issued")

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionIssue,
		SessionID: session.ID,
		UserID:    stringValue(session.UserID),
	})

	return &IssueResult{
		Token:      session.Token,
		DailyLimit: limit,
		ExpiresAt:  expiresAt,
	}, nil
}

// Link merges a caller-presented session into the user's canonical identity
// at sign-in. The caller must be authorized to act as userID. If the user
// already holds a live canonical session, the presented one is deactivated,
// never deleted, so an in-flight increment against it cannot fail.
func (s *SessionService) Link(ctx context.Context, callerUserID, userID, token string) (*LinkResult, error) {
	if callerUserID == "" || callerUserID != userID {
		audit.Log(ctx, audit.Event{Type: audit.EventAuthFailure, UserID: userID})
		return nil, apperrors.Forbidden("cannot link a session for another user")
	}

	var result *LinkResult
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		sessions := s.sessions.WithTx(tx)
		now := time.Now()

		presented, err := sessions.FindByToken(ctx, token)
		if err != nil {
			return err
		}
		if presented == nil {
			// Nothing to link; the caller keeps whatever token it has.
			result = &LinkResult{Token: token}
			return nil
		}
		if presented.UserID != nil && *presented.UserID != userID {
			return apperrors.Forbidden("session belongs to another user")
		}

		canonical, err := sessions.FindActiveByUserID(ctx, userID, now)
		if err != nil {
			return err
		}

		if canonical != nil && canonical.ID != presented.ID {
			if err := sessions.Deactivate(ctx, presented.ID); err != nil {
				return err
			}
			if canonical.DeviceID == nil && presented.DeviceID != nil {
				if err := sessions.SetDeviceID(ctx, canonical.ID, *presented.DeviceID); err != nil {
					return err
				}
			}
			result = &LinkResult{Token: canonical.Token, Linked: true, Merged: true}

			audit.Log(ctx, audit.Event{
				Type:      audit.EventSessionMerge,
				SessionID: canonical.ID,
				UserID:    userID,
				Details:   map[string]interface{}{"supersededSessionId": presented.ID},
			})
			return nil
		}

		if presented.UserID == nil {
			if err := sessions.AttachUser(ctx, presented.ID, userID); err != nil {
				return err
			}
		}
		result = &LinkResult{Token: presented.Token, Linked: true}

		audit.Log(ctx, audit.Event{
			Type:      audit.EventSessionLink,
			SessionID: presented.ID,
			UserID:    userID,
		})
		return nil
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.Database(err)
	}
	return result, nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
