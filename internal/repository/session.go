package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/computebaker/tekir-quota/internal/model"
)

type SessionRepository interface {
	FindByToken(ctx context.Context, token string) (*model.Session, error)
	FindActiveByUserID(ctx context.Context, userID string, now time.Time) (*model.Session, error)
	FindActiveAnonymousByIP(ctx context.Context, hashedIP string, now time.Time) (*model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	ExtendExpiry(ctx context.Context, id string, expiresAt time.Time) error
	SetDeviceID(ctx context.Context, id, deviceID string) error
	AttachUser(ctx context.Context, id, userID string) error
	Deactivate(ctx context.Context, id string) error
	DeactivateExpiredForUser(ctx context.Context, userID string, now time.Time) error
	DeactivateExpiredForIP(ctx context.Context, hashedIP string, now time.Time) error
	IncrementRequestCount(ctx context.Context, id string, fromCount int) (bool, error)
	RequestCount(ctx context.Context, id string) (int, error)
	FindExpiredIDs(ctx context.Context, before time.Time, limit int) ([]string, error)
	DeleteByID(ctx context.Context, id string) error
	ResetRequestCounts(ctx context.Context, now time.Time, limit int) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db sqlxDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

// FindByToken does not filter on is_active or expires_at: a deactivated or
// expired row must still be readable so enforcement and status can report
// on it deterministically.
func (r *sessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE token = $1
	`, token)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindActiveByUserID(ctx context.Context, userID string, now time.Time) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions
		WHERE user_id = $1 AND is_active AND expires_at > $2
	`, userID, now)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindActiveAnonymousByIP(ctx context.Context, hashedIP string, now time.Time) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions
		WHERE hashed_ip = $1 AND user_id IS NULL AND is_active AND expires_at > $2
	`, hashedIP, now)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (id, token, hashed_ip, device_id, user_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, params.ID, params.Token, params.HashedIP, params.DeviceID, params.UserID, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ExtendExpiry moves the expiry forward. GREATEST guards the invariant that
// expires_at never retreats, even under a concurrent extension.
func (r *sessionRepo) ExtendExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			expires_at = GREATEST(expires_at, $2),
			updated_at = $3
		WHERE id = $1
	`, id, expiresAt, time.Now())
	return err
}

func (r *sessionRepo) SetDeviceID(ctx context.Context, id, deviceID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			device_id = $2,
			updated_at = $3
		WHERE id = $1 AND device_id IS NULL
	`, id, deviceID, time.Now())
	return err
}

func (r *sessionRepo) AttachUser(ctx context.Context, id, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			user_id = $2,
			updated_at = $3
		WHERE id = $1
	`, id, userID, time.Now())
	return err
}

func (r *sessionRepo) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			is_active = false,
			updated_at = $2
		WHERE id = $1
	`, id, time.Now())
	return err
}

func (r *sessionRepo) DeactivateExpiredForUser(ctx context.Context, userID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			is_active = false,
			updated_at = $2
		WHERE user_id = $1 AND is_active AND expires_at <= $2
	`, userID, now)
	return err
}

func (r *sessionRepo) DeactivateExpiredForIP(ctx context.Context, hashedIP string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			is_active = false,
			updated_at = $2
		WHERE hashed_ip = $1 AND user_id IS NULL AND is_active AND expires_at <= $2
	`, hashedIP, now)
	return err
}

// IncrementRequestCount is an optimistic conditional increment: it succeeds
// only when the stored count still equals fromCount. A false return means a
// concurrent enforcement call committed first.
func (r *sessionRepo) IncrementRequestCount(ctx context.Context, id string, fromCount int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			request_count = request_count + 1,
			updated_at = $3
		WHERE id = $1 AND request_count = $2
	`, id, fromCount, time.Now())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *sessionRepo) RequestCount(ctx context.Context, id string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT request_count FROM sessions WHERE id = $1
	`, id)
	return count, err
}

func (r *sessionRepo) FindExpiredIDs(ctx context.Context, before time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM sessions
		WHERE expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *sessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// ResetRequestCounts zeroes one batch of active, unexpired, non-zero
// counters and reports how many rows it touched. Expired or deactivated
// rows are left alone.
func (r *sessionRepo) ResetRequestCounts(ctx context.Context, now time.Time, limit int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET
			request_count = 0,
			updated_at = $1
		WHERE id IN (
			SELECT id FROM sessions
			WHERE is_active AND expires_at > $1 AND request_count > 0
			LIMIT $2
		)
	`, now, limit)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
