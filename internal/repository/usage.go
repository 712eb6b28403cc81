package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

type DeviceUsageRepository interface {
	CountForDay(ctx context.Context, day time.Time, deviceKey string) (int, error)
	Increment(ctx context.Context, day time.Time, deviceKey string) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) DeviceUsageRepository
}

type deviceUsageRepo struct {
	db sqlxDB
}

func NewDeviceUsageRepository(db *sqlx.DB) DeviceUsageRepository {
	return &deviceUsageRepo{db: db}
}

func (r *deviceUsageRepo) WithTx(tx *sqlx.Tx) DeviceUsageRepository {
	return &deviceUsageRepo{db: tx}
}

func (r *deviceUsageRepo) CountForDay(ctx context.Context, day time.Time, deviceKey string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT count FROM device_daily_usage
		WHERE day = $1 AND device_key = $2
	`, day, deviceKey)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Increment upserts the per-day row; the first hit of a day creates it with
// count 1. Day rollover needs no reset because a new day is a new key.
func (r *deviceUsageRepo) Increment(ctx context.Context, day time.Time, deviceKey string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_daily_usage (day, device_key, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (day, device_key)
		DO UPDATE SET count = device_daily_usage.count + 1
	`, day, deviceKey)
	return err
}
