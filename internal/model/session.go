package model

import (
	"time"
)

type Session struct {
	ID           string    `db:"id" json:"id"`
	Token        string    `db:"token" json:"-"`
	HashedIP     *string   `db:"hashed_ip" json:"-"`
	DeviceID     *string   `db:"device_id" json:"deviceId,omitempty"`
	UserID       *string   `db:"user_id" json:"userId,omitempty"`
	RequestCount int       `db:"request_count" json:"requestCount"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	ExpiresAt    time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// DeviceKey returns the key used for device-level daily usage: the
// client-supplied device id when present, otherwise the hashed IP.
// Empty when neither is known.
func (s *Session) DeviceKey() string {
	if s.DeviceID != nil && *s.DeviceID != "" {
		return *s.DeviceID
	}
	if s.HashedIP != nil {
		return *s.HashedIP
	}
	return ""
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type CreateSessionParams struct {
	ID        string
	Token     string
	HashedIP  *string
	DeviceID  *string
	UserID    *string
	ExpiresAt time.Time
}
