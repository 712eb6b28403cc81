package handler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/computebaker/tekir-quota/internal/database"
	"github.com/computebaker/tekir-quota/internal/model"
	"github.com/computebaker/tekir-quota/internal/repository"
)

// In-memory stand-ins for the Postgres repositories. The handlers are
// exercised through real services so the tests cover the whole path below
// the router.

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

var _ database.TxRunner = fakeTxRunner{}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

var _ repository.SessionRepository = (*memSessionRepo)(nil)

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*model.Session)}
}

func (m *memSessionRepo) add(s *model.Session) *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.sessions[s.ID] = s
	return s
}

func (m *memSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository { return m }

func (m *memSessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Token == token {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memSessionRepo) FindActiveByUserID(ctx context.Context, userID string, now time.Time) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.IsActive && s.UserID != nil && *s.UserID == userID && now.Before(s.ExpiresAt) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memSessionRepo) FindActiveAnonymousByIP(ctx context.Context, hashedIP string, now time.Time) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.IsActive && s.UserID == nil && s.HashedIP != nil && *s.HashedIP == hashedIP && now.Before(s.ExpiresAt) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := &model.Session{
		ID:        params.ID,
		Token:     params.Token,
		HashedIP:  params.HashedIP,
		DeviceID:  params.DeviceID,
		UserID:    params.UserID,
		IsActive:  true,
		ExpiresAt: params.ExpiresAt,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.sessions[session.ID] = session
	copied := *session
	return &copied, nil
}

func (m *memSessionRepo) ExtendExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && expiresAt.After(s.ExpiresAt) {
		s.ExpiresAt = expiresAt
	}
	return nil
}

func (m *memSessionRepo) SetDeviceID(ctx context.Context, id, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && s.DeviceID == nil {
		s.DeviceID = &deviceID
	}
	return nil
}

func (m *memSessionRepo) AttachUser(ctx context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.UserID = &userID
	}
	return nil
}

func (m *memSessionRepo) Deactivate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.IsActive = false
	}
	return nil
}

func (m *memSessionRepo) DeactivateExpiredForUser(ctx context.Context, userID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.IsActive && s.UserID != nil && *s.UserID == userID && !now.Before(s.ExpiresAt) {
			s.IsActive = false
		}
	}
	return nil
}

func (m *memSessionRepo) DeactivateExpiredForIP(ctx context.Context, hashedIP string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.IsActive && s.UserID == nil && s.HashedIP != nil && *s.HashedIP == hashedIP && !now.Before(s.ExpiresAt) {
			s.IsActive = false
		}
	}
	return nil
}

func (m *memSessionRepo) IncrementRequestCount(ctx context.Context, id string, fromCount int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.RequestCount != fromCount {
		return false, nil
	}
	s.RequestCount++
	return true, nil
}

func (m *memSessionRepo) RequestCount(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id].RequestCount, nil
}

func (m *memSessionRepo) FindExpiredIDs(ctx context.Context, before time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(before) {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

func (m *memSessionRepo) DeleteByID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memSessionRepo) ResetRequestCounts(ctx context.Context, now time.Time, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.IsActive && now.Before(s.ExpiresAt) && s.RequestCount > 0 {
			s.RequestCount = 0
			n++
			if n == int64(limit) {
				break
			}
		}
	}
	return n, nil
}

type memUsageRepo struct {
	mu     sync.Mutex
	counts map[string]int
}

var _ repository.DeviceUsageRepository = (*memUsageRepo)(nil)

func newMemUsageRepo() *memUsageRepo {
	return &memUsageRepo{counts: make(map[string]int)}
}

func usageKey(day time.Time, deviceKey string) string {
	return day.Format("2006-01-02") + "|" + deviceKey
}

func (m *memUsageRepo) WithTx(tx *sqlx.Tx) repository.DeviceUsageRepository { return m }

func (m *memUsageRepo) CountForDay(ctx context.Context, day time.Time, deviceKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[usageKey(day, deviceKey)], nil
}

func (m *memUsageRepo) Increment(ctx context.Context, day time.Time, deviceKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[usageKey(day, deviceKey)]++
	return nil
}

type memUserRepo struct {
	users map[string]*model.User
}

var _ repository.UserRepository = (*memUserRepo)(nil)

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*model.User)}
}

func (m *memUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.users[id], nil
}

func strptr(s string) *string {
	return &s
}
