package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/computebaker/tekir-quota/internal/database"
	"github.com/computebaker/tekir-quota/internal/model"
	"github.com/computebaker/tekir-quota/internal/repository"
)

// fakeTxRunner executes the function directly; repositories used in tests
// ignore the nil transaction because their WithTx returns the fake itself.
type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

var _ database.TxRunner = fakeTxRunner{}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session

	// failNextCreate makes the next Create return a unique violation after
	// inserting concurrent, simulating a racing caller winning the insert.
	failNextCreate bool
	concurrent     *model.Session

	// stealNextIncrement makes the next conditional increment lose: the
	// stored count advances as if a competitor committed first.
	stealNextIncrement bool

	deleteErrs map[string]error
}

var _ repository.SessionRepository = (*fakeSessionRepo)(nil)

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions:   make(map[string]*model.Session),
		deleteErrs: make(map[string]error),
	}
}

func (f *fakeSessionRepo) add(s *model.Session) *model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	f.sessions[s.ID] = s
	return s
}

func (f *fakeSessionRepo) get(id string) *model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id]
}

func (f *fakeSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository {
	return f
}

func (f *fakeSessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.Token == token {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeSessionRepo) FindActiveByUserID(ctx context.Context, userID string, now time.Time) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.IsActive && s.UserID != nil && *s.UserID == userID && now.Before(s.ExpiresAt) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeSessionRepo) FindActiveAnonymousByIP(ctx context.Context, hashedIP string, now time.Time) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.IsActive && s.UserID == nil && s.HashedIP != nil && *s.HashedIP == hashedIP && now.Before(s.ExpiresAt) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	f.mu.Lock()
	if f.failNextCreate {
		f.failNextCreate = false
		if f.concurrent != nil {
			f.sessions[f.concurrent.ID] = f.concurrent
		}
		f.mu.Unlock()
		return nil, &pq.Error{Code: "23505"}
	}
	defer f.mu.Unlock()

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
	f.sessions[session.ID] = session
	copied := *session
	return &copied, nil
}

func (f *fakeSessionRepo) ExtendExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok && expiresAt.After(s.ExpiresAt) {
		s.ExpiresAt = expiresAt
	}
	return nil
}

func (f *fakeSessionRepo) SetDeviceID(ctx context.Context, id, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok && s.DeviceID == nil {
		s.DeviceID = &deviceID
	}
	return nil
}

func (f *fakeSessionRepo) AttachUser(ctx context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.UserID = &userID
	}
	return nil
}

func (f *fakeSessionRepo) Deactivate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.IsActive = false
	}
	return nil
}

func (f *fakeSessionRepo) DeactivateExpiredForUser(ctx context.Context, userID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.IsActive && s.UserID != nil && *s.UserID == userID && !now.Before(s.ExpiresAt) {
			s.IsActive = false
		}
	}
	return nil
}

func (f *fakeSessionRepo) DeactivateExpiredForIP(ctx context.Context, hashedIP string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.IsActive && s.UserID == nil && s.HashedIP != nil && *s.HashedIP == hashedIP && !now.Before(s.ExpiresAt) {
			s.IsActive = false
		}
	}
	return nil
}

func (f *fakeSessionRepo) IncrementRequestCount(ctx context.Context, id string, fromCount int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return false, nil
	}
	if f.stealNextIncrement {
		f.stealNextIncrement = false
		s.RequestCount++
		return false, nil
	}
	if s.RequestCount != fromCount {
		return false, nil
	}
	s.RequestCount++
	return true, nil
}

func (f *fakeSessionRepo) RequestCount(ctx context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id].RequestCount, nil
}

func (f *fakeSessionRepo) FindExpiredIDs(ctx context.Context, before time.Time, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, s := range f.sessions {
		if s.ExpiresAt.Before(before) {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

func (f *fakeSessionRepo) DeleteByID(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.deleteErrs[id]; ok {
		return err
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeSessionRepo) ResetRequestCounts(ctx context.Context, now time.Time, limit int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.sessions {
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

type fakeUsageRepo struct {
	mu     sync.Mutex
	counts map[string]int
}

var _ repository.DeviceUsageRepository = (*fakeUsageRepo)(nil)

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{counts: make(map[string]int)}
}

func usageKey(day time.Time, deviceKey string) string {
	return day.Format("2006-01-02") + "|" + deviceKey
}

func (f *fakeUsageRepo) set(day time.Time, deviceKey string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[usageKey(day, deviceKey)] = count
}

func (f *fakeUsageRepo) WithTx(tx *sqlx.Tx) repository.DeviceUsageRepository {
	return f
}

func (f *fakeUsageRepo) CountForDay(ctx context.Context, day time.Time, deviceKey string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[usageKey(day, deviceKey)], nil
}

func (f *fakeUsageRepo) Increment(ctx context.Context, day time.Time, deviceKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[usageKey(day, deviceKey)]++
	return nil
}

type fakeUserRepo struct {
	users map[string]*model.User
	err   error
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

func strptr(s string) *string {
	return &s
}
