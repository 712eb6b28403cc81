package service

import (
	"context"

	"github.com/computebaker/tekir-quota/internal/audit"
	apperrors "github.com/computebaker/tekir-quota/internal/errors"
	"github.com/computebaker/tekir-quota/internal/util"
)

// AdminService gates manual sweep invocations behind operator credentials.
// The unattended janitor calls the Sweeper directly with identical sweep
// semantics; only the authorization check differs.
type AdminService struct {
	sweeper           *Sweeper
	adminPasswordHash string
}

func NewAdminService(sweeper *Sweeper, adminPasswordHash string) *AdminService {
	return &AdminService{
		sweeper:           sweeper,
		adminPasswordHash: adminPasswordHash,
	}
}

func (s *AdminService) authorize(ctx context.Context, password string) error {
	if s.adminPasswordHash == "" || !util.CheckPasswordHash(password, s.adminPasswordHash) {
		audit.Log(ctx, audit.Event{Type: audit.EventAdminAuthFailure})
		return apperrors.Unauthorized("invalid admin credentials")
	}
	return nil
}

func (s *AdminService) SweepExpired(ctx context.Context, password string) (*SweepResult, error) {
	if err := s.authorize(ctx, password); err != nil {
		return nil, err
	}
	result, err := s.sweeper.SweepExpired(ctx)
	if err != nil {
		return nil, err
	}
	audit.Log(ctx, audit.Event{
		Type:    audit.EventSweepExpired,
		Details: map[string]interface{}{"processed": result.Processed, "hasMore": result.HasMore},
	})
	return result, nil
}

func (s *AdminService) ResetDailyCounts(ctx context.Context, password string) (*SweepResult, error) {
	if err := s.authorize(ctx, password); err != nil {
		return nil, err
	}
	result, err := s.sweeper.ResetDailyCounts(ctx)
	if err != nil {
		return nil, err
	}
	audit.Log(ctx, audit.Event{
		Type:    audit.EventSweepReset,
		Details: map[string]interface{}{"processed": result.Processed, "hasMore": result.HasMore},
	})
	return result, nil
}
