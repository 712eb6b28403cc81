package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/computebaker/tekir-quota/internal/config"
	"github.com/computebaker/tekir-quota/internal/repository"
)

// PaidRole is the elevated role granting the highest daily ceiling.
// Matching is case-insensitive.
const PaidRole = "paid"

// QuotaPolicy maps a session owner to a daily request ceiling. The same
// value doubles as the device-level daily cap; the device cap is never
// configured independently.
type QuotaPolicy struct {
	users repository.UserRepository
}

func NewQuotaPolicy(users repository.UserRepository) *QuotaPolicy {
	return &QuotaPolicy{users: users}
}

// DailyLimitFor resolves the ceiling for an optional user reference. A
// failed account lookup falls back to the authenticated tier instead of
// propagating the error: enforcement keeps working when the account store
// is briefly unreadable.
func (p *QuotaPolicy) DailyLimitFor(ctx context.Context, userID *string) int {
	if userID == nil || *userID == "" {
		return config.AnonymousDailyLimit
	}

	user, err := p.users.FindByID(ctx, *userID)
	if err != nil {
		log.Warn().Err(err).Str("userId", *userID).Msg("tier lookup failed, using authenticated limit")
		return config.AuthenticatedDailyLimit
	}
	if user == nil {
		return config.AuthenticatedDailyLimit
	}
	if user.HasRole(PaidRole) {
		return config.PaidDailyLimit
	}
	return config.AuthenticatedDailyLimit
}
