package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/computebaker/tekir-quota/internal/config"
	"github.com/computebaker/tekir-quota/internal/model"
)

func TestQuotaPolicy_DailyLimitFor(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous gets the lowest ceiling", func(t *testing.T) {
		policy := NewQuotaPolicy(newFakeUserRepo())

		assert.Equal(t, config.AnonymousDailyLimit, policy.DailyLimitFor(ctx, nil))
		assert.Equal(t, config.AnonymousDailyLimit, policy.DailyLimitFor(ctx, strptr("")))
	})

	t.Run("authenticated user without elevated role gets the middle ceiling", func(t *testing.T) {
		users := newFakeUserRepo()
		users.users["u1"] = &model.User{ID: "u1", Roles: []string{"member"}}
		policy := NewQuotaPolicy(users)

		assert.Equal(t, config.AuthenticatedDailyLimit, policy.DailyLimitFor(ctx, strptr("u1")))
	})

	t.Run("paid role gets the highest ceiling regardless of case", func(t *testing.T) {
		users := newFakeUserRepo()
		users.users["u1"] = &model.User{ID: "u1", Roles: []string{"Paid"}}
		users.users["u2"] = &model.User{ID: "u2", Roles: []string{"member", "PAID"}}
		policy := NewQuotaPolicy(users)

		assert.Equal(t, config.PaidDailyLimit, policy.DailyLimitFor(ctx, strptr("u1")))
		assert.Equal(t, config.PaidDailyLimit, policy.DailyLimitFor(ctx, strptr("u2")))
	})

	t.Run("lookup failure falls back to authenticated ceiling", func(t *testing.T) {
		users := newFakeUserRepo()
		users.err = errors.New("connection refused")
		policy := NewQuotaPolicy(users)

		assert.Equal(t, config.AuthenticatedDailyLimit, policy.DailyLimitFor(ctx, strptr("u1")))
	})

	t.Run("unknown user gets the authenticated ceiling", func(t *testing.T) {
		policy := NewQuotaPolicy(newFakeUserRepo())

		assert.Equal(t, config.AuthenticatedDailyLimit, policy.DailyLimitFor(ctx, strptr("ghost")))
	})
}
