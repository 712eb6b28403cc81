package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/computebaker/tekir-quota/internal/model"
)

// UserRepository is a read-only view of the portal's account store. The
// quota engine only resolves tiers from it; account writes happen elsewhere.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

type userRepo struct {
	db sqlxDB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE id = $1
	`, id)
	return HandleNotFound(&user, err)
}
