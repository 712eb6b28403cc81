package model

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// User is the read-only view of an account consumed for tier resolution.
// Account management itself lives in the portal layer, not here.
type User struct {
	ID        string         `db:"id" json:"id"`
	Email     string         `db:"email" json:"email"`
	Roles     pq.StringArray `db:"roles" json:"roles"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time      `db:"updated_at" json:"updatedAt"`
}

// HasRole reports whether the user holds the given role, case-insensitively.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
