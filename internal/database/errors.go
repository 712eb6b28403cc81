package database

import (
	"errors"

	"github.com/lib/pq"
)

// Postgres error codes relevant to optimistic session handling.
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
)

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation. The session issuer treats this as "a concurrent caller created
// the canonical row first" and requeries instead of failing.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return false
}

// IsSerializationFailure reports whether err is a serialization abort from
// a concurrently committed transaction.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqSerializationFailure
	}
	return false
}
