package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation     = "23505"
	codeInvalidTextRepr     = "22P02"
	constraintDiscountCode  = "discounts_code_key"
	constraintActivePerUser = "discounts_one_active_per_user"
)

func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// isInvalidID reports a malformed UUID parameter; callers treat it as not found.
func isInvalidID(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == codeInvalidTextRepr
}
