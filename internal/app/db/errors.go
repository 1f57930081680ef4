package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// sqlStateUniqueViolation is the SQLSTATE of a unique constraint violation.
const sqlStateUniqueViolation = "23505"

// SQLState returns the SQLSTATE code carried by err, or "" when err did not come from PostgreSQL.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
// A journal insert retried after an ambiguous failure hits this when the first attempt did commit.
func IsUniqueViolation(err error) bool {
	return SQLState(err) == sqlStateUniqueViolation
}
