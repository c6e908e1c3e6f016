package pkg

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// https://www.postgresql.org/docs/current/errcodes-appendix.html
const pgCodeStringDataRightTruncation = "22001"

// IsStringDataRightTruncation checks if a value was too long for its column
func IsStringDataRightTruncation(err error) bool {
	return pgErrorCode(err) == pgCodeStringDataRightTruncation
}

// pgErrorCode extracts the SQLSTATE code from both pgx and lib/pq errors.
func pgErrorCode(err error) string {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
