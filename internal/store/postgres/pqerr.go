package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// pqCode extracts the Postgres SQLSTATE code from err, used to translate
// unique-constraint violations into Conflict errors rather than generic
// TaskFailure ones, per spec.md §5's "translate to EXISTING_IN_PROGRESS".
func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
