package repositories

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/rotisserie/eris"

	"github.com/AI-Template-SDK/senso-analysis/internal/resilience"
)

var (
	// ErrNotFound is returned by single-row reads that match nothing.
	ErrNotFound = errors.New("repositories: not found")

	// ErrBatchConflict is returned when an upsert targets a row owned by another batch.
	ErrBatchConflict = errors.New("repositories: record belongs to a different analysis batch")
)

// asPQError finds a *pq.Error in err's chain or in its eris root cause.
func asPQError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr, true
	}
	if cause := eris.Cause(err); cause != nil && errors.As(cause, &pqErr) {
		return pqErr, true
	}
	return nil, false
}

// IsConstraintViolation reports integrity failures that retrying can never fix.
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBatchConflict) {
		return true
	}
	if pqErr, ok := asPQError(err); ok {
		return pqErr.Code.Class() == "23"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "different analysis batch")
}

// IsTransientStoreError reports failures a fresh transaction may succeed on:
// connection loss, serialization failures, deadlocks, admin shutdown and SQLite busy.
func IsTransientStoreError(err error) bool {
	if err == nil || IsConstraintViolation(err) {
		return false
	}
	if pqErr, ok := asPQError(err); ok {
		switch pqErr.Code {
		case "40001", "40P01":
			return true
		}
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return true
		}
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if cause := eris.Cause(err); cause != nil && cause != err && resilience.IsTransient(cause) {
		return true
	}
	return resilience.IsTransient(err)
}
