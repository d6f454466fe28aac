package repository

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/lib/pq"
)

const (
	pgUniqueViolation      pq.ErrorCode = "23505"
	pgSerializationFailure pq.ErrorCode = "40001"
	pgDeadlockDetected     pq.ErrorCode = "40P01"
	pgAdminShutdown        pq.ErrorCode = "57P01"
)

// Constraint names declared in migrations/0001_admission_core.sql.
const (
	ConstraintSingleActiveYear = "academic_years_single_active"
	ConstraintSingleActiveTerm = "terms_single_active"
	ConstraintYearName         = "academic_years_name_key"
	ConstraintAdmissionVoucher = "admissions_voucher_id_key"
	ConstraintStudentIndex     = "students_index_number_key"
)

// IsUniqueViolation reports whether err is a PostgreSQL unique violation, optionally
// restricted to the given constraint names.
func IsUniqueViolation(err error, constraints ...string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pgUniqueViolation {
		return false
	}
	if len(constraints) == 0 {
		return true
	}
	for _, name := range constraints {
		if pqErr.Constraint == name {
			return true
		}
	}
	return false
}

// IsTransient reports failures that are safe for the caller to retry: serialization
// conflicts, deadlocks, dropped connections and deadlines.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgAdminShutdown:
			return true
		}
		return pqErr.Code.Class() == "08"
	}
	return false
}
