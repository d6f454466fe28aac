package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

const yearColumns = `id, name, status, start_date, end_date, created_at, updated_at`

// CalendarRepository handles persistence for academic years and their terms.
type CalendarRepository struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
}

// NewCalendarRepository instantiates a calendar repository.
func NewCalendarRepository(db *sqlx.DB) *CalendarRepository {
	return &CalendarRepository{db: db, ext: db}
}

// WithinTx runs fn against a serializable transaction. Nested calls reuse the open tx.
func (r *CalendarRepository) WithinTx(ctx context.Context, fn func(CalendarStore) error) error {
	if r.db == nil {
		return fn(r)
	}
	return withTx(ctx, r.db, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(tx *sqlx.Tx) error {
		return fn(&CalendarRepository{ext: tx})
	})
}

// ListYears returns every academic year, newest first.
func (r *CalendarRepository) ListYears(ctx context.Context) ([]models.AcademicYear, error) {
	query := `SELECT ` + yearColumns + ` FROM academic_years ORDER BY start_date DESC NULLS LAST, name DESC`
	var years []models.AcademicYear
	if err := sqlx.SelectContext(ctx, r.ext, &years, query); err != nil {
		return nil, fmt.Errorf("list academic years: %w", err)
	}
	return years, nil
}

// FindYearByID loads an academic year by identifier.
func (r *CalendarRepository) FindYearByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	query := `SELECT ` + yearColumns + ` FROM academic_years WHERE id = $1`
	var year models.AcademicYear
	if err := sqlx.GetContext(ctx, r.ext, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// LockYear loads an academic year and holds its row lock until the transaction ends,
// serialising writes to the year's terms.
func (r *CalendarRepository) LockYear(ctx context.Context, id string) (*models.AcademicYear, error) {
	query := `SELECT ` + yearColumns + ` FROM academic_years WHERE id = $1 FOR UPDATE`
	var year models.AcademicYear
	if err := sqlx.GetContext(ctx, r.ext, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// FindActiveYears returns active years other than excludeID.
func (r *CalendarRepository) FindActiveYears(ctx context.Context, excludeID string) ([]models.AcademicYear, error) {
	query := `SELECT ` + yearColumns + ` FROM academic_years WHERE status = $1`
	args := []interface{}{models.AcademicYearActive}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var years []models.AcademicYear
	if err := sqlx.SelectContext(ctx, r.ext, &years, query, args...); err != nil {
		return nil, fmt.Errorf("find active academic years: %w", err)
	}
	return years, nil
}

// YearNameExists checks name uniqueness case-insensitively.
func (r *CalendarRepository) YearNameExists(ctx context.Context, name, excludeID string) (bool, error) {
	query := "SELECT 1 FROM academic_years WHERE LOWER(name) = LOWER($1)"
	args := []interface{}{name}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := sqlx.GetContext(ctx, r.ext, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check academic year name: %w", err)
	}
	return true, nil
}

// CreateYear inserts a new academic year.
func (r *CalendarRepository) CreateYear(ctx context.Context, year *models.AcademicYear) error {
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if year.CreatedAt.IsZero() {
		year.CreatedAt = now
	}
	year.UpdatedAt = now

	const query = `INSERT INTO academic_years (id, name, status, start_date, end_date, created_at, updated_at) VALUES (:id, :name, :status, :start_date, :end_date, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, year); err != nil {
		return fmt.Errorf("create academic year: %w", err)
	}
	return nil
}

// UpdateYear persists the mutable fields of an academic year.
func (r *CalendarRepository) UpdateYear(ctx context.Context, year *models.AcademicYear) error {
	year.UpdatedAt = time.Now().UTC()
	const query = `UPDATE academic_years SET name = :name, status = :status, start_date = :start_date, end_date = :end_date, updated_at = :updated_at WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.ext, query, year)
	if err != nil {
		return fmt.Errorf("update academic year: %w", err)
	}
	return affectedOne(result, "update academic year")
}

// DeleteYear removes an unreferenced academic year.
func (r *CalendarRepository) DeleteYear(ctx context.Context, id string) error {
	result, err := r.ext.ExecContext(ctx, `DELETE FROM academic_years WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete academic year: %w", err)
	}
	return affectedOne(result, "delete academic year")
}

// CountYearReferences counts terms, vouchers and admissions owned by a year.
func (r *CalendarRepository) CountYearReferences(ctx context.Context, id string) (models.YearReferences, error) {
	const query = `SELECT
	(SELECT COUNT(*) FROM terms WHERE academic_year_id = $1) AS terms,
	(SELECT COUNT(*) FROM e_vouchers WHERE academic_year_id = $1) AS vouchers,
	(SELECT COUNT(*) FROM admissions WHERE academic_year_id = $1) AS admissions`
	var refs models.YearReferences
	if err := sqlx.GetContext(ctx, r.ext, &refs, query, id); err != nil {
		return models.YearReferences{}, fmt.Errorf("count academic year references: %w", err)
	}
	return refs, nil
}
