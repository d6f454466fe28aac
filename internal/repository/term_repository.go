package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

const termColumns = `id, academic_year_id, name, status, sequence, start_date, end_date, result_open_date, result_close_date, created_at, updated_at`

// ListTerms returns the terms of a year in display order.
func (r *CalendarRepository) ListTerms(ctx context.Context, yearID string) ([]models.Term, error) {
	query := `SELECT ` + termColumns + ` FROM terms WHERE academic_year_id = $1 ORDER BY sequence ASC, start_date ASC NULLS LAST`
	var terms []models.Term
	if err := sqlx.SelectContext(ctx, r.ext, &terms, query, yearID); err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	return terms, nil
}

// FindTermByID loads a term by identifier.
func (r *CalendarRepository) FindTermByID(ctx context.Context, id string) (*models.Term, error) {
	query := `SELECT ` + termColumns + ` FROM terms WHERE id = $1`
	var term models.Term
	if err := sqlx.GetContext(ctx, r.ext, &term, query, id); err != nil {
		return nil, err
	}
	return &term, nil
}

// FindActiveTerms returns active terms across all years, excluding excludeID.
func (r *CalendarRepository) FindActiveTerms(ctx context.Context, excludeID string) ([]models.Term, error) {
	query := `SELECT ` + termColumns + ` FROM terms WHERE status = $1`
	args := []interface{}{models.TermActive}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var terms []models.Term
	if err := sqlx.SelectContext(ctx, r.ext, &terms, query, args...); err != nil {
		return nil, fmt.Errorf("find active terms: %w", err)
	}
	return terms, nil
}

// CreateTerm inserts a new term record.
func (r *CalendarRepository) CreateTerm(ctx context.Context, term *models.Term) error {
	if term.ID == "" {
		term.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if term.CreatedAt.IsZero() {
		term.CreatedAt = now
	}
	term.UpdatedAt = now

	const query = `INSERT INTO terms (id, academic_year_id, name, status, sequence, start_date, end_date, result_open_date, result_close_date, created_at, updated_at)
	VALUES (:id, :academic_year_id, :name, :status, :sequence, :start_date, :end_date, :result_open_date, :result_close_date, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, term); err != nil {
		return fmt.Errorf("create term: %w", err)
	}
	return nil
}

// UpdateTerm modifies an existing term.
func (r *CalendarRepository) UpdateTerm(ctx context.Context, term *models.Term) error {
	term.UpdatedAt = time.Now().UTC()
	const query = `UPDATE terms SET name = :name, status = :status, sequence = :sequence, start_date = :start_date, end_date = :end_date,
	result_open_date = :result_open_date, result_close_date = :result_close_date, updated_at = :updated_at WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.ext, query, term)
	if err != nil {
		return fmt.Errorf("update term: %w", err)
	}
	return affectedOne(result, "update term")
}

// DeleteTerm removes a term permanently.
func (r *CalendarRepository) DeleteTerm(ctx context.Context, id string) error {
	result, err := r.ext.ExecContext(ctx, `DELETE FROM terms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete term: %w", err)
	}
	return affectedOne(result, "delete term")
}

// CountTermAdmissions returns the number of admissions placed into the term.
func (r *CalendarRepository) CountTermAdmissions(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM admissions WHERE term_id = $1`
	var count int
	if err := sqlx.GetContext(ctx, r.ext, &count, query, id); err != nil {
		return 0, fmt.Errorf("count term admissions: %w", err)
	}
	return count, nil
}
