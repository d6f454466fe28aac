package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

func TestCalendarRepositoryWithinTxLocksYear(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCalendarRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM academic_years WHERE id = \\$1 FOR UPDATE").
		WithArgs("year-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status", "start_date", "end_date", "created_at", "updated_at"}).
			AddRow("year-1", "2025/2026", "ACTIVE", "2025-09-01", "2026-07-31", now, now))
	mock.ExpectExec("INSERT INTO terms").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithinTx(context.Background(), func(store CalendarStore) error {
		year, err := store.LockYear(context.Background(), "year-1")
		if err != nil {
			return err
		}
		assert.Equal(t, models.AcademicYearActive, year.Status)
		require.NotNil(t, year.StartDate)
		assert.Equal(t, "2025-09-01", year.StartDate.String())
		return store.CreateTerm(context.Background(), &models.Term{AcademicYearID: year.ID, Name: "Term 1", Status: models.TermDraft, Sequence: 1})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalendarRepositoryYearNameExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCalendarRepository(db)

	mock.ExpectQuery("SELECT 1 FROM academic_years WHERE LOWER\\(name\\) = LOWER\\(\\$1\\) AND id <> \\$2 LIMIT 1").
		WithArgs("2025/2026", "year-1").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.YearNameExists(context.Background(), "2025/2026", "year-1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalendarRepositoryCountYearReferences(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCalendarRepository(db)

	mock.ExpectQuery("SELECT").
		WithArgs("year-1").
		WillReturnRows(sqlmock.NewRows([]string{"terms", "vouchers", "admissions"}).AddRow(2, 10, 0))

	refs, err := repo.CountYearReferences(context.Background(), "year-1")
	require.NoError(t, err)
	assert.Equal(t, 12, refs.Total())
	assert.NoError(t, mock.ExpectationsWereMet())
}
