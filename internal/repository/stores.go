package repository

import (
	"context"
	"time"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

// CalendarStore persists academic years and terms. WithinTx hands fn a store bound to a
// serializable transaction so invariant checks and the write see one snapshot.
type CalendarStore interface {
	WithinTx(ctx context.Context, fn func(CalendarStore) error) error

	ListYears(ctx context.Context) ([]models.AcademicYear, error)
	FindYearByID(ctx context.Context, id string) (*models.AcademicYear, error)
	LockYear(ctx context.Context, id string) (*models.AcademicYear, error)
	FindActiveYears(ctx context.Context, excludeID string) ([]models.AcademicYear, error)
	YearNameExists(ctx context.Context, name, excludeID string) (bool, error)
	CreateYear(ctx context.Context, year *models.AcademicYear) error
	UpdateYear(ctx context.Context, year *models.AcademicYear) error
	DeleteYear(ctx context.Context, id string) error
	CountYearReferences(ctx context.Context, id string) (models.YearReferences, error)

	ListTerms(ctx context.Context, yearID string) ([]models.Term, error)
	FindTermByID(ctx context.Context, id string) (*models.Term, error)
	FindActiveTerms(ctx context.Context, excludeID string) ([]models.Term, error)
	CreateTerm(ctx context.Context, term *models.Term) error
	UpdateTerm(ctx context.Context, term *models.Term) error
	DeleteTerm(ctx context.Context, id string) error
	CountTermAdmissions(ctx context.Context, id string) (int, error)
}

// VoucherStore persists e-vouchers. Every status change is a guarded UPDATE that
// returns sql.ErrNoRows when the expected prior state no longer holds.
type VoucherStore interface {
	WithinTx(ctx context.Context, fn func(VoucherStore) error) error

	InsertIfAbsent(ctx context.Context, voucher *models.EVoucher) (bool, error)
	FindByID(ctx context.Context, id string) (*models.EVoucher, error)
	FindByNumber(ctx context.Context, number string) (*models.EVoucher, error)
	List(ctx context.Context, filter models.VoucherFilter, now time.Time) ([]models.EVoucher, int, error)

	Reserve(ctx context.Context, id, reservationID string, now, staleBefore time.Time) error
	Consume(ctx context.Context, id, reservationID string, now, staleBefore time.Time) error
	Release(ctx context.Context, id string, now time.Time) error
	Revoke(ctx context.Context, id string, now time.Time) error
	ReleaseStale(ctx context.Context, staleBefore, now time.Time) (int64, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// AdmissionStore persists admissions together with the draft student records they create.
type AdmissionStore interface {
	WithinTx(ctx context.Context, fn func(AdmissionStore) error) error
	Vouchers() VoucherStore

	CreateStudent(ctx context.Context, student *models.Student) error
	CreateGuardians(ctx context.Context, guardians []models.Guardian) error
	CreateMedicalRecord(ctx context.Context, record *models.MedicalRecord) error
	CreateAdmission(ctx context.Context, admission *models.Admission) error

	FindByID(ctx context.Context, id string) (*models.AdmissionDetail, error)
	LockByID(ctx context.Context, id string) (*models.Admission, error)
	UpdateStatus(ctx context.Context, params UpdateAdmissionStatusParams) error
	List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionDetail, int, error)

	FindStudent(ctx context.Context, id string) (*models.Student, error)
	AssignIndexNumber(ctx context.Context, studentID, indexNumber string, now time.Time) error
	ActivateStudent(ctx context.Context, studentID string, now time.Time) error
	NextIndexSequence(ctx context.Context) (int64, error)
}

// UpdateAdmissionStatusParams groups the columns touched by review transitions.
type UpdateAdmissionStatusParams struct {
	ID         string
	From       models.AdmissionStatus
	Status     models.AdmissionStatus
	ActorID    *string
	ReviewedAt time.Time
}
