package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

const admissionColumns = `a.id, a.student_id, a.voucher_id, a.academic_year_id, a.term_id, a.class_id, a.stream_id, a.status,
	a.created_at, a.updated_at, a.approved_at, a.approved_by, a.rejected_at, a.rejected_by`

const admissionDetailColumns = admissionColumns + `,
	s.first_name AS student_first_name, s.last_name AS student_last_name, s.index_number,
	v.voucher_number, c.name AS class_name`

const admissionDetailJoins = `admissions a
	JOIN students s ON s.id = a.student_id
	JOIN e_vouchers v ON v.id = a.voucher_id
	JOIN classes c ON c.id = a.class_id`

// AdmissionRepository persists admissions and the draft student records behind them.
type AdmissionRepository struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
	sb  squirrel.StatementBuilderType
}

// NewAdmissionRepository constructs an admission repository.
func NewAdmissionRepository(db *sqlx.DB) *AdmissionRepository {
	return &AdmissionRepository{db: db, ext: db, sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

// WithinTx runs fn inside a transaction. Voucher writes made through the tx-bound
// store's Vouchers() commit or roll back with the admission rows.
func (r *AdmissionRepository) WithinTx(ctx context.Context, fn func(AdmissionStore) error) error {
	if r.db == nil {
		return fn(r)
	}
	return withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		return fn(&AdmissionRepository{ext: tx, sb: r.sb})
	})
}

// Vouchers exposes the voucher store sharing this repository's connection or transaction.
func (r *AdmissionRepository) Vouchers() VoucherStore {
	if r.db != nil {
		return NewVoucherRepository(r.db)
	}
	return newTxVoucherRepository(r.ext)
}

// CreateStudent inserts the draft student record.
func (r *AdmissionRepository) CreateStudent(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	if student.AccountStatus == "" {
		student.AccountStatus = models.StudentAccountPending
	}

	const query = `INSERT INTO students (id, first_name, middle_name, last_name, gender, date_of_birth, nationality, address, index_number, account_status, password_hash, created_at, updated_at)
	VALUES (:id, :first_name, :middle_name, :last_name, :gender, :date_of_birth, :nationality, :address, :index_number, :account_status, :password_hash, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// CreateGuardians inserts guardian contacts for a student.
func (r *AdmissionRepository) CreateGuardians(ctx context.Context, guardians []models.Guardian) error {
	const query = `INSERT INTO guardians (id, student_id, name, relationship, phone, email, address, occupation, created_at)
	VALUES (:id, :student_id, :name, :relationship, :phone, :email, :address, :occupation, :created_at)`
	now := time.Now().UTC()
	for i := range guardians {
		if guardians[i].ID == "" {
			guardians[i].ID = uuid.NewString()
		}
		if guardians[i].CreatedAt.IsZero() {
			guardians[i].CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, r.ext, query, &guardians[i]); err != nil {
			return fmt.Errorf("create guardian: %w", err)
		}
	}
	return nil
}

// CreateMedicalRecord inserts the optional medical record.
func (r *AdmissionRepository) CreateMedicalRecord(ctx context.Context, record *models.MedicalRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO medical_records (id, student_id, blood_group, allergies, conditions, notes, created_at)
	VALUES (:id, :student_id, :blood_group, :allergies, :conditions, :notes, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, record); err != nil {
		return fmt.Errorf("create medical record: %w", err)
	}
	return nil
}

// CreateAdmission inserts the admission row. The unique voucher_id constraint rejects
// a second admission for the same voucher.
func (r *AdmissionRepository) CreateAdmission(ctx context.Context, admission *models.Admission) error {
	if admission.ID == "" {
		admission.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if admission.CreatedAt.IsZero() {
		admission.CreatedAt = now
	}
	admission.UpdatedAt = admission.CreatedAt
	if admission.Status == "" {
		admission.Status = models.AdmissionPending
	}
	const query = `INSERT INTO admissions (id, student_id, voucher_id, academic_year_id, term_id, class_id, stream_id, status, created_at, updated_at)
	VALUES (:id, :student_id, :voucher_id, :academic_year_id, :term_id, :class_id, :stream_id, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, admission); err != nil {
		return fmt.Errorf("create admission: %w", err)
	}
	return nil
}

// FindByID loads an admission with its listing labels.
func (r *AdmissionRepository) FindByID(ctx context.Context, id string) (*models.AdmissionDetail, error) {
	query := `SELECT ` + admissionDetailColumns + ` FROM ` + admissionDetailJoins + ` WHERE a.id = $1`
	var detail models.AdmissionDetail
	if err := sqlx.GetContext(ctx, r.ext, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// LockByID loads an admission and locks the row for the rest of the transaction.
func (r *AdmissionRepository) LockByID(ctx context.Context, id string) (*models.Admission, error) {
	query := `SELECT ` + admissionColumns + ` FROM admissions a WHERE a.id = $1 FOR UPDATE`
	var admission models.Admission
	if err := sqlx.GetContext(ctx, r.ext, &admission, query, id); err != nil {
		return nil, err
	}
	return &admission, nil
}

// UpdateStatus applies a review transition guarded by the expected prior status.
func (r *AdmissionRepository) UpdateStatus(ctx context.Context, params UpdateAdmissionStatusParams) error {
	var query string
	switch params.Status {
	case models.AdmissionApproved:
		query = `UPDATE admissions SET status = $2, approved_at = $4, approved_by = $5, updated_at = $4 WHERE id = $1 AND status = $3`
	case models.AdmissionRejected:
		query = `UPDATE admissions SET status = $2, rejected_at = $4, rejected_by = $5, updated_at = $4 WHERE id = $1 AND status = $3`
	default:
		return fmt.Errorf("update admission status: unsupported target %q", params.Status)
	}
	result, err := r.ext.ExecContext(ctx, query, params.ID, params.Status, params.From, params.ReviewedAt, params.ActorID)
	if err != nil {
		return fmt.Errorf("update admission status: %w", err)
	}
	return affectedOne(result, "update admission status")
}

// List returns admissions matching filter, newest first, along with the total count.
func (r *AdmissionRepository) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionDetail, int, error) {
	where := squirrel.And{}
	if filter.Status != "" {
		where = append(where, squirrel.Eq{"a.status": filter.Status})
	}
	if filter.ClassID != "" {
		where = append(where, squirrel.Eq{"a.class_id": filter.ClassID})
	}
	if filter.AcademicYearID != "" {
		where = append(where, squirrel.Eq{"a.academic_year_id": filter.AcademicYearID})
	}
	if filter.TermID != "" {
		where = append(where, squirrel.Eq{"a.term_id": filter.TermID})
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := containsPattern(search)
		where = append(where, squirrel.Or{
			squirrel.ILike{"s.first_name": pattern},
			squirrel.ILike{"s.last_name": pattern},
			squirrel.Expr("(s.first_name || ' ' || s.last_name) ILIKE ?", pattern),
			squirrel.ILike{"v.voucher_number": pattern},
		})
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query, args, err := r.sb.Select(admissionDetailColumns).
		From(admissionDetailJoins).
		Where(where).
		OrderBy("a.created_at DESC", "a.id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build admission list query: %w", err)
	}
	var admissions []models.AdmissionDetail
	if err := sqlx.SelectContext(ctx, r.ext, &admissions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list admissions: %w", err)
	}

	countQuery, countArgs, err := r.sb.Select("COUNT(*)").From(admissionDetailJoins).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build admission count query: %w", err)
	}
	var total int
	if err := sqlx.GetContext(ctx, r.ext, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count admissions: %w", err)
	}
	return admissions, total, nil
}

// FindStudent loads a student record.
func (r *AdmissionRepository) FindStudent(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, first_name, middle_name, last_name, gender, date_of_birth, nationality, address, index_number,
	account_status, password_hash, created_at, updated_at FROM students WHERE id = $1`
	var student models.Student
	if err := sqlx.GetContext(ctx, r.ext, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// AssignIndexNumber sets the index number once. A student that already has one is left untouched.
func (r *AdmissionRepository) AssignIndexNumber(ctx context.Context, studentID, indexNumber string, now time.Time) error {
	const query = `UPDATE students SET index_number = $2, updated_at = $3 WHERE id = $1 AND index_number IS NULL`
	result, err := r.ext.ExecContext(ctx, query, studentID, indexNumber, now)
	if err != nil {
		return fmt.Errorf("assign index number: %w", err)
	}
	return affectedOne(result, "assign index number")
}

// ActivateStudent enables the student's portal account.
func (r *AdmissionRepository) ActivateStudent(ctx context.Context, studentID string, now time.Time) error {
	const query = `UPDATE students SET account_status = 'ACTIVE', updated_at = $2 WHERE id = $1`
	result, err := r.ext.ExecContext(ctx, query, studentID, now)
	if err != nil {
		return fmt.Errorf("activate student: %w", err)
	}
	return affectedOne(result, "activate student")
}

// NextIndexSequence draws the next value from the index number sequence.
func (r *AdmissionRepository) NextIndexSequence(ctx context.Context) (int64, error) {
	var next int64
	if err := sqlx.GetContext(ctx, r.ext, &next, `SELECT nextval('student_index_seq')`); err != nil {
		return 0, fmt.Errorf("next index sequence: %w", err)
	}
	return next, nil
}
