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

const voucherColumns = `id, voucher_number, pin_hash, academic_year_id, status, expires_at, reserved_at, reservation_id, used_at, revoked_at, created_at, updated_at`

// VoucherRepository persists e-vouchers.
type VoucherRepository struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
	sb  squirrel.StatementBuilderType
}

// NewVoucherRepository constructs a voucher repository.
func NewVoucherRepository(db *sqlx.DB) *VoucherRepository {
	return &VoucherRepository{db: db, ext: db, sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

func newTxVoucherRepository(ext sqlx.ExtContext) *VoucherRepository {
	return &VoucherRepository{ext: ext, sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

// WithinTx runs fn inside a read-committed transaction.
func (r *VoucherRepository) WithinTx(ctx context.Context, fn func(VoucherStore) error) error {
	if r.db == nil {
		return fn(r)
	}
	return withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		return fn(newTxVoucherRepository(tx))
	})
}

// InsertIfAbsent stores the voucher unless its number is already taken. The boolean
// reports whether a row was written.
func (r *VoucherRepository) InsertIfAbsent(ctx context.Context, voucher *models.EVoucher) (bool, error) {
	if voucher.ID == "" {
		voucher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if voucher.CreatedAt.IsZero() {
		voucher.CreatedAt = now
	}
	voucher.UpdatedAt = voucher.CreatedAt
	if voucher.Status == "" {
		voucher.Status = models.VoucherUnused
	}

	const query = `INSERT INTO e_vouchers (id, voucher_number, pin_hash, academic_year_id, status, expires_at, created_at, updated_at)
	VALUES (:id, :voucher_number, :pin_hash, :academic_year_id, :status, :expires_at, :created_at, :updated_at)
	ON CONFLICT (voucher_number) DO NOTHING`
	result, err := sqlx.NamedExecContext(ctx, r.ext, query, voucher)
	if err != nil {
		return false, fmt.Errorf("insert voucher: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert voucher rows affected: %w", err)
	}
	return rows == 1, nil
}

// FindByID loads a voucher by identifier.
func (r *VoucherRepository) FindByID(ctx context.Context, id string) (*models.EVoucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM e_vouchers WHERE id = $1`
	var voucher models.EVoucher
	if err := sqlx.GetContext(ctx, r.ext, &voucher, query, id); err != nil {
		return nil, err
	}
	return &voucher, nil
}

// FindByNumber loads a voucher by its printed number.
func (r *VoucherRepository) FindByNumber(ctx context.Context, number string) (*models.EVoucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM e_vouchers WHERE voucher_number = $1`
	var voucher models.EVoucher
	if err := sqlx.GetContext(ctx, r.ext, &voucher, query, number); err != nil {
		return nil, err
	}
	return &voucher, nil
}

// List returns a page of vouchers and the total matching count. Status filters use
// the derived status, so EXPIRED also matches overdue rows not yet swept.
func (r *VoucherRepository) List(ctx context.Context, filter models.VoucherFilter, now time.Time) ([]models.EVoucher, int, error) {
	where := squirrel.And{}
	if filter.AcademicYearID != "" {
		where = append(where, squirrel.Eq{"academic_year_id": filter.AcademicYearID})
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		where = append(where, squirrel.ILike{"voucher_number": containsPattern(search)})
	}
	switch filter.Status {
	case models.VoucherUnused, models.VoucherReserved:
		where = append(where, squirrel.Eq{"status": filter.Status}, squirrel.Gt{"expires_at": now})
	case models.VoucherExpired:
		where = append(where, squirrel.Or{
			squirrel.Eq{"status": models.VoucherExpired},
			squirrel.And{
				squirrel.Eq{"status": []models.VoucherStatus{models.VoucherUnused, models.VoucherReserved}},
				squirrel.LtOrEq{"expires_at": now},
			},
		})
	case models.VoucherUsed, models.VoucherRevoked:
		where = append(where, squirrel.Eq{"status": filter.Status})
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 50
	}

	query, args, err := r.sb.Select(voucherColumns).
		From("e_vouchers").
		Where(where).
		OrderBy("created_at DESC", "voucher_number ASC").
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build voucher list query: %w", err)
	}
	var vouchers []models.EVoucher
	if err := sqlx.SelectContext(ctx, r.ext, &vouchers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list vouchers: %w", err)
	}

	countQuery, countArgs, err := r.sb.Select("COUNT(*)").From("e_vouchers").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build voucher count query: %w", err)
	}
	var total int
	if err := sqlx.GetContext(ctx, r.ext, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count vouchers: %w", err)
	}
	return vouchers, total, nil
}

// Reserve moves an unused voucher, or one whose reservation went stale, to RESERVED
// under reservationID. Returns sql.ErrNoRows when another caller got there first.
func (r *VoucherRepository) Reserve(ctx context.Context, id, reservationID string, now, staleBefore time.Time) error {
	const query = `UPDATE e_vouchers SET status = 'RESERVED', reserved_at = $3, reservation_id = $2, updated_at = $3
	WHERE id = $1 AND expires_at > $3
	AND (status = 'UNUSED' OR (status = 'RESERVED' AND reserved_at < $4))`
	result, err := r.ext.ExecContext(ctx, query, id, reservationID, now, staleBefore)
	if err != nil {
		return fmt.Errorf("reserve voucher: %w", err)
	}
	return affectedOne(result, "reserve voucher")
}

// Consume marks the voucher USED if reservationID still holds a live reservation.
// The row stays locked until the surrounding transaction finishes.
func (r *VoucherRepository) Consume(ctx context.Context, id, reservationID string, now, staleBefore time.Time) error {
	const query = `UPDATE e_vouchers SET status = 'USED', used_at = $3, updated_at = $3
	WHERE id = $1 AND status = 'RESERVED' AND reservation_id = $2 AND reserved_at >= $4 AND expires_at > $3`
	result, err := r.ext.ExecContext(ctx, query, id, reservationID, now, staleBefore)
	if err != nil {
		return fmt.Errorf("consume voucher: %w", err)
	}
	return affectedOne(result, "consume voucher")
}

// Release returns a reserved voucher to UNUSED.
func (r *VoucherRepository) Release(ctx context.Context, id string, now time.Time) error {
	const query = `UPDATE e_vouchers SET status = 'UNUSED', reserved_at = NULL, reservation_id = NULL, updated_at = $2
	WHERE id = $1 AND status = 'RESERVED'`
	result, err := r.ext.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("release voucher: %w", err)
	}
	return affectedOne(result, "release voucher")
}

// Revoke withdraws a voucher that has not been used.
func (r *VoucherRepository) Revoke(ctx context.Context, id string, now time.Time) error {
	const query = `UPDATE e_vouchers SET status = 'REVOKED', revoked_at = $2, reserved_at = NULL, reservation_id = NULL, updated_at = $2
	WHERE id = $1 AND status IN ('UNUSED', 'RESERVED', 'EXPIRED')`
	result, err := r.ext.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("revoke voucher: %w", err)
	}
	return affectedOne(result, "revoke voucher")
}

// ReleaseStale frees every reservation taken before staleBefore on vouchers that are
// still inside their validity window.
func (r *VoucherRepository) ReleaseStale(ctx context.Context, staleBefore, now time.Time) (int64, error) {
	const query = `UPDATE e_vouchers SET status = 'UNUSED', reserved_at = NULL, reservation_id = NULL, updated_at = $2
	WHERE status = 'RESERVED' AND reserved_at < $1 AND expires_at > $2`
	result, err := r.ext.ExecContext(ctx, query, staleBefore, now)
	if err != nil {
		return 0, fmt.Errorf("release stale reservations: %w", err)
	}
	return result.RowsAffected()
}

// ExpireOverdue persists EXPIRED on unused or reserved vouchers past their deadline.
func (r *VoucherRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE e_vouchers SET status = 'EXPIRED', reserved_at = NULL, reservation_id = NULL, updated_at = $1
	WHERE status IN ('UNUSED', 'RESERVED') AND expires_at <= $1`
	result, err := r.ext.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue vouchers: %w", err)
	}
	return result.RowsAffected()
}
