package models

import "time"

// VoucherStatus is the stored or derived state of an e-voucher.
type VoucherStatus string

const (
	VoucherUnused   VoucherStatus = "UNUSED"
	VoucherReserved VoucherStatus = "RESERVED"
	VoucherUsed     VoucherStatus = "USED"
	VoucherExpired  VoucherStatus = "EXPIRED"
	VoucherRevoked  VoucherStatus = "REVOKED"
)

// VerifyReason is the closed set of verification failure reasons.
type VerifyReason string

const (
	ReasonNotFound   VerifyReason = "NotFound"
	ReasonInvalidPIN VerifyReason = "InvalidPIN"
	ReasonExpired    VerifyReason = "Expired"
	ReasonUsed       VerifyReason = "Used"
	ReasonRevoked    VerifyReason = "Revoked"
	ReasonReserved   VerifyReason = "Reserved"
)

// EVoucher is a single-use admission access credential scoped to an academic year.
type EVoucher struct {
	ID             string        `db:"id" json:"id"`
	VoucherNumber  string        `db:"voucher_number" json:"voucher_number"`
	PINHash        string        `db:"pin_hash" json:"-"`
	AcademicYearID string        `db:"academic_year_id" json:"academic_year_id"`
	Status         VoucherStatus `db:"status" json:"status"`
	ExpiresAt      time.Time     `db:"expires_at" json:"expires_at"`
	ReservedAt     *time.Time    `db:"reserved_at" json:"reserved_at,omitempty"`
	ReservationID  *string       `db:"reservation_id" json:"-"`
	UsedAt         *time.Time    `db:"used_at" json:"used_at,omitempty"`
	RevokedAt      *time.Time    `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// EffectiveStatus derives the read-time status: anything not yet Used or Revoked
// becomes Expired once the absolute deadline has passed.
func (v *EVoucher) EffectiveStatus(now time.Time) VoucherStatus {
	switch v.Status {
	case VoucherUsed, VoucherRevoked, VoucherExpired:
		return v.Status
	}
	if !now.Before(v.ExpiresAt) {
		return VoucherExpired
	}
	return v.Status
}

// ReservationLive reports whether the reservation is still inside its TTL. A
// reservation only goes stale strictly after the TTL has elapsed.
func (v *EVoucher) ReservationLive(now time.Time, ttl time.Duration) bool {
	if v.Status != VoucherReserved || v.ReservedAt == nil {
		return false
	}
	return !now.After(v.ReservedAt.Add(ttl))
}

// IssuedVoucher pairs a freshly generated voucher with its plaintext PIN.
// It only ever exists in the generation response.
type IssuedVoucher struct {
	EVoucher
	PIN string `json:"pin"`
}

// VoucherFilter constrains voucher listing.
type VoucherFilter struct {
	AcademicYearID string
	Status         VoucherStatus
	Search         string
	Page           int
	PageSize       int
}
