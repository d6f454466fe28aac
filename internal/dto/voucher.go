package dto

import (
	"time"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

// GenerateVouchersRequest creates a batch of vouchers sharing one expiry.
type GenerateVouchersRequest struct {
	AcademicYearID string    `json:"academic_year_id" validate:"required"`
	Count          int       `json:"count" validate:"required,min=1"`
	ExpiresAt      time.Time `json:"expires_at" validate:"required"`
}

// VerifyVoucherRequest is the public verification payload.
type VerifyVoucherRequest struct {
	VoucherNumber string `json:"voucher_number" validate:"required"`
	PIN           string `json:"pin" validate:"required"`
}

// VerifyVoucherResponse reports the outcome of a verification attempt.
type VerifyVoucherResponse struct {
	Valid          bool                `json:"valid"`
	SessionToken   string              `json:"voucher_session_token,omitempty"`
	Reason         models.VerifyReason `json:"reason,omitempty"`
	AcademicYearID string              `json:"academic_year_id,omitempty"`
	ExpiresAt      *time.Time          `json:"expires_at,omitempty"`
}

// SessionReason explains why an admission session is no longer usable.
type SessionReason string

const (
	SessionInvalidToken SessionReason = "InvalidToken"
	SessionExpired      SessionReason = "Expired"
	SessionNotReserved  SessionReason = "VoucherNotReserved"
)

// SessionCheckResponse answers check-session.
type SessionCheckResponse struct {
	Valid          bool          `json:"valid"`
	Reason         SessionReason `json:"reason,omitempty"`
	AcademicYearID string        `json:"academic_year_id,omitempty"`
	ExpiresAt      *time.Time    `json:"expires_at,omitempty"`
}

// CleanupResult summarises a reaper sweep.
type CleanupResult struct {
	ReleasedCount int64 `json:"releasedCount"`
	ExpiredCount  int64 `json:"expiredCount"`
}
