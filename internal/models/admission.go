package models

import "time"

// AdmissionStatus captures review states for an admission.
type AdmissionStatus string

const (
	AdmissionPending  AdmissionStatus = "PENDING"
	AdmissionApproved AdmissionStatus = "APPROVED"
	AdmissionRejected AdmissionStatus = "REJECTED"
)

// Valid reports whether s is a known status.
func (s AdmissionStatus) Valid() bool {
	switch s {
	case AdmissionPending, AdmissionApproved, AdmissionRejected:
		return true
	}
	return false
}

// Admission binds one consumed voucher to a draft student and a placement.
type Admission struct {
	ID             string          `db:"id" json:"id"`
	StudentID      string          `db:"student_id" json:"student_id"`
	VoucherID      string          `db:"voucher_id" json:"voucher_id"`
	AcademicYearID string          `db:"academic_year_id" json:"academic_year_id"`
	TermID         string          `db:"term_id" json:"term_id"`
	ClassID        string          `db:"class_id" json:"class_id"`
	StreamID       *string         `db:"stream_id" json:"stream_id,omitempty"`
	Status         AdmissionStatus `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
	ApprovedAt     *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy     *string         `db:"approved_by" json:"approved_by,omitempty"`
	RejectedAt     *time.Time      `db:"rejected_at" json:"rejected_at,omitempty"`
	RejectedBy     *string         `db:"rejected_by" json:"rejected_by,omitempty"`
}

// AdmissionDetail enriches an admission with student and voucher labels for listings.
type AdmissionDetail struct {
	Admission
	StudentFirstName string  `db:"student_first_name" json:"student_first_name"`
	StudentLastName  string  `db:"student_last_name" json:"student_last_name"`
	IndexNumber      *string `db:"index_number" json:"index_number,omitempty"`
	VoucherNumber    string  `db:"voucher_number" json:"voucher_number"`
	ClassName        string  `db:"class_name" json:"class_name"`
}

// AdmissionFilter constrains admission listing; all provided fields are ANDed.
type AdmissionFilter struct {
	Status         AdmissionStatus
	ClassID        string
	AcademicYearID string
	TermID         string
	Search         string
	Limit          int
	Offset         int
}
