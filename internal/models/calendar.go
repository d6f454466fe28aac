package models

import "time"

// AcademicYearStatus captures the lifecycle of an academic year.
type AcademicYearStatus string

const (
	AcademicYearDraft    AcademicYearStatus = "DRAFT"
	AcademicYearActive   AcademicYearStatus = "ACTIVE"
	AcademicYearArchived AcademicYearStatus = "ARCHIVED"
)

// Valid reports whether s is a known status.
func (s AcademicYearStatus) Valid() bool {
	switch s {
	case AcademicYearDraft, AcademicYearActive, AcademicYearArchived:
		return true
	}
	return false
}

// AcademicYear is the top-level calendar scope owning terms, vouchers and admissions.
type AcademicYear struct {
	ID        string             `db:"id" json:"id"`
	Name      string             `db:"name" json:"name"`
	Status    AcademicYearStatus `db:"status" json:"status"`
	StartDate *Date              `db:"start_date" json:"start_date,omitempty"`
	EndDate   *Date              `db:"end_date" json:"end_date,omitempty"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// TermStatus captures the lifecycle of a term.
type TermStatus string

const (
	TermDraft  TermStatus = "DRAFT"
	TermActive TermStatus = "ACTIVE"
	TermClosed TermStatus = "CLOSED"
)

// Valid reports whether s is a known status.
func (s TermStatus) Valid() bool {
	switch s {
	case TermDraft, TermActive, TermClosed:
		return true
	}
	return false
}

// Term is an ordered teaching period owned by an academic year.
type Term struct {
	ID              string     `db:"id" json:"id"`
	AcademicYearID  string     `db:"academic_year_id" json:"academic_year_id"`
	Name            string     `db:"name" json:"name"`
	Status          TermStatus `db:"status" json:"status"`
	Sequence        int        `db:"sequence" json:"sequence"`
	StartDate       *Date      `db:"start_date" json:"start_date,omitempty"`
	EndDate         *Date      `db:"end_date" json:"end_date,omitempty"`
	ResultOpenDate  *Date      `db:"result_open_date" json:"result_open_date,omitempty"`
	ResultCloseDate *Date      `db:"result_close_date" json:"result_close_date,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// YearReferences counts the records that pin an academic year in place.
type YearReferences struct {
	Terms      int `db:"terms" json:"terms"`
	Vouchers   int `db:"vouchers" json:"vouchers"`
	Admissions int `db:"admissions" json:"admissions"`
}

// Total sums all references.
func (r YearReferences) Total() int {
	return r.Terms + r.Vouchers + r.Admissions
}
