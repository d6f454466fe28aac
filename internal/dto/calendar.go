package dto

import "github.com/noah-isme/sma-admission-api/internal/models"

// CreateYearRequest describes a new academic year.
type CreateYearRequest struct {
	Name      string                    `json:"name" validate:"required,max=64"`
	Status    models.AcademicYearStatus `json:"status" validate:"omitempty,oneof=DRAFT ACTIVE ARCHIVED"`
	StartDate *models.Date              `json:"start_date"`
	EndDate   *models.Date              `json:"end_date"`
}

// UpdateYearRequest patches an academic year; nil fields keep their stored value.
// ClearDates removes both dates.
type UpdateYearRequest struct {
	Name       *string                    `json:"name" validate:"omitempty,max=64"`
	Status     *models.AcademicYearStatus `json:"status" validate:"omitempty,oneof=DRAFT ACTIVE ARCHIVED"`
	StartDate  *models.Date               `json:"start_date"`
	EndDate    *models.Date               `json:"end_date"`
	ClearDates bool                       `json:"clear_dates"`
}

// CreateTermRequest describes a new term inside an academic year.
type CreateTermRequest struct {
	Name            string            `json:"name" validate:"required,max=64"`
	Status          models.TermStatus `json:"status" validate:"omitempty,oneof=DRAFT ACTIVE CLOSED"`
	Sequence        int               `json:"sequence" validate:"required,gt=0"`
	StartDate       *models.Date      `json:"start_date"`
	EndDate         *models.Date      `json:"end_date"`
	ResultOpenDate  *models.Date      `json:"result_open_date"`
	ResultCloseDate *models.Date      `json:"result_close_date"`
}

// UpdateTermRequest patches a term; nil fields keep their stored value.
type UpdateTermRequest struct {
	Name            *string            `json:"name" validate:"omitempty,max=64"`
	Status          *models.TermStatus `json:"status" validate:"omitempty,oneof=DRAFT ACTIVE CLOSED"`
	Sequence        *int               `json:"sequence" validate:"omitempty,gt=0"`
	StartDate       *models.Date       `json:"start_date"`
	EndDate         *models.Date       `json:"end_date"`
	ResultOpenDate  *models.Date       `json:"result_open_date"`
	ResultCloseDate *models.Date       `json:"result_close_date"`
}

// ViolationReport is the dry-run answer: would this write be accepted?
type ViolationReport struct {
	OK         bool     `json:"ok"`
	Violations []string `json:"violations"`
}

// PlacementOptions lists what a verified applicant may choose for a given year.
type PlacementOptions struct {
	AcademicYear models.AcademicYear       `json:"academic_year"`
	Terms        []models.Term             `json:"terms"`
	Classes      []models.ClassWithStreams `json:"classes"`
}
