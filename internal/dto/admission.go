package dto

import "github.com/noah-isme/sma-admission-api/internal/models"

// StudentPayload carries applicant details.
type StudentPayload struct {
	FirstName   string       `json:"first_name"`
	MiddleName  string       `json:"middle_name"`
	LastName    string       `json:"last_name"`
	Gender      string       `json:"gender"`
	DateOfBirth *models.Date `json:"date_of_birth"`
	Nationality string       `json:"nationality"`
	Address     string       `json:"address"`
}

// GuardianPayload carries one guardian contact.
type GuardianPayload struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Address      string `json:"address"`
	Occupation   string `json:"occupation"`
}

// MedicalPayload carries optional health details.
type MedicalPayload struct {
	BloodGroup string `json:"blood_group"`
	Allergies  string `json:"allergies"`
	Conditions string `json:"conditions"`
	Notes      string `json:"notes"`
}

// PlacementPayload is the (year, term, class, stream) the applicant is admitted into.
type PlacementPayload struct {
	AcademicYearID string `json:"academic_year_id"`
	TermID         string `json:"term_id"`
	ClassID        string `json:"class_id"`
	StreamID       string `json:"stream_id"`
}

// SubmitAdmissionRequest is the full admission form bound to a session token.
type SubmitAdmissionRequest struct {
	SessionToken string            `json:"voucher_session_token"`
	Student      StudentPayload    `json:"student"`
	Guardians    []GuardianPayload `json:"guardians"`
	Medical      *MedicalPayload   `json:"medical"`
	Placement    PlacementPayload  `json:"placement"`
}

// AdmissionReceipt is returned once by a successful submission.
type AdmissionReceipt struct {
	models.Admission
	TemporaryPassword string `json:"temporary_password"`
}

// AdmissionQuery holds list filters parsed from the query string.
type AdmissionQuery struct {
	Status         models.AdmissionStatus
	ClassID        string
	AcademicYearID string
	TermID         string
	Search         string
	Page           int
	PageSize       int
}
