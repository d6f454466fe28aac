package models

import "time"

// StudentAccountStatus tracks whether the student portal account can sign in.
type StudentAccountStatus string

const (
	StudentAccountPending StudentAccountStatus = "PENDING"
	StudentAccountActive  StudentAccountStatus = "ACTIVE"
)

// Student is the learner record created as a draft by an admission submission.
type Student struct {
	ID            string               `db:"id" json:"id"`
	FirstName     string               `db:"first_name" json:"first_name"`
	MiddleName    *string              `db:"middle_name" json:"middle_name,omitempty"`
	LastName      string               `db:"last_name" json:"last_name"`
	Gender        string               `db:"gender" json:"gender"`
	DateOfBirth   Date                 `db:"date_of_birth" json:"date_of_birth"`
	Nationality   *string              `db:"nationality" json:"nationality,omitempty"`
	Address       *string              `db:"address" json:"address,omitempty"`
	IndexNumber   *string              `db:"index_number" json:"index_number,omitempty"`
	AccountStatus StudentAccountStatus `db:"account_status" json:"account_status"`
	PasswordHash  string               `db:"password_hash" json:"-"`
	CreatedAt     time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time            `db:"updated_at" json:"updated_at"`
}

// FullName joins the student's names.
func (s *Student) FullName() string {
	if s.MiddleName != nil && *s.MiddleName != "" {
		return s.FirstName + " " + *s.MiddleName + " " + s.LastName
	}
	return s.FirstName + " " + s.LastName
}

// Guardian is a parent or guardian contact attached to a student.
type Guardian struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Name         string    `db:"name" json:"name"`
	Relationship string    `db:"relationship" json:"relationship"`
	Phone        string    `db:"phone" json:"phone"`
	Email        *string   `db:"email" json:"email,omitempty"`
	Address      string    `db:"address" json:"address"`
	Occupation   *string   `db:"occupation" json:"occupation,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// MedicalRecord holds optional health details captured at admission.
type MedicalRecord struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	BloodGroup *string   `db:"blood_group" json:"blood_group,omitempty"`
	Allergies  *string   `db:"allergies" json:"allergies,omitempty"`
	Conditions *string   `db:"conditions" json:"conditions,omitempty"`
	Notes      *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
