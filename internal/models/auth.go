package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the staff roles recognised by RBAC.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleTeacher    UserRole = "TEACHER"
	RoleStudent    UserRole = "STUDENT"
)

// JWTClaims represents the payload of staff access tokens issued by the login service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// AdmissionSessionClaims is the payload of an admission session token.
// The registered ID carries the reservation id the voucher was reserved under.
type AdmissionSessionClaims struct {
	VoucherID      string `json:"voucher_id"`
	AcademicYearID string `json:"academic_year_id"`
	jwt.RegisteredClaims
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
