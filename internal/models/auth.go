package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles accepted on protected routes.
type UserRole string

const (
	RoleAdmin  UserRole = "ADMIN"
	RoleCoach  UserRole = "COACH"
	RoleViewer UserRole = "VIEWER"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleCoach, RoleViewer:
		return true
	}
	return false
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email,omitempty"`
	FullName string   `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}
