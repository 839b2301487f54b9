package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the available newsroom roles.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleEditor     UserRole = "EDITOR"
	RoleJournalist UserRole = "JOURNALIST"
)

// User represents an application user stored in the users collection.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FullName     string     `json:"full_name"`
	SignOff      string     `json:"sign_off"`
	Role         UserRole   `json:"role"`
	Active       bool       `json:"active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// JWTClaims are the access-token claims. The session id identifies one
// editing session of a user and feeds the pessimistic lock manager.
type JWTClaims struct {
	UserID    string   `json:"uid"`
	SessionID string   `json:"sid"`
	Role      UserRole `json:"role"`
	SignOff   string   `json:"sign_off,omitempty"`
	jwt.RegisteredClaims
}

// LoginRequest is the credentials payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginResponse returns issued tokens.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionID    string    `json:"session_id"`
	User         *User     `json:"user"`
}
