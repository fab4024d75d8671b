package auth

import (
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("insufficient permissions")
)

// Role grants access to a class of endpoints.
type Role string

const (
	// RoleViewer may read statuses and the dependency graph.
	RoleViewer Role = "viewer"
	// RoleOperator may additionally register and stop processes.
	RoleOperator Role = "operator"
)

// Allows reports whether r covers need. Operators can do everything viewers can.
func (r Role) Allows(need Role) bool {
	switch r {
	case RoleOperator:
		return true
	case RoleViewer:
		return need == RoleViewer
	}
	return false
}

// User is a configured API account. PasswordHash is a bcrypt hash.
type User struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         Role   `mapstructure:"role"`
}

// Result is the identity attached to an authenticated request.
type Result struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Token is an issued bearer token.
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginRequest is the body of POST {base}/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
