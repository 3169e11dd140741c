package model

import "time"

// User represents a user in the database.
// PasswordHash is only populated by credential lookups.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public returns the view of the user that is safe to hand to API callers.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// PublicUser represents user data safe for API responses. It has no secret
// fields, so it cannot leak one.
type PublicUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	FullName string `json:"fullName" validate:"max=100"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is the body of every successful register, login and
// check-status call: the public user fields plus the session token.
type AuthResponse struct {
	PublicUser
	Token string `json:"token"`
}

// Identity is what the auth guard establishes from a verified session token.
type Identity struct {
	UserID    string
	TokenID   string
	ExpiresAt time.Time
}
