package auth

import (
	"time"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
)

// User is an operator of the dashboard.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Active bool   `json:"active"`

	// PasswordHash is the bcrypt hash of the user's password. Users without
	// one sign in by e-mail alone.
	PasswordHash string `json:"-"`
}

// Actor is the audit identity of u.
func (u User) Actor() audit.Actor {
	return audit.Actor{UserID: u.ID, UserName: u.Name, Role: string(u.Role)}
}

// Session is what a successful login or refresh hands back to the client.
type Session struct {
	User             User      `json:"user"`
	Token            string    `json:"token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// RefreshToken is the persisted half of a refresh token. Only the SHA-256 of
// the secret is kept.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	Revoked   bool      `json:"revoked"`
}
