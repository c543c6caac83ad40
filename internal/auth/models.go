package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/yerlan/authgate/internal/token"
)

// User is an identity record. The refresh-token collection is owned by the
// user: rotation appends and revokes entries but never removes them.
type User struct {
	ID            uuid.UUID
	Email         string
	Username      string
	FirstName     string
	LastName      string
	PasswordHash  string
	RefreshTokens []token.Refresh
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SafeUser removes sensitive fields for response payloads.
func (u User) SafeUser() User {
	u.PasswordHash = ""
	return u
}

// AuthResult is the outward-facing outcome of every orchestrator operation.
// Expected failures are carried in Message with Authenticated false; the
// result is produced fresh per call and never persisted.
type AuthResult struct {
	Authenticated      bool
	Message            string
	Email              string
	Username           string
	AccessToken        string
	ExpiresOn          time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
	Roles              []string
}
