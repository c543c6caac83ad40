package auth

import (
	"errors"
	"strings"
)

var (
	// ErrUserNotFound signals that the user could not be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenNotFound means no user owns the presented refresh token.
	ErrTokenNotFound = errors.New("refresh token not found")
	// ErrTokenInactive means the presented refresh token is expired or revoked.
	ErrTokenInactive = errors.New("refresh token inactive")
	// ErrUnauthorized represents missing or invalid access tokens.
	ErrUnauthorized = errors.New("unauthorized")
)

// Result messages mirrored in AuthResult.Message for expected failures.
const (
	msgEmailTaken          = "Email is already registered!"
	msgUsernameTaken       = "Username is already registered!"
	msgBadCredentials      = "Email or Password is incorrect!"
	msgInvalidToken        = "Invalid token"
	msgInactiveToken       = "Inactive token"
	msgInvalidUserOrRole   = "Invalid user ID or Role"
	msgRoleAlreadyAssigned = "User already assigned to this role"
)

// ValidationErrors carries store-level validation failures (password policy,
// uniqueness races). It is an error so it can travel the usual channel, but
// the orchestrator folds it into the result message instead of propagating.
type ValidationErrors []string

func (v ValidationErrors) Error() string {
	return strings.Join(v, ",")
}
