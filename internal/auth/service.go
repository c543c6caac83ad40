package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yerlan/authgate/internal/config"
	"github.com/yerlan/authgate/internal/token"
)

// credentialStore abstracts the persistence layer. It is the sole shared
// mutable resource; the service itself holds no state between calls.
type credentialStore interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByID(ctx context.Context, id uuid.UUID) (User, error)
	FindByRefreshToken(ctx context.Context, tokenString string) (User, error)
	CreateUser(ctx context.Context, user User, password string) (User, error)
	VerifyPassword(ctx context.Context, user User, password string) (bool, error)
	Roles(ctx context.Context, user User) ([]string, error)
	RoleExists(ctx context.Context, name string) (bool, error)
	IsInRole(ctx context.Context, user User, role string) (bool, error)
	AddToRole(ctx context.Context, user User, role string) error
	UpdateUser(ctx context.Context, user User) error
}

// Service coordinates registration, token issuance, rotation and revocation
// against the credential store and the token signer.
type Service struct {
	store   credentialStore
	signer  *token.Signer
	cfg     config.AuthConfig
	nowFunc func() time.Time
}

// NewService creates a Service with dependencies.
func NewService(store credentialStore, signer *token.Signer, cfg config.AuthConfig) *Service {
	return &Service{
		store:   store,
		signer:  signer,
		cfg:     cfg,
		nowFunc: time.Now,
	}
}

// RegisterInput carries data for user registration.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// LoginInput carries login credentials.
type LoginInput struct {
	Email    string
	Password string
}

// AddRoleInput identifies a user and the role to grant.
type AddRoleInput struct {
	UserID string
	Role   string
}

// Register creates a user with the default role and issues an access token.
// Duplicate email/username and store validation failures come back in the
// result message, not as errors.
func (s *Service) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.TrimSpace(input.Username)

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return AuthResult{Message: msgEmailTaken}, nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return AuthResult{}, fmt.Errorf("find user by email: %w", err)
	}

	if _, err := s.store.FindByUsername(ctx, username); err == nil {
		return AuthResult{Message: msgUsernameTaken}, nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return AuthResult{}, fmt.Errorf("find user by username: %w", err)
	}

	user := User{
		ID:        uuid.New(),
		Email:     email,
		Username:  username,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
	}

	created, err := s.store.CreateUser(ctx, user, input.Password)
	if err != nil {
		var validation ValidationErrors
		if errors.As(err, &validation) {
			return AuthResult{Message: validation.Error()}, nil
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	if err := s.store.AddToRole(ctx, created, s.cfg.DefaultRole); err != nil {
		return AuthResult{}, fmt.Errorf("assign default role: %w", err)
	}

	roles := []string{s.cfg.DefaultRole}
	accessToken, expiresOn, err := s.signAccessToken(created, roles)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		Authenticated: true,
		Email:         created.Email,
		Username:      created.Username,
		AccessToken:   accessToken,
		ExpiresOn:     expiresOn,
		Roles:         roles,
	}, nil
}

// GetToken authenticates credentials and issues an access token. An unknown
// email and a wrong password yield byte-identical failure results so callers
// cannot enumerate users. If the user already holds an active refresh token
// it is reused; otherwise exactly one new token is minted and persisted.
func (s *Service) GetToken(ctx context.Context, input LoginInput) (AuthResult, error) {
	user, err := s.store.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResult{Message: msgBadCredentials}, nil
		}
		return AuthResult{}, fmt.Errorf("find user: %w", err)
	}

	ok, err := s.store.VerifyPassword(ctx, user, input.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return AuthResult{Message: msgBadCredentials}, nil
	}

	roles, err := s.store.Roles(ctx, user)
	if err != nil {
		return AuthResult{}, fmt.Errorf("load roles: %w", err)
	}

	accessToken, expiresOn, err := s.signAccessToken(user, roles)
	if err != nil {
		return AuthResult{}, err
	}

	result := AuthResult{
		Authenticated: true,
		Email:         user.Email,
		Username:      user.Username,
		AccessToken:   accessToken,
		ExpiresOn:     expiresOn,
		Roles:         roles,
	}

	now := s.nowFunc()
	if active := activeRefreshToken(user.RefreshTokens, now); active != nil {
		result.RefreshToken = active.Token
		result.RefreshTokenExpiry = active.ExpiresOn
		return result, nil
	}

	refresh, err := token.NewRefresh(now, s.cfg.RefreshTokenTTL())
	if err != nil {
		return AuthResult{}, fmt.Errorf("generate refresh token: %w", err)
	}

	user.RefreshTokens = append(user.RefreshTokens, refresh)
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return AuthResult{}, fmt.Errorf("persist refresh token: %w", err)
	}

	result.RefreshToken = refresh.Token
	result.RefreshTokenExpiry = refresh.ExpiresOn
	return result, nil
}

// RefreshToken rotates the presented refresh token: the presented token is
// revoked unconditionally and a replacement is minted in the same operation,
// so every refresh token is valid for exactly one use.
func (s *Service) RefreshToken(ctx context.Context, presented string) (AuthResult, error) {
	user, entry, err := s.findRefreshToken(ctx, presented)
	switch {
	case errors.Is(err, ErrTokenNotFound):
		return AuthResult{Message: msgInvalidToken}, nil
	case errors.Is(err, ErrTokenInactive):
		return AuthResult{Message: msgInactiveToken}, nil
	case err != nil:
		return AuthResult{}, err
	}

	now := s.nowFunc()
	revokedAt := now
	entry.RevokedOn = &revokedAt

	next, err := token.NewRefresh(now, s.cfg.RefreshTokenTTL())
	if err != nil {
		return AuthResult{}, fmt.Errorf("generate refresh token: %w", err)
	}

	user.RefreshTokens = append(user.RefreshTokens, next)
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return AuthResult{}, fmt.Errorf("persist rotation: %w", err)
	}

	roles, err := s.store.Roles(ctx, user)
	if err != nil {
		return AuthResult{}, fmt.Errorf("load roles: %w", err)
	}

	accessToken, expiresOn, err := s.signAccessToken(user, roles)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		Authenticated:      true,
		Email:              user.Email,
		Username:           user.Username,
		AccessToken:        accessToken,
		ExpiresOn:          expiresOn,
		RefreshToken:       next.Token,
		RefreshTokenExpiry: next.ExpiresOn,
		Roles:              roles,
	}, nil
}

// RevokeToken marks the presented refresh token revoked. Unknown and
// already-inactive tokens both report false without mutating anything; the
// two conditions stay distinguishable inside findRefreshToken.
func (s *Service) RevokeToken(ctx context.Context, presented string) (bool, error) {
	user, entry, err := s.findRefreshToken(ctx, presented)
	if errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrTokenInactive) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	revokedAt := s.nowFunc()
	entry.RevokedOn = &revokedAt

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return false, fmt.Errorf("persist revocation: %w", err)
	}

	return true, nil
}

// AddRole grants a role to a user. The returned message is empty on success;
// expected failures come back as short message strings.
func (s *Service) AddRole(ctx context.Context, input AddRoleInput) (string, error) {
	id, err := uuid.Parse(input.UserID)
	if err != nil {
		return msgInvalidUserOrRole, nil
	}

	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return msgInvalidUserOrRole, nil
		}
		return "", fmt.Errorf("find user: %w", err)
	}

	exists, err := s.store.RoleExists(ctx, input.Role)
	if err != nil {
		return "", fmt.Errorf("check role: %w", err)
	}
	if !exists {
		return msgInvalidUserOrRole, nil
	}

	assigned, err := s.store.IsInRole(ctx, user, input.Role)
	if err != nil {
		return "", fmt.Errorf("check membership: %w", err)
	}
	if assigned {
		return msgRoleAlreadyAssigned, nil
	}

	if err := s.store.AddToRole(ctx, user, input.Role); err != nil {
		return "", fmt.Errorf("add role: %w", err)
	}

	return "", nil
}

// ValidateAccessToken verifies the token signature and extracts its claims.
func (s *Service) ValidateAccessToken(tokenString string) (token.Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return token.Claims{}, ErrUnauthorized
	}

	claims, err := s.signer.Parse(tokenString)
	if err != nil {
		return token.Claims{}, ErrUnauthorized
	}

	return claims, nil
}

// findRefreshToken locates the owner of a presented refresh token and the
// matching entry. It distinguishes an unknown token (ErrTokenNotFound) from
// one that exists but is expired or revoked (ErrTokenInactive); callers
// decide whether to surface or collapse that distinction.
func (s *Service) findRefreshToken(ctx context.Context, presented string) (User, *token.Refresh, error) {
	user, err := s.store.FindByRefreshToken(ctx, presented)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, nil, ErrTokenNotFound
		}
		return User{}, nil, fmt.Errorf("find user by refresh token: %w", err)
	}

	for i := range user.RefreshTokens {
		if user.RefreshTokens[i].Token != presented {
			continue
		}
		entry := &user.RefreshTokens[i]
		if !entry.Active(s.nowFunc()) {
			return User{}, nil, ErrTokenInactive
		}
		return user, entry, nil
	}

	return User{}, nil, ErrTokenNotFound
}

func (s *Service) signAccessToken(user User, roles []string) (string, time.Time, error) {
	signed, expiresOn, err := s.signer.Sign(token.Claims{
		Subject: user.Username,
		Email:   user.Email,
		UserID:  user.ID.String(),
		Roles:   roles,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate access token: %w", err)
	}
	return signed, expiresOn, nil
}

// activeRefreshToken returns the first active entry in creation order, or nil.
// At most one entry is active at any decision point; rotation and login both
// preserve that invariant.
func activeRefreshToken(tokens []token.Refresh, now time.Time) *token.Refresh {
	for i := range tokens {
		if tokens[i].Active(now) {
			return &tokens[i]
		}
	}
	return nil
}
