package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/yerlan/authgate/internal/config"
	"github.com/yerlan/authgate/internal/token"
)

type fakeClock struct {
	at time.Time
}

func (c *fakeClock) now() time.Time {
	return c.at
}

func (c *fakeClock) advance(d time.Duration) {
	c.at = c.at.Add(d)
}

func testConfig() config.AuthConfig {
	return config.AuthConfig{
		SecretKey:        "test-secret",
		Issuer:           "authgate",
		Audience:         "authgate-api",
		AccessTokenDays:  1,
		RefreshTokenDays: 5,
		BcryptCost:       4,
		DefaultRole:      "User",
	}
}

func newTestService(clk *fakeClock) (*Service, *memoryStore) {
	cfg := testConfig()
	store := newMemoryStore("User", "Admin")
	service := NewService(store, token.NewSignerWithClock(cfg, clk.now), cfg)
	service.nowFunc = clk.now
	return service, store
}

func register(t *testing.T, service *Service, email, username string) AuthResult {
	t.Helper()
	result, err := service.Register(context.Background(), RegisterInput{
		Email:     email,
		Username:  username,
		Password:  "P@ss1",
		FirstName: "A",
		LastName:  "B",
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	if !result.Authenticated {
		t.Fatalf("register rejected: %s", result.Message)
	}
	return result
}

func login(t *testing.T, service *Service, email, password string) AuthResult {
	t.Helper()
	result, err := service.GetToken(context.Background(), LoginInput{Email: email, Password: password})
	if err != nil {
		t.Fatalf("login returned error: %v", err)
	}
	return result
}

func TestRegisterSuccess(t *testing.T) {
	clk := &fakeClock{at: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	service, store := newTestService(clk)

	result := register(t, service, "a@x.com", "alice")

	if len(result.Roles) != 1 || result.Roles[0] != "User" {
		t.Fatalf("expected roles [User], got %v", result.Roles)
	}
	if result.AccessToken == "" {
		t.Fatalf("expected access token to be issued")
	}
	if got, want := result.ExpiresOn, clk.at.Add(24*time.Hour); !got.Equal(want) {
		t.Fatalf("expected access token expiry %v, got %v", want, got)
	}
	if len(store.users) != 1 {
		t.Fatalf("expected user stored; got %d", len(store.users))
	}

	claims, err := service.ValidateAccessToken(result.AccessToken)
	if err != nil {
		t.Fatalf("issued token failed validation: %v", err)
	}
	if claims.Subject != "alice" || claims.Email != "a@x.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	clk := &fakeClock{at: time.Now()}
	service, _ := newTestService(clk)

	register(t, service, "a@x.com", "alice")

	// Same email with a different username must still be rejected.
	result, err := service.Register(context.Background(), RegisterInput{
		Email:     "a@x.com",
		Username:  "someone-else",
		Password:  "P@ss1",
		FirstName: "C",
		LastName:  "D",
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	if result.Authenticated {
		t.Fatalf("expected rejection")
	}
	if result.Message != "Email is already registered!" {
		t.Fatalf("unexpected message: %q", result.Message)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	clk := &fakeClock{at: time.Now()}
	service, _ := newTestService(clk)

	register(t, service, "a@x.com", "alice")

	result, err := service.Register(context.Background(), RegisterInput{
		Email:     "b@x.com",
		Username:  "alice",
		Password:  "P@ss1",
		FirstName: "C",
		LastName:  "D",
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	if result.Authenticated || result.Message != "Username is already registered!" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRegisterValidationErrorsFoldedIntoMessage(t *testing.T) {
	clk := &fakeClock{at: time.Now()}
	service, _ := newTestService(clk)

	result, err := service.Register(context.Background(), RegisterInput{
		Email:    "a@x.com",
		Username: "alice",
		Password: "",
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	if result.Authenticated {
		t.Fatalf("expected rejection for empty password")
	}
	if result.Message == "" {
		t.Fatalf("expected validation message")
	}
}

func TestGetTokenFailuresAreIndistinguishable(t *testing.T) {
	clk := &fakeClock{at: time.Now()}
	service, _ := newTestService(clk)

	register(t, service, "a@x.com", "alice")

	wrongPassword := login(t, service, "a@x.com", "wrong")
	unknownEmail := login(t, service, "nobody@x.com", "P@ss1")

	if wrongPassword.Authenticated || unknownEmail.Authenticated {
		t.Fatalf("expected both logins to fail")
	}
	if wrongPassword.Message != "Email or Password is incorrect!" {
		t.Fatalf("unexpected message: %q", wrongPassword.Message)
	}
	if wrongPassword.Message != unknownEmail.Message {
		t.Fatalf("failure messages differ: %q vs %q", wrongPassword.Message, unknownEmail.Message)
	}
}

func TestGetTokenIssuesRefreshToken(t *testing.T) {
	clk := &fakeClock{at: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	service, store := newTestService(clk)

	register(t, service, "a@x.com", "alice")
	result := login(t, service, "a@x.com", "P@ss1")

	if !result.Authenticated {
		t.Fatalf("login rejected: %s", result.Message)
	}
	if result.RefreshToken == "" {
		t.Fatalf("expected refresh token")
	}
	if got, want := result.RefreshTokenExpiry, clk.at.Add(5*24*time.Hour); !got.Equal(want) {
		t.Fatalf("expected refresh expiry creation+5d (%v), got %v", want, got)
	}

	user := store.userByEmail("a@x.com")
	if n := countActive(user.RefreshTokens, clk.at); n != 1 {
		t.Fatalf("expected exactly one active refresh token, got %d", n)
	}
}

func TestGetTokenReusesActiveRefreshToken(t *testing.T) {
	clk := &fakeClock{at: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	service, store := newTestService(clk)

	register(t, service, "a@x.com", "alice")
	first := login(t, service, "a@x.com", "P@ss1")

	clk.advance(time.Hour)
	second := login(t, service, "a@x.com", "P@ss1")

	if second.RefreshToken != first.RefreshToken {
		t.Fatalf("expected active refresh token to be reused")
	}
	if !second.RefreshTokenExpiry.Equal(first.RefreshTokenExpiry) {
		t.Fatalf("reused token must keep its original expiry")
	}

	user := store.userByEmail("a@x.com")
	if len(user.RefreshTokens) != 1 {
		t.Fatalf("reuse must not mint new tokens; have %d", len(user.RefreshTokens))
	}
}

func TestGetTokenMintsReplacementWhenActiveExpired(t *testing.T) {
	clk := &fakeClock{at: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	service, store := newTestService(clk)

	register(t, service, "a@x.com", "alice")
	first := login(t, service, "a@x.com", "P@ss1")

	clk.advance(6 * 24 * time.Hour)
	second := login(t, service, "a@x.com", "P@ss1")

	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("expired token must not be reused")
	}

	user := store.userByEmail("a@x.com")
	if n := countActive(user.RefreshTokens, clk.at); n != 1 {
		t.Fatalf("expected exactly one active refresh token, got %d", n)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	clk := &fakeClock{at: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	service, store := newTestService(clk)

	register(t, service, "a@x.com", "alice")
	loginResult := login(t, service, "a@x.com", "P@ss1")
	r1 := loginResult.RefreshToken

	clk.advance(time.Hour)
	rotated, err := service.RefreshToken(context.Background(), r1)
	if err != nil {
		t.Fatalf("refresh returned error: %v", err)
	}
	if !rotated.Authenticated {
		t.Fatalf("refresh rejected: %s", rotated.Message)
	}
	if rotated.RefreshToken == "" || rotated.RefreshToken == r1 {
		t.Fatalf("expected a new refresh token")
	}
	if rotated.AccessToken == "" {
		t.Fatalf("expected a fresh access token")
	}

	user := store.userByEmail("a@x.com")
	if len(user.RefreshTokens) != 2 {
		t.Fatalf("rotation must keep the revoked entry; have %d tokens", len(user.RefreshTokens))
	}
	if n := countActive(user.RefreshTokens, clk.at); n != 1 {
		t.Fatalf("expected exactly one active token after rotation, got %d", n)
	}

	// Single use: replaying the consumed token must fail.
	replay, err := service.RefreshToken(context.Background(), r1)
	if err != nil {
		t.Fatalf("refresh returned error: %v", err)
	}
	if replay.Authenticated || replay.Message != "Inactive token" {
		t.Fatalf("expected Inactive token on replay, got %+v", replay)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	clk := &fakeClock{at: time.Now()}
	service, _ := newTestService(clk)

	result, err := service.RefreshToken(context.Background(), "no-such-token")
	if err != nil {
		t.Fatalf("refresh returned error: %v", err)
	}
	if result.Authenticated || result.Message != "Invalid token" {
		t.Fatalf("expected Invalid token, got %+v", result)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	clk := &fakeClock{at: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	service, _ := newTestService(clk)

	register(t, service, "a@x.com", "alice")
	loginResult := login(t, service, "a@x.com", "P@ss1")

	clk.advance(5*24*time.Hour + time.Minute)
	result, err := service.RefreshToken(context.Background(), loginResult.RefreshToken)
	if err != nil {
		t.Fatalf("refresh returned error: %v", err)
	}
	if result.Authenticated || result.Message != "Inactive token" {
		t.Fatalf("expected Inactive token, got %+v", result)
	}
}

func TestRevokeToken(t *testing.T) {
	clk := &fakeClock{at: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	service, store := newTestService(clk)

	register(t, service, "a@x.com", "alice")
	loginResult := login(t, service, "a@x.com", "P@ss1")
	r1 := loginResult.RefreshToken

	revoked, err := service.RevokeToken(context.Background(), r1)
	if err != nil {
		t.Fatalf("revoke returned error: %v", err)
	}
	if !revoked {
		t.Fatalf("expected revocation to succeed")
	}

	refreshed, err := service.RefreshToken(context.Background(), r1)
	if err != nil {
		t.Fatalf("refresh returned error: %v", err)
	}
	if refreshed.Authenticated || refreshed.Message != "Inactive token" {
		t.Fatalf("expected revoked token to be unusable, got %+v", refreshed)
	}

	// Revoking again reports false and leaves the store untouched.
	before := len(store.userByEmail("a@x.com").RefreshTokens)
	again, err := service.RevokeToken(context.Background(), r1)
	if err != nil {
		t.Fatalf("revoke returned error: %v", err)
	}
	if again {
		t.Fatalf("expected second revocation to report false")
	}
	if after := len(store.userByEmail("a@x.com").RefreshTokens); after != before {
		t.Fatalf("second revocation must not mutate the store")
	}

	unknown, err := service.RevokeToken(context.Background(), "no-such-token")
	if err != nil {
		t.Fatalf("revoke returned error: %v", err)
	}
	if unknown {
		t.Fatalf("expected unknown token revocation to report false")
	}
}

func TestAddRole(t *testing.T) {
	clk := &fakeClock{at: time.Now()}
	service, store := newTestService(clk)

	register(t, service, "a@x.com", "alice")
	user := store.userByEmail("a@x.com")

	cases := []struct {
		name    string
		input   AddRoleInput
		message string
	}{
		{"malformed user id", AddRoleInput{UserID: "not-a-uuid", Role: "Admin"}, "Invalid user ID or Role"},
		{"unknown user", AddRoleInput{UserID: uuid.NewString(), Role: "Admin"}, "Invalid user ID or Role"},
		{"unknown role", AddRoleInput{UserID: user.ID.String(), Role: "Wizard"}, "Invalid user ID or Role"},
		{"duplicate assignment", AddRoleInput{UserID: user.ID.String(), Role: "User"}, "User already assigned to this role"},
		{"success", AddRoleInput{UserID: user.ID.String(), Role: "Admin"}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			message, err := service.AddRole(context.Background(), tc.input)
			if err != nil {
				t.Fatalf("AddRole returned error: %v", err)
			}
			if message != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, message)
			}
		})
	}

	roles, err := store.Roles(context.Background(), user)
	if err != nil {
		t.Fatalf("roles returned error: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected two roles after assignment, got %v", roles)
	}
}

// Mirrors the end-to-end journey: register, bad login, good login, rotate,
// then replay the consumed token.
func TestTokenLifecycleScenario(t *testing.T) {
	clk := &fakeClock{at: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	service, _ := newTestService(clk)

	registered := register(t, service, "a@x.com", "alice")
	if len(registered.Roles) != 1 || registered.Roles[0] != "User" {
		t.Fatalf("expected roles [User], got %v", registered.Roles)
	}

	bad := login(t, service, "a@x.com", "wrong")
	if bad.Authenticated || bad.Message != "Email or Password is incorrect!" {
		t.Fatalf("expected generic failure, got %+v", bad)
	}

	good := login(t, service, "a@x.com", "P@ss1")
	if !good.Authenticated || good.RefreshToken == "" {
		t.Fatalf("expected successful login with refresh token")
	}
	r1 := good.RefreshToken

	rotated, err := service.RefreshToken(context.Background(), r1)
	if err != nil {
		t.Fatalf("refresh returned error: %v", err)
	}
	if !rotated.Authenticated || rotated.RefreshToken == r1 {
		t.Fatalf("expected rotation to mint a new token")
	}

	replay, err := service.RefreshToken(context.Background(), r1)
	if err != nil {
		t.Fatalf("refresh returned error: %v", err)
	}
	if replay.Authenticated || replay.Message != "Inactive token" {
		t.Fatalf("expected replay to fail with Inactive token, got %+v", replay)
	}
}

func countActive(tokens []token.Refresh, now time.Time) int {
	active := 0
	for _, rt := range tokens {
		if rt.Active(now) {
			active++
		}
	}
	return active
}
