package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yerlan/authgate/internal/token"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultQueryTimeout = 5 * time.Second
	maxPasswordLength   = 72 // bcrypt limit
)

const userColumns = `id, email, username, first_name, last_name, password_hash, created_at, updated_at`

// Repository is the PostgreSQL credential store. Refresh tokens live in
// their own table keyed by token string and user id; UpdateUser persists the
// user's whole collection transactionally.
type Repository struct {
	pool       *pgxpool.Pool
	bcryptCost int
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool, bcryptCost int) *Repository {
	return &Repository{pool: pool, bcryptCost: bcryptCost}
}

// FindByEmail fetches a user and their refresh tokens by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1;`, email)
}

// FindByUsername fetches a user and their refresh tokens by username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (User, error) {
	return r.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1;`, username)
}

// FindByID fetches a user and their refresh tokens by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (User, error) {
	return r.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1;`, id)
}

// FindByRefreshToken locates the single user owning the presented token.
func (r *Repository) FindByRefreshToken(ctx context.Context, tokenString string) (User, error) {
	query := `
SELECT u.id, u.email, u.username, u.first_name, u.last_name, u.password_hash, u.created_at, u.updated_at
FROM users u
JOIN refresh_tokens rt ON rt.user_id = u.id
WHERE rt.token = $1;`
	return r.findUser(ctx, query, tokenString)
}

// CreateUser validates the password policy, hashes the password and persists
// the user. Policy violations are reported as ValidationErrors so the
// orchestrator can fold them into the result message.
func (r *Repository) CreateUser(ctx context.Context, user User, password string) (User, error) {
	if errs := validatePassword(password); len(errs) > 0 {
		return User{}, errs
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
INSERT INTO users (id, email, username, first_name, last_name, password_hash)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + userColumns + `;`

	row := r.pool.QueryRow(ctx, query, user.ID, user.Email, user.Username, user.FirstName, user.LastName, string(hash))

	var created User
	if err := scanUser(row, &created); err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent registration after the
			// orchestrator's uniqueness pre-checks passed.
			return User{}, ValidationErrors{"Email or username is already taken."}
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return created, nil
}

// VerifyPassword checks the plaintext password against the stored hash.
func (r *Repository) VerifyPassword(_ context.Context, user User, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("compare password: %w", err)
	}
	return true, nil
}

// Roles returns the names of the user's assigned roles.
func (r *Repository) Roles(ctx context.Context, user User) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT role_name FROM user_roles WHERE user_id = $1 ORDER BY role_name;`, user.ID)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

// RoleExists reports whether a role with the given name is defined.
func (r *Repository) RoleExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1);`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check role: %w", err)
	}
	return exists, nil
}

// IsInRole reports whether the user already holds the role.
func (r *Repository) IsInRole(ctx context.Context, user User, role string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role_name = $2);`,
		user.ID, role).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// AddToRole grants a role membership.
func (r *Repository) AddToRole(ctx context.Context, user User, role string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
INSERT INTO user_roles (user_id, role_name)
VALUES ($1, $2)
ON CONFLICT (user_id, role_name) DO NOTHING;`

	if _, err := r.pool.Exec(ctx, query, user.ID, role); err != nil {
		return fmt.Errorf("add role: %w", err)
	}
	return nil
}

// UpdateUser persists profile fields and the refresh-token collection in one
// transaction. Token rows are upserted by token primary key and revoked_on
// is only ever set, never cleared, so concurrent rotations converge on a
// revoked state instead of resurrecting a used token.
func (r *Repository) UpdateUser(ctx context.Context, user User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE users SET first_name = $2, last_name = $3, updated_at = NOW() WHERE id = $1;`,
		user.ID, user.FirstName, user.LastName)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	upsert := `
INSERT INTO refresh_tokens (token, user_id, created_on, expires_on, revoked_on)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (token)
DO UPDATE SET revoked_on = COALESCE(refresh_tokens.revoked_on, EXCLUDED.revoked_on);`

	for _, rt := range user.RefreshTokens {
		if _, err := tx.Exec(ctx, upsert, rt.Token, user.ID, rt.CreatedOn, rt.ExpiresOn, rt.RevokedOn); err != nil {
			return fmt.Errorf("upsert refresh token: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

// EnsureRoles seeds role definitions, ignoring ones that already exist.
func (r *Repository) EnsureRoles(ctx context.Context, names ...string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	for _, name := range names {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING;`, name)
		if err != nil {
			return fmt.Errorf("ensure role %q: %w", name, err)
		}
	}
	return nil
}

func (r *Repository) findUser(ctx context.Context, query string, arg any) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	var user User
	if err := scanUser(r.pool.QueryRow(ctx, query, arg), &user); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}

	if err := r.loadRefreshTokens(ctx, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

func (r *Repository) loadRefreshTokens(ctx context.Context, user *User) error {
	rows, err := r.pool.Query(ctx, `
SELECT token, created_on, expires_on, revoked_on
FROM refresh_tokens
WHERE user_id = $1
ORDER BY created_on;`, user.ID)
	if err != nil {
		return fmt.Errorf("query refresh tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rt token.Refresh
		if err := rows.Scan(&rt.Token, &rt.CreatedOn, &rt.ExpiresOn, &rt.RevokedOn); err != nil {
			return fmt.Errorf("scan refresh token: %w", err)
		}
		user.RefreshTokens = append(user.RefreshTokens, rt)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate refresh tokens: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row, user *User) error {
	return row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
}

func validatePassword(password string) ValidationErrors {
	var errs ValidationErrors
	if password == "" {
		errs = append(errs, "Password must not be empty.")
	}
	if len(password) > maxPasswordLength {
		errs = append(errs, fmt.Sprintf("Password exceeds maximum length of %d characters.", maxPasswordLength))
	}
	return errs
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
