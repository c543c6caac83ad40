package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yerlan/authgate/internal/token"
)

// memoryStore implements credentialStore for tests. Passwords are kept in
// the clear; hashing is a production-store concern, not part of the
// orchestrator contract under test.
type memoryStore struct {
	users       map[uuid.UUID]User
	passwords   map[uuid.UUID]string
	roles       map[string]struct{}
	memberships map[uuid.UUID]map[string]struct{}
}

func newMemoryStore(roleNames ...string) *memoryStore {
	store := &memoryStore{
		users:       make(map[uuid.UUID]User),
		passwords:   make(map[uuid.UUID]string),
		roles:       make(map[string]struct{}),
		memberships: make(map[uuid.UUID]map[string]struct{}),
	}
	for _, name := range roleNames {
		store.roles[name] = struct{}{}
	}
	return store
}

func cloneUser(u User) User {
	clone := u
	clone.RefreshTokens = append([]token.Refresh(nil), u.RefreshTokens...)
	return clone
}

func (m *memoryStore) userByEmail(email string) User {
	for _, u := range m.users {
		if u.Email == email {
			return cloneUser(u)
		}
	}
	return User{}
}

func (m *memoryStore) FindByEmail(_ context.Context, email string) (User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *memoryStore) FindByUsername(_ context.Context, username string) (User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *memoryStore) FindByID(_ context.Context, id uuid.UUID) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *memoryStore) FindByRefreshToken(_ context.Context, tokenString string) (User, error) {
	for _, u := range m.users {
		for _, rt := range u.RefreshTokens {
			if rt.Token == tokenString {
				return cloneUser(u), nil
			}
		}
	}
	return User{}, ErrUserNotFound
}

func (m *memoryStore) CreateUser(_ context.Context, user User, password string) (User, error) {
	if password == "" {
		return User{}, ValidationErrors{"Password must not be empty."}
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = cloneUser(user)
	m.passwords[user.ID] = password
	return cloneUser(user), nil
}

func (m *memoryStore) VerifyPassword(_ context.Context, user User, password string) (bool, error) {
	return m.passwords[user.ID] == password, nil
}

func (m *memoryStore) Roles(_ context.Context, user User) ([]string, error) {
	var roles []string
	for name := range m.memberships[user.ID] {
		roles = append(roles, name)
	}
	return roles, nil
}

func (m *memoryStore) RoleExists(_ context.Context, name string) (bool, error) {
	_, ok := m.roles[name]
	return ok, nil
}

func (m *memoryStore) IsInRole(_ context.Context, user User, role string) (bool, error) {
	_, ok := m.memberships[user.ID][role]
	return ok, nil
}

func (m *memoryStore) AddToRole(_ context.Context, user User, role string) error {
	if m.memberships[user.ID] == nil {
		m.memberships[user.ID] = make(map[string]struct{})
	}
	m.memberships[user.ID][role] = struct{}{}
	return nil
}

func (m *memoryStore) UpdateUser(_ context.Context, user User) error {
	stored, ok := m.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	stored.FirstName = user.FirstName
	stored.LastName = user.LastName
	stored.RefreshTokens = append([]token.Refresh(nil), user.RefreshTokens...)
	stored.UpdatedAt = time.Now()
	m.users[user.ID] = stored
	return nil
}
