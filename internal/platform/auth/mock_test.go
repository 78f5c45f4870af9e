package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinic/clinic/internal/platform/apperr"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only-32b")

type mockUserRepo struct {
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return apperr.Conflict("user already exists")
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = u
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return u, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func newTestService() (*Service, *mockUserRepo, *TokenIssuer) {
	repo := newMockUserRepo()
	tokens := NewTokenIssuer(testSigningKey, "clinic-test", time.Hour)
	return NewService(repo, NewPasswordHasher(bcrypt.MinCost), tokens), repo, tokens
}
