package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// Session is the result of a successful login.
type Session struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Service struct {
	users  UserRepository
	hasher *PasswordHasher
	tokens *TokenIssuer
}

func NewService(users UserRepository, hasher *PasswordHasher, tokens *TokenIssuer) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens}
}

func (s *Service) Register(ctx context.Context, email, name, password string) (*User, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation("a valid email is required")
	}
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if len(password) < minPasswordLength {
		return nil, apperr.Validation("password must be at least %d characters", minPasswordLength)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	u := &User{Email: email, Name: name, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return nil, apperr.Conflict("email is already registered")
		}
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and issues a session token. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	invalid := apperr.Unauthorized("invalid email or password")

	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(u.PasswordHash, password)
	if err != nil || !ok {
		return nil, invalid
	}

	token, expires, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token, ExpiresAt: expires}, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.Unauthorized("invalid session")
	}
	return s.users.GetByID(ctx, uid)
}
