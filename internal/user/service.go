package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/elmojondesatan/backend-asist/internal/auth"
)

// User is a registered account. Password holds the bcrypt hash and is never
// serialized.
type User struct {
	ID        string    `json:"id"`
	Nombre    string    `json:"nombre"`
	Correo    string    `json:"correo"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"-"`
}

var (
	// ErrInvalidInput signals missing or empty required fields.
	ErrInvalidInput = errors.New("nombre, correo and password are required")
	// ErrDuplicateEmail signals a registration with an email already in use.
	ErrDuplicateEmail = errors.New("correo already registered")
	// ErrUnknownEmail signals that no account exists for the email.
	ErrUnknownEmail = errors.New("correo not registered")
	// ErrBadCredentials signals a password mismatch for an existing account.
	ErrBadCredentials = errors.New("incorrect password")
)

// Store is the persistence surface the service needs. GetByEmail returns
// (nil, nil) when no account matches.
type Store interface {
	GetByEmail(ctx context.Context, correo string) (*User, error)
	Create(ctx context.Context, u User) (User, error)
	UpdatePassword(ctx context.Context, correo, hash string) error
}

// Service implements register, login and password recovery on top of a Store.
type Service struct {
	store    Store
	secret   string
	issuer   string
	tokenTTL time.Duration
}

// NewService creates a service. tokenTTL defaults to two hours when zero.
func NewService(store Store, secret, issuer string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 2 * time.Hour
	}
	return &Service{store: store, secret: secret, issuer: issuer, tokenTTL: tokenTTL}
}

// Register stores a new account with a hashed password. It never returns a
// token; the caller must log in separately.
func (s *Service) Register(ctx context.Context, nombre, correo, password string) (User, error) {
	nombre = strings.TrimSpace(nombre)
	correo = strings.TrimSpace(correo)
	if nombre == "" || correo == "" || password == "" {
		return User{}, ErrInvalidInput
	}

	existing, err := s.store.GetByEmail(ctx, correo)
	if err != nil {
		return User{}, err
	}
	if existing != nil {
		return User{}, ErrDuplicateEmail
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, err
	}
	created, err := s.store.Create(ctx, User{Nombre: nombre, Correo: correo, Password: hash})
	if err != nil {
		// The unique constraint still wins a race the pre-check missed.
		if errors.Is(err, ErrDuplicateEmail) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, err
	}
	return created, nil
}

// Login verifies credentials and returns a signed session token plus the
// public profile.
func (s *Service) Login(ctx context.Context, correo, password string) (string, User, error) {
	if correo == "" || password == "" {
		return "", User{}, ErrInvalidInput
	}
	u, err := s.store.GetByEmail(ctx, correo)
	if err != nil {
		return "", User{}, err
	}
	if u == nil {
		return "", User{}, ErrUnknownEmail
	}
	if !auth.VerifyPassword(u.Password, password) {
		return "", User{}, ErrBadCredentials
	}
	token, _, err := auth.Issue(u.ID, u.Nombre, u.Correo, s.issuer, s.secret, s.tokenTTL)
	if err != nil {
		return "", User{}, err
	}
	return token, *u, nil
}

// Recover replaces the account's password with a fresh temporary one and
// returns the plaintext so the caller can hand it to a delivery channel. The
// plaintext must never reach the HTTP response.
func (s *Service) Recover(ctx context.Context, correo string) (User, string, error) {
	if correo == "" {
		return User{}, "", ErrInvalidInput
	}
	u, err := s.store.GetByEmail(ctx, correo)
	if err != nil {
		return User{}, "", err
	}
	if u == nil {
		return User{}, "", ErrUnknownEmail
	}

	plain, err := auth.TempPassword(8)
	if err != nil {
		return User{}, "", err
	}
	hash, err := auth.HashPassword(plain)
	if err != nil {
		return User{}, "", err
	}
	if err := s.store.UpdatePassword(ctx, correo, hash); err != nil {
		return User{}, "", err
	}
	return *u, plain, nil
}
