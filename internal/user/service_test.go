package user

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/elmojondesatan/backend-asist/internal/auth"
)

type fakeStore struct {
	users map[string]User
	next  int
	err   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]User)}
}

func (f *fakeStore) GetByEmail(_ context.Context, correo string) (*User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[correo]; ok {
		copied := u
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeStore) Create(_ context.Context, u User) (User, error) {
	if f.err != nil {
		return User{}, f.err
	}
	if _, ok := f.users[u.Correo]; ok {
		return User{}, ErrDuplicateEmail
	}
	f.next++
	u.ID = fmt.Sprintf("u-%d", f.next)
	f.users[u.Correo] = u
	return u, nil
}

func (f *fakeStore) UpdatePassword(_ context.Context, correo, hash string) error {
	if f.err != nil {
		return f.err
	}
	u, ok := f.users[correo]
	if !ok {
		return ErrUnknownEmail
	}
	u.Password = hash
	f.users[correo] = u
	return nil
}

func newTestService(store *fakeStore) *Service {
	return NewService(store, "test-secret", "backend-asist", time.Hour)
}

func TestRegisterThenLogin(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	created, err := svc.Register(ctx, "Ana", "ana@example.com", "secreta123")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("register must assign an id")
	}

	token, u, err := svc.Login(ctx, "ana@example.com", "secreta123")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if u.ID != created.ID {
		t.Errorf("login returned user %q, registered %q", u.ID, created.ID)
	}

	claims, err := auth.Parse(token, "test-secret", "backend-asist")
	if err != nil {
		t.Fatalf("token must verify: %v", err)
	}
	if claims.Subject != created.ID {
		t.Errorf("token subject %q, want %q", claims.Subject, created.ID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "Ana", "ana@example.com", "secreta123"); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	_, err := svc.Register(ctx, "Otra Ana", "ana@example.com", "distinta456")
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRegisterMissingFields(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	cases := [][3]string{
		{"", "ana@example.com", "secreta123"},
		{"Ana", "", "secreta123"},
		{"Ana", "ana@example.com", ""},
		{"  ", "ana@example.com", "secreta123"},
	}
	for _, tc := range cases {
		if _, err := svc.Register(ctx, tc[0], tc[1], tc[2]); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Register(%q, %q, ...) = %v, want ErrInvalidInput", tc[0], tc[1], err)
		}
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, _, err := svc.Login(context.Background(), "nadie@example.com", "loquesea")
	if !errors.Is(err, ErrUnknownEmail) {
		t.Fatalf("expected ErrUnknownEmail, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "Ana", "ana@example.com", "secreta123"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	_, _, err := svc.Login(ctx, "ana@example.com", "equivocada")
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
}

func TestRecoverUnknownEmail(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, _, err := svc.Recover(context.Background(), "nadie@example.com")
	if !errors.Is(err, ErrUnknownEmail) {
		t.Fatalf("expected ErrUnknownEmail, got %v", err)
	}
}

func TestRecoverRotatesPassword(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "Ana", "ana@example.com", "secreta123"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, plain, err := svc.Recover(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if len(plain) < 8 {
		t.Errorf("temporary password too short: %d characters", len(plain))
	}

	if _, _, err := svc.Login(ctx, "ana@example.com", "secreta123"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("old password must stop working, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "ana@example.com", plain); err != nil {
		t.Errorf("temporary password must work: %v", err)
	}
}
