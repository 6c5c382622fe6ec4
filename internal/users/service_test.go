package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Account{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func TestRegisterCreatesAccountWithHashedPassword(t *testing.T) {
	service := newTestService(t)

	account, err := service.Register(context.Background(), "Trainer@Example.com", "correct-horse")
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if account.Email != "trainer@example.com" {
		t.Fatalf("expected normalized email, got %q", account.Email)
	}
	if account.UserID == "" {
		t.Fatalf("expected a canonical user id to be assigned")
	}
	if account.PasswordHash == "correct-horse" {
		t.Fatalf("expected password to be hashed")
	}
	if account.Role != "user" {
		t.Fatalf("unexpected role %q", account.Role)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Register(context.Background(), "trainer@example.com", "correct-horse"); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if _, err := service.Register(context.Background(), "trainer@example.com", "another-pass"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Register(context.Background(), "trainer@example.com", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestRegisterRejectsMalformedEmail(t *testing.T) {
	service := newTestService(t)

	for _, email := range []string{"", "not-an-email", "@example.com", "trainer@"} {
		if _, err := service.Register(context.Background(), email, "correct-horse"); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("expected ErrInvalidEmail for %q, got %v", email, err)
		}
	}
}

func TestAuthenticateVerifiesCredentials(t *testing.T) {
	service := newTestService(t)

	registered, err := service.Register(context.Background(), "trainer@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	account, err := service.Authenticate(context.Background(), "trainer@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("unexpected authenticate error: %v", err)
	}
	if account.UserID != registered.UserID {
		t.Fatalf("expected matching user id")
	}

	if _, err := service.Authenticate(context.Background(), "trainer@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := service.Authenticate(context.Background(), "nobody@example.com", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestGetByUserIDReturnsAccount(t *testing.T) {
	service := newTestService(t)

	registered, err := service.Register(context.Background(), "trainer@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	account, err := service.GetByUserID(context.Background(), registered.UserID)
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if account.Email != "trainer@example.com" {
		t.Fatalf("unexpected email %q", account.Email)
	}

	if _, err := service.GetByUserID(context.Background(), "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
