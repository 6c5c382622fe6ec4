package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

var (
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrInvalidEmail indicates the email is empty or not plausibly an address.
	ErrInvalidEmail = errors.New("users: invalid email")
	// ErrWeakPassword indicates the password does not meet the minimum length.
	ErrWeakPassword = errors.New("users: password too short")
	// ErrInvalidCredentials indicates the email/password pair did not match an account.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrAccountNotFound indicates no account exists for the identifier.
	ErrAccountNotFound = errors.New("users: account not found")
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages user accounts and credential verification.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// Register creates an account for the email with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, password string) (Account, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return Account{}, err
	}
	if len(password) < minPasswordLength {
		return Account{}, fmt.Errorf("%w: minimum %d characters", ErrWeakPassword, minPasswordLength)
	}

	var existing Account
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return Account{}, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	account := Account{
		UserID:       uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         "user",
		CreatedAt:    s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		return Account{}, err
	}
	return account, nil
}

// Authenticate verifies the email/password pair and returns the account.
// Lookup misses and hash mismatches report the same error so callers cannot
// distinguish registered from unregistered addresses.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	email = normalizeEmail(email)

	var account Account
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// GetByUserID returns the account for a canonical user id.
func (s *Service) GetByUserID(ctx context.Context, userID string) (Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("user_id = ?", strings.TrimSpace(userID)).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func validateEmail(email string) error {
	if email == "" || len(email) > 320 {
		return fmt.Errorf("%w: empty or too long", ErrInvalidEmail)
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return nil
}
