package users

import (
	"strings"
	"time"
)

// Account captures a registered user and their credential hash.
type Account struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	UserID       string    `gorm:"column:user_id;size:190;not null;uniqueIndex" json:"id"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;size:190;not null" json:"-"`
	Role         string    `gorm:"column:role;size:32;not null;default:user" json:"role"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

// TableName exposes the table backing user accounts.
func (Account) TableName() string {
	return "user_accounts"
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
