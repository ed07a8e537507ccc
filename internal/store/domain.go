package store

import (
	"strings"
	"time"
)

// User represents a registered identity, materialized from an allow-list
// entry at first successful login.
type User struct {
	ID          int64
	Email       string
	Name        string
	IsAdmin     bool
	CreatedAt   time.Time
	LastLoginAt *time.Time
}

// AllowedEmail is an authorization allow-list entry. Entries are created by
// admin action or bootstrap and never updated.
type AllowedEmail struct {
	Email        string
	AddedBy      string
	AddedAt      time.Time
	IsAdminGrant bool
}

// Note is a user-owned note record.
type Note struct {
	ID        int64
	UserID    int64
	Content   string
	CreatedAt time.Time
}

// NormalizeEmail lowercases and trims an email so lookups stay
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
