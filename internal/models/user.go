package models

import "time"

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// User is the account record. Username and email are unique across the
// whole table; the role defaults to "user" at the schema level.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Confirmed    bool
	Role         UserRole
	AvatarURL    *string
	CreatedAt    time.Time
}

// RefreshToken is a persisted, rotatable refresh token record. On refresh
// the matching row is overwritten in place rather than replaced; rows are
// cascade-deleted with the owning user.
type RefreshToken struct {
	ID        string
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}
