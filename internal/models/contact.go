package models

import "time"

// Contact is a personal address book entry scoped to one user. The
// (email, user_id) pair is unique.
type Contact struct {
	ID        string
	FirstName string
	LastName  string
	Email     *string
	Phone     string
	Birthday  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    string
}
