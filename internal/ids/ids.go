package ids

import "github.com/segmentio/ksuid"

// New returns a K-sortable unique identifier string. Used for all
// entity primary keys (users, contacts, refresh token records).
func New() string {
	return ksuid.New().String()
}
