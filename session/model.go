package session

import "time"

// Record is one login session of a user on one device.
//
// A record stays in the store after invalidation with Active=false until its
// TTL lapses; only active records are members of the user's index.
type Record struct {
	ID        string
	UserID    string
	Device    string
	IPAddress string
	UserAgent string

	LoginTime    time.Time
	LastActivity time.Time
	Active       bool
}
