package models

import "time"

// User is the slice of the user record this service touches.
type User struct {
	ID       int        `db:"id" json:"id"`
	Username string     `db:"username" json:"username"`
	LastSeen *time.Time `db:"last_seen" json:"last_seen,omitempty"`
}
