// Package models - user.go defines the User model for portal accounts seeded
// from the directory service on first login.
package models

import "time"

// User represents a user in the system. The admin flag mirrors directory group
// membership and is overwritten from the directory on every successful login;
// the local store is never the source of truth for privilege.
type User struct {
	ID        string     `db:"id" json:"id"`
	Username  string     `db:"username" json:"username"`
	Email     string     `db:"email" json:"email"`
	IsAdmin   bool       `db:"is_admin" json:"is_admin"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	LastLogin *time.Time `db:"last_login" json:"last_login,omitempty"`
}
