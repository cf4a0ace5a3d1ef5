// Package domain contains entity without logic, just meta-data
package domain

import "strings"

const (
	MaxUserIDLen = 64
)

type UserID string

type User struct {
	ID UserID `json:"id"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
// An empty id is allowed: anonymous sessions still receive broadcasts.
func NewUser(id string) (*User, error) {
	id = strings.TrimSpace(id)
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	return &User{ID: UserID(id)}, nil
}

func (u *User) SetID(id UserID) error {
	if len(id) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	u.ID = id
	return nil
}

func (u *User) Anonymous() bool { return u == nil || u.ID == "" }
