package core

import "github.com/dkeye/Relay/internal/domain"

type SessionID string

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	ID() SessionID
	Meta() *domain.Member
	Signal() SignalConnection
	// SetUser records the user id announced by the client on join.
	SetUser(id domain.UserID) error
	UserID() domain.UserID
}
