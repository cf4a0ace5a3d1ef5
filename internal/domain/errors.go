package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrNotParticipant = errors.New("user is not the recipient")
	ErrNotMember      = errors.New("user is not a group member")
	ErrUserIDTooLong  = errors.New("user id too long")
	ErrEmptySender    = errors.New("empty sender")
	ErrEmptyText      = errors.New("empty text")
	ErrTextTooLong    = errors.New("text too long")
	ErrNotJoined      = errors.New("session has not joined a room")
	ErrEmptyGroupName = errors.New("empty group name")
)
