package core

import (
	"github.com/dkeye/Relay/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Skipped int
	Dropped []SessionID
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	SID    SessionID     `json:"sid"`
	UserID domain.UserID `json:"userId,omitempty"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO
	// Sessions returns a copy of the member set; callers may iterate it
	// while members come and go.
	Sessions() []MemberSession

	AddMember(ms MemberSession) bool
	RemoveMember(sid SessionID) bool
	Broadcast(data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
}
