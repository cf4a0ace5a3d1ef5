package app

import (
	"fmt"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose outbound queue is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, sid core.SessionID) BackpressureAction
}

// StaticPolicy applies the same action to every slow member.
type StaticPolicy struct {
	Action BackpressureAction
}

func (p StaticPolicy) OnBackPressure(domain.RoomID, core.SessionID) BackpressureAction {
	return p.Action
}

// ParseBackpressure maps a config value to an action.
func ParseBackpressure(s string) (BackpressureAction, error) {
	switch s {
	case "", "drop":
		return DropFrame, nil
	case "kick":
		return KickMember, nil
	case "none":
		return NoAction, nil
	}
	return NoAction, fmt.Errorf("unknown backpressure action %q", s)
}
