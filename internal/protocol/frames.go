// Package protocol holds the JSON frames exchanged over the realtime channel.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Relay/internal/domain"
)

type Type string

const (
	TypeJoin    Type = "join"
	TypeLeave   Type = "leave"
	TypeMessage Type = "message"
)

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUnknownType  = errors.New("unknown frame type")
	ErrMissingField = errors.New("missing required field")
)

// Frame is one decoded client->server frame: Join, Leave or Chat.
type Frame interface {
	Type() Type
}

type Join struct {
	Room   domain.RoomID
	UserID domain.UserID
}

type Leave struct {
	Room domain.RoomID
}

type Chat struct {
	Room       domain.RoomID
	Text       string
	SenderID   domain.UserID
	ReceiverID domain.UserID
	IsGroup    bool
}

func (Join) Type() Type  { return TypeJoin }
func (Leave) Type() Type { return TypeLeave }
func (Chat) Type() Type  { return TypeMessage }

type envelope struct {
	Type       Type   `json:"type"`
	Room       string `json:"room"`
	UserID     string `json:"userId"`
	Text       string `json:"text"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	IsGroup    bool   `json:"isGroup"`
}

// Decode parses a raw frame into its variant. Sender and text of a chat
// frame are checked by the router, not here.
func Decode(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch env.Type {
	case TypeJoin:
		room := strings.TrimSpace(env.Room)
		if room == "" {
			return nil, fmt.Errorf("%w: join.room", ErrMissingField)
		}
		return Join{Room: domain.RoomID(room), UserID: domain.UserID(strings.TrimSpace(env.UserID))}, nil
	case TypeLeave:
		return Leave{Room: domain.RoomID(strings.TrimSpace(env.Room))}, nil
	case TypeMessage:
		return Chat{
			Room:       domain.RoomID(strings.TrimSpace(env.Room)),
			Text:       env.Text,
			SenderID:   domain.UserID(strings.TrimSpace(env.SenderID)),
			ReceiverID: domain.UserID(strings.TrimSpace(env.ReceiverID)),
			IsGroup:    env.IsGroup,
		}, nil
	case "":
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
