package domain

import "strings"

type (
	RoomID  string
	GroupID string
)

// PublicRoom is the reserved identifier of the public channel.
const PublicRoom RoomID = "public"

// DirectSeparator joins the two participants of a direct room key.
const DirectSeparator = "-"

type RoomKind int

const (
	KindDirect RoomKind = iota
	KindGroup
	KindPublic
)

func (k RoomKind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindPublic:
		return "public"
	default:
		return "direct"
	}
}

type Room struct {
	ID RoomID
}

// KindOf classifies a room from the identifier and the client's group flag.
func KindOf(id RoomID, isGroup bool) RoomKind {
	switch {
	case id == PublicRoom:
		return KindPublic
	case isGroup:
		return KindGroup
	default:
		return KindDirect
	}
}

// DirectKey returns the canonical key of a 1:1 conversation.
// DirectKey(a, b) == DirectKey(b, a).
func DirectKey(a, b UserID) RoomID {
	if b < a {
		a, b = b, a
	}
	return RoomID(string(a) + DirectSeparator + string(b))
}

// DirectPair is the explicit membership record of a direct room.
type DirectPair struct {
	A UserID
	B UserID
}

func NewDirectPair(a, b UserID) DirectPair {
	if b < a {
		a, b = b, a
	}
	return DirectPair{A: a, B: b}
}

func (p DirectPair) Key() RoomID { return DirectKey(p.A, p.B) }

// Other returns the participant that is not u.
func (p DirectPair) Other(u UserID) (UserID, bool) {
	switch u {
	case p.A:
		return p.B, true
	case p.B:
		return p.A, true
	}
	return "", false
}

// PairFromKey recovers the pair of a canonical direct key given one known
// participant. The known id is matched as a whole prefix or suffix, so ids
// containing the separator themselves are still split correctly.
func PairFromKey(room RoomID, known UserID) (DirectPair, bool) {
	key, id := string(room), string(known)
	if id == "" {
		return DirectPair{}, false
	}
	if rest, ok := strings.CutPrefix(key, id+DirectSeparator); ok && rest != "" {
		p := NewDirectPair(known, UserID(rest))
		if p.Key() == room {
			return p, true
		}
	}
	if rest, ok := strings.CutSuffix(key, DirectSeparator+id); ok && rest != "" {
		p := NewDirectPair(UserID(rest), known)
		if p.Key() == room {
			return p, true
		}
	}
	return DirectPair{}, false
}
