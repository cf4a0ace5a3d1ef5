package core_test

import (
	"testing"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/core/coretest"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, sid string) (core.MemberSession, *coretest.Signal) {
	t.Helper()
	sig := coretest.NewSignal()
	return core.NewMemberSession(core.SessionID(sid), nil, sig), sig
}

func TestRoom_AddMemberIsIdempotent(t *testing.T) {
	room := core.NewRoomService(&domain.Room{ID: "r1"})
	s1, sig := newSession(t, "s1")

	assert.True(t, room.AddMember(s1))
	assert.False(t, room.AddMember(s1))
	assert.Equal(t, 1, room.MemberCount())

	res := room.Broadcast(core.Frame(`{"message":"hi"}`))
	assert.Equal(t, 1, res.SendTo)
	assert.Len(t, sig.Frames(), 1)
}

func TestRoom_RemoveMember(t *testing.T) {
	room := core.NewRoomService(&domain.Room{ID: "r1"})
	s1, _ := newSession(t, "s1")
	room.AddMember(s1)

	assert.True(t, room.RemoveMember("s1"))
	assert.False(t, room.RemoveMember("s1"))
	assert.False(t, room.RemoveMember("never"))
	assert.Zero(t, room.MemberCount())
}

func TestRoom_BroadcastSkipsClosedAndReportsDropped(t *testing.T) {
	room := core.NewRoomService(&domain.Room{ID: "r1"})
	open, openSig := newSession(t, "open")
	closed, closedSig := newSession(t, "closed")
	slow, slowSig := newSession(t, "slow")
	closedSig.Close()
	slowSig.SetFull(true)
	for _, s := range []core.MemberSession{open, closed, slow} {
		room.AddMember(s)
	}

	res := room.Broadcast(core.Frame("x"))

	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, core.SessionID("slow"), res.Dropped[0])
	assert.Len(t, openSig.Frames(), 1)
	assert.Empty(t, closedSig.Frames())
}

func TestRoom_SessionsIsACopy(t *testing.T) {
	room := core.NewRoomService(&domain.Room{ID: "r1"})
	s1, _ := newSession(t, "s1")
	s2, _ := newSession(t, "s2")
	room.AddMember(s1)
	room.AddMember(s2)

	snap := room.Sessions()
	for _, s := range snap {
		room.RemoveMember(s.ID())
	}
	assert.Len(t, snap, 2)
	assert.Zero(t, room.MemberCount())
}

func TestRoom_MembersSnapshotCarriesUser(t *testing.T) {
	room := core.NewRoomService(&domain.Room{ID: "r1"})
	s1, _ := newSession(t, "s1")
	require.NoError(t, s1.SetUser("u1"))
	room.AddMember(s1)

	snap := room.MembersSnapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.UserID("u1"), snap[0].UserID)
}
