package orch

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/core/coretest"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	o        *Orchestrator
	gw       *recordingGateway
	canceled map[core.SessionID]*atomic.Bool
}

func newHarness(t *testing.T, opts Options, policy app.Policy, limiter *app.RateLimiter) *harness {
	t.Helper()
	gw := newRecordingGateway()
	if opts.MaxTextLen == 0 {
		opts.MaxTextLen = 100
	}
	o := New(app.NewRegistry(), app.NewRoomManager(), policy, gw, limiter, opts)
	return &harness{o: o, gw: gw, canceled: make(map[core.SessionID]*atomic.Bool)}
}

func (h *harness) connect(sid core.SessionID) *coretest.Signal {
	sig := coretest.NewSignal()
	flag := &atomic.Bool{}
	h.canceled[sid] = flag
	h.o.Registry.BindSignal(core.NewMemberSession(sid, nil, sig), func() { flag.Store(true) })
	return sig
}

func (h *harness) handle(sid core.SessionID, f protocol.Frame) {
	h.o.Handle(context.Background(), FrameEvent(sid, f))
}

func TestChat_DirectPairScenario(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	a := h.connect("sa")
	b := h.connect("sb")

	h.handle("sa", protocol.Join{Room: "u1-u2", UserID: "u1"})
	h.handle("sb", protocol.Join{Room: "u1-u2", UserID: "u2"})
	h.handle("sa", protocol.Chat{Room: "u1-u2", Text: "hi", SenderID: "u1", ReceiverID: "u2"})

	want := map[string]any{"message": "hi", "senderId": "u1"}
	assert.Equal(t, []map[string]any{want}, a.Decoded(), "sender receives its own message")
	assert.Equal(t, []map[string]any{want}, b.Decoded())

	msgs := h.gw.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoomID("u1-u2"), msgs[0].Room)
	assert.Equal(t, domain.UserID("u1"), msgs[0].Sender)
	assert.False(t, msgs[0].Group)

	notes := h.gw.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, savedNotification{Recipient: "u2", MessageID: msgs[0].ID, Room: "u1-u2", Kind: domain.NotifyMessage}, notes[0])
}

func TestChat_RecipientRecoveredFromKey(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	h.connect("sa")
	h.handle("sa", protocol.Join{Room: "u1-u2", UserID: "u1"})
	h.handle("sa", protocol.Chat{Text: "hi", SenderID: "u1"})

	notes := h.gw.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, domain.UserID("u2"), notes[0].Recipient)
}

func TestChat_BeforeJoinIsDropped(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	a := h.connect("sa")

	h.handle("sa", protocol.Chat{Room: "u1-u2", Text: "hi", SenderID: "u1"})

	assert.Empty(t, a.Frames())
	assert.Empty(t, h.gw.Messages())
	assert.Zero(t, h.o.Rooms.Len())

	// the dropped frame leaves the session usable
	h.handle("sa", protocol.Join{Room: "u1-u2", UserID: "u1"})
	h.handle("sa", protocol.Chat{Text: "again", SenderID: "u1"})

	require.Len(t, a.Decoded(), 1)
	assert.Equal(t, "again", a.Decoded()[0]["message"])
	msgs := h.gw.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "again", msgs[0].Text)
}

func TestChat_Validation(t *testing.T) {
	h := newHarness(t, Options{MaxTextLen: 5}, nil, nil)
	a := h.connect("sa")
	h.handle("sa", protocol.Join{Room: domain.PublicRoom, UserID: "u1"})

	h.handle("sa", protocol.Chat{Text: "hi", SenderID: ""})
	h.handle("sa", protocol.Chat{Text: "   ", SenderID: "u1"})
	h.handle("sa", protocol.Chat{Text: "toolong", SenderID: "u1"})
	assert.Empty(t, a.Frames())
	assert.Empty(t, h.gw.Messages())

	h.handle("sa", protocol.Chat{Text: "héllo", SenderID: "u1"})
	assert.Len(t, a.Frames(), 1, "limit counts runes")
}

func TestChat_GroupNotifiesEveryoneButSender(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	h.gw.groups["g1"] = []domain.UserID{"A", "B", "C"}
	a := h.connect("sa")
	b := h.connect("sb")
	h.handle("sa", protocol.Join{Room: "g1", UserID: "A"})
	h.handle("sb", protocol.Join{Room: "g1", UserID: "B"})

	h.handle("sa", protocol.Chat{Text: "team", SenderID: "A", IsGroup: true})

	assert.Len(t, a.Frames(), 1)
	assert.Len(t, b.Frames(), 1)

	msgs := h.gw.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Group)

	notes := h.gw.Notifications()
	require.Len(t, notes, 2)
	var recipients []domain.UserID
	for _, n := range notes {
		recipients = append(recipients, n.Recipient)
		assert.Equal(t, domain.NotifyGroupMessage, n.Kind)
		assert.Equal(t, msgs[0].ID, n.MessageID)
	}
	assert.ElementsMatch(t, []domain.UserID{"B", "C"}, recipients)
}

func TestChat_GroupRecognizedWithoutFlag(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	h.gw.groups["3f2a9c1e"] = []domain.UserID{"A", "B", "C"}
	a := h.connect("sa")
	h.handle("sa", protocol.Join{Room: "3f2a9c1e", UserID: "A"})

	h.handle("sa", protocol.Chat{Text: "team", SenderID: "A"})

	assert.Len(t, a.Frames(), 1)
	msgs := h.gw.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Group, "stored in the group history")

	var recipients []domain.UserID
	for _, n := range h.gw.Notifications() {
		recipients = append(recipients, n.Recipient)
		assert.Equal(t, domain.NotifyGroupMessage, n.Kind)
	}
	assert.ElementsMatch(t, []domain.UserID{"B", "C"}, recipients)
}

func TestChat_UnknownGroupIsNotStored(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	a := h.connect("sa")
	h.handle("sa", protocol.Join{Room: "u1-u2", UserID: "u1"})

	h.handle("sa", protocol.Chat{Text: "hi", SenderID: "u1", IsGroup: true})

	assert.Len(t, a.Frames(), 1, "still relayed")
	assert.Empty(t, h.gw.Messages())
	assert.Empty(t, h.gw.Notifications())
}

func TestChat_UnknownRoomStoredAsMessage(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	h.connect("sa")
	h.handle("sa", protocol.Join{Room: "lobby", UserID: "u1"})

	h.handle("sa", protocol.Chat{Text: "hi", SenderID: "u1"})

	msgs := h.gw.Messages()
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Group)
	assert.Empty(t, h.gw.Notifications())
}

func TestChat_PublicHasNoNotifications(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	h.connect("sa")
	h.handle("sa", protocol.Join{Room: domain.PublicRoom, UserID: "u1"})
	h.handle("sa", protocol.Chat{Text: "hello all", SenderID: "u1", ReceiverID: "u2"})

	assert.Len(t, h.gw.Messages(), 1)
	assert.Empty(t, h.gw.Notifications())
}

func TestChat_PersistFailureStillBroadcasts(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	h.gw.fail = true
	a := h.connect("sa")
	b := h.connect("sb")
	h.handle("sa", protocol.Join{Room: "u1-u2", UserID: "u1"})
	h.handle("sb", protocol.Join{Room: "u1-u2", UserID: "u2"})

	h.handle("sa", protocol.Chat{Text: "hi", SenderID: "u1", ReceiverID: "u2"})

	assert.Len(t, a.Frames(), 1)
	assert.Len(t, b.Frames(), 1)
	assert.Empty(t, h.gw.Notifications())
}

func TestChat_PersistBeforeBroadcast(t *testing.T) {
	h := newHarness(t, Options{Ordering: PersistThenBroadcast}, nil, nil)
	a := h.connect("sa")
	var framesAtSave int
	h.gw.onSave = func() { framesAtSave = len(a.Frames()) }
	h.handle("sa", protocol.Join{Room: domain.PublicRoom, UserID: "u1"})

	h.handle("sa", protocol.Chat{Text: "hi", SenderID: "u1"})

	assert.Zero(t, framesAtSave)
	assert.Len(t, a.Frames(), 1)
}

func TestChat_ReadFlag(t *testing.T) {
	h := newHarness(t, Options{IncludeReadFlag: true}, nil, nil)
	a := h.connect("sa")
	h.handle("sa", protocol.Join{Room: domain.PublicRoom, UserID: "u1"})
	h.handle("sa", protocol.Chat{Text: "hi", SenderID: "u1"})

	require.Len(t, a.Decoded(), 1)
	assert.Equal(t, false, a.Decoded()[0]["isRead"])
}

func TestChat_RateLimited(t *testing.T) {
	h := newHarness(t, Options{}, nil, app.NewRateLimiter(1, time.Minute))
	a := h.connect("sa")
	h.handle("sa", protocol.Join{Room: domain.PublicRoom, UserID: "u1"})

	h.handle("sa", protocol.Chat{Text: "one", SenderID: "u1"})
	h.handle("sa", protocol.Chat{Text: "two", SenderID: "u1"})

	assert.Len(t, a.Frames(), 1)
	assert.Len(t, h.gw.Messages(), 1)
}

func TestChat_DefaultConfigDoesNotLimit(t *testing.T) {
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	h := newHarness(t, Options{}, nil, app.NewRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateInterval))
	a := h.connect("sa")
	h.handle("sa", protocol.Join{Room: domain.PublicRoom, UserID: "u1"})

	for i := 0; i < 25; i++ {
		h.handle("sa", protocol.Chat{Text: "hi", SenderID: "u1"})
	}

	assert.Len(t, a.Frames(), 25)
	assert.Len(t, h.gw.Messages(), 25)
}

func TestChat_OnlyCurrentRoomReceives(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	a := h.connect("sa")
	c := h.connect("sc")
	h.handle("sa", protocol.Join{Room: "u1-u2", UserID: "u1"})
	h.handle("sc", protocol.Join{Room: domain.PublicRoom, UserID: "u3"})

	// the frame's room field does not redirect the message
	h.handle("sa", protocol.Chat{Room: domain.PublicRoom, Text: "hi", SenderID: "u1"})

	assert.Len(t, a.Frames(), 1)
	assert.Empty(t, c.Frames())
	assert.Equal(t, domain.RoomID("u1-u2"), h.gw.Messages()[0].Room)
}

func TestJoin_ImplicitLeave(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	h.connect("sa")

	h.handle("sa", protocol.Join{Room: "r1", UserID: "u1"})
	h.handle("sa", protocol.Join{Room: "r2"})

	_, ok := h.o.Rooms.Get("r1")
	assert.False(t, ok, "empty previous room is removed")
	assert.Len(t, h.o.Rooms.MembersOf("r2"), 1)

	room, sess, ok := h.o.Registry.RoomOf("sa")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("r2"), room)
	assert.Equal(t, domain.UserID("u1"), sess.UserID(), "user id survives a join without one")

	h.handle("sa", protocol.Join{Room: "r2"})
	assert.Len(t, h.o.Rooms.MembersOf("r2"), 1)
}

func TestJoin_RejectsOversizedUser(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	h.connect("sa")
	h.handle("sa", protocol.Join{Room: "r1", UserID: domain.UserID(strings.Repeat("x", domain.MaxUserIDLen+1))})

	_, _, ok := h.o.Registry.RoomOf("sa")
	assert.False(t, ok)
	assert.Zero(t, h.o.Rooms.Len())
}

func TestLeave(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	h.connect("sa")

	h.handle("sa", protocol.Leave{})
	assert.Zero(t, h.o.Rooms.Len())

	h.handle("sa", protocol.Join{Room: "r1", UserID: "u1"})
	h.handle("sa", protocol.Leave{Room: "other"})

	_, _, ok := h.o.Registry.RoomOf("sa")
	assert.False(t, ok)
	assert.Zero(t, h.o.Rooms.Len())
	_, ok = h.o.Registry.GetSession("sa")
	assert.True(t, ok, "leave keeps the connection")
}

func TestDisconnect(t *testing.T) {
	h := newHarness(t, Options{}, nil, nil)
	h.connect("sa")
	h.connect("sb")
	h.handle("sa", protocol.Join{Room: "r1", UserID: "u1"})

	h.o.Handle(context.Background(), DisconnectEvent("sa"))
	h.o.Handle(context.Background(), DisconnectEvent("sb"))
	h.o.Handle(context.Background(), DisconnectEvent("sa"))

	assert.Zero(t, h.o.Rooms.Len())
	assert.Zero(t, h.o.Registry.Len())
}

func TestBackpressure(t *testing.T) {
	cases := []struct {
		name       string
		action     app.BackpressureAction
		wantKicked bool
	}{
		{"drop", app.DropFrame, false},
		{"kick", app.KickMember, true},
		{"none", app.NoAction, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, Options{}, app.StaticPolicy{Action: tc.action}, nil)
			a := h.connect("sa")
			b := h.connect("sb")
			h.handle("sa", protocol.Join{Room: domain.PublicRoom, UserID: "u1"})
			h.handle("sb", protocol.Join{Room: domain.PublicRoom, UserID: "u2"})
			b.SetFull(true)

			h.handle("sa", protocol.Chat{Text: "hi", SenderID: "u1"})

			assert.Len(t, a.Frames(), 1)
			assert.Equal(t, tc.wantKicked, h.canceled["sb"].Load())
			_, _, joined := h.o.Registry.RoomOf("sb")
			assert.Equal(t, !tc.wantKicked, joined)
		})
	}
}

func TestRun_BroadcastThenPersist(t *testing.T) {
	h := newHarness(t, Options{Ordering: BroadcastThenPersist, Workers: 2}, nil, nil)
	a := h.connect("sa")
	b := h.connect("sb")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.o.Run(ctx) }()

	submit := func(sid core.SessionID, f protocol.Frame) {
		require.NoError(t, h.o.Submit(ctx, FrameEvent(sid, f)))
	}
	submit("sa", protocol.Join{Room: "u1-u2", UserID: "u1"})
	submit("sb", protocol.Join{Room: "u1-u2", UserID: "u2"})
	for _, text := range []string{"1", "2", "3"} {
		submit("sa", protocol.Chat{Text: text, SenderID: "u1"})
	}

	require.Eventually(t, func() bool {
		return len(b.Frames()) == 3 && len(h.gw.Notifications()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	var got []string
	for _, m := range b.Decoded() {
		got = append(got, m["message"].(string))
	}
	assert.Equal(t, []string{"1", "2", "3"}, got, "receipt order")
	assert.Len(t, a.Frames(), 3)

	require.NoError(t, h.o.Submit(ctx, DisconnectEvent("sa")))
	require.Eventually(t, func() bool { return h.o.Registry.Len() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("router did not stop")
	}
	assert.ErrorIs(t, h.o.Submit(context.Background(), DisconnectEvent("sb")), ErrStopped)
}

func TestDirectRecipient(t *testing.T) {
	cases := []struct {
		room     domain.RoomID
		sender   domain.UserID
		receiver domain.UserID
		want     domain.UserID
		ok       bool
	}{
		{"u1-u2", "u1", "u2", "u2", true},
		{"u1-u2", "u2", "", "u1", true},
		{"u1-u2", "u1", "u9", "u2", true},
		{"a-b-c", "a-b", "c", "c", true},
		{"a-b-c", "c", "", "a-b", true},
		{"u1-u2", "u3", "", "", false},
		{"lobby", "u1", "", "", false},
	}
	for _, tc := range cases {
		got, ok := directRecipient(tc.room, tc.sender, tc.receiver)
		assert.Equal(t, tc.ok, ok, "%s/%s", tc.room, tc.sender)
		assert.Equal(t, tc.want, got, "%s/%s", tc.room, tc.sender)
	}
}

func TestParseOrdering(t *testing.T) {
	o, err := ParseOrdering("")
	require.NoError(t, err)
	assert.Equal(t, PersistThenBroadcast, o)
	o, err = ParseOrdering("broadcast_then_persist")
	require.NoError(t, err)
	assert.Equal(t, BroadcastThenPersist, o)
	_, err = ParseOrdering("whenever")
	assert.Error(t, err)
}

func TestRun_PostMessage(t *testing.T) {
	h := newHarness(t, Options{Ordering: BroadcastThenPersist}, nil, nil)
	h.gw.groups["g1"] = []domain.UserID{"A", "B"}
	b := h.connect("sb")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.o.Run(ctx) }()

	require.NoError(t, h.o.Submit(ctx, FrameEvent("sb", protocol.Join{Room: "g1", UserID: "B"})))

	id, err := h.o.PostMessage(ctx, "g1", protocol.Chat{Text: "from http", SenderID: "A", IsGroup: true})
	require.NoError(t, err)

	msgs := h.gw.Messages()
	require.Len(t, msgs, 1, "stored before the call returns")
	assert.Equal(t, msgs[0].ID, id)
	assert.True(t, msgs[0].Group)
	assert.Equal(t, []savedNotification{{Recipient: "B", MessageID: id, Room: "g1", Kind: domain.NotifyGroupMessage}}, h.gw.Notifications())
	require.Len(t, b.Decoded(), 1)
	assert.Equal(t, "from http", b.Decoded()[0]["message"])

	_, err = h.o.PostMessage(ctx, "g1", protocol.Chat{Text: " ", SenderID: "A", IsGroup: true})
	assert.ErrorIs(t, err, domain.ErrEmptyText)

	cancel()
	require.NoError(t, <-done)
	_, err = h.o.PostMessage(context.Background(), "g1", protocol.Chat{Text: "late", SenderID: "A", IsGroup: true})
	assert.ErrorIs(t, err, ErrStopped)
}
