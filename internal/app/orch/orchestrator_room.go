package orch

import (
	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Join moves the session into f.Room, leaving its previous room first.
func (o *Orchestrator) Join(sid core.SessionID, f protocol.Join) {
	session, ok := o.Registry.GetSession(sid)
	if !ok {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("join from unknown session")
		return
	}
	if f.UserID != "" {
		if err := session.SetUser(f.UserID); err != nil {
			log.Warn().Str("module", "orch").Str("sid", string(sid)).Err(err).Msg("join rejected")
			return
		}
	}

	if current, _, joined := o.Registry.RoomOf(sid); joined {
		if current == f.Room {
			return
		}
		o.leave(sid, current)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(current)).Msg("left previous room")
	}

	o.Rooms.Join(f.Room, session)
	o.Registry.UpdateRoom(sid, f.Room)
	log.Info().
		Str("module", "orch").
		Str("sid", string(sid)).
		Str("room", string(f.Room)).
		Str("user", string(session.UserID())).
		Msg("added to room")
}

// Leave removes the session from its current room. The room named in the
// frame is informational only.
func (o *Orchestrator) Leave(sid core.SessionID, f protocol.Leave) {
	current, _, joined := o.Registry.RoomOf(sid)
	if !joined {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Msg("leave without room")
		return
	}
	if f.Room != "" && f.Room != current {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("room", string(f.Room)).Str("current", string(current)).Msg("leave names another room")
	}
	o.leave(sid, current)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(current)).Msg("left room")
}

// OnDisconnect cleans up after a closed transport; safe for sessions that
// never joined or were already removed.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	if current, _, joined := o.Registry.RoomOf(sid); joined {
		o.leave(sid, current)
	}
	o.Registry.Unbind(sid)
}

// Kick removes a member from its room and closes its connection.
func (o *Orchestrator) Kick(sid core.SessionID) {
	if current, _, joined := o.Registry.RoomOf(sid); joined {
		o.leave(sid, current)
	}
	o.Registry.Cancel(sid)
}

func (o *Orchestrator) leave(sid core.SessionID, room domain.RoomID) {
	o.Rooms.Leave(room, sid)
	o.Registry.RemoveRoom(sid)
}

func (o *Orchestrator) broadcast(room domain.RoomID, data core.Frame) {
	r, ok := o.Rooms.Get(room)
	if !ok {
		return
	}
	res := r.Broadcast(data)
	for _, slow := range res.Dropped {
		action := app.DropFrame
		if o.Policy != nil {
			action = o.Policy.OnBackPressure(room, slow)
		}
		switch action {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(slow)).Str("room", string(room)).Msg("kicking slow member")
			o.Kick(slow)
		case app.DropFrame:
			log.Debug().Str("module", "orch").Str("sid", string(slow)).Str("room", string(room)).Msg("frame dropped")
		case app.NoAction:
		}
	}
}
