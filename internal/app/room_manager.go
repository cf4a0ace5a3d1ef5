package app

import (
	"sort"
	"sync"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManager is the room registry: room id -> live member set.
// Rooms exist only while they have members.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService
}

func NewRoomManager() *RoomManager {
	return &RoomManager{rooms: make(map[domain.RoomID]core.RoomService)}
}

// Join adds ms to the room, creating the room on first use.
// It reports whether ms was newly added.
func (m *RoomManager) Join(id domain.RoomID, ms core.MemberSession) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		room = core.NewRoomService(&domain.Room{ID: id})
		m.rooms[id] = room
		log.Debug().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	}
	return room.AddMember(ms)
}

// Leave removes sid from the room and drops the room once it is empty.
// Leaving a room one is not in is a no-op.
func (m *RoomManager) Leave(id domain.RoomID, sid core.SessionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return false
	}
	removed := room.RemoveMember(sid)
	if room.MemberCount() == 0 {
		delete(m.rooms, id)
		log.Debug().Str("module", "app.rooms").Str("room", string(id)).Msg("room deleted")
	}
	return removed
}

// MembersOf returns a snapshot of the sessions currently in the room.
func (m *RoomManager) MembersOf(id domain.RoomID) []core.MemberSession {
	room, ok := m.Get(id)
	if !ok {
		return nil
	}
	return room.Sessions()
}

func (m *RoomManager) Get(id domain.RoomID) (core.RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

func (m *RoomManager) List() []core.RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for id, r := range m.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *RoomManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
