package core

import (
	"sync"

	"github.com/dkeye/Relay/internal/domain"
)

// memberSession implements MemberSession by pairing meta + transport.
type memberSession struct {
	id     SessionID
	mu     sync.RWMutex
	meta   *domain.Member
	signal SignalConnection
}

func NewMemberSession(id SessionID, meta *domain.Member, signal SignalConnection) MemberSession {
	if meta == nil {
		meta = domain.NewMember(nil)
	}
	return &memberSession{id: id, meta: meta, signal: signal}
}

func (m *memberSession) ID() SessionID            { return m.id }
func (m *memberSession) Meta() *domain.Member     { return m.meta }
func (m *memberSession) Signal() SignalConnection { return m.signal }

func (m *memberSession) SetUser(id domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta.User.SetID(id)
}

func (m *memberSession) UserID() domain.UserID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meta.User.ID
}
