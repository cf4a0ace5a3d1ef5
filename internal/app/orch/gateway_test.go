package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Relay/internal/domain"
)

type savedMessage struct {
	ID     string
	Room   domain.RoomID
	Group  bool
	Sender domain.UserID
	Text   string
}

type savedNotification struct {
	Recipient domain.UserID
	MessageID string
	Room      domain.RoomID
	Kind      domain.NotificationKind
}

var errStoreDown = errors.New("store down")

// recordingGateway is an in-memory store.Gateway.
type recordingGateway struct {
	mu            sync.Mutex
	messages      []savedMessage
	notifications []savedNotification
	groups        map[domain.GroupID][]domain.UserID
	fail          bool
	onSave        func()
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{groups: make(map[domain.GroupID][]domain.UserID)}
}

func (g *recordingGateway) save(m savedMessage) (string, error) {
	if g.onSave != nil {
		g.onSave()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return "", errStoreDown
	}
	m.ID = fmt.Sprintf("m%d", len(g.messages)+1)
	g.messages = append(g.messages, m)
	return m.ID, nil
}

func (g *recordingGateway) SaveMessage(_ context.Context, room domain.RoomID, sender domain.UserID, text string) (string, error) {
	return g.save(savedMessage{Room: room, Sender: sender, Text: text})
}

func (g *recordingGateway) SaveGroupMessage(_ context.Context, group domain.GroupID, sender domain.UserID, text string) (string, error) {
	return g.save(savedMessage{Room: domain.RoomID(group), Group: true, Sender: sender, Text: text})
}

func (g *recordingGateway) SaveNotification(_ context.Context, recipient domain.UserID, messageID string, room domain.RoomID, kind domain.NotificationKind) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return "", errStoreDown
	}
	g.notifications = append(g.notifications, savedNotification{Recipient: recipient, MessageID: messageID, Room: room, Kind: kind})
	return fmt.Sprintf("n%d", len(g.notifications)), nil
}

func (g *recordingGateway) FindGroupMembers(_ context.Context, group domain.GroupID) ([]domain.UserID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	members, ok := g.groups[group]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.UserID(nil), members...), nil
}

func (g *recordingGateway) Messages() []savedMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]savedMessage(nil), g.messages...)
}

func (g *recordingGateway) Notifications() []savedNotification {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]savedNotification(nil), g.notifications...)
}
