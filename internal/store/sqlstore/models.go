package sqlstore

import (
	"time"

	"github.com/dkeye/Relay/internal/domain"
)

type messageRow struct {
	ID        string    `gorm:"primarykey;size:36"`
	RoomID    string    `gorm:"size:200;not null;index:idx_messages_room_created,priority:1"`
	Sender    string    `gorm:"size:64;not null"`
	Text      string    `gorm:"not null"`
	IsRead    bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_room_created,priority:2"`
}

func (messageRow) TableName() string { return "messages" }

func (r messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:        r.ID,
		RoomID:    domain.RoomID(r.RoomID),
		Sender:    domain.UserID(r.Sender),
		Text:      r.Text,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
	}
}

type groupMessageRow struct {
	ID        string    `gorm:"primarykey;size:36"`
	GroupID   string    `gorm:"size:64;not null;index:idx_group_messages_group_created,priority:1"`
	Sender    string    `gorm:"size:64;not null"`
	Text      string    `gorm:"not null"`
	IsRead    bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null;index:idx_group_messages_group_created,priority:2"`
}

func (groupMessageRow) TableName() string { return "group_messages" }

func (r groupMessageRow) toDomain() domain.GroupMessage {
	return domain.GroupMessage{
		ID:        r.ID,
		GroupID:   domain.GroupID(r.GroupID),
		Sender:    domain.UserID(r.Sender),
		Text:      r.Text,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
	}
}

// notificationRow stores both direct and group notifications; Type tells
// them apart and RoomID holds the group id for group notifications.
type notificationRow struct {
	ID        string    `gorm:"primarykey;size:36"`
	Recipient string    `gorm:"size:64;not null;index:idx_notifications_recipient,priority:1"`
	MessageID string    `gorm:"size:36;not null"`
	RoomID    string    `gorm:"size:200;not null;index"`
	IsRead    bool      `gorm:"not null;default:false;index:idx_notifications_recipient,priority:2"`
	Type      string    `gorm:"size:32;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (notificationRow) TableName() string { return "notifications" }

func (r notificationRow) toDomain() domain.Notification {
	return domain.Notification{
		ID:        r.ID,
		Recipient: domain.UserID(r.Recipient),
		MessageID: r.MessageID,
		RoomID:    domain.RoomID(r.RoomID),
		IsRead:    r.IsRead,
		Type:      domain.NotificationKind(r.Type),
		CreatedAt: r.CreatedAt,
	}
}

type groupRow struct {
	ID          string           `gorm:"primarykey;size:64"`
	Name        string           `gorm:"size:100;not null"`
	Description string           `gorm:"size:500"`
	Members     []groupMemberRow `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time        `gorm:"not null"`
}

func (groupRow) TableName() string { return "chat_groups" }

func (r groupRow) toDomain() domain.Group {
	g := domain.Group{
		ID:          domain.GroupID(r.ID),
		Name:        r.Name,
		Description: r.Description,
		Members:     make([]domain.UserID, 0, len(r.Members)),
		CreatedAt:   r.CreatedAt,
	}
	for _, m := range r.Members {
		g.Members = append(g.Members, domain.UserID(m.UserID))
	}
	return g
}

type groupMemberRow struct {
	GroupID string `gorm:"primarykey;size:64"`
	UserID  string `gorm:"primarykey;size:64"`
}

func (groupMemberRow) TableName() string { return "group_members" }
