package domain

import "time"

type NotificationKind string

const (
	NotifyMessage      NotificationKind = "message"
	NotifyGroupMessage NotificationKind = "group_message"
)

// Message is a persisted direct or public chat line.
// Only IsRead changes after creation, and only false -> true.
type Message struct {
	ID        string    `json:"id"`
	RoomID    RoomID    `json:"roomId"`
	Sender    UserID    `json:"sender"`
	Text      string    `json:"text"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"date"`
}

type GroupMessage struct {
	ID        string    `json:"id"`
	GroupID   GroupID   `json:"groupId"`
	Sender    UserID    `json:"sender"`
	Text      string    `json:"text"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"date"`
}

// Notification tells Recipient that a message awaits attention.
type Notification struct {
	ID        string           `json:"id"`
	Recipient UserID           `json:"recipient"`
	MessageID string           `json:"message"`
	RoomID    RoomID           `json:"roomId"`
	IsRead    bool             `json:"isRead"`
	Type      NotificationKind `json:"type"`
	CreatedAt time.Time        `json:"date"`
}

type Group struct {
	ID          GroupID   `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Members     []UserID  `json:"members"`
	CreatedAt   time.Time `json:"date"`
}

func (g Group) HasMember(u UserID) bool {
	for _, m := range g.Members {
		if m == u {
			return true
		}
	}
	return false
}
