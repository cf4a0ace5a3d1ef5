// Package store defines the persistence gateway used by the message router
// and the read side served over HTTP.
package store

import (
	"context"

	"github.com/dkeye/Relay/internal/domain"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
	DefaultPageLimit    = 10
)

// Gateway is what the router writes through. Every call is best effort from
// the router's point of view.
type Gateway interface {
	SaveMessage(ctx context.Context, room domain.RoomID, sender domain.UserID, text string) (string, error)
	SaveGroupMessage(ctx context.Context, group domain.GroupID, sender domain.UserID, text string) (string, error)
	SaveNotification(ctx context.Context, recipient domain.UserID, messageID string, room domain.RoomID, kind domain.NotificationKind) (string, error)
	FindGroupMembers(ctx context.Context, group domain.GroupID) ([]domain.UserID, error)
}

// Reader serves history and read-marking.
type Reader interface {
	History(ctx context.Context, room domain.RoomID, after string, limit int) ([]domain.Message, string, error)
	GroupHistory(ctx context.Context, group domain.GroupID, after string, limit int) ([]domain.GroupMessage, string, error)
	MarkRoomRead(ctx context.Context, room domain.RoomID) (int64, error)

	Notifications(ctx context.Context, recipient domain.UserID, kind domain.NotificationKind, page, limit int) ([]domain.Notification, error)
	MarkNotificationsRead(ctx context.Context, recipient domain.UserID, kind domain.NotificationKind, room domain.RoomID) (int64, error)
	MarkNotificationRead(ctx context.Context, recipient domain.UserID, id string) (*domain.Notification, error)
	UnreadCount(ctx context.Context, recipient domain.UserID) (int64, error)

	CreateGroup(ctx context.Context, g *domain.Group) error
	ListGroups(ctx context.Context) ([]domain.Group, error)
}

type Store interface {
	Gateway
	Reader
	Close() error
}

// ClampLimit applies the history page bounds.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// PageOffset turns a 1-based page into a row offset.
func PageOffset(page, limit int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit, limit
}
