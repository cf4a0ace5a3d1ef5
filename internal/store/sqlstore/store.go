// Package sqlstore is the GORM implementation of store.Store.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/store"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to a SQLite database (file path or ":memory:") and migrates it.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dsn == ":memory:" {
		// every pooled connection would get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db)
}

func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&messageRow{}, &groupMessageRow{}, &notificationRow{}, &groupRow{}, &groupMemberRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) SaveMessage(ctx context.Context, room domain.RoomID, sender domain.UserID, text string) (string, error) {
	row := messageRow{
		ID:        uuid.NewString(),
		RoomID:    string(room),
		Sender:    string(sender),
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to create message: %w", err)
	}
	return row.ID, nil
}

func (s *Store) SaveGroupMessage(ctx context.Context, group domain.GroupID, sender domain.UserID, text string) (string, error) {
	row := groupMessageRow{
		ID:        uuid.NewString(),
		GroupID:   string(group),
		Sender:    string(sender),
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to create group message: %w", err)
	}
	return row.ID, nil
}

func (s *Store) SaveNotification(ctx context.Context, recipient domain.UserID, messageID string, room domain.RoomID, kind domain.NotificationKind) (string, error) {
	row := notificationRow{
		ID:        uuid.NewString(),
		Recipient: string(recipient),
		MessageID: messageID,
		RoomID:    string(room),
		Type:      string(kind),
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to create notification: %w", err)
	}
	return row.ID, nil
}

func (s *Store) FindGroupMembers(ctx context.Context, group domain.GroupID) ([]domain.UserID, error) {
	var g groupRow
	if err := s.db.WithContext(ctx).Preload("Members").First(&g, "id = ?", string(group)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find group: %w", err)
	}
	return g.toDomain().Members, nil
}

func (s *Store) History(ctx context.Context, room domain.RoomID, after string, limit int) ([]domain.Message, string, error) {
	limit = store.ClampLimit(limit)
	cur, err := store.DecodeCursor(after)
	if err != nil {
		return nil, "", err
	}
	q := s.db.WithContext(ctx).Where("room_id = ?", string(room))
	if cur != nil {
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", cur.CreatedAt, cur.CreatedAt, cur.ID)
	}
	var rows []messageRow
	if err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, "", fmt.Errorf("failed to load history: %w", err)
	}
	out := make([]domain.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	var last store.Cursor
	if len(rows) > 0 {
		last = store.Cursor{CreatedAt: rows[len(rows)-1].CreatedAt, ID: rows[len(rows)-1].ID}
	}
	return out, store.NextCursor(len(rows), limit, last), nil
}

func (s *Store) GroupHistory(ctx context.Context, group domain.GroupID, after string, limit int) ([]domain.GroupMessage, string, error) {
	limit = store.ClampLimit(limit)
	cur, err := store.DecodeCursor(after)
	if err != nil {
		return nil, "", err
	}
	q := s.db.WithContext(ctx).Where("group_id = ?", string(group))
	if cur != nil {
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", cur.CreatedAt, cur.CreatedAt, cur.ID)
	}
	var rows []groupMessageRow
	if err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, "", fmt.Errorf("failed to load group history: %w", err)
	}
	out := make([]domain.GroupMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	var last store.Cursor
	if len(rows) > 0 {
		last = store.Cursor{CreatedAt: rows[len(rows)-1].CreatedAt, ID: rows[len(rows)-1].ID}
	}
	return out, store.NextCursor(len(rows), limit, last), nil
}

func (s *Store) MarkRoomRead(ctx context.Context, room domain.RoomID) (int64, error) {
	res := s.db.WithContext(ctx).Model(&messageRow{}).
		Where("room_id = ? AND is_read = ?", string(room), false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) Notifications(ctx context.Context, recipient domain.UserID, kind domain.NotificationKind, page, limit int) ([]domain.Notification, error) {
	offset, limit := store.PageOffset(page, limit)
	var rows []notificationRow
	err := s.db.WithContext(ctx).
		Where("recipient = ? AND type = ?", string(recipient), string(kind)).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	out := make([]domain.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) MarkNotificationsRead(ctx context.Context, recipient domain.UserID, kind domain.NotificationKind, room domain.RoomID) (int64, error) {
	res := s.db.WithContext(ctx).Model(&notificationRow{}).
		Where("recipient = ? AND type = ? AND room_id = ? AND is_read = ?", string(recipient), string(kind), string(room), false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, recipient domain.UserID, id string) (*domain.Notification, error) {
	var row notificationRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find notification: %w", err)
	}
	if row.Recipient != string(recipient) {
		return nil, domain.ErrNotParticipant
	}
	if !row.IsRead {
		if err := s.db.WithContext(ctx).Model(&row).Update("is_read", true).Error; err != nil {
			return nil, fmt.Errorf("failed to mark notification read: %w", err)
		}
	}
	n := row.toDomain()
	n.IsRead = true
	return &n, nil
}

func (s *Store) UnreadCount(ctx context.Context, recipient domain.UserID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&notificationRow{}).
		Where("recipient = ? AND is_read = ?", string(recipient), false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return n, nil
}

func (s *Store) CreateGroup(ctx context.Context, g *domain.Group) error {
	if g.Name == "" {
		return domain.ErrEmptyGroupName
	}
	if g.ID == "" {
		g.ID = domain.GroupID(uuid.NewString())
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.now()
	}
	row := groupRow{
		ID:          string(g.ID),
		Name:        g.Name,
		Description: g.Description,
		CreatedAt:   g.CreatedAt,
	}
	seen := make(map[domain.UserID]struct{}, len(g.Members))
	for _, m := range g.Members {
		if _, dup := seen[m]; dup || m == "" {
			continue
		}
		seen[m] = struct{}{}
		row.Members = append(row.Members, groupMemberRow{GroupID: row.ID, UserID: string(m)})
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

func (s *Store) ListGroups(ctx context.Context) ([]domain.Group, error) {
	var rows []groupRow
	if err := s.db.WithContext(ctx).Preload("Members").Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	out := make([]domain.Group, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
