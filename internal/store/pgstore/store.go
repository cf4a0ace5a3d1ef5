// Package pgstore implements store.Store on Postgres through a pgx pool.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open connects to Postgres and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) SaveMessage(ctx context.Context, room domain.RoomID, sender domain.UserID, text string) (string, error) {
	var id string
	if err := s.db.QueryRow(ctx, qInsertMessage, uuid.NewString(), room, sender, text).Scan(&id); err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

func (s *Store) SaveGroupMessage(ctx context.Context, group domain.GroupID, sender domain.UserID, text string) (string, error) {
	var id string
	if err := s.db.QueryRow(ctx, qInsertGroupMessage, uuid.NewString(), group, sender, text).Scan(&id); err != nil {
		return "", fmt.Errorf("insert group message: %w", err)
	}
	return id, nil
}

func (s *Store) SaveNotification(ctx context.Context, recipient domain.UserID, messageID string, room domain.RoomID, kind domain.NotificationKind) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, qInsertNotification, uuid.NewString(), recipient, messageID, room, kind).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert notification: %w", err)
	}
	return id, nil
}

func (s *Store) FindGroupMembers(ctx context.Context, group domain.GroupID) ([]domain.UserID, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, qGroupExists, group).Scan(&exists); err != nil {
		return nil, fmt.Errorf("group exists: %w", err)
	}
	if !exists {
		return nil, domain.ErrNotFound
	}
	rows, err := s.db.Query(ctx, qGroupMembers, group)
	if err != nil {
		return nil, fmt.Errorf("group members: %w", err)
	}
	defer rows.Close()

	var out []domain.UserID
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, domain.UserID(u))
	}
	return out, rows.Err()
}

func cursorArgs(after string) (any, any, error) {
	cur, err := store.DecodeCursor(after)
	if err != nil {
		return nil, nil, err
	}
	if cur == nil {
		return nil, nil, nil
	}
	return cur.CreatedAt, cur.ID, nil
}

func (s *Store) History(ctx context.Context, room domain.RoomID, after string, limit int) ([]domain.Message, string, error) {
	limit = store.ClampLimit(limit)
	createdAt, id, err := cursorArgs(after)
	if err != nil {
		return nil, "", err
	}
	rows, err := s.db.Query(ctx, qHistory, room, createdAt, id, limit)
	if err != nil {
		return nil, "", fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.Sender, &m.Text, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, "", err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var last store.Cursor
	if len(out) > 0 {
		last = store.Cursor{CreatedAt: out[len(out)-1].CreatedAt, ID: out[len(out)-1].ID}
	}
	return out, store.NextCursor(len(out), limit, last), nil
}

func (s *Store) GroupHistory(ctx context.Context, group domain.GroupID, after string, limit int) ([]domain.GroupMessage, string, error) {
	limit = store.ClampLimit(limit)
	createdAt, id, err := cursorArgs(after)
	if err != nil {
		return nil, "", err
	}
	rows, err := s.db.Query(ctx, qGroupHistory, group, createdAt, id, limit)
	if err != nil {
		return nil, "", fmt.Errorf("group history: %w", err)
	}
	defer rows.Close()

	var out []domain.GroupMessage
	for rows.Next() {
		var m domain.GroupMessage
		if err := rows.Scan(&m.ID, &m.GroupID, &m.Sender, &m.Text, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, "", err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var last store.Cursor
	if len(out) > 0 {
		last = store.Cursor{CreatedAt: out[len(out)-1].CreatedAt, ID: out[len(out)-1].ID}
	}
	return out, store.NextCursor(len(out), limit, last), nil
}

func (s *Store) MarkRoomRead(ctx context.Context, room domain.RoomID) (int64, error) {
	tag, err := s.db.Exec(ctx, qMarkRoomRead, room)
	if err != nil {
		return 0, fmt.Errorf("mark room read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(&n.ID, &n.Recipient, &n.MessageID, &n.RoomID, &n.IsRead, &n.Type, &n.CreatedAt)
	return n, err
}

func (s *Store) Notifications(ctx context.Context, recipient domain.UserID, kind domain.NotificationKind, page, limit int) ([]domain.Notification, error) {
	offset, limit := store.PageOffset(page, limit)
	rows, err := s.db.Query(ctx, qNotifications, recipient, kind, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationsRead(ctx context.Context, recipient domain.UserID, kind domain.NotificationKind, room domain.RoomID) (int64, error) {
	tag, err := s.db.Exec(ctx, qMarkNotificationsRead, recipient, kind, room)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, recipient domain.UserID, id string) (*domain.Notification, error) {
	n, err := scanNotification(s.db.QueryRow(ctx, qNotificationByID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find notification: %w", err)
	}
	if n.Recipient != recipient {
		return nil, domain.ErrNotParticipant
	}
	if !n.IsRead {
		if _, err := s.db.Exec(ctx, qMarkNotificationRead, id); err != nil {
			return nil, fmt.Errorf("mark notification read: %w", err)
		}
		n.IsRead = true
	}
	return &n, nil
}

func (s *Store) UnreadCount(ctx context.Context, recipient domain.UserID) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, qUnreadCount, recipient).Scan(&n); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
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
		g.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, qInsertGroup, g.ID, g.Name, g.Description, g.CreatedAt); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	for _, m := range g.Members {
		if m == "" {
			continue
		}
		if _, err := tx.Exec(ctx, qInsertGroupMember, g.ID, m); err != nil {
			return fmt.Errorf("insert group member: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ListGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := s.db.Query(ctx, qListGroups)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []domain.Group
	for rows.Next() {
		var (
			g      domain.Group
			member *string
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &member); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].ID != g.ID {
			g.Members = []domain.UserID{}
			out = append(out, g)
		}
		if member != nil {
			last := &out[len(out)-1]
			last.Members = append(last.Members, domain.UserID(*member))
		}
	}
	return out, rows.Err()
}
