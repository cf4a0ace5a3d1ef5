package orch

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type persistJob struct {
	room     domain.RoomID
	kind     domain.RoomKind
	sender   domain.UserID
	receiver domain.UserID
	text     string
}

func (j persistJob) logger() zerolog.Logger {
	return log.With().
		Str("module", "orch.persist").
		Str("room", string(j.room)).
		Str("kind", j.kind.String()).
		Str("user", string(j.sender)).
		Logger()
}

// Chat relays a message to the sender's current room and persists it.
func (o *Orchestrator) Chat(ctx context.Context, sid core.SessionID, f protocol.Chat) {
	room, _, joined := o.Registry.RoomOf(sid)
	if !joined {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Err(domain.ErrNotJoined).Msg("message dropped")
		return
	}
	if err := o.validate(f); err != nil {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room)).Err(err).Msg("message dropped")
		return
	}
	if !o.Limiter.Allow(f.SenderID) {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("user", string(f.SenderID)).Msg("rate limited")
		return
	}

	data, err := protocol.NewDelivery(f.Text, f.SenderID, o.opts.IncludeReadFlag).Encode()
	if err != nil {
		log.Error().Str("module", "orch").Err(err).Msg("encode delivery")
		return
	}
	job := persistJob{
		room:     room,
		kind:     domain.KindOf(room, f.IsGroup),
		sender:   f.SenderID,
		receiver: f.ReceiverID,
		text:     f.Text,
	}

	switch o.opts.Ordering {
	case BroadcastThenPersist:
		o.broadcast(room, data)
		o.enqueue(job)
	default:
		pctx, cancel := context.WithTimeout(ctx, o.opts.PersistTimeout)
		o.persist(pctx, job)
		cancel()
		o.broadcast(room, data)
	}
}

// Post is a message submitted outside a websocket session, such as an HTTP
// call. It is always stored before it is relayed to the room.
type Post struct {
	Room  domain.RoomID
	Chat  protocol.Chat
	reply chan postResult
}

type postResult struct {
	id  string
	err error
}

// PostMessage routes a message into room through the loop and returns the
// stored message id once it has been persisted and relayed.
func (o *Orchestrator) PostMessage(ctx context.Context, room domain.RoomID, f protocol.Chat) (string, error) {
	p := &Post{Room: room, Chat: f, reply: make(chan postResult, 1)}
	if err := o.Submit(ctx, Event{Post: p}); err != nil {
		return "", err
	}
	select {
	case r := <-p.reply:
		return r.id, r.err
	case <-o.done:
		select {
		case r := <-p.reply:
			return r.id, r.err
		default:
			return "", ErrStopped
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (o *Orchestrator) post(ctx context.Context, p *Post) (string, error) {
	if err := o.validate(p.Chat); err != nil {
		return "", err
	}
	data, err := protocol.NewDelivery(p.Chat.Text, p.Chat.SenderID, o.opts.IncludeReadFlag).Encode()
	if err != nil {
		return "", err
	}
	job := persistJob{
		room:     p.Room,
		kind:     domain.KindOf(p.Room, p.Chat.IsGroup),
		sender:   p.Chat.SenderID,
		receiver: p.Chat.ReceiverID,
		text:     p.Chat.Text,
	}
	pctx, cancel := context.WithTimeout(ctx, o.opts.PersistTimeout)
	id, err := o.persist(pctx, job)
	cancel()
	if err != nil {
		return "", err
	}
	o.broadcast(p.Room, data)
	return id, nil
}

func (o *Orchestrator) validate(f protocol.Chat) error {
	if f.SenderID == "" {
		return domain.ErrEmptySender
	}
	if strings.TrimSpace(f.Text) == "" {
		return domain.ErrEmptyText
	}
	if o.opts.MaxTextLen > 0 && utf8.RuneCountInString(f.Text) > o.opts.MaxTextLen {
		return domain.ErrTextTooLong
	}
	return nil
}

func (o *Orchestrator) enqueue(job persistJob) {
	select {
	case o.jobs <- job:
	default:
		l := job.logger()
		l.Warn().Msg("persist queue full, message not stored")
	}
}

// persistDetached runs a queued job; shutdown does not cut it short, only
// the persist timeout does.
func (o *Orchestrator) persistDetached(ctx context.Context, job persistJob) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.PersistTimeout)
	defer cancel()
	_, _ = o.persist(pctx, job)
}

// persist stores the message and one notification per recipient and returns
// the stored message id. Failures are logged; the caller may ignore them.
func (o *Orchestrator) persist(ctx context.Context, job persistJob) (string, error) {
	if o.Store == nil {
		return "", nil
	}
	l := job.logger()

	switch job.kind {
	case domain.KindGroup:
		members, err := o.Store.FindGroupMembers(ctx, domain.GroupID(job.room))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				l.Warn().Msg("unknown group, message not stored")
			} else {
				l.Error().Err(err).Msg("find group members")
			}
			return "", err
		}
		return o.persistGroup(ctx, l, job, members)

	case domain.KindDirect:
		recipient, ok := directRecipient(job.room, job.sender, job.receiver)
		if !ok {
			// Clients may omit the group flag; a room that is not a direct
			// key of the sender is checked against the known groups.
			members, err := o.Store.FindGroupMembers(ctx, domain.GroupID(job.room))
			if err == nil {
				return o.persistGroup(ctx, l, job, members)
			}
			if !errors.Is(err, domain.ErrNotFound) {
				l.Error().Err(err).Msg("find group members")
			}
		}
		id, err := o.Store.SaveMessage(ctx, job.room, job.sender, job.text)
		if err != nil {
			l.Error().Err(err).Msg("save message")
			return "", err
		}
		if !ok {
			l.Warn().Str("receiver", string(job.receiver)).Msg("cannot derive direct recipient")
			return id, nil
		}
		if _, err := o.Store.SaveNotification(ctx, recipient, id, job.room, domain.NotifyMessage); err != nil {
			l.Error().Err(err).Str("recipient", string(recipient)).Msg("save notification")
		}
		return id, nil

	default:
		id, err := o.Store.SaveMessage(ctx, job.room, job.sender, job.text)
		if err != nil {
			l.Error().Err(err).Msg("save message")
		}
		return id, err
	}
}

func (o *Orchestrator) persistGroup(ctx context.Context, l zerolog.Logger, job persistJob, members []domain.UserID) (string, error) {
	id, err := o.Store.SaveGroupMessage(ctx, domain.GroupID(job.room), job.sender, job.text)
	if err != nil {
		l.Error().Err(err).Msg("save group message")
		return "", err
	}
	for _, m := range members {
		if m == job.sender {
			continue
		}
		if _, err := o.Store.SaveNotification(ctx, m, id, job.room, domain.NotifyGroupMessage); err != nil {
			l.Error().Err(err).Str("recipient", string(m)).Msg("save group notification")
		}
	}
	return id, nil
}

// directRecipient prefers the client-supplied receiver when it forms the
// room's key with the sender, else recovers the other participant from the key.
func directRecipient(room domain.RoomID, sender, receiver domain.UserID) (domain.UserID, bool) {
	if receiver != "" && receiver != sender && domain.DirectKey(sender, receiver) == room {
		return receiver, true
	}
	pair, ok := domain.PairFromKey(room, sender)
	if !ok {
		return "", false
	}
	return pair.Other(sender)
}
