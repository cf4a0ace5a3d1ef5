// Package orch routes decoded client frames: membership changes, message
// persistence and room fan-out all happen on one event loop.
package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/dkeye/Relay/internal/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var ErrStopped = errors.New("router stopped")

type Ordering string

const (
	PersistThenBroadcast Ordering = "persist_then_broadcast"
	BroadcastThenPersist Ordering = "broadcast_then_persist"
)

func ParseOrdering(s string) (Ordering, error) {
	switch Ordering(s) {
	case "", PersistThenBroadcast:
		return PersistThenBroadcast, nil
	case BroadcastThenPersist:
		return BroadcastThenPersist, nil
	}
	return "", fmt.Errorf("unknown ordering %q", s)
}

type Options struct {
	Ordering        Ordering
	PersistTimeout  time.Duration
	MaxTextLen      int
	IncludeReadFlag bool
	// Workers and QueueSize size the background persistence pool used by
	// BroadcastThenPersist.
	Workers   int
	QueueSize int
	EventBuf  int
}

func (o Options) withDefaults() Options {
	if o.Ordering == "" {
		o.Ordering = PersistThenBroadcast
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 3 * time.Second
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.EventBuf <= 0 {
		o.EventBuf = 1024
	}
	return o
}

// Event is one input of the loop: a decoded frame from a session, the
// session going away, or a message posted without a session.
type Event struct {
	SID        core.SessionID
	Frame      protocol.Frame
	Disconnect bool
	Post       *Post
}

func FrameEvent(sid core.SessionID, f protocol.Frame) Event { return Event{SID: sid, Frame: f} }
func DisconnectEvent(sid core.SessionID) Event              { return Event{SID: sid, Disconnect: true} }

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Policy   app.Policy
	Store    store.Gateway
	Limiter  *app.RateLimiter

	opts   Options
	events chan Event
	jobs   chan persistJob
	done   chan struct{}
}

func New(reg *app.Registry, rooms *app.RoomManager, policy app.Policy, gw store.Gateway, limiter *app.RateLimiter, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Policy:   policy,
		Store:    gw,
		Limiter:  limiter,
		opts:     opts,
		events:   make(chan Event, opts.EventBuf),
		jobs:     make(chan persistJob, opts.QueueSize),
		done:     make(chan struct{}),
	}
}

// Submit hands an event to the loop. It blocks while the queue is full.
func (o *Orchestrator) Submit(ctx context.Context, ev Event) error {
	select {
	case <-o.done:
		return ErrStopped
	default:
	}
	select {
	case o.events <- ev:
		return nil
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes events until ctx is canceled. Queued background persistence
// is drained before it returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	g := new(errgroup.Group)
	for i := 0; i < o.opts.Workers; i++ {
		g.Go(func() error {
			for job := range o.jobs {
				o.persistDetached(ctx, job)
			}
			return nil
		})
	}

	log.Info().Str("module", "orch").Str("ordering", string(o.opts.Ordering)).Int("workers", o.opts.Workers).Msg("router started")

	prune := time.NewTicker(time.Minute)
	defer prune.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev := <-o.events:
			o.Handle(ctx, ev)
		case <-prune.C:
			o.Limiter.Prune()
		}
	}
	close(o.done)
	close(o.jobs)
	err := g.Wait()
	log.Info().Str("module", "orch").Msg("router stopped")
	return err
}

// Handle processes one event synchronously.
func (o *Orchestrator) Handle(ctx context.Context, ev Event) {
	if ev.Disconnect {
		o.OnDisconnect(ev.SID)
		return
	}
	if ev.Post != nil {
		id, err := o.post(ctx, ev.Post)
		ev.Post.reply <- postResult{id: id, err: err}
		return
	}
	switch f := ev.Frame.(type) {
	case protocol.Join:
		o.Join(ev.SID, f)
	case protocol.Leave:
		o.Leave(ev.SID, f)
	case protocol.Chat:
		o.Chat(ctx, ev.SID, f)
	default:
		log.Warn().Str("module", "orch").Str("sid", string(ev.SID)).Msgf("unhandled frame %T", ev.Frame)
	}
}
