// Package messenger routes client events: it validates them, persists the
// result and fans the matching server events out to the participants'
// connections.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"messenger-sync/event"
	"messenger-sync/model"
	"messenger-sync/presence"
	"messenger-sync/protocol"
	"messenger-sync/registry"
	"messenger-sync/store"

	"go.uber.org/zap"
)

// TempIDPrefix marks client-side placeholder ids. They are never stored.
const TempIDPrefix = "temp-"

const recentLimit = 50

// Enforcer is satisfied by *casbin.Enforcer.
type Enforcer interface {
	Enforce(rvals ...interface{}) (bool, error)
}

type Options struct {
	Store        *store.Store
	Registry     registry.Registry
	Presence     *presence.Tracker
	Enforcer     Enforcer
	Publisher    event.Publisher
	Logger       *zap.Logger
	HistoryLimit int
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

type Router struct {
	store     *store.Store
	registry  registry.Registry
	presence  *presence.Tracker
	enforcer  Enforcer
	publisher event.Publisher
	log       *zap.Logger
	limit     int
	now       func() time.Time
}

func New(o Options) *Router {
	r := &Router{
		store:     o.Store,
		registry:  o.Registry,
		presence:  o.Presence,
		enforcer:  o.Enforcer,
		publisher: o.Publisher,
		log:       o.Logger,
		limit:     o.HistoryLimit,
		now:       o.Now,
	}
	if r.publisher == nil {
		r.publisher = event.Noop{}
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	return r
}

// Connected registers c and broadcasts the new online set to everyone,
// including c itself. A user seen for the first time gets a users row so
// that others can message them.
func (r *Router) Connected(ctx context.Context, userID string, c registry.Conn) error {
	if err := r.store.EnsureUser(ctx, userID); err != nil {
		r.log.Warn("provision user", zap.String("user_id", userID), zap.Error(err))
	}
	r.registry.Add(userID, c)
	_, err := r.presence.Connect(ctx, userID, r.broadcastOnline)
	if err != nil {
		return fmt.Errorf("presence connect %s: %w", userID, err)
	}
	return nil
}

// Disconnected unregisters c. The user drops out of the online set only
// when their last connection closes.
func (r *Router) Disconnected(ctx context.Context, userID string, c registry.Conn) error {
	r.registry.Remove(userID, c)
	_, err := r.presence.Disconnect(ctx, userID, r.broadcastOnline)
	if err != nil {
		return fmt.Errorf("presence disconnect %s: %w", userID, err)
	}
	return nil
}

func (r *Router) broadcastOnline(ctx context.Context, users []string) error {
	return r.registry.Broadcast(ctx, protocol.OnlineUsers{Users: users})
}

// HandleClient processes one inbound socket event from senderID.
func (r *Router) HandleClient(ctx context.Context, senderID string, ev protocol.ClientEvent) error {
	switch ev := ev.(type) {
	case protocol.SendMessage:
		_, err := r.Send(ctx, senderID, ev)
		return err
	case protocol.TypingStart:
		return r.typing(ctx, senderID, ev.ReceiverID, protocol.TypingStarted{UserID: senderID})
	case protocol.TypingStop:
		return r.typing(ctx, senderID, ev.ReceiverID, protocol.TypingStopped{UserID: senderID})
	case protocol.MarkRead:
		_, err := r.MarkRead(ctx, senderID, ev.SenderID)
		return err
	default:
		return fmt.Errorf("%w: unhandled event %T", ErrInvalid, ev)
	}
}

// Send stores a new message and delivers it to the receiver and to every
// connection of the sender, the originating one included.
func (r *Router) Send(ctx context.Context, senderID string, ev protocol.SendMessage) (*model.Message, error) {
	if ev.ReceiverID == senderID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrInvalid)
	}
	if strings.TrimSpace(ev.Text) == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalid)
	}
	if _, err := r.store.User(ctx, ev.ReceiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown receiver %s", ErrInvalid, ev.ReceiverID)
		}
		return nil, err
	}

	msg := &model.Message{
		SenderID:   senderID,
		ReceiverID: ev.ReceiverID,
		CreatedAt:  r.now(),
	}
	msg.Text, msg.MessageType, msg.FileURL = parseAttachment(ev.Text)
	if ev.ClientID != "" {
		id := ev.ClientID
		msg.ClientID = &id
	}

	if ev.ReplyToID != nil {
		if strings.HasPrefix(*ev.ReplyToID, TempIDPrefix) {
			return nil, ErrPending
		}
		target, err := r.store.Message(ctx, *ev.ReplyToID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: reply target %s", ErrInvalid, *ev.ReplyToID)
			}
			return nil, err
		}
		if !target.Participant(senderID) || !target.Participant(ev.ReceiverID) {
			return nil, fmt.Errorf("%w: reply target belongs to another conversation", ErrInvalid)
		}
		msg.ReplyToID = ev.ReplyToID
	}

	if err := r.store.Create(ctx, msg); err != nil {
		return nil, err
	}
	stored, err := r.store.Message(ctx, msg.ID)
	if err != nil {
		return nil, err
	}

	r.emit(ctx, protocol.NewMessage{Message: *stored}, stored.ReceiverID, stored.SenderID)
	return stored, nil
}

// parseAttachment recognises "[image]<url>" and "[file]<url>" bodies.
func parseAttachment(text string) (string, string, *string) {
	switch {
	case strings.HasPrefix(text, "[image]"):
		url := strings.TrimPrefix(text, "[image]")
		return "", model.MessageTypeImage, &url
	case strings.HasPrefix(text, "[file]"):
		url := strings.TrimPrefix(text, "[file]")
		return text, model.MessageTypeFile, &url
	default:
		return text, model.MessageTypeText, nil
	}
}

func (r *Router) typing(ctx context.Context, senderID, receiverID string, ev protocol.ServerEvent) error {
	if receiverID == senderID {
		return fmt.Errorf("%w: typing to yourself", ErrInvalid)
	}
	return r.registry.Unicast(ctx, receiverID, ev)
}

// MarkRead marks everything senderID sent to readerID as read and tells the
// sender. Nothing is emitted when there was nothing unread.
func (r *Router) MarkRead(ctx context.Context, readerID, senderID string) (int64, error) {
	if readerID == senderID {
		return 0, fmt.Errorf("%w: cannot mark own messages read", ErrInvalid)
	}
	at := r.now()
	n, err := r.store.MarkRead(ctx, senderID, readerID, at)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.emit(ctx, protocol.MessagesRead{SenderID: senderID, ReaderID: readerID, ReadAt: at}, senderID)
	}
	return n, nil
}

// History returns the conversation between viewer and peer, oldest first.
func (r *Router) History(ctx context.Context, viewer, peer string) ([]model.Message, error) {
	if peer == "" || peer == viewer {
		return nil, fmt.Errorf("%w: bad peer", ErrInvalid)
	}
	return r.store.Conversation(ctx, viewer, peer, r.limit)
}

// Online lists the users with at least one open connection, sorted.
func (r *Router) Online(ctx context.Context) ([]string, error) {
	return r.presence.Online(ctx)
}

func (r *Router) IsOnline(ctx context.Context, userID string) (bool, error) {
	return r.presence.IsOnline(ctx, userID)
}

func (r *Router) Recent(ctx context.Context, viewer string) ([]model.RecentChat, error) {
	return r.store.Recent(ctx, viewer, recentLimit)
}

// emit delivers ev to each distinct user and records it downstream.
func (r *Router) emit(ctx context.Context, ev protocol.ServerEvent, users ...string) {
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		if err := r.registry.Unicast(ctx, u, ev); err != nil {
			r.log.Warn("fan-out failed",
				zap.String("type", string(ev.Kind())),
				zap.String("user_id", u),
				zap.Error(err),
			)
		}
	}

	data, err := protocol.Encode(ev)
	if err != nil {
		r.log.Error("encode event", zap.String("type", string(ev.Kind())), zap.Error(err))
		return
	}
	if err := r.publisher.Publish(ctx, string(ev.Kind()), data); err != nil {
		r.log.Warn("publish event", zap.String("type", string(ev.Kind())), zap.Error(err))
	}
}
