package messenger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"messenger-sync/database"
	"messenger-sync/model"
	"messenger-sync/protocol"
	"messenger-sync/store"
)

// load fetches a message for actor and checks that actor may perform action
// on it. Messages the actor hid from themselves count as missing.
func (r *Router) load(ctx context.Context, actor, id, action string) (*model.Message, error) {
	if strings.HasPrefix(id, TempIDPrefix) {
		return nil, ErrPending
	}
	m, err := r.store.Message(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	if m.HiddenFor(actor) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}

	role := database.RoleOutsider
	switch actor {
	case m.SenderID:
		role = database.RoleSender
	case m.ReceiverID:
		role = database.RoleReceiver
	}
	ok, err := r.enforcer.Enforce(role, database.ObjectMessage, action)
	if err != nil {
		return nil, fmt.Errorf("enforce %s: %w", action, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s on message %s: %w", action, id, ErrForbidden)
	}
	return m, nil
}

// Pin pins the message and unpins whatever was pinned before in the same
// conversation. Both participants see the unpin before the pin.
func (r *Router) Pin(ctx context.Context, actor, id string) (*protocol.MessagePinned, error) {
	m, err := r.load(ctx, actor, id, database.ActionPin)
	if err != nil {
		return nil, err
	}

	at := r.now()
	previous, err := r.store.Pin(ctx, m, at)
	if err != nil {
		return nil, err
	}
	for _, prev := range previous {
		r.emit(ctx, protocol.MessageUnpinned{MessageID: prev}, m.SenderID, m.ReceiverID)
	}

	ev := protocol.MessagePinned{MessageID: m.ID, PinnedAt: at, PinnerID: actor}
	r.emit(ctx, ev, m.SenderID, m.ReceiverID)
	return &ev, nil
}

func (r *Router) Unpin(ctx context.Context, actor, id string) error {
	m, err := r.load(ctx, actor, id, database.ActionPin)
	if err != nil {
		return err
	}
	changed, err := r.store.Unpin(ctx, m.ID)
	if err != nil {
		return err
	}
	if changed {
		r.emit(ctx, protocol.MessageUnpinned{MessageID: m.ID}, m.SenderID, m.ReceiverID)
	}
	return nil
}

// AddReaction is idempotent: a repeated add reports false and emits nothing.
func (r *Router) AddReaction(ctx context.Context, actor, id, emoji string) (bool, error) {
	m, emoji, err := r.reactionTarget(ctx, actor, id, emoji)
	if err != nil {
		return false, err
	}
	return r.addReaction(ctx, m, actor, emoji)
}

func (r *Router) RemoveReaction(ctx context.Context, actor, id, emoji string) (bool, error) {
	m, emoji, err := r.reactionTarget(ctx, actor, id, emoji)
	if err != nil {
		return false, err
	}
	return r.removeReaction(ctx, m, actor, emoji)
}

// ToggleReaction adds the reaction when absent and removes it otherwise. It
// reports whether the reaction is present afterwards.
func (r *Router) ToggleReaction(ctx context.Context, actor, id, emoji string) (bool, error) {
	m, emoji, err := r.reactionTarget(ctx, actor, id, emoji)
	if err != nil {
		return false, err
	}
	has, err := r.store.HasReaction(ctx, m.ID, actor, emoji)
	if err != nil {
		return false, err
	}
	if has {
		_, err := r.removeReaction(ctx, m, actor, emoji)
		return false, err
	}
	_, err = r.addReaction(ctx, m, actor, emoji)
	return err == nil, err
}

func (r *Router) reactionTarget(ctx context.Context, actor, id, emoji string) (*model.Message, string, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, "", fmt.Errorf("%w: emoji is required", ErrInvalid)
	}
	m, err := r.load(ctx, actor, id, database.ActionReact)
	if err != nil {
		return nil, "", err
	}
	return m, emoji, nil
}

func (r *Router) addReaction(ctx context.Context, m *model.Message, actor, emoji string) (bool, error) {
	added, err := r.store.AddReaction(ctx, m.ID, actor, emoji)
	if err != nil || !added {
		return false, err
	}
	r.emit(ctx, protocol.ReactionAdded{MessageID: m.ID, UserID: actor, Emoji: emoji}, m.SenderID, m.ReceiverID)
	return true, nil
}

func (r *Router) removeReaction(ctx context.Context, m *model.Message, actor, emoji string) (bool, error) {
	removed, err := r.store.RemoveReaction(ctx, m.ID, actor, emoji)
	if err != nil || !removed {
		return false, err
	}
	r.emit(ctx, protocol.ReactionRemoved{MessageID: m.ID, UserID: actor, Emoji: emoji}, m.SenderID, m.ReceiverID)
	return true, nil
}

// Edit replaces the text of a plain text message. Only the sender may edit.
func (r *Router) Edit(ctx context.Context, actor, id, text string) (*model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalid)
	}
	m, err := r.load(ctx, actor, id, database.ActionEdit)
	if err != nil {
		return nil, err
	}
	if m.MessageType != model.MessageTypeText || m.FileURL != nil {
		return nil, fmt.Errorf("%w: only text messages can be edited", ErrInvalid)
	}

	if err := r.store.Edit(ctx, m.ID, text, r.now()); err != nil {
		return nil, err
	}
	edited, err := r.store.Message(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	r.emit(ctx, protocol.MessageEdited{Message: *edited}, edited.SenderID, edited.ReceiverID)
	return edited, nil
}

// Delete removes the message for both sides, which only the sender may do,
// or hides it for actor alone.
func (r *Router) Delete(ctx context.Context, actor, id string, forEveryone bool) error {
	if forEveryone {
		m, err := r.load(ctx, actor, id, database.ActionDeleteEveryone)
		if err != nil {
			return err
		}
		if err := r.store.DeleteForEveryone(ctx, m.ID); err != nil {
			return err
		}
		r.emit(ctx, protocol.MessageDeleted{ID: m.ID, DeletedForEveryone: true}, m.SenderID, m.ReceiverID)
		return nil
	}

	m, err := r.load(ctx, actor, id, database.ActionDeleteSelf)
	if err != nil {
		return err
	}
	if err := r.store.HideFor(ctx, m, actor); err != nil {
		return err
	}
	r.emit(ctx, protocol.MessageDeleted{ID: m.ID, DeletedFor: actor}, actor)
	return nil
}
