package protocol

import (
	"fmt"
	"time"

	"messenger-sync/model"
)

// ServerEvent is a frame pushed by the server.
type ServerEvent interface {
	Event
	serverEvent()
}

type OnlineUsers struct {
	Users []string `json:"users"`
}

type NewMessage struct {
	model.Message
}

type TypingStarted struct {
	UserID string `json:"user_id"`
}

type TypingStopped struct {
	UserID string `json:"user_id"`
}

type MessagesRead struct {
	SenderID string    `json:"sender_id"`
	ReaderID string    `json:"reader_id"`
	ReadAt   time.Time `json:"read_at"`
}

type MessagePinned struct {
	MessageID string    `json:"message_id"`
	PinnedAt  time.Time `json:"pinned_at"`
	PinnerID  string    `json:"pinner_id,omitempty"`
}

type MessageUnpinned struct {
	MessageID string `json:"message_id"`
}

type ReactionAdded struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
}

type ReactionRemoved struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
}

type MessageEdited struct {
	model.Message
}

type MessageDeleted struct {
	ID                 string `json:"id"`
	DeletedForEveryone bool   `json:"deleted_for_everyone"`
	DeletedFor         string `json:"deleted_for,omitempty"`
}

// Error is sent back to the author of a rejected frame.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}

func (OnlineUsers) Kind() Kind     { return KindOnlineUsers }
func (NewMessage) Kind() Kind      { return KindNewMessage }
func (TypingStarted) Kind() Kind   { return KindTypingStart }
func (TypingStopped) Kind() Kind   { return KindTypingStop }
func (MessagesRead) Kind() Kind    { return KindMessagesRead }
func (MessagePinned) Kind() Kind   { return KindMessagePinned }
func (MessageUnpinned) Kind() Kind { return KindMessageUnpinned }
func (ReactionAdded) Kind() Kind   { return KindReactionAdded }
func (ReactionRemoved) Kind() Kind { return KindReactionRemoved }
func (MessageEdited) Kind() Kind   { return KindMessageEdited }
func (MessageDeleted) Kind() Kind  { return KindMessageDeleted }
func (Error) Kind() Kind           { return KindError }

func (OnlineUsers) serverEvent()     {}
func (NewMessage) serverEvent()      {}
func (TypingStarted) serverEvent()   {}
func (TypingStopped) serverEvent()   {}
func (MessagesRead) serverEvent()    {}
func (MessagePinned) serverEvent()   {}
func (MessageUnpinned) serverEvent() {}
func (ReactionAdded) serverEvent()   {}
func (ReactionRemoved) serverEvent() {}
func (MessageEdited) serverEvent()   {}
func (MessageDeleted) serverEvent()  {}
func (Error) serverEvent()           {}

// DecodeServer parses a server frame. Events that reference a message must
// carry its id; anything else is reported as malformed.
func DecodeServer(frame []byte) (ServerEvent, error) {
	env, body, err := readEnvelope(frame)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case KindOnlineUsers:
		var ev OnlineUsers
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case KindNewMessage:
		var ev NewMessage
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		if ev.ID == "" {
			return nil, missing(env.Type, "id")
		}
		return ev, nil
	case KindTypingStart:
		var ev TypingStarted
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case KindTypingStop:
		var ev TypingStopped
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case KindMessagesRead:
		var ev MessagesRead
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case KindMessagePinned:
		var ev MessagePinned
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		if ev.MessageID == "" {
			return nil, missing(env.Type, "message_id")
		}
		return ev, nil
	case KindMessageUnpinned:
		var ev MessageUnpinned
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		if ev.MessageID == "" {
			return nil, missing(env.Type, "message_id")
		}
		return ev, nil
	case KindReactionAdded:
		var ev ReactionAdded
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		if ev.MessageID == "" {
			return nil, missing(env.Type, "message_id")
		}
		return ev, nil
	case KindReactionRemoved:
		var ev ReactionRemoved
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		if ev.MessageID == "" {
			return nil, missing(env.Type, "message_id")
		}
		return ev, nil
	case KindMessageEdited:
		var ev MessageEdited
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		if ev.ID == "" {
			return nil, missing(env.Type, "id")
		}
		return ev, nil
	case KindMessageDeleted:
		var ev MessageDeleted
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		if ev.ID == "" {
			return nil, missing(env.Type, "id")
		}
		return ev, nil
	case KindError:
		var ev Error
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}
