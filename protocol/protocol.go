// Package protocol defines the JSON frames exchanged over the messenger
// WebSocket. Every frame is a flat object carrying a "type" discriminator next
// to the event fields. The set of kinds is closed: ClientEvent and ServerEvent
// can only be implemented inside this package.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Kind string

// Client → server.
const (
	KindSendMessage Kind = "send_message"
	KindTypingStart Kind = "typing_start"
	KindTypingStop  Kind = "typing_stop"
	KindMarkRead    Kind = "mark_read"
)

// Server → client. typing_start and typing_stop are shared with the client
// direction and keep their names when forwarded.
const (
	KindOnlineUsers     Kind = "online_users"
	KindNewMessage      Kind = "new_message"
	KindMessagesRead    Kind = "messages_read"
	KindMessagePinned   Kind = "message_pinned"
	KindMessageUnpinned Kind = "message_unpinned"
	KindReactionAdded   Kind = "reaction_added"
	KindReactionRemoved Kind = "reaction_removed"
	KindMessageEdited   Kind = "message_edited"
	KindMessageDeleted  Kind = "message_deleted"
	KindError           Kind = "error"
)

var (
	ErrMalformed   = errors.New("protocol: malformed frame")
	ErrUnknownKind = errors.New("protocol: unknown event type")
)

// Event is anything that can be written as a frame.
type Event interface {
	Kind() Kind
}

type envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode writes ev as a flat {"type": ..., fields...} object.
func Encode(ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", ev.Kind(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", ev.Kind(), err)
	}
	kind, _ := json.Marshal(ev.Kind())
	fields["type"] = kind
	return json.Marshal(fields)
}

func readEnvelope(frame []byte) (envelope, []byte, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return env, nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	body := frame
	// Frames produced by the REST side of older servers nest fields under "data".
	if len(env.Data) > 0 && env.Data[0] == '{' {
		body = env.Data
	}
	return env, body, nil
}

func decodeInto(kind Kind, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
	}
	return nil
}

func missing(kind Kind, field string) error {
	return fmt.Errorf("%w: %s: %s is required", ErrMalformed, kind, field)
}
