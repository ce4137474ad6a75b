package protocol

import "fmt"

// ClientEvent is a frame sent by a client.
type ClientEvent interface {
	Event
	clientEvent()
}

type SendMessage struct {
	ReceiverID string  `json:"receiver_id"`
	Text       string  `json:"text"`
	ReplyToID  *string `json:"reply_to_id,omitempty"`
	// ClientID correlates the optimistic copy with the stored message.
	ClientID string `json:"client_id,omitempty"`
}

type TypingStart struct {
	ReceiverID string `json:"receiver_id"`
}

type TypingStop struct {
	ReceiverID string `json:"receiver_id"`
}

type MarkRead struct {
	SenderID string `json:"sender_id"`
}

func (SendMessage) Kind() Kind { return KindSendMessage }
func (TypingStart) Kind() Kind { return KindTypingStart }
func (TypingStop) Kind() Kind  { return KindTypingStop }
func (MarkRead) Kind() Kind    { return KindMarkRead }

func (SendMessage) clientEvent() {}
func (TypingStart) clientEvent() {}
func (TypingStop) clientEvent()  {}
func (MarkRead) clientEvent()    {}

// DecodeClient parses a client frame and checks its required fields.
func DecodeClient(frame []byte) (ClientEvent, error) {
	env, body, err := readEnvelope(frame)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case KindSendMessage:
		var ev SendMessage
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		if ev.ReceiverID == "" {
			return nil, missing(env.Type, "receiver_id")
		}
		if ev.Text == "" {
			return nil, missing(env.Type, "text")
		}
		if ev.ReplyToID != nil && *ev.ReplyToID == "" {
			ev.ReplyToID = nil
		}
		return ev, nil
	case KindTypingStart:
		var ev TypingStart
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		if ev.ReceiverID == "" {
			return nil, missing(env.Type, "receiver_id")
		}
		return ev, nil
	case KindTypingStop:
		var ev TypingStop
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		if ev.ReceiverID == "" {
			return nil, missing(env.Type, "receiver_id")
		}
		return ev, nil
	case KindMarkRead:
		var ev MarkRead
		if err := decodeInto(env.Type, body, &ev); err != nil {
			return nil, err
		}
		if ev.SenderID == "" {
			return nil, missing(env.Type, "sender_id")
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}
