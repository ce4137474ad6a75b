package client

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"messenger-sync/model"
	"messenger-sync/protocol"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TempIDPrefix marks messages that exist only locally until the server
// confirms them.
const TempIDPrefix = "temp-"

// ErrPending is returned for mutations aimed at an unconfirmed message.
var ErrPending = errors.New("client: message not confirmed yet")

// IsTemporary reports whether id is a local placeholder.
func IsTemporary(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// MessageSender is the part of Session a Conversation needs.
type MessageSender interface {
	SendMessage(receiverID, text string, replyToID *string, clientID string)
}

// Conversation keeps the local, ordered message list for one peer. It merges
// optimistic sends, server confirmations and events pushed by the other side
// without losing or duplicating entries.
type Conversation struct {
	self   string
	peer   string
	sender MessageSender
	log    *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	messages []model.Message
}

func NewConversation(self, peer string, sender MessageSender, log *zap.Logger) *Conversation {
	if log == nil {
		log = zap.NewNop()
	}
	return &Conversation{
		self:   self,
		peer:   peer,
		sender: sender,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Submit renders text immediately under a temporary id and sends it.
func (c *Conversation) Submit(text string, replyToID *string) (model.Message, error) {
	if replyToID != nil && IsTemporary(*replyToID) {
		return model.Message{}, ErrPending
	}

	clientID := uuid.NewString()
	msg := model.Message{
		ID:          TempIDPrefix + clientID,
		ClientID:    &clientID,
		SenderID:    c.self,
		ReceiverID:  c.peer,
		Text:        text,
		MessageType: model.MessageTypeText,
		ReplyToID:   replyToID,
		CreatedAt:   c.now(),
		Reactions:   []model.Reaction{},
	}

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	c.sender.SendMessage(c.peer, text, replyToID, clientID)
	return msg, nil
}

// LoadHistory merges a history page into the list. Entries of the page win
// over local copies with the same id; confirmed messages the page does not
// contain (pushed while the request was in flight, or older than the page)
// are kept. Pending entries stay at the tail unless the page already holds
// their confirmed record.
func (c *Conversation) LoadHistory(msgs []model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]struct{}, len(msgs))
	confirmed := make(map[string]struct{})
	next := make([]model.Message, 0, len(msgs)+len(c.messages))
	for _, m := range msgs {
		if !c.belongs(&m) {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if m.ClientID != nil {
			confirmed[*m.ClientID] = struct{}{}
		}
		if m.Reactions == nil {
			m.Reactions = []model.Reaction{}
		}
		next = append(next, m)
	}

	var pending []model.Message
	for _, m := range c.messages {
		if IsTemporary(m.ID) {
			if m.ClientID != nil {
				if _, ok := confirmed[*m.ClientID]; ok {
					continue
				}
			}
			pending = append(pending, m)
			continue
		}
		if _, ok := seen[m.ID]; !ok {
			next = append(next, m)
		}
	}

	sort.SliceStable(next, func(i, j int) bool {
		return next[i].CreatedAt.Before(next[j].CreatedAt)
	})
	c.messages = append(next, pending...)
}

// Messages returns a copy of the current list.
func (c *Conversation) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.messages))
	for i, m := range c.messages {
		m.Reactions = append([]model.Reaction{}, m.Reactions...)
		out[i] = m
	}
	return out
}

// Pinned returns the pinned message, if any.
func (c *Conversation) Pinned() *model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].PinnedAt != nil {
			m := c.messages[i]
			return &m
		}
	}
	return nil
}

// Apply merges a server event and reports whether the list changed. Events
// for other conversations and ids not present locally are ignored.
func (c *Conversation) Apply(ev protocol.ServerEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev := ev.(type) {
	case protocol.NewMessage:
		return c.applyNew(ev.Message)
	case protocol.MessagesRead:
		return c.applyRead(ev)
	case protocol.MessagePinned:
		return c.applyPinned(ev)
	case protocol.MessageUnpinned:
		i := c.index(ev.MessageID)
		if i < 0 || c.messages[i].PinnedAt == nil {
			return false
		}
		c.messages[i].PinnedAt = nil
		return true
	case protocol.ReactionAdded:
		return c.applyReactionAdded(ev)
	case protocol.ReactionRemoved:
		return c.applyReactionRemoved(ev)
	case protocol.MessageEdited:
		i := c.index(ev.ID)
		if i < 0 {
			c.log.Debug("edit for unknown message", zap.String("message_id", ev.ID))
			return false
		}
		c.messages[i].Text = ev.Text
		c.messages[i].EditedAt = ev.EditedAt
		return true
	case protocol.MessageDeleted:
		return c.applyDeleted(ev)
	default:
		return false
	}
}

func (c *Conversation) belongs(m *model.Message) bool {
	return (m.SenderID == c.self && m.ReceiverID == c.peer) ||
		(m.SenderID == c.peer && m.ReceiverID == c.self)
}

func (c *Conversation) index(id string) int {
	for i := range c.messages {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Conversation) applyNew(m model.Message) bool {
	if !c.belongs(&m) {
		return false
	}
	if m.Reactions == nil {
		m.Reactions = []model.Reaction{}
	}

	if i := c.index(m.ID); i >= 0 {
		// Seen already: another device's echo or a history reload. A pending
		// entry for the same send may still be waiting for this echo.
		c.messages[i] = m
		if m.ClientID != nil {
			c.dropPending(*m.ClientID)
		}
		return true
	}
	if m.SenderID == c.self {
		if i := c.pendingMatch(&m); i >= 0 {
			c.messages[i] = m
			return true
		}
	}
	c.messages = append(c.messages, m)
	return true
}

// pendingMatch finds the temporary entry confirmed by m: by correlation id
// when the server echoed one, otherwise the oldest pending entry with the
// same text.
func (c *Conversation) pendingMatch(m *model.Message) int {
	if m.ClientID != nil {
		for i := range c.messages {
			t := &c.messages[i]
			if IsTemporary(t.ID) && t.ClientID != nil && *t.ClientID == *m.ClientID {
				return i
			}
		}
		return -1
	}
	for i := range c.messages {
		t := &c.messages[i]
		if IsTemporary(t.ID) && t.SenderID == m.SenderID && t.Text == m.Text {
			return i
		}
	}
	return -1
}

func (c *Conversation) dropPending(clientID string) {
	kept := c.messages[:0]
	for _, m := range c.messages {
		if IsTemporary(m.ID) && m.ClientID != nil && *m.ClientID == clientID {
			continue
		}
		kept = append(kept, m)
	}
	c.messages = kept
}

func (c *Conversation) applyRead(ev protocol.MessagesRead) bool {
	if ev.SenderID != c.self || ev.ReaderID != c.peer {
		return false
	}
	changed := false
	for i := range c.messages {
		m := &c.messages[i]
		if m.SenderID == c.self && !m.IsRead && !IsTemporary(m.ID) {
			at := ev.ReadAt
			m.IsRead = true
			m.ReadAt = &at
			changed = true
		}
	}
	return changed
}

func (c *Conversation) applyPinned(ev protocol.MessagePinned) bool {
	i := c.index(ev.MessageID)
	if i < 0 {
		return false
	}
	for j := range c.messages {
		c.messages[j].PinnedAt = nil
	}
	at := ev.PinnedAt
	c.messages[i].PinnedAt = &at
	return true
}

func (c *Conversation) applyReactionAdded(ev protocol.ReactionAdded) bool {
	i := c.index(ev.MessageID)
	if i < 0 {
		c.log.Debug("reaction for unknown message", zap.String("message_id", ev.MessageID))
		return false
	}
	m := &c.messages[i]
	for _, r := range m.Reactions {
		if r.UserID == ev.UserID && r.Emoji == ev.Emoji {
			return false
		}
	}
	m.Reactions = append(m.Reactions, model.Reaction{
		MessageID: ev.MessageID,
		UserID:    ev.UserID,
		Emoji:     ev.Emoji,
	})
	return true
}

func (c *Conversation) applyReactionRemoved(ev protocol.ReactionRemoved) bool {
	i := c.index(ev.MessageID)
	if i < 0 {
		return false
	}
	m := &c.messages[i]
	for j, r := range m.Reactions {
		if r.UserID == ev.UserID && r.Emoji == ev.Emoji {
			m.Reactions = append(m.Reactions[:j], m.Reactions[j+1:]...)
			return true
		}
	}
	return false
}

func (c *Conversation) applyDeleted(ev protocol.MessageDeleted) bool {
	if !ev.DeletedForEveryone && ev.DeletedFor != c.self {
		return false
	}
	i := c.index(ev.ID)
	if i < 0 {
		return false
	}
	c.messages = append(c.messages[:i], c.messages[i+1:]...)
	return true
}
