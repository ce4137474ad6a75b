package model

import "time"

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

// Message is one direct message between two users. Identity and the
// sender/receiver pair never change once stored; read state, text, pin and
// reactions are mutable.
type Message struct {
	ID          string  `gorm:"primaryKey;size:64" json:"id"`
	ClientID    *string `gorm:"size:64;index" json:"client_id,omitempty"`
	SenderID    string  `gorm:"size:64;not null;index:idx_messages_pair,priority:1" json:"sender_id"`
	ReceiverID  string  `gorm:"size:64;not null;index:idx_messages_pair,priority:2" json:"receiver_id"`
	Text        string  `gorm:"not null;default:''" json:"text"`
	MessageType string  `gorm:"size:16;not null;default:'text'" json:"message_type"`
	FileURL     *string `json:"file_url,omitempty"`
	ReplyToID   *string `gorm:"size:64" json:"reply_to_id,omitempty"`

	IsRead   bool       `gorm:"not null;default:false" json:"is_read"`
	ReadAt   *time.Time `json:"read_at"`
	EditedAt *time.Time `json:"edited_at,omitempty"`
	PinnedAt *time.Time `json:"pinned_at,omitempty"`

	DeletedForSender   bool `gorm:"not null;default:false" json:"-"`
	DeletedForReceiver bool `gorm:"not null;default:false" json:"-"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"-"`

	Reactions []Reaction `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"reactions"`

	SenderName     string          `gorm:"-" json:"sender_name,omitempty"`
	RepliedMessage *RepliedMessage `gorm:"-" json:"replied_message,omitempty"`
}

// RepliedMessage is the short form of the message a reply points at.
type RepliedMessage struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	SenderID    string  `json:"sender_id"`
	MessageType string  `json:"message_type"`
	FileURL     *string `json:"file_url,omitempty"`
}

// Edited reports whether the text was changed after sending.
func (m *Message) Edited() bool {
	return m.EditedAt != nil
}

// Participant reports whether userID is one side of the conversation.
func (m *Message) Participant(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Peer returns the other side of the conversation as seen by userID.
func (m *Message) Peer(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// HiddenFor reports whether userID removed the message from their own view.
func (m *Message) HiddenFor(userID string) bool {
	if m.SenderID == userID && m.DeletedForSender {
		return true
	}
	return m.ReceiverID == userID && m.DeletedForReceiver
}

// Reaction is unique per (message, user, emoji).
type Reaction struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	MessageID string    `gorm:"size:64;not null;uniqueIndex:idx_reactions_unique,priority:1" json:"message_id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_reactions_unique,priority:2" json:"user_id"`
	Emoji     string    `gorm:"size:64;not null;uniqueIndex:idx_reactions_unique,priority:3" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}
