package model

import "time"

// User is a read-only projection of the account owned by the user service.
// Only the fields needed to label messages are kept here.
type User struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Username    string    `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName *string   `json:"display_name,omitempty"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"-"`
}

// RecentChat summarises one conversation for the chat list.
type RecentChat struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	DisplayName     *string   `json:"display_name,omitempty"`
	AvatarURL       *string   `json:"avatar_url,omitempty"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
}
