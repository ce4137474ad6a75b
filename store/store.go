// Package store is the durable message log. Rows are appended by Create and
// only their mutable fields (read state, text, pin, reactions, per-viewer
// visibility) change afterwards.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"messenger-sync/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("store: not found")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// conversation restricts a query to the messages exchanged by a and b.
func conversation(a, b string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a)
	}
}

// visibleTo drops messages the viewer deleted for themselves.
func visibleTo(viewer string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(sender_id = ? AND deleted_for_sender = ?) OR (receiver_id = ? AND deleted_for_receiver = ?)", viewer, false, viewer, false)
	}
}

func (s *Store) UpsertUser(ctx context.Context, u *model.User) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "display_name", "avatar_url", "updated_at"}),
	}).Create(u).Error
}

// EnsureUser inserts a bare row for id, using it as the username, unless a
// user with that id or username is already known.
func (s *Store) EnsureUser(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.User{ID: id, Username: id}).Error
	if err != nil {
		return fmt.Errorf("store: ensure user %s: %w", id, err)
	}
	return nil
}

func (s *Store) User(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// Create assigns a fresh id and stores m.
func (s *Store) Create(ctx context.Context, m *model.Message) error {
	m.ID = uuid.NewString()
	if m.MessageType == "" {
		m.MessageType = model.MessageTypeText
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Reactions == nil {
		m.Reactions = []model.Reaction{}
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(m).Error; err != nil {
		return fmt.Errorf("store: create message: %w", err)
	}
	return nil
}

// Message loads one message with its reactions.
func (s *Store) Message(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	err := s.db.WithContext(ctx).
		Preload("Reactions", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&m, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.decorate(ctx, []*model.Message{&m}); err != nil {
		return nil, err
	}
	return &m, nil
}

// Conversation returns the latest limit messages between viewer and peer that
// the viewer has not hidden, oldest first.
func (s *Store) Conversation(ctx context.Context, viewer, peer string, limit int) ([]model.Message, error) {
	var msgs []model.Message
	q := s.db.WithContext(ctx).
		Scopes(conversation(viewer, peer), visibleTo(viewer)).
		Preload("Reactions", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("store: conversation: %w", err)
	}

	if msgs == nil {
		msgs = []model.Message{}
	}
	// Newest-first was only needed for the limit.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	ptrs := make([]*model.Message, len(msgs))
	for i := range msgs {
		if msgs[i].Reactions == nil {
			msgs[i].Reactions = []model.Reaction{}
		}
		ptrs[i] = &msgs[i]
	}
	if err := s.decorate(ctx, ptrs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// decorate fills the display-only fields: sender handle and replied summary.
func (s *Store) decorate(ctx context.Context, msgs []*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	senders := map[string]struct{}{}
	replies := map[string]struct{}{}
	for _, m := range msgs {
		senders[m.SenderID] = struct{}{}
		if m.ReplyToID != nil {
			replies[*m.ReplyToID] = struct{}{}
		}
	}

	var users []model.User
	if err := s.db.WithContext(ctx).Where("id IN ?", keys(senders)).Find(&users).Error; err != nil {
		return fmt.Errorf("store: load senders: %w", err)
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}

	summaries := map[string]*model.RepliedMessage{}
	if len(replies) > 0 {
		var replied []model.Message
		if err := s.db.WithContext(ctx).Where("id IN ?", keys(replies)).Find(&replied).Error; err != nil {
			return fmt.Errorf("store: load replied: %w", err)
		}
		for _, r := range replied {
			summaries[r.ID] = &model.RepliedMessage{
				ID:          r.ID,
				Text:        r.Text,
				SenderID:    r.SenderID,
				MessageType: r.MessageType,
				FileURL:     r.FileURL,
			}
		}
	}

	for _, m := range msgs {
		m.SenderName = names[m.SenderID]
		if m.ReplyToID != nil {
			m.RepliedMessage = summaries[*m.ReplyToID]
		}
	}
	return nil
}

// MarkRead flips every unread message from sender to reader and returns how
// many rows changed. Rows already read keep their original read_at.
func (s *Store) MarkRead(ctx context.Context, senderID, readerID string, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND is_read = ?", senderID, readerID, false).
		Updates(map[string]any{"is_read": true, "read_at": at})
	if res.Error != nil {
		return 0, fmt.Errorf("store: mark read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Pin pins m and unpins whatever else was pinned in the same conversation.
// It returns the ids that lost their pin.
func (s *Store) Pin(ctx context.Context, m *model.Message, at time.Time) ([]string, error) {
	var previous []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Every row of the conversation is locked, not only the pinned ones:
		// a concurrent Pin must wait and then see the pin it has to clear.
		var rows []model.Message
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "pinned_at").
			Scopes(conversation(m.SenderID, m.ReceiverID)).
			Order("id").
			Find(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			if r.PinnedAt != nil && r.ID != m.ID {
				previous = append(previous, r.ID)
			}
		}
		if len(previous) > 0 {
			if err := tx.Model(&model.Message{}).
				Where("id IN ?", previous).
				Update("pinned_at", nil).Error; err != nil {
				return err
			}
		}
		res := tx.Model(&model.Message{}).Where("id = ?", m.ID).Update("pinned_at", at)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("store: pin: %w", err)
	}
	m.PinnedAt = &at
	return previous, nil
}

// Unpin clears the pin and reports whether the message was pinned.
func (s *Store) Unpin(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND pinned_at IS NOT NULL", id).
		Update("pinned_at", nil)
	if res.Error != nil {
		return false, fmt.Errorf("store: unpin: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// AddReaction inserts the reaction unless the same (message, user, emoji)
// already exists, and reports whether a row was added.
func (s *Store) AddReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	r := model.Reaction{
		ID:        uuid.NewString(),
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now().UTC(),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&r)
	if res.Error != nil {
		return false, fmt.Errorf("store: add reaction: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) RemoveReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&model.Reaction{})
	if res.Error != nil {
		return false, fmt.Errorf("store: remove reaction: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) HasReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Reaction{}).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("store: has reaction: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Edit(ctx context.Context, id, text string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ?", id).
		Updates(map[string]any{"text": text, "edited_at": at})
	if res.Error != nil {
		return fmt.Errorf("store: edit: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteForEveryone removes the row and its reactions. Replies keep their
// reply_to_id; the summary simply stops resolving.
func (s *Store) DeleteForEveryone(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&model.Reaction{}).Error; err != nil {
			return fmt.Errorf("store: delete reactions: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&model.Message{})
		if res.Error != nil {
			return fmt.Errorf("store: delete message: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// HideFor removes m from viewer's side of the conversation only.
func (s *Store) HideFor(ctx context.Context, m *model.Message, viewer string) error {
	column := "deleted_for_receiver"
	if m.SenderID == viewer {
		column = "deleted_for_sender"
	}
	res := s.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", m.ID).Update(column, true)
	if res.Error != nil {
		return fmt.Errorf("store: hide: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Recent lists the viewer's conversations, most recently active first.
func (s *Store) Recent(ctx context.Context, viewer string, limit int) ([]model.RecentChat, error) {
	var rows []model.Message
	err := s.db.WithContext(ctx).
		Select("sender_id", "receiver_id", "is_read", "created_at").
		Scopes(visibleTo(viewer)).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}

	byPeer := map[string]*model.RecentChat{}
	var order []string
	for _, r := range rows {
		peer := r.Peer(viewer)
		chat, ok := byPeer[peer]
		if !ok {
			chat = &model.RecentChat{ID: peer, Username: peer, LastMessageTime: r.CreatedAt}
			byPeer[peer] = chat
			order = append(order, peer)
		}
		if r.ReceiverID == viewer && !r.IsRead {
			chat.UnreadCount++
		}
	}
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}

	if len(order) > 0 {
		var users []model.User
		if err := s.db.WithContext(ctx).Where("id IN ?", order).Find(&users).Error; err != nil {
			return nil, fmt.Errorf("store: recent users: %w", err)
		}
		for _, u := range users {
			chat := byPeer[u.ID]
			chat.Username = u.Username
			chat.DisplayName = u.DisplayName
			chat.AvatarURL = u.AvatarURL
		}
	}

	out := make([]model.RecentChat, 0, len(order))
	for _, id := range order {
		out = append(out, *byPeer[id])
	}
	return out, nil
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
