package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"messenger-sync/database"
	"messenger-sync/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	s := New(db)
	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, s.UpsertUser(ctx, &model.User{ID: id, Username: id}))
	}
	return s
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func send(t *testing.T, s *Store, from, to, text string, offset time.Duration) *model.Message {
	t.Helper()
	m := &model.Message{SenderID: from, ReceiverID: to, Text: text, CreatedAt: base.Add(offset)}
	require.NoError(t, s.Create(context.Background(), m))
	return m
}

func TestCreateAssignsIDAndDefaults(t *testing.T) {
	s := newStore(t)
	m := send(t, s, "alice", "bob", "hi", 0)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, model.MessageTypeText, m.MessageType)
	assert.False(t, m.IsRead)
	assert.NotNil(t, m.Reactions)

	got, err := s.Message(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Text)
	assert.Equal(t, "alice", got.SenderName)
}

func TestMessageNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Message(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationOrderAndLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	send(t, s, "alice", "bob", "one", time.Second)
	send(t, s, "bob", "alice", "two", 2*time.Second)
	send(t, s, "alice", "carol", "elsewhere", 3*time.Second)
	send(t, s, "alice", "bob", "three", 4*time.Second)

	msgs, err := s.Conversation(ctx, "alice", "bob", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "two", msgs[1].Text)
	assert.Equal(t, "three", msgs[2].Text)

	latest, err := s.Conversation(ctx, "bob", "alice", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "two", latest[0].Text)
	assert.Equal(t, "three", latest[1].Text)
}

func TestConversationRepliedSummary(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	orig := send(t, s, "alice", "bob", "question", time.Second)
	reply := &model.Message{SenderID: "bob", ReceiverID: "alice", Text: "answer", ReplyToID: &orig.ID, CreatedAt: base.Add(2 * time.Second)}
	require.NoError(t, s.Create(ctx, reply))

	msgs, err := s.Conversation(ctx, "alice", "bob", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[1].RepliedMessage)
	assert.Equal(t, "question", msgs[1].RepliedMessage.Text)
	assert.Equal(t, "alice", msgs[1].RepliedMessage.SenderID)
	assert.Equal(t, "bob", msgs[1].SenderName)
}

func TestMarkReadOnlyUnread(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	send(t, s, "alice", "bob", "a", time.Second)
	send(t, s, "alice", "bob", "b", 2*time.Second)
	send(t, s, "bob", "alice", "c", 3*time.Second)

	first := base.Add(time.Hour)
	n, err := s.MarkRead(ctx, "alice", "bob", first)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.MarkRead(ctx, "alice", "bob", first.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	msgs, err := s.Conversation(ctx, "bob", "alice", 0)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.SenderID == "alice" {
			assert.True(t, m.IsRead)
			require.NotNil(t, m.ReadAt)
			assert.True(t, m.ReadAt.Equal(first))
		} else {
			assert.False(t, m.IsRead)
		}
	}
}

func TestPinReplacesPrevious(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	m1 := send(t, s, "alice", "bob", "a", time.Second)
	m2 := send(t, s, "bob", "alice", "b", 2*time.Second)
	other := send(t, s, "alice", "carol", "c", 3*time.Second)

	prev, err := s.Pin(ctx, other, base)
	require.NoError(t, err)
	assert.Empty(t, prev)

	prev, err = s.Pin(ctx, m1, base)
	require.NoError(t, err)
	assert.Empty(t, prev)

	prev, err = s.Pin(ctx, m2, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{m1.ID}, prev)

	got1, err := s.Message(ctx, m1.ID)
	require.NoError(t, err)
	assert.Nil(t, got1.PinnedAt)

	got2, err := s.Message(ctx, m2.ID)
	require.NoError(t, err)
	assert.NotNil(t, got2.PinnedAt)

	gotOther, err := s.Message(ctx, other.ID)
	require.NoError(t, err)
	assert.NotNil(t, gotOther.PinnedAt, "pins in other conversations are untouched")

	ok, err := s.Unpin(ctx, m2.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Unpin(ctx, m2.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPinLocksConversation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	m := send(t, s, "alice", "bob", "a", 0)

	var locked []string
	require.NoError(t, s.db.Callback().Query().Before("gorm:query").Register("test:locking", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Clauses["FOR"]; ok {
			locked = append(locked, tx.Statement.Table)
		}
	}))

	_, err := s.Pin(ctx, m, base)
	require.NoError(t, err)
	assert.Equal(t, []string{"messages"}, locked)
}

func TestConcurrentPinsLeaveOnePinned(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	var msgs []*model.Message
	for i := 0; i < 8; i++ {
		msgs = append(msgs, send(t, s, "alice", "bob", "m", time.Duration(i)*time.Second))
	}

	var wg sync.WaitGroup
	for i, m := range msgs {
		wg.Add(1)
		go func(m *model.Message, at time.Time) {
			defer wg.Done()
			_, err := s.Pin(ctx, m, at)
			assert.NoError(t, err)
		}(m, base.Add(time.Duration(i)*time.Minute))
	}
	wg.Wait()

	all, err := s.Conversation(ctx, "alice", "bob", 0)
	require.NoError(t, err)
	pinned := 0
	for _, m := range all {
		if m.PinnedAt != nil {
			pinned++
		}
	}
	assert.Equal(t, 1, pinned)
}

func TestReactionsUniquePerUserEmoji(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	m := send(t, s, "alice", "bob", "a", 0)

	added, err := s.AddReaction(ctx, m.ID, "bob", "👍")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddReaction(ctx, m.ID, "bob", "👍")
	require.NoError(t, err)
	assert.False(t, added)

	added, err = s.AddReaction(ctx, m.ID, "alice", "👍")
	require.NoError(t, err)
	assert.True(t, added)

	got, err := s.Message(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, got.Reactions, 2)

	has, err := s.HasReaction(ctx, m.ID, "bob", "👍")
	require.NoError(t, err)
	assert.True(t, has)

	removed, err := s.RemoveReaction(ctx, m.ID, "bob", "👍")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveReaction(ctx, m.ID, "bob", "👍")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestEdit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	m := send(t, s, "alice", "bob", "typo", 0)

	require.NoError(t, s.Edit(ctx, m.ID, "fixed", base.Add(time.Minute)))
	got, err := s.Message(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "fixed", got.Text)
	assert.True(t, got.Edited())

	assert.ErrorIs(t, s.Edit(ctx, "missing", "x", base), ErrNotFound)
}

func TestDeleteForEveryone(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	m := send(t, s, "alice", "bob", "oops", 0)
	_, err := s.AddReaction(ctx, m.ID, "bob", "😮")
	require.NoError(t, err)

	require.NoError(t, s.DeleteForEveryone(ctx, m.ID))

	_, err = s.Message(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	has, err := s.HasReaction(ctx, m.ID, "bob", "😮")
	require.NoError(t, err)
	assert.False(t, has)

	assert.ErrorIs(t, s.DeleteForEveryone(ctx, m.ID), ErrNotFound)
}

func TestHideForOneSide(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	m := send(t, s, "alice", "bob", "secret", 0)

	require.NoError(t, s.HideFor(ctx, m, "alice"))

	forAlice, err := s.Conversation(ctx, "alice", "bob", 0)
	require.NoError(t, err)
	assert.Empty(t, forAlice)

	forBob, err := s.Conversation(ctx, "bob", "alice", 0)
	require.NoError(t, err)
	require.Len(t, forBob, 1)
	assert.Equal(t, m.ID, forBob[0].ID)
}

func TestRecent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	send(t, s, "bob", "alice", "hey", time.Second)
	send(t, s, "bob", "alice", "you there?", 2*time.Second)
	send(t, s, "alice", "carol", "lunch?", 3*time.Second)

	chats, err := s.Recent(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, chats, 2)

	assert.Equal(t, "carol", chats[0].ID)
	assert.Equal(t, 0, chats[0].UnreadCount)
	assert.Equal(t, "bob", chats[1].ID)
	assert.Equal(t, "bob", chats[1].Username)
	assert.Equal(t, 2, chats[1].UnreadCount)

	limited, err := s.Recent(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "carol", limited[0].ID)
}

func TestUserLookup(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	u, err := s.User(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = s.User(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureUser(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureUser(ctx, "dave"))
	u, err := s.User(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, "dave", u.Username)

	name := "Alice A."
	require.NoError(t, s.UpsertUser(ctx, &model.User{ID: "alice", Username: "alice", DisplayName: &name}))
	require.NoError(t, s.EnsureUser(ctx, "alice"), "known users are left alone")
	u, err = s.User(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, u.DisplayName)
	assert.Equal(t, name, *u.DisplayName)
}
