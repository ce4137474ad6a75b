package controller_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"messenger-sync/config"
	"messenger-sync/controller"
	"messenger-sync/database"
	"messenger-sync/messenger"
	"messenger-sync/model"
	"messenger-sync/presence"
	"messenger-sync/protocol"
	"messenger-sync/registry"
	"messenger-sync/router"
	"messenger-sync/store"
	"messenger-sync/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type harness struct {
	app      *fiber.App
	router   *messenger.Router
	settings *config.Settings
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	enforcer, err := database.Casbin(db)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	st := store.New(db)
	for _, id := range []string{"alice", "bob", "eve"} {
		require.NoError(t, st.UpsertUser(context.Background(), &model.User{ID: id, Username: id}))
	}

	r := messenger.New(messenger.Options{
		Store:        st,
		Registry:     registry.NewLocal(log, nil),
		Presence:     presence.NewTracker(presence.NewMemory()),
		Enforcer:     enforcer,
		Logger:       log,
		HistoryLimit: 100,
	})

	s := &config.Settings{JWTAccessKey: "test-key", JWTAccessExpire: 5, JWTRefreshExpire: 5}
	app := fiber.New(fiber.Config{DisableStartupMessage: true, StrictRouting: true})
	router.Rest(app, controller.NewMessenger(r, log), router.RestOptions{AccessKey: s.JWTAccessKey})

	return &harness{app: app, router: r, settings: s}
}

func (h *harness) do(t *testing.T, method, path, user, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		tokens, err := utils.GenerateTokens(h.settings, user, false)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tokens.Access)
	}

	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (h *harness) send(t *testing.T, from, to, text string) *model.Message {
	t.Helper()
	m, err := h.router.Send(context.Background(), from, protocol.SendMessage{ReceiverID: to, Text: text})
	require.NoError(t, err)
	return m
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	status, env := h.do(t, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", env.Status)
}

func TestRequiresToken(t *testing.T) {
	h := newHarness(t)
	status, env := h.do(t, http.MethodGet, "/api/messages/bob", "", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "error", env.Status)
}

func TestRejectsPendingOTP(t *testing.T) {
	h := newHarness(t)
	tokens, err := utils.GenerateTokens(h.settings, "alice", true)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/messages/bob", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.Access)
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistory(t *testing.T) {
	h := newHarness(t)
	h.send(t, "alice", "bob", "one")
	h.send(t, "bob", "alice", "two")

	status, env := h.do(t, http.MethodGet, "/api/messages/bob", "alice", "")
	require.Equal(t, http.StatusOK, status)

	var msgs []model.Message
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "two", msgs[1].Text)
}

func TestRecentAndMarkRead(t *testing.T) {
	h := newHarness(t)
	h.send(t, "bob", "alice", "hi")

	status, env := h.do(t, http.MethodGet, "/api/messages/recent", "alice", "")
	require.Equal(t, http.StatusOK, status)
	var chats []model.RecentChat
	require.NoError(t, json.Unmarshal(env.Data, &chats))
	require.Len(t, chats, 1)
	assert.Equal(t, 1, chats[0].UnreadCount)

	status, env = h.do(t, http.MethodPost, "/api/messages/bob/read", "alice", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"updated":1}`, string(env.Data))

	_, env = h.do(t, http.MethodGet, "/api/messages/recent", "alice", "")
	require.NoError(t, json.Unmarshal(env.Data, &chats))
	assert.Equal(t, 0, chats[0].UnreadCount)
}

func TestPinEndpoints(t *testing.T) {
	h := newHarness(t)
	m := h.send(t, "alice", "bob", "pin me")

	status, env := h.do(t, http.MethodPost, "/api/messages/"+m.ID+"/pin", "bob", "")
	require.Equal(t, http.StatusOK, status)
	var pinned protocol.MessagePinned
	require.NoError(t, json.Unmarshal(env.Data, &pinned))
	assert.Equal(t, m.ID, pinned.MessageID)
	assert.Equal(t, "bob", pinned.PinnerID)

	status, _ = h.do(t, http.MethodPost, "/api/messages/"+m.ID+"/unpin", "bob", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = h.do(t, http.MethodPost, "/api/messages/"+m.ID+"/pin", "eve", "")
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(t, http.MethodPost, "/api/messages/missing/pin", "bob", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = h.do(t, http.MethodPost, "/api/messages/temp-1/pin", "bob", "")
	assert.Equal(t, http.StatusConflict, status)
}

func TestReactionEndpoints(t *testing.T) {
	h := newHarness(t)
	m := h.send(t, "alice", "bob", "react")
	path := "/api/messages/" + m.ID + "/reactions"

	status, env := h.do(t, http.MethodPost, path, "bob", `{"emoji":"👍"}`)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"added":true}`, string(env.Data))

	_, env = h.do(t, http.MethodPost, path, "bob", `{"emoji":"👍"}`)
	assert.JSONEq(t, `{"added":false}`, string(env.Data))

	_, env = h.do(t, http.MethodPost, path+"/toggle", "bob", `{"emoji":"👍"}`)
	assert.JSONEq(t, `{"added":false}`, string(env.Data))

	_, env = h.do(t, http.MethodDelete, path, "bob", `{"emoji":"👍"}`)
	assert.JSONEq(t, `{"removed":false}`, string(env.Data))

	status, _ = h.do(t, http.MethodPost, path, "bob", `{"emoji":""}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestEditEndpoint(t *testing.T) {
	h := newHarness(t)
	m := h.send(t, "alice", "bob", "draft")
	path := "/api/messages/" + m.ID + "/edit"

	status, _ := h.do(t, http.MethodPut, path, "bob", `{"text":"nope"}`)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := h.do(t, http.MethodPut, path, "alice", `{"text":"final"}`)
	require.Equal(t, http.StatusOK, status)
	var edited model.Message
	require.NoError(t, json.Unmarshal(env.Data, &edited))
	assert.Equal(t, "final", edited.Text)
	assert.NotNil(t, edited.EditedAt)
}

func TestDeleteEndpoint(t *testing.T) {
	h := newHarness(t)
	m := h.send(t, "alice", "bob", "bye")
	path := "/api/messages/" + m.ID + "/delete"

	status, _ := h.do(t, http.MethodDelete, path, "bob", `{"delete_for_everyone":true}`)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(t, http.MethodDelete, path, "bob", "")
	require.Equal(t, http.StatusOK, status)

	_, env := h.do(t, http.MethodGet, "/api/messages/alice", "bob", "")
	assert.JSONEq(t, `[]`, string(env.Data))

	status, _ = h.do(t, http.MethodDelete, path, "alice", `{"delete_for_everyone":true}`)
	require.Equal(t, http.StatusOK, status)

	_, env = h.do(t, http.MethodGet, "/api/messages/bob", "alice", "")
	assert.JSONEq(t, `[]`, string(env.Data))
}
