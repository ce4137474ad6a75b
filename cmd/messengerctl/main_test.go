package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"messenger-sync/client"
	"messenger-sync/config"
	"messenger-sync/model"
	"messenger-sync/router"
	"messenger-sync/utils"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":       "ws://localhost:8080/api/ws",
		"https://chat.example.com/":   "wss://chat.example.com/api/ws",
		"http://10.0.0.1:9000/prefix": "ws://10.0.0.1:9000/prefix/api/ws",
	}
	for in, want := range cases {
		got, err := socketURL(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}

func TestTokenSubject(t *testing.T) {
	tokens, err := utils.GenerateTokens(&config.Settings{JWTAccessKey: "k", JWTAccessExpire: 5, JWTRefreshExpire: 5}, "alice", false)
	require.NoError(t, err)

	id, err := tokenSubject(tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	_, err = tokenSubject("not-a-token")
	assert.Error(t, err)
}

func TestChatRequiresToken(t *testing.T) {
	t.Setenv("MESSENGER_TOKEN", "")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"chat", "bob"})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token")
}

func TestChatConnectsBeforeLoadingHistory(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(step string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, step)
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc(router.SocketPath, func(w http.ResponseWriter, r *http.Request) {
		record("socket")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/api/messages/bob", func(w http.ResponseWriter, r *http.Request) {
		record("history")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": []model.Message{{
				ID:          "m1",
				SenderID:    "bob",
				ReceiverID:  "alice",
				Text:        "from history",
				MessageType: model.MessageTypeText,
				CreatedAt:   time.Now(),
			}},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	endpoint, err := socketURL(srv.URL)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	var out bytes.Buffer
	c := &chat{
		out:     &out,
		self:    "alice",
		peer:    "bob",
		api:     client.NewAPI(srv.URL, "t"),
		session: client.NewSession(endpoint, log),
	}
	c.conv = client.NewConversation("alice", "bob", c.session, log)
	c.typing = client.NewTyping(c.session, "bob")

	require.NoError(t, c.run(context.Background(), "t", strings.NewReader("/quit\n")))

	mu.Lock()
	assert.Equal(t, []string{"socket", "history"}, order)
	mu.Unlock()

	c.outMu.Lock()
	defer c.outMu.Unlock()
	assert.Contains(t, out.String(), "from history")
}

func TestOnlineCommand(t *testing.T) {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, data any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": data})
	}
	mux.HandleFunc("/api/presence", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		reply(w, []string{"alice", "bob"})
	})
	mux.HandleFunc("/api/presence/bob", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"user_id": "bob", "online": true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	run := func(args ...string) string {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(append([]string{"online", "--server", srv.URL, "--token", "t"}, args...))
		require.NoError(t, rootCmd.Execute())
		return out.String()
	}

	assert.Equal(t, "alice\nbob\n", run())
	assert.Equal(t, "bob is online\n", run("bob"))
}
