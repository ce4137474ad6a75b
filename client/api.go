package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"messenger-sync/model"
	"messenger-sync/protocol"

	"github.com/gofiber/fiber/v2"
)

// APIError is a non-2xx answer from the REST API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// API calls the message endpoints with a bearer token.
type API struct {
	base    string
	token   string
	timeout time.Duration
}

// NewAPI targets base, e.g. "http://localhost:8080".
func NewAPI(base, token string) *API {
	return &API{base: base, token: token, timeout: 10 * time.Second}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (a *API) do(method, path string, body, out interface{}) error {
	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(a.base + path)
	agent.Set(fiber.HeaderAuthorization, "Bearer "+a.token)
	agent.Timeout(a.timeout)
	if body != nil {
		agent.JSON(body)
	}
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return err
	}

	status, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{Status: status, Message: string(raw)}
	}
	if status >= fiber.StatusBadRequest || env.Status == "error" {
		return &APIError{Status: status, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func messagePath(id, suffix string) (string, error) {
	if IsTemporary(id) {
		return "", ErrPending
	}
	return "/api/messages/" + url.PathEscape(id) + suffix, nil
}

func (a *API) History(peerID string) ([]model.Message, error) {
	var msgs []model.Message
	err := a.do(fiber.MethodGet, "/api/messages/"+url.PathEscape(peerID), nil, &msgs)
	return msgs, err
}

func (a *API) Recent() ([]model.RecentChat, error) {
	var chats []model.RecentChat
	err := a.do(fiber.MethodGet, "/api/messages/recent", nil, &chats)
	return chats, err
}

// Online lists the users with an open connection.
func (a *API) Online() ([]string, error) {
	var users []string
	err := a.do(fiber.MethodGet, "/api/presence", nil, &users)
	return users, err
}

func (a *API) IsOnline(userID string) (bool, error) {
	var res struct {
		Online bool `json:"online"`
	}
	err := a.do(fiber.MethodGet, "/api/presence/"+url.PathEscape(userID), nil, &res)
	return res.Online, err
}

func (a *API) MarkRead(senderID string) error {
	return a.do(fiber.MethodPost, "/api/messages/"+url.PathEscape(senderID)+"/read", nil, nil)
}

func (a *API) Pin(id string) (*protocol.MessagePinned, error) {
	path, err := messagePath(id, "/pin")
	if err != nil {
		return nil, err
	}
	var ev protocol.MessagePinned
	if err := a.do(fiber.MethodPost, path, nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (a *API) Unpin(id string) error {
	path, err := messagePath(id, "/unpin")
	if err != nil {
		return err
	}
	return a.do(fiber.MethodPost, path, nil, nil)
}

func (a *API) AddReaction(id, emoji string) error {
	path, err := messagePath(id, "/reactions")
	if err != nil {
		return err
	}
	return a.do(fiber.MethodPost, path, fiber.Map{"emoji": emoji}, nil)
}

func (a *API) RemoveReaction(id, emoji string) error {
	path, err := messagePath(id, "/reactions")
	if err != nil {
		return err
	}
	return a.do(fiber.MethodDelete, path, fiber.Map{"emoji": emoji}, nil)
}

// ToggleReaction reports whether the reaction is present afterwards.
func (a *API) ToggleReaction(id, emoji string) (bool, error) {
	path, err := messagePath(id, "/reactions/toggle")
	if err != nil {
		return false, err
	}
	var res struct {
		Added bool `json:"added"`
	}
	err = a.do(fiber.MethodPost, path, fiber.Map{"emoji": emoji}, &res)
	return res.Added, err
}

func (a *API) Edit(id, text string) (*model.Message, error) {
	path, err := messagePath(id, "/edit")
	if err != nil {
		return nil, err
	}
	var m model.Message
	if err := a.do(fiber.MethodPut, path, fiber.Map{"text": text}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (a *API) Delete(id string, forEveryone bool) error {
	path, err := messagePath(id, "/delete")
	if err != nil {
		return err
	}
	return a.do(fiber.MethodDelete, path, fiber.Map{"delete_for_everyone": forEveryone}, nil)
}
