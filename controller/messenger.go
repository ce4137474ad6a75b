package controller

import (
	"errors"

	"messenger-sync/messenger"
	"messenger-sync/middleware"
	"messenger-sync/store"
	"messenger-sync/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Messenger struct {
	router *messenger.Router
	log    *zap.Logger
}

func NewMessenger(router *messenger.Router, log *zap.Logger) *Messenger {
	return &Messenger{router: router, log: log}
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

type editRequest struct {
	Text string `json:"text"`
}

type deleteRequest struct {
	DeleteForEveryone bool `json:"delete_for_everyone"`
}

func (m *Messenger) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, messenger.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return utils.Error(c, fiber.StatusNotFound, "Message not found")
	case errors.Is(err, messenger.ErrForbidden):
		return utils.Error(c, fiber.StatusForbidden, "Not allowed")
	case errors.Is(err, messenger.ErrPending):
		return utils.Error(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, messenger.ErrInvalid):
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}
	m.log.Error("request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return utils.Error(c, fiber.StatusInternalServerError, "Internal server error")
}

func badBody(c *fiber.Ctx) error {
	return utils.Error(c, fiber.StatusBadRequest, "Invalid request body")
}

// History returns the conversation with :userId, oldest first.
func (m *Messenger) History(c *fiber.Ctx) error {
	msgs, err := m.router.History(c.UserContext(), middleware.UserID(c), c.Params("userId"))
	if err != nil {
		return m.fail(c, err)
	}
	return utils.Success(c, "Messages", msgs)
}

func (m *Messenger) Online(c *fiber.Ctx) error {
	users, err := m.router.Online(c.UserContext())
	if err != nil {
		return m.fail(c, err)
	}
	return utils.Success(c, "Online users", users)
}

// Presence reports whether :userId has an open connection.
func (m *Messenger) Presence(c *fiber.Ctx) error {
	online, err := m.router.IsOnline(c.UserContext(), c.Params("userId"))
	if err != nil {
		return m.fail(c, err)
	}
	return utils.Success(c, "Presence", fiber.Map{"user_id": c.Params("userId"), "online": online})
}

func (m *Messenger) Recent(c *fiber.Ctx) error {
	chats, err := m.router.Recent(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return m.fail(c, err)
	}
	return utils.Success(c, "Recent conversations", chats)
}

// MarkRead marks the messages :userId sent to the caller as read.
func (m *Messenger) MarkRead(c *fiber.Ctx) error {
	n, err := m.router.MarkRead(c.UserContext(), middleware.UserID(c), c.Params("userId"))
	if err != nil {
		return m.fail(c, err)
	}
	return utils.Success(c, "Messages marked as read", fiber.Map{"updated": n})
}

func (m *Messenger) Pin(c *fiber.Ctx) error {
	ev, err := m.router.Pin(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return m.fail(c, err)
	}
	return utils.Success(c, "Message pinned", ev)
}

func (m *Messenger) Unpin(c *fiber.Ctx) error {
	if err := m.router.Unpin(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
		return m.fail(c, err)
	}
	return utils.Success(c, "Message unpinned", nil)
}

func (m *Messenger) AddReaction(c *fiber.Ctx) error {
	req := new(reactionRequest)
	if err := c.BodyParser(req); err != nil {
		return badBody(c)
	}
	added, err := m.router.AddReaction(c.UserContext(), middleware.UserID(c), c.Params("id"), req.Emoji)
	if err != nil {
		return m.fail(c, err)
	}
	return utils.Success(c, "Reaction added", fiber.Map{"added": added})
}

func (m *Messenger) RemoveReaction(c *fiber.Ctx) error {
	req := new(reactionRequest)
	if err := c.BodyParser(req); err != nil {
		return badBody(c)
	}
	removed, err := m.router.RemoveReaction(c.UserContext(), middleware.UserID(c), c.Params("id"), req.Emoji)
	if err != nil {
		return m.fail(c, err)
	}
	return utils.Success(c, "Reaction removed", fiber.Map{"removed": removed})
}

func (m *Messenger) ToggleReaction(c *fiber.Ctx) error {
	req := new(reactionRequest)
	if err := c.BodyParser(req); err != nil {
		return badBody(c)
	}
	added, err := m.router.ToggleReaction(c.UserContext(), middleware.UserID(c), c.Params("id"), req.Emoji)
	if err != nil {
		return m.fail(c, err)
	}
	return utils.Success(c, "Reaction toggled", fiber.Map{"added": added})
}

func (m *Messenger) Edit(c *fiber.Ctx) error {
	req := new(editRequest)
	if err := c.BodyParser(req); err != nil {
		return badBody(c)
	}
	msg, err := m.router.Edit(c.UserContext(), middleware.UserID(c), c.Params("id"), req.Text)
	if err != nil {
		return m.fail(c, err)
	}
	return utils.Success(c, "Message edited", msg)
}

// Delete accepts an optional body; without one the message is hidden for
// the caller only.
func (m *Messenger) Delete(c *fiber.Ctx) error {
	req := new(deleteRequest)
	if len(c.Body()) > 0 {
		if err := c.BodyParser(req); err != nil {
			return badBody(c)
		}
	}
	if err := m.router.Delete(c.UserContext(), middleware.UserID(c), c.Params("id"), req.DeleteForEveryone); err != nil {
		return m.fail(c, err)
	}
	return utils.Success(c, "Message deleted", fiber.Map{
		"id":                  c.Params("id"),
		"delete_for_everyone": req.DeleteForEveryone,
	})
}
