// Package socket serves the WebSocket endpoint. Every connection is
// authenticated by the access token in the "token" query parameter, read by
// one goroutine and written by another.
package socket

import (
	"context"
	"time"

	"messenger-sync/messenger"
	"messenger-sync/metrics"
	"messenger-sync/protocol"
	"messenger-sync/utils"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 * 1024
	sendBufferSize = 256

	userIDKey = "socket_user_id"
)

type Options struct {
	AccessKey string
	// Rate and Burst bound inbound frames per connection.
	Rate  float64
	Burst int
}

type Server struct {
	router  *messenger.Router
	log     *zap.Logger
	metrics *metrics.Metrics
	opts    Options
}

func New(router *messenger.Router, log *zap.Logger, m *metrics.Metrics, opts Options) *Server {
	if opts.Rate <= 0 {
		opts.Rate = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = 40
	}
	return &Server{
		router:  router,
		log:     log,
		metrics: m,
		opts:    opts,
	}
}

// Init mounts the endpoint at path.
func (s *Server) Init(app fiber.Router, path string) {
	app.Get(path, s.authenticate, websocket.New(s.serve, websocket.Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}))
}

// authenticate runs before the upgrade so a bad token gets a plain HTTP error.
func (s *Server) authenticate(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		s.metrics.Reject("missing_token")
		return utils.Error(c, fiber.StatusUnauthorized, "Missing token")
	}
	claims, err := utils.CheckAndExtractTokenMetadata(token, s.opts.AccessKey)
	if err != nil {
		s.metrics.Reject("invalid_token")
		return utils.Error(c, fiber.StatusUnauthorized, "Invalid or expired JWT")
	}
	if claims.Otp {
		s.metrics.Reject("otp_pending")
		return utils.Error(c, fiber.StatusUnauthorized, "2FA required")
	}

	c.Locals(userIDKey, claims.Id)
	return c.Next()
}

func (s *Server) serve(ws *websocket.Conn) {
	userID, _ := ws.Locals(userIDKey).(string)
	c := newConn(uuid.NewString(), ws)
	log := s.log.With(zap.String("user_id", userID), zap.String("conn_id", c.id))

	s.metrics.ConnOpened()
	defer s.metrics.ConnClosed()

	go c.writePump(log)

	ctx := context.Background()
	if err := s.router.Connected(ctx, userID, c); err != nil {
		log.Error("register connection", zap.Error(err))
	}
	log.Debug("socket connected")

	defer func() {
		c.close()
		if err := s.router.Disconnected(ctx, userID, c); err != nil {
			log.Error("unregister connection", zap.Error(err))
		}
		// The websocket.Conn is recycled once serve returns.
		<-c.writerDone
		log.Debug("socket disconnected")
	}()

	limiter := rate.NewLimiter(rate.Limit(s.opts.Rate), s.opts.Burst)

	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug("socket closed unexpectedly", zap.Error(err))
			}
			return
		}
		// Any inbound frame proves the peer is alive.
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		if !limiter.Allow() {
			s.metrics.FrameDropped("rate_limited")
			log.Warn("inbound rate exceeded, dropping frame")
			continue
		}

		ev, err := protocol.DecodeClient(frame)
		if err != nil {
			s.metrics.FrameDropped("malformed")
			log.Warn("dropping malformed frame", zap.Error(err))
			c.reply(protocol.Error{Code: "malformed", Message: err.Error()})
			continue
		}
		s.metrics.FrameIn(string(ev.Kind()))

		if err := s.router.HandleClient(ctx, userID, ev); err != nil {
			code := messenger.Code(err)
			s.metrics.Reject(code)
			if code == "internal" {
				log.Error("handle event", zap.String("type", string(ev.Kind())), zap.Error(err))
				c.reply(protocol.Error{Code: code, Message: "internal error", Ref: ref(ev)})
				continue
			}
			log.Info("event rejected", zap.String("type", string(ev.Kind())), zap.Error(err))
			c.reply(protocol.Error{Code: code, Message: err.Error(), Ref: ref(ev)})
		}
	}
}

// ref is the client correlation id echoed in error replies.
func ref(ev protocol.ClientEvent) string {
	if m, ok := ev.(protocol.SendMessage); ok {
		return m.ClientID
	}
	return ""
}
