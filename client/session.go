// Package client is the Go side of the messenger protocol: a socket session,
// a per-conversation reconciliation layer, a typing debouncer and a small
// REST client.
package client

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"messenger-sync/protocol"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Handler func(protocol.ServerEvent)

type state int

const (
	stateIdle state = iota
	stateConnecting
	stateOpen
)

const writeWait = 10 * time.Second

// ErrDisconnected is returned by Connect when Disconnect was called while
// the dial was still in progress.
var ErrDisconnected = errors.New("client: disconnected while connecting")

// Session owns one socket to the server. It never reconnects on its own: a
// dropped connection stays down until Connect is called again.
type Session struct {
	endpoint string
	log      *zap.Logger
	dialer   *websocket.Dialer

	mu       sync.Mutex
	state    state
	gen      uint64
	ws       *websocket.Conn
	handlers []Handler
	onClose  []func(error)

	writeMu sync.Mutex
}

// NewSession targets endpoint, e.g. "ws://localhost:8080/api/ws".
func NewSession(endpoint string, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		endpoint: endpoint,
		log:      log,
		dialer:   websocket.DefaultDialer,
	}
}

// OnEvent registers h for every decoded server event. Handlers run on the
// read goroutine in arrival order.
func (s *Session) OnEvent(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// OnClose registers fn to run when an open connection goes away for any reason.
func (s *Session) OnClose(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// Connect opens the socket. Calling it while already connecting or connected
// does nothing.
func (s *Session) Connect(ctx context.Context, token string) error {
	s.mu.Lock()
	if s.state != stateIdle {
		s.mu.Unlock()
		return nil
	}
	s.state = stateConnecting
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	u, err := url.Parse(s.endpoint)
	if err != nil {
		s.setIdle(gen)
		return err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	ws, resp, err := s.dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		s.setIdle(gen)
		return err
	}

	s.mu.Lock()
	if s.gen != gen || s.state != stateConnecting {
		s.mu.Unlock()
		_ = ws.Close()
		return ErrDisconnected
	}
	s.ws = ws
	s.state = stateOpen
	s.mu.Unlock()

	go s.readLoop(ws)
	return nil
}

// setIdle resets a failed attempt unless a newer Connect or a Disconnect
// already took over.
func (s *Session) setIdle(gen uint64) {
	s.mu.Lock()
	if s.gen == gen {
		s.state = stateIdle
	}
	s.mu.Unlock()
}

// Disconnect closes the socket. The server sees the close and drops the
// user from presence once no other connection is left.
func (s *Session) Disconnect() {
	s.mu.Lock()
	ws := s.ws
	s.ws = nil
	s.state = stateIdle
	s.gen++
	s.mu.Unlock()

	if ws == nil {
		return
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	_ = ws.Close()
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateOpen
}

func (s *Session) SendMessage(receiverID, text string, replyToID *string, clientID string) {
	s.send(protocol.SendMessage{
		ReceiverID: receiverID,
		Text:       text,
		ReplyToID:  replyToID,
		ClientID:   clientID,
	})
}

func (s *Session) SendTypingStart(receiverID string) {
	s.send(protocol.TypingStart{ReceiverID: receiverID})
}

func (s *Session) SendTypingStop(receiverID string) {
	s.send(protocol.TypingStop{ReceiverID: receiverID})
}

// MarkMessagesAsRead marks what senderID sent to this user as read.
func (s *Session) MarkMessagesAsRead(senderID string) {
	s.send(protocol.MarkRead{SenderID: senderID})
}

// send drops the event with a warning when the socket is not open.
func (s *Session) send(ev protocol.ClientEvent) {
	s.mu.Lock()
	ws := s.ws
	s.mu.Unlock()

	if ws == nil {
		s.log.Warn("socket not connected, dropping event", zap.String("type", string(ev.Kind())))
		return
	}

	frame, err := protocol.Encode(ev)
	if err != nil {
		s.log.Error("encode event", zap.String("type", string(ev.Kind())), zap.Error(err))
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.log.Warn("send failed, dropping event", zap.String("type", string(ev.Kind())), zap.Error(err))
	}
}

func (s *Session) readLoop(ws *websocket.Conn) {
	var err error
	for {
		var frame []byte
		_, frame, err = ws.ReadMessage()
		if err != nil {
			break
		}

		ev, derr := protocol.DecodeServer(frame)
		if derr != nil {
			s.log.Error("dropping malformed frame", zap.Error(derr))
			continue
		}
		s.dispatch(ev)
	}

	s.mu.Lock()
	if s.ws == ws {
		s.ws = nil
		s.state = stateIdle
	}
	closers := append([]func(error){}, s.onClose...)
	s.mu.Unlock()
	_ = ws.Close()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, websocket.ErrCloseSent) {
		err = nil
	}
	if err != nil {
		s.log.Debug("socket closed", zap.Error(err))
	}
	for _, fn := range closers {
		fn(err)
	}
}

func (s *Session) dispatch(ev protocol.ServerEvent) {
	s.mu.Lock()
	handlers := append([]Handler{}, s.handlers...)
	s.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
