package socket

import (
	"sync"
	"time"

	"messenger-sync/protocol"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// conn is the registry side of one WebSocket. Frames are queued on send and
// written by writePump only.
type conn struct {
	id         string
	ws         *websocket.Conn
	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

func newConn(id string, ws *websocket.Conn) *conn {
	return &conn{
		id:         id,
		ws:         ws,
		send:       make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *conn) reply(ev protocol.ServerEvent) {
	frame, err := protocol.Encode(ev)
	if err != nil {
		return
	}
	c.Send(frame)
}

func (c *conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *conn) writePump(log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.writerDone)
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("write failed", zap.Error(err))
				c.close()
				// Unblocks the read loop.
				_ = c.ws.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug("ping failed", zap.Error(err))
				c.close()
				_ = c.ws.Close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
