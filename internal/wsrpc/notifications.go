package wsrpc

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cc-executor/cc-executor/internal/session"
	"github.com/cc-executor/cc-executor/pkg/jsonrpc"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 256
)

// connection is one WebSocket client's read/write pumps and outbound notification
// queue. It implements session.Notifier so the Session can push
// execution_started/output_chunk/.../execution_completed notifications without
// knowing anything about the transport.
//
// The Session's execution goroutine can still be emitting notifications after the
// socket drops (readPump has returned but runSupervised hasn't finished terminating
// the child yet), so Notify/writeResponse must never send on a channel this type has
// closed. closeMu/closed gate every enqueue instead of closing send itself.
type connection struct {
	conn    *websocket.Conn
	session *session.Session
	log     *zap.Logger

	pingInterval time.Duration
	pongTimeout  time.Duration

	send chan []byte
	done chan struct{}

	closeMu sync.Mutex
	closed  bool
}

func newConnection(conn *websocket.Conn, sess *session.Session, pingInterval, pongTimeout time.Duration, log *zap.Logger) *connection {
	return &connection{
		conn:         conn,
		session:      sess,
		log:          log,
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
	}
}

// Notify implements session.Notifier.
func (c *connection) Notify(method string, params interface{}) {
	data, err := json.Marshal(jsonrpc.NewNotification(method, params))
	if err != nil {
		c.log.Error("failed to marshal notification", zap.String("method", method), zap.Error(err))
		return
	}
	c.enqueue(data, "notification "+method)
}

func (c *connection) writeResponse(resp *jsonrpc.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.log.Error("failed to marshal response", zap.Error(err))
		return
	}
	c.enqueue(data, "response")
}

// enqueue queues data for writePump, dropping it silently once the connection has been
// closed rather than sending on a closed channel.
func (c *connection) enqueue(data []byte, what string) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("dropping "+what+", send buffer full", zap.String("session_id", c.session.ID()))
	}
}

// readPump consumes inbound JSON-RPC requests until the connection closes.
func (c *connection) readPump(dispatch func(*jsonrpc.Request) *jsonrpc.Response) {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		req, err := jsonrpc.ParseRequest(raw)
		if err != nil {
			c.writeResponse(jsonrpc.NewErrorResponse(nil, jsonrpc.ParseError, "malformed JSON-RPC request", nil))
			continue
		}

		resp := dispatch(req)
		if resp != nil {
			c.writeResponse(resp)
		}
	}
}

// writePump flushes queued notifications/responses and sends keepalive pings until the
// connection closes.
func (c *connection) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// close marks the connection closed; subsequent Notify/writeResponse calls are
// silently dropped instead of racing writePump's shutdown. Safe to call more than
// once.
func (c *connection) close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	c.closeMu.Unlock()
	close(c.done)
}
