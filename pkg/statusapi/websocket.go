package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"peachy-go/pkg/log"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	maxMessage   = 512 * 1024
)

// wsClient is one websocket connection. Outgoing messages go through a
// bounded channel drained by writePump.
type wsClient struct {
	id     int64
	ctx    context.Context
	conn   *websocket.Conn
	server *Server
	logger *log.Logger

	sendCh    chan any
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade error: %v", err)
		return
	}

	c := &wsClient{
		id:     s.nextID.Add(1),
		ctx:    r.Context(),
		conn:   conn,
		server: s,
		sendCh: make(chan any, sendBuffer),
		done:   make(chan struct{}),
	}
	c.logger = s.logger.With(log.Fields{"client": c.id})

	s.clientsMu.Lock()
	s.clients[c.id] = c
	s.clientsMu.Unlock()
	c.logger.Debug("WebSocket client connected")

	go c.writePump()

	if s.printer != nil {
		c.send(notification{
			JSONRPC: "2.0",
			Method:  "notify_status_update",
			Params:  []any{s.printer.GetStatus(), s.eventTime()},
		})
	}

	c.readPump()
}

func (s *Server) removeClient(c *wsClient) {
	s.clientsMu.Lock()
	delete(s.clients, c.id)
	s.clientsMu.Unlock()
	c.logger.Debug("WebSocket client disconnected")
}

// send queues msg, dropping it when the client is not keeping up.
func (c *wsClient) send(msg any) {
	select {
	case <-c.done:
	case c.sendCh <- msg:
	default:
		c.logger.Warn("Dropping message (send buffer full)")
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *wsClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket read error: %v", err)
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("WebSocket write error: %v", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) handleMessage(data []byte) {
	var req jsonRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.send(jsonRPCResponse{
			JSONRPC: "2.0",
			Error:   &jsonRPCError{Code: codeParseError, Message: "Parse error"},
		})
		return
	}
	// Requests run on the read goroutine, so replies keep request order.
	c.send(c.server.call(c.ctx, req))
}
