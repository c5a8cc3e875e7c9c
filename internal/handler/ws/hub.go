package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"KeyZones/internal/domain/models"
	domrepo "KeyZones/internal/domain/repository"
	apimetrics "KeyZones/internal/service/metrics"
	applogger "KeyZones/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 4
)

// Message is the envelope pushed to clients.
type Message struct {
	Type string            `json:"type"`
	Data models.MatrixView `json:"data"`
}

const MessageTypeMatrix = "matrix"

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Option configures Hub.
type Option func(*Hub)

// WithSnapshot sends the current matrix to every client right after it connects.
func WithSnapshot(fn func() *models.ResultMatrix) Option {
	return func(h *Hub) { h.snapshot = fn }
}

func WithLogger(l *applogger.Logger) Option {
	return func(h *Hub) { h.l = l }
}

var _ domrepo.ResultPublisher = (*Hub)(nil)

// Hub fans published matrices out to WebSocket clients. A client whose send
// buffer is full is disconnected instead of slowing the others.
type Hub struct {
	upgrader websocket.Upgrader
	snapshot func() *models.ResultMatrix
	l        *applogger.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.l == nil {
		h.l = applogger.Nop()
	}
	apimetrics.Register()
	return h
}

// SetSnapshot replaces the snapshot source. Call before serving.
func (h *Hub) SetSnapshot(fn func() *models.ResultMatrix) { h.snapshot = fn }

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// Serve upgrades the request and streams matrices until the client leaves.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already wrote the response
		h.l.Warn("websocket upgrade failed", applogger.Error(err))
		return nil
	}

	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.add(cl) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		return conn.Close()
	}
	h.l.Debug("websocket client connected", applogger.String("remote", c.RealIP()))

	go h.writeLoop(cl)
	h.readLoop(cl)
	return nil
}

// Publish pushes m to every connected client.
func (h *Hub) Publish(_ context.Context, m *models.ResultMatrix) error {
	b, err := encode(m)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- b:
		default:
			apimetrics.WSDropped.Inc()
			h.l.Warn("websocket client too slow, dropping")
			h.removeLocked(cl)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for cl := range h.clients {
		h.removeLocked(cl)
	}
}

// add registers cl and queues the current snapshot under the same lock as
// Publish, so a client sees either the snapshot followed by every later
// matrix or the later matrix itself.
func (h *Hub) add(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.snapshot != nil {
		if m := h.snapshot(); m != nil {
			if b, err := encode(m); err == nil {
				cl.send <- b
			}
		}
	}
	h.clients[cl] = struct{}{}
	apimetrics.WSClients.Inc()
	return true
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(cl)
}

func (h *Hub) removeLocked(cl *client) {
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	apimetrics.WSClients.Dec()
	cl.close()
}

// readLoop only watches for pongs and disconnects; clients never send data.
func (h *Hub) readLoop(cl *client) {
	defer func() {
		h.remove(cl)
		_ = cl.conn.Close()
	}()
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case b, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encode(m *models.ResultMatrix) ([]byte, error) {
	b, err := json.Marshal(Message{Type: MessageTypeMatrix, Data: m.View()})
	if err != nil {
		return nil, fmt.Errorf("encode matrix %d: %w", m.RequestID, err)
	}
	return b, nil
}
