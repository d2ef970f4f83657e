package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cuidar/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBuffer     = 64
)

// Client is one websocket connection. A user may hold several.
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// SendFrame queues a frame. Frames carry full snapshots, so when the buffer is
// full the frame is dropped and the next snapshot supersedes it.
func (c *Client) SendFrame(frameType string, chatID string, data interface{}) bool {
	payload, err := json.Marshal(WSMessage{
		Type:      frameType,
		ChatID:    chatID,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		logger.Error("marshal %s frame for %s: %v", frameType, c.UserID, err)
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- payload:
		return true
	case <-c.done:
		return false
	default:
		logger.Warn("dropping %s frame for %s: send buffer full", frameType, c.UserID)
		return false
	}
}

// Done is closed once the connection is shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// ReadPump delivers every inbound frame to handle until the connection fails.
// It returns when the peer goes away.
func (c *Client) ReadPump(handle func(raw []byte)) {
	defer c.Close()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read from %s: %v", c.UserID, err)
			}
			return
		}
		handle(message)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("websocket write to %s: %v", c.UserID, err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Manager tracks the live connections of every user.
type Manager struct {
	clients map[string]map[string]*Client
	mutex   sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]map[string]*Client),
	}
}

// Start closes every connection when ctx is done.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		m.CloseAll()
	}()
}

func (m *Manager) Register(c *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.clients[c.UserID] == nil {
		m.clients[c.UserID] = make(map[string]*Client)
	}
	m.clients[c.UserID][c.ID] = c
	logger.WithFields(logger.Fields{"user_id": c.UserID, "conn_id": c.ID, "connections": len(m.clients[c.UserID])}).
		Info("websocket client registered")
}

func (m *Manager) Unregister(c *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	conns, ok := m.clients[c.UserID]
	if !ok {
		return
	}
	delete(conns, c.ID)
	if len(conns) == 0 {
		delete(m.clients, c.UserID)
	}
	logger.WithFields(logger.Fields{"user_id": c.UserID, "conn_id": c.ID}).Info("websocket client unregistered")
}

// SendToUser queues a frame on every connection of userID and reports how
// many accepted it.
func (m *Manager) SendToUser(userID, frameType string, data interface{}) int {
	m.mutex.RLock()
	targets := make([]*Client, 0, len(m.clients[userID]))
	for _, c := range m.clients[userID] {
		targets = append(targets, c)
	}
	m.mutex.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.SendFrame(frameType, "", data) {
			sent++
		}
	}
	return sent
}

func (m *Manager) ConnectionCount(userID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients[userID])
}

func (m *Manager) CloseAll() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, conns := range m.clients {
		for _, c := range conns {
			c.Close()
		}
	}
}
