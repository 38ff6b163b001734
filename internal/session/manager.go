package session

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mparet/crashcast/internal/engine"
	"github.com/mparet/crashcast/internal/event"
)

// Manager handles client registration, subscriptions, and feed fan-out.
// It implements the runner's Broadcaster interface.
type Manager struct {
	mu         sync.RWMutex
	clients    map[uint64]*Client
	bufferSize int
}

// NewManager creates a session manager.
func NewManager(bufferSize int) *Manager {
	return &Manager{
		clients:    make(map[uint64]*Client),
		bufferSize: bufferSize,
	}
}

// Register adds a new client. Returns the client for further use.
func (m *Manager) Register(conn *websocket.Conn) *Client {
	c := NewClient(conn, m.bufferSize)

	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()

	log.Printf("client %d connected (%s)", c.ID, conn.RemoteAddr())
	return c
}

// Unregister removes a client.
func (m *Manager) Unregister(c *Client) {
	m.mu.Lock()
	delete(m.clients, c.ID)
	m.mu.Unlock()

	c.Close()
	log.Printf("client %d disconnected", c.ID)
}

// Broadcast fans one feed message out to subscribed clients.
// The message is encoded once per format.
func (m *Manager) Broadcast(msg *event.FeedMessage) {
	var jsonEncoded, textEncoded []byte
	var jsonOnce, textOnce sync.Once

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.clients {
		if !c.IsSubscribed(msg.Kind) {
			continue
		}

		switch c.Format() {
		case FormatJSON:
			jsonOnce.Do(func() {
				data, err := event.EncodeJSON(msg)
				if err != nil {
					log.Printf("feed encode error: %v", err)
					return
				}
				jsonEncoded = data
			})
			if jsonEncoded != nil {
				c.Send(jsonEncoded)
			}

		case FormatText:
			textOnce.Do(func() {
				textEncoded = event.EncodeText(msg)
			})
			c.Send(textEncoded)
		}
	}
}

// RoundStarted pushes a generated round to the feed.
func (m *Manager) RoundStarted(r engine.Round) {
	m.Broadcast(&event.FeedMessage{
		Kind:  event.KindRound,
		Time:  time.Now(),
		Round: &r,
	})
}

// ResultApplied pushes an applied real result to the feed.
func (m *Manager) ResultApplied(p event.ResultPayload) {
	m.Broadcast(&event.FeedMessage{
		Kind:   event.KindResult,
		Time:   time.Now(),
		Result: &p,
	})
}

// StatusChanged pushes a session state transition to the feed.
func (m *Manager) StatusChanged(p event.StatusPayload) {
	m.Broadcast(&event.FeedMessage{
		Kind:   event.KindStatus,
		Time:   time.Now(),
		Status: &p,
	})
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CloseAll disconnects every client, used during shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.clients {
		c.Close()
		delete(m.clients, id)
	}
}
