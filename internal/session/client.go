package session

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/mparet/crashcast/internal/event"
)

var feedKinds = []string{event.KindRound, event.KindResult, event.KindStatus}

// Format represents the client's preferred encoding format.
type Format int

const (
	FormatJSON Format = 0
	FormatText Format = 1
)

// Client represents a connected WebSocket client.
type Client struct {
	ID   uint64
	Conn *websocket.Conn

	mu       sync.RWMutex
	format   Format
	kinds    map[string]bool // feed kind -> subscribed
	allKinds bool

	sendCh     chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	bufferSize int

	// stats
	Dropped uint64
}

var clientIDCounter uint64

// NewClient creates a new client wrapping a WebSocket connection.
func NewClient(conn *websocket.Conn, bufferSize int) *Client {
	return &Client{
		ID:         atomic.AddUint64(&clientIDCounter, 1),
		Conn:       conn,
		format:     FormatJSON,
		kinds:      make(map[string]bool),
		sendCh:     make(chan []byte, bufferSize),
		done:       make(chan struct{}),
		bufferSize: bufferSize,
	}
}

// Format returns the client's current encoding format.
func (c *Client) Format() Format {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.format
}

// SetFormat sets the client's encoding format.
func (c *Client) SetFormat(f Format) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.format = f
}

// Subscribe adds feed kinds to the client's subscription. Naming
// concrete kinds narrows a subscribe-all client down to just those.
func (c *Client) Subscribe(kinds []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allKinds = false
	for _, k := range kinds {
		c.kinds[k] = true
	}
}

// SubscribeAll subscribes the client to every feed kind.
func (c *Client) SubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allKinds = true
	c.kinds = make(map[string]bool)
}

// Unsubscribe removes feed kinds from the client's subscription. A
// subscribe-all client keeps the remaining kinds.
func (c *Client) Unsubscribe(kinds []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allKinds {
		c.allKinds = false
		for _, k := range feedKinds {
			c.kinds[k] = true
		}
	}
	for _, k := range kinds {
		delete(c.kinds, k)
	}
}

// IsSubscribed checks if the client is subscribed to a feed kind.
func (c *Client) IsSubscribed(kind string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.allKinds {
		return true
	}
	return c.kinds[kind]
}

// Send enqueues data to be sent to the client.
// Returns false if the buffer is full (message dropped).
func (c *Client) Send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		atomic.AddUint64(&c.Dropped, 1)
		return false
	}
}

// SendCh returns the send channel for the write pump.
func (c *Client) SendCh() <-chan []byte {
	return c.sendCh
}

// Done returns a channel that is closed when the client is disconnected.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close terminates the client connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}
