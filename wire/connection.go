package wire

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws/wsutil"
	"golang.org/x/time/rate"
)

// Connection represents one tab's authenticated socket.
type Connection struct {
	// ID uniquely identifies this connection.
	ID string

	// TabID is the browser tab named in the hello frame.
	TabID int

	Identity *Identity

	// Codec is the negotiated wire format.
	Codec Codec

	ConnectedAt time.Time

	// LastActivity tracks the most recent frame received.
	LastActivity atomic.Value // time.Time

	limiter *rate.Limiter

	// netConn is nil for connections built outside a socket (tests).
	netConn net.Conn
	writeMu sync.Mutex

	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

// NewConnection creates a connection for tab with the given identity.
func NewConnection(id string, tab int, identity *Identity, codec Codec) *Connection {
	c := &Connection{
		ID:            id,
		TabID:         tab,
		Identity:      identity,
		Codec:         codec,
		ConnectedAt:   time.Now().UTC(),
		subscriptions: make(map[string]struct{}),
	}
	c.LastActivity.Store(time.Now().UTC())
	return c
}

// Touch updates the last activity timestamp.
func (c *Connection) Touch() {
	c.LastActivity.Store(time.Now().UTC())
}

// Allow reports whether the connection may send another frame now.
func (c *Connection) Allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// WriteFrame encodes and writes a frame. Safe for concurrent use.
func (c *Connection) WriteFrame(frame *Frame) error {
	data, err := c.Codec.Encode(frame)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.netConn == nil {
		return net.ErrClosed
	}
	if c.Codec.Binary() {
		return wsutil.WriteServerBinary(c.netConn, data)
	}
	return wsutil.WriteServerText(c.netConn, data)
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	if c.netConn == nil {
		return nil
	}
	return c.netConn.Close()
}

// AddSubscription records a topic subscription.
func (c *Connection) AddSubscription(channel string) {
	c.mu.Lock()
	c.subscriptions[channel] = struct{}{}
	c.mu.Unlock()
}

// RemoveSubscription removes a topic subscription.
func (c *Connection) RemoveSubscription(channel string) {
	c.mu.Lock()
	delete(c.subscriptions, channel)
	c.mu.Unlock()
}

// Subscriptions returns a copy of active subscription topics.
func (c *Connection) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		out = append(out, ch)
	}
	return out
}

// ConnectionManager tracks active connections.
type ConnectionManager struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewConnectionManager creates an empty connection manager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		conns: make(map[string]*Connection),
	}
}

// Add registers a new connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.conns[conn.ID] = conn
	cm.mu.Unlock()
}

// Remove unregisters a connection.
func (cm *ConnectionManager) Remove(connID string) {
	cm.mu.Lock()
	delete(cm.conns, connID)
	cm.mu.Unlock()
}

// Get returns a connection by ID.
func (cm *ConnectionManager) Get(connID string) (*Connection, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	c, ok := cm.conns[connID]
	return c, ok
}

// ByTab returns the connections serving tab.
func (cm *ConnectionManager) ByTab(tab int) []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	var out []*Connection
	for _, c := range cm.conns {
		if c.TabID == tab {
			out = append(out, c)
		}
	}
	return out
}

// LatestTab returns the tab of the most recently opened connection.
func (cm *ConnectionManager) LatestTab() (int, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	var latest *Connection
	for _, c := range cm.conns {
		if latest == nil || c.ConnectedAt.After(latest.ConnectedAt) {
			latest = c
		}
	}
	if latest == nil {
		return 0, false
	}
	return latest.TabID, true
}

// Count returns the number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}

// All returns a snapshot of all connections.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]*Connection, 0, len(cm.conns))
	for _, c := range cm.conns {
		out = append(out, c)
	}
	return out
}
