package gateway

import (
	"encoding/json"
	"hash/maphash"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/soyeahso/supportim/internal/metrics"
)

// Client represents an authenticated WebSocket connection.
type Client struct {
	ConnID      string
	Role        domain.Role
	IP          string
	Socket      *websocket.Conn
	ConnectedAt time.Time

	mu     sync.Mutex // serializes writes
	closed bool

	bindMu sync.Mutex
	phone  string // customer thread, set by the first join
}

// NewClient creates a Client for a newly authenticated WebSocket connection.
func NewClient(conn *websocket.Conn, role domain.Role, ip string) *Client {
	return &Client{
		ConnID:      uuid.New().String(),
		Role:        role,
		IP:          ip,
		Socket:      conn,
		ConnectedAt: time.Now(),
	}
}

// Send sends a frame to the client. Thread-safe.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Socket.WriteJSON(frame)
}

// SendEvent sends a named event with payload.
func (c *Client) SendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// ReadFrame reads the next frame from the WebSocket.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.Socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.Socket.Close()
}

// Phone returns the thread a customer connection is bound to.
func (c *Client) Phone() string {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()
	return c.phone
}

// bind attaches a customer connection to phone. first is true when this
// call created the binding; ok is false when the connection is already
// bound to a different thread.
func (c *Client) bind(phone string) (first, ok bool) {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()
	switch c.phone {
	case "":
		c.phone = phone
		return true, true
	case phone:
		return false, true
	default:
		return false, false
	}
}

const roomStripes = 64

// Hub tracks connected clients and the thread rooms they joined.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client            // connID → Client
	rooms   map[string]map[string]*Client // phone → connID → Client
	seq     atomic.Int64
	log     *logging.Logger

	// sendMu serializes broadcasts per room, striped by phone.
	sendMu   [roomStripes]sync.Mutex
	sendSeed maphash.Seed
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		rooms:    make(map[string]map[string]*Client),
		log:      log,
		sendSeed: maphash.MakeSeed(),
	}
}

func (h *Hub) roomSendLock(phone string) *sync.Mutex {
	return &h.sendMu[maphash.String(h.sendSeed, phone)%roomStripes]
}

// Add registers a connected client.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c.ConnID] = c
	h.mu.Unlock()
	metrics.Connections.WithLabelValues(string(c.Role)).Inc()
	h.log.Info().Str("connId", c.ConnID).Str("role", string(c.Role)).Msg("client connected")
}

// Remove unregisters a client and drops it from every room.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ConnID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ConnID)
	for phone, members := range h.rooms {
		delete(members, c.ConnID)
		if len(members) == 0 {
			delete(h.rooms, phone)
		}
	}
	h.mu.Unlock()
	metrics.Connections.WithLabelValues(string(c.Role)).Dec()
	h.log.Info().Str("connId", c.ConnID).Msg("client disconnected")
}

// Get returns a client by connection ID.
func (h *Hub) Get(connID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	return c, ok
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Join adds c to the room of phone.
func (h *Hub) Join(c *Client, phone string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ConnID]; !ok {
		return
	}
	members := h.rooms[phone]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[phone] = members
	}
	members[c.ConnID] = c
}

// InRoom reports whether c joined the room of phone.
func (h *Hub) InRoom(c *Client, phone string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[phone][c.ConnID]
	return ok
}

// Rooms lists the threads that have at least one member, sorted.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms))
	for phone := range h.rooms {
		out = append(out, phone)
	}
	sort.Strings(out)
	return out
}

// Broadcast sends an event to every member of a room. Each call uses the
// next server sequence number, and members of one room receive broadcasts
// in seq order. Across rooms, and against SendTo, seq is unique but not
// delivery-ordered.
func (h *Hub) Broadcast(phone, event string, payload any) {
	lock := h.roomSendLock(phone)
	lock.Lock()
	defer lock.Unlock()

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[phone]))
	for _, c := range h.rooms[phone] {
		members = append(members, c)
	}
	h.mu.RUnlock()
	if len(members) == 0 {
		return
	}

	f, err := NewEvent(event, payload, h.seq.Add(1))
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encoding broadcast")
		return
	}
	for _, c := range members {
		if err := c.Send(f); err != nil {
			h.log.Warn().Err(err).Str("connId", c.ConnID).Str("phone", phone).Msg("broadcast send failed")
		}
	}
}

// SendTo sends an event to a single client using the server sequence.
func (h *Hub) SendTo(c *Client, event string, payload any) error {
	return c.SendEvent(event, payload, h.seq.Add(1))
}

// AgentWatching reports whether any agent connection joined the room of phone.
func (h *Hub) AgentWatching(phone string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[phone] {
		if c.Role == domain.RoleAgent {
			return true
		}
	}
	return false
}

// LiveCustomers counts bound customer connections per thread.
func (h *Hub) LiveCustomers() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int)
	for _, c := range h.clients {
		if c.Role != domain.RoleCustomer {
			continue
		}
		if phone := c.Phone(); phone != "" {
			out[phone]++
		}
	}
	return out
}

// CloseAll closes all connected clients.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		metrics.Connections.WithLabelValues(string(c.Role)).Dec()
		delete(h.clients, id)
	}
	h.rooms = make(map[string]map[string]*Client)
}
