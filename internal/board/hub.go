package board

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/microbit-kws-lab/internal/kws"
	"github.com/microbit-kws-lab/internal/logging"
)

// Event is one board command as sent to websocket viewers. State events
// carry the full board and are sent to a client when it connects.
type Event struct {
	Type  string      `json:"type"`
	Pin   int         `json:"pin,omitempty"`
	Value int         `json:"value"`
	Glyph string      `json:"glyph,omitempty"`
	Image *Glyph      `json:"image,omitempty"`
	Pins  map[int]int `json:"pins,omitempty"`
	TS    time.Time   `json:"ts"`
}

const (
	EventPin   = "pin"
	EventGlyph = "glyph"
	EventState = "state"

	clientQueue = 32
	pingPeriod  = 30 * time.Second
	pongWait    = 60 * time.Second
	writeWait   = 5 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *client) remote() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// Hub is a Board that mirrors the LEDs and matrix to websocket clients.
// Slow clients are disconnected rather than allowed to block the loop.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	pins    map[int]int
	glyph   kws.GlyphID
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
		pins:    make(map[int]int),
		glyph:   kws.GlyphIdle,
	}
}

func (h *Hub) SetPin(pin, value int) {
	h.publish(Event{Type: EventPin, Pin: pin, Value: value, TS: time.Now().UTC()}, func() bool {
		h.pins[pin] = value
		return true
	})
}

func (h *Hub) Show(id kws.GlyphID) {
	img := GlyphFor(id)
	h.publish(Event{Type: EventGlyph, Glyph: id.String(), Image: &img, TS: time.Now().UTC()}, func() bool {
		changed := h.glyph != id
		h.glyph = id
		return changed
	})
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// snapshotLocked must be called with h.mu held.
func (h *Hub) snapshotLocked() Event {
	pins := make(map[int]int, len(h.pins))
	for k, v := range h.pins {
		pins[k] = v
	}
	img := GlyphFor(h.glyph)
	return Event{Type: EventState, Glyph: h.glyph.String(), Image: &img, Pins: pins, TS: time.Now().UTC()}
}

// publish applies update and fans ev out under one lock, so every client
// sees state changes in the order they were made. Nothing is sent when
// update reports no change.
func (h *Hub) publish(ev Event, update func() bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		logging.Warnw("board hub: marshal event failed", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !update() {
		return
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			logging.Warnw("board hub: dropping slow client", "remote", c.remote())
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// register queues the current state for c and adds it to the fan-out set in
// one step, so no event can land between the two.
func (h *Hub) register(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	first, err := json.Marshal(h.snapshotLocked())
	if err != nil {
		logging.Warnw("board hub: marshal state failed", "err", err)
	} else {
		c.send <- first
	}
	h.clients[c] = struct{}{}
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams board events until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("board hub: upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientQueue)}
	n := h.register(c)
	logging.Infow("board hub: client connected", "remote", c.remote(), "clients", n)

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards client messages; it exists to observe pongs and close.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
