package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"messagely/internal/metrics"
)

// Hub fans events out to every open connection of a user. A user's hub runs
// while at least one connection is attached and is discarded after the last
// one detaches.
type Hub struct {
	mu    sync.RWMutex
	users map[string]*UserHub
}

func NewHub() *Hub { return &Hub{users: make(map[string]*UserHub)} }

// attach registers c with username's hub, starting the hub if needed.
func (h *Hub) attach(username string, c *Client) *UserHub {
	h.mu.Lock()
	uh := h.users[username]
	if uh == nil {
		uh = newUserHub(username)
		h.users[username] = uh
		go uh.run()
	}
	uh.refs++
	h.mu.Unlock()

	c.hub = uh
	uh.register <- c
	return uh
}

// detach unregisters c and stops its hub once nothing is attached.
func (h *Hub) detach(c *Client) {
	uh := c.hub
	uh.unregister <- c

	h.mu.Lock()
	defer h.mu.Unlock()
	uh.refs--
	if uh.refs == 0 {
		delete(h.users, uh.username)
		close(uh.done)
	}
}

// Online reports how many connections username has open.
func (h *Hub) Online(username string) int {
	h.mu.RLock()
	uh := h.users[username]
	h.mu.RUnlock()
	if uh == nil {
		return 0
	}
	return uh.Online()
}

// Notify implements service.Notifier. Users without a hub never connected and
// are skipped; a full queue drops the event.
func (h *Hub) Notify(username string, event any) {
	h.mu.RLock()
	uh := h.users[username]
	h.mu.RUnlock()
	if uh == nil {
		return
	}
	b, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("user", username).Msg("encode event")
		return
	}
	select {
	case uh.broadcast <- b:
	default:
		log.Warn().Str("user", username).Msg("event queue full, dropping")
	}
}

type UserHub struct {
	username   string
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	online     int32

	// refs counts attached clients, guarded by Hub.mu.
	refs int
}

func newUserHub(username string) *UserHub {
	return &UserHub{
		username:   username,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

func (uh *UserHub) run() {
	for {
		select {
		case <-uh.done:
			return
		case c := <-uh.register:
			uh.clients[c] = true
			metrics.WsConnections.Inc()
			uh.sync()
		case c := <-uh.unregister:
			if _, ok := uh.clients[c]; ok {
				uh.drop(c)
			}
		case msg := <-uh.broadcast:
			for c := range uh.clients {
				select {
				case c.send <- msg:
				default:
					// slow reader
					uh.drop(c)
				}
			}
		}
	}
}

func (uh *UserHub) drop(c *Client) {
	delete(uh.clients, c)
	close(c.send)
	metrics.WsConnections.Dec()
	uh.sync()
}

func (uh *UserHub) sync() { atomic.StoreInt32(&uh.online, int32(len(uh.clients))) }

func (uh *UserHub) Online() int { return int(atomic.LoadInt32(&uh.online)) }
