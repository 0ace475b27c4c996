package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"messagely/internal/guard"
	"messagely/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4 << 10
)

// Authenticator resolves a bearer token to an identity.
type Authenticator interface {
	AuthenticateRequest(token string) (service.Identity, error)
}

type Client struct {
	hub  *UserHub
	conn *websocket.Conn
	send chan []byte
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve upgrades an authenticated request and streams the user's events to
// it. The token comes from ?token= or the Authorization header.
func Serve(h *Hub, authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = guard.BearerToken(c.GetHeader("Authorization"))
		}
		id, err := authn.AuthenticateRequest(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": service.ErrUnauthenticated.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Debug().Err(err).Str("user", id.Username).Msg("ws upgrade failed")
			return
		}
		client := &Client{conn: conn, send: make(chan []byte, 64)}
		h.attach(id.Username, client)
		log.Debug().Str("user", id.Username).Msg("ws connected")

		go client.writePump()
		client.readPump(h)
	}
}

// readPump only watches for close and pong frames. Clients do not send
// anything the server acts on.
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.detach(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				log.Debug().Err(err).Str("user", c.hub.username).Msg("ws read")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
