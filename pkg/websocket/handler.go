package websocket

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rakshak/internal/utils"
)

type Options struct {
	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
	MaxConnections   int
	AllowedOrigins   []string
}

type Handler struct {
	hub      *Hub
	opts     Options
	upgrader websocket.Upgrader
	// welcome produces the state sent to a client right after it connects.
	welcome func() interface{}
}

func NewHandler(hub *Hub, opts Options, welcome func() interface{}) *Handler {
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}
	if opts.PingInterval <= 0 || opts.PingInterval >= opts.PongTimeout {
		opts.PingInterval = (opts.PongTimeout * 9) / 10
	}
	h := &Handler{hub: hub, opts: opts, welcome: welcome}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   opts.ReadBufferSize,
		WriteBufferSize:  opts.WriteBufferSize,
		HandshakeTimeout: opts.HandshakeTimeout,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	if h.opts.MaxConnections > 0 && h.hub.ClientCount() >= h.opts.MaxConnections {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "TOO_MANY_CONNECTIONS", "websocket connection limit reached")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	id := c.GetString("request_id")
	if id == "" {
		id = uuid.NewString()
	}
	client := newClient(id, h.hub, conn, h.opts)

	var data interface{}
	if h.welcome != nil {
		data = h.welcome()
	}
	if raw, err := encode(EventWelcome, h.hub.seq.Load(), data); err == nil {
		client.send <- raw
	}

	if !h.hub.add(client) {
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func (h *Handler) GetHub() *Hub {
	return h.hub
}
