// Package websocket fans controller events out to connected UI clients.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"rakshak/pkg/logger"
)

const (
	EventWelcome        = "welcome"
	EventSessionState   = "session_state"
	EventLocationUpdate = "location_update"
	EventPong           = "pong"
)

// Message is the frame sent to clients. Broadcast events carry a strictly
// increasing Seq so a client can tell it missed one and resync from the
// status endpoint. The welcome frame carries the latest Seq already sent.
type Message struct {
	Type      string      `json:"type"`
	Seq       uint64      `json:"seq,omitempty"`
	Timestamp int64       `json:"timestamp"` // unix milliseconds
	Data      interface{} `json:"data,omitempty"`
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	seq        atomic.Uint64
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log.WithComponent("websocket"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.sendToAll(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mutex.Unlock()

	h.logger.WithFields(map[string]interface{}{
		"client":  client.ID,
		"clients": count,
	}).Info("Client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.logger.WithField("client", client.ID).Info("Client unregistered")
	}
}

func (h *Hub) sendToAll(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Slow consumer; the UI reconnects and receives a fresh snapshot.
			close(client.send)
			delete(h.clients, client)
			h.logger.WithField("client", client.ID).Warn("Dropping slow client")
		}
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// Broadcast queues an event for every connected client. It never blocks;
// events are dropped when the queue is full.
func (h *Hub) Broadcast(eventType string, data interface{}) {
	raw, err := encode(eventType, h.seq.Add(1), data)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode event")
		return
	}
	select {
	case h.broadcast <- raw:
	default:
		h.logger.WithField("type", eventType).Warn("Broadcast queue full, dropping event")
	}
}

// add and remove report false once the hub has stopped.
func (h *Hub) add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func encode(eventType string, seq uint64, data interface{}) ([]byte, error) {
	return json.Marshal(Message{
		Type:      eventType,
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
}
