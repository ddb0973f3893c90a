package main

import (
	"context"
	"sync"

	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/mahaj/chatrelay/pkg/router"
	"github.com/sirupsen/logrus"
)

// Relay is what the connections drive.
type Relay interface {
	Handle(ctx context.Context, connID string, in router.Inbound) error
	Disconnect(connID string)
}

// Hub maintains the set of live connections and delivers notifications to
// them. It is the router sink.
type Hub struct {
	clients    map[string]*Client // connection id -> client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	relay      Relay
	log        logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Attach sets the relay the connections are handed to. It must be called
// before the first connection.
func (h *Hub) Attach(relay Relay) {
	h.relay = relay
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{"function": "register", "conn": c.ID}).Info("Client registered")
}

// Deliver queues n on the connection. A connection whose buffer is full is
// closed, its read pump then unregisters it.
func (h *Hub) Deliver(connID string, n model.Notification) {
	payload, err := Encode(n)
	if err != nil {
		h.log.WithFields(logrus.Fields{"function": "Deliver", "type": n.Type, "error": err}).Error("Failed to encode notification")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	select {
	case c.send <- payload:
	default:
		h.log.WithFields(logrus.Fields{"function": "Deliver", "conn": connID}).Warn("Send buffer full, dropping client")
		c.conn.Close()
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run removes unregistered clients until ctx is done, then closes the
// remaining connections.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case c := <-h.unregister:
			h.remove(c)
		case <-ctx.Done():
			h.mu.RLock()
			for _, c := range h.clients {
				c.conn.Close()
			}
			h.mu.RUnlock()
			return ctx.Err()
		}
	}
}

// leave hands c to Run, or removes it in place once Run has returned.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		h.remove(c)
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	current, ok := h.clients[c.ID]
	removed := ok && current == c
	if removed {
		delete(h.clients, c.ID)
		close(c.send)
	}
	h.mu.Unlock()
	if !removed {
		return
	}

	h.relay.Disconnect(c.ID)
	h.log.WithFields(logrus.Fields{"function": "remove", "conn": c.ID}).Info("Client unregistered")
}
