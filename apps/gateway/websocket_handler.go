package main

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var newline = []byte{'\n'}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound notifications.
	send chan []byte

	// Connection id, also the user id once an identity is declared.
	ID string

	maxMessageSize int64
}

// readPump decodes frames from the websocket connection and hands them to
// the relay. Failed requests get an error frame, the connection stays open.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.WithFields(logrus.Fields{"function": "readPump", "conn": c.ID, "error": err}).Warn("Unexpected close")
			}
			break
		}
		frame = bytes.TrimSpace(frame)
		if len(frame) == 0 {
			continue
		}

		ev, err := Decode(frame)
		if err == nil {
			err = c.hub.relay.Handle(ctx, c.ID, ev)
		}
		if err != nil {
			c.hub.log.WithFields(logrus.Fields{"function": "readPump", "conn": c.ID, "error": err}).Debug("Request rejected")
			c.reply(errorNotification(err))
		}
	}
}

// reply queues n on this connection only.
func (c *Client) reply(n model.Notification) {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	c.hub.Deliver(c.ID, n)
}

// writePump pumps notifications from the hub to the websocket connection.
// Queued notifications are batched into one frame, one JSON document per line.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued notifications to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs upgrades the request and starts the pumps of a new connection.
// The peer declares its identity with its first event.
func serveWs(ctx context.Context, hub *Hub, cfg pumpConfig, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.WithFields(logrus.Fields{"function": "serveWs", "error": err}).Warn("Upgrade failed")
		return
	}

	client := &Client{
		hub:            hub,
		conn:           conn,
		send:           make(chan []byte, cfg.sendBuffer),
		ID:             uuid.NewString(),
		maxMessageSize: cfg.maxMessageSize,
	}
	hub.register(client)

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump(ctx)
}

type pumpConfig struct {
	sendBuffer     int
	maxMessageSize int64
}
