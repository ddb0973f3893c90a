// Command verify_gateway runs a smoke check against a live gateway: two
// users connect, exchange a direct message and the presence endpoint is read.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/chatrelay/pkg/conversation"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/sirupsen/logrus"
)

type frame struct {
	Type model.EventType `json:"type"`
	Data json.RawMessage `json:"data"`
}

type conn struct {
	ws      *websocket.Conn
	pending []frame
}

func connect(addr, name string) (*conn, model.ContactsSnapshot, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, model.ContactsSnapshot{}, err
	}
	c := &conn{ws: ws}
	if err := c.send("declare_identity", map[string]string{"name": name}); err != nil {
		return nil, model.ContactsSnapshot{}, err
	}
	var snap model.ContactsSnapshot
	err = c.await(model.EventContactsSnapshot, &snap)
	return c, snap, err
}

func (c *conn) send(kind string, data any) error {
	raw, err := json.Marshal(map[string]any{"type": kind, "data": data})
	if err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

func (c *conn) await(kind model.EventType, into any) error {
	for {
		for i, f := range c.pending {
			if f.Type == kind {
				c.pending = append(c.pending[:i], c.pending[i+1:]...)
				return json.Unmarshal(f.Data, into)
			}
		}
		c.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", kind, err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		for dec.More() {
			var f frame
			if err := dec.Decode(&f); err != nil {
				return err
			}
			c.pending = append(c.pending, f)
		}
	}
}

func main() {
	addr := flag.String("addr", "localhost:8080", "gateway service address")
	flag.Parse()
	log := logrus.New()

	// 1. Connect two users
	a, aSnap, err := connect(*addr, "verify_a")
	if err != nil {
		log.WithError(err).Fatal("connect verify_a")
	}
	defer a.ws.Close()
	b, bSnap, err := connect(*addr, "verify_b")
	if err != nil {
		log.WithError(err).Fatal("connect verify_b")
	}
	defer b.ws.Close()

	// 2. Exchange a direct message and read it
	dm := conversation.DirectID(aSnap.Self.ID, bSnap.Self.ID)
	log.WithField("conversation", dm).Info("Sending direct message")
	if err := a.send("send_message", map[string]string{"conversation_id": dm, "text": "ping"}); err != nil {
		log.WithError(err).Fatal("send")
	}
	var got model.MessageAppended
	if err := b.await(model.EventMessageAppended, &got); err != nil {
		log.WithError(err).Fatal("receive")
	}
	if err := b.send("mark_read", map[string]any{"conversation_id": dm, "message_id": got.Message.ID}); err != nil {
		log.WithError(err).Fatal("mark read")
	}
	var change model.StatusChange
	for change.Status != model.StatusRead {
		if err := a.await(model.EventMessageStatusChanged, &change); err != nil {
			log.WithError(err).Fatal("status")
		}
		log.WithField("status", change.Status).Info("Status changed")
	}

	// 3. Read the presence endpoint
	resp, err := http.Get("http://" + *addr + "/presence")
	if err != nil {
		log.WithError(err).Fatal("Presence request failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	log.Infof("Presence: %s", string(body))
}
