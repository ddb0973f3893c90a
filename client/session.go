package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mahaj/chatrelay/pkg/conversation"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/samber/lo"
)

type frame struct {
	Type           model.EventType `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Data           json.RawMessage `json:"data"`
}

// sendFunc writes one outbound event.
type sendFunc func(kind string, data any) error

// session is the terminal view of one connection: who we are, who we talk
// to and how to render what arrives.
type session struct {
	mu      sync.Mutex
	out     io.Writer
	send    sendFunc
	self    model.User
	names   map[string]string
	current string
	dmWith  string
}

func newSession(out io.Writer, send sendFunc, dmWith, group string) *session {
	return &session{
		out:     out,
		send:    send,
		names:   make(map[string]string),
		current: group,
		dmWith:  strings.TrimSpace(dmWith),
	}
}

func (s *session) conversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *session) name(id string) string {
	if n, ok := s.names[id]; ok {
		return n
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (s *session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, "\r"+format+"\n> ", args...)
}

func (s *session) handle(f frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch f.Type {
	case model.EventContactsSnapshot:
		var snap model.ContactsSnapshot
		if err := json.Unmarshal(f.Data, &snap); err != nil {
			return err
		}
		return s.onContacts(snap)

	case model.EventHistorySnapshot:
		var history model.HistorySnapshot
		if err := json.Unmarshal(f.Data, &history); err != nil {
			return err
		}
		s.printf("--- %s (%d messages) ---", history.ConversationID, len(history.Messages))
		for _, m := range history.Messages {
			s.printf("[%s] %s: %s", m.Status, s.name(m.SenderID), m.Text)
		}

	case model.EventMessageAppended:
		var appended model.MessageAppended
		if err := json.Unmarshal(f.Data, &appended); err != nil {
			return err
		}
		s.names[appended.From.ID] = appended.From.DisplayName
		msg := appended.Message
		s.printf("%s %s: %s", appended.From.Avatar, appended.From.DisplayName, msg.Text)
		if msg.SenderID != s.self.ID && msg.ConversationID == s.current {
			return s.send("mark_read", map[string]any{"conversation_id": msg.ConversationID, "message_id": msg.ID})
		}

	case model.EventMessageStatusChanged:
		var change model.StatusChange
		if err := json.Unmarshal(f.Data, &change); err != nil {
			return err
		}
		s.printf("message %s is %s", change.MessageID, change.Status)

	case model.EventTypingStarted, model.EventTypingStopped:
		var change model.TypingChange
		if err := json.Unmarshal(f.Data, &change); err != nil {
			return err
		}
		if change.Typing {
			s.printf("%s is typing...", s.name(change.UserID))
		}

	case model.EventPresenceChanged:
		var change model.PresenceChange
		if err := json.Unmarshal(f.Data, &change); err != nil {
			return err
		}
		s.printf("%s is %s", s.name(change.UserID), change.Status)

	case model.EventError:
		var e model.ErrorPayload
		if err := json.Unmarshal(f.Data, &e); err != nil {
			return err
		}
		s.printf("error %s: %s", e.Code, e.Msg)
	}
	return nil
}

// onContacts learns the directory and opens the conversation asked for on
// the command line.
func (s *session) onContacts(snap model.ContactsSnapshot) error {
	s.self = snap.Self
	for _, u := range snap.Contacts {
		s.names[u.ID] = u.DisplayName
	}
	s.names[snap.Self.ID] = snap.Self.DisplayName

	online := lo.FilterMap(snap.Contacts, func(u model.User, _ int) (string, bool) {
		return u.DisplayName, u.Presence != model.PresenceOffline
	})
	s.printf("signed in as %s %s, online: %s", snap.Self.Avatar, snap.Self.DisplayName, strings.Join(online, ", "))

	if s.dmWith != "" {
		peer, ok := lo.Find(snap.Contacts, func(u model.User) bool { return u.DisplayName == s.dmWith })
		if !ok {
			s.printf("%s is not connected, staying in %s", s.dmWith, s.current)
		} else {
			s.current = conversation.DirectID(s.self.ID, peer.ID)
		}
	}
	return s.send("request_history", map[string]string{"conversation_id": s.current})
}

// command turns one input line into an outbound event. It reports false
// when the user asked to quit.
func (s *session) command(line string) (bool, error) {
	current := s.conversation()
	switch strings.TrimSpace(line) {
	case "":
		return true, nil
	case "/quit":
		return false, nil
	case "/typing":
		return true, s.send("typing_start", map[string]string{"conversation_id": current})
	case "/away":
		return true, s.send("update_presence", map[string]string{"status": string(model.PresenceAway)})
	case "/online":
		return true, s.send("update_presence", map[string]string{"status": string(model.PresenceOnline)})
	case "/history":
		return true, s.send("request_history", map[string]string{"conversation_id": current})
	default:
		return true, s.send("send_message", map[string]string{"conversation_id": current, "text": line})
	}
}
