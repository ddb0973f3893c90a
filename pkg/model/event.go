package model

import (
	"time"

	"github.com/mahaj/chatrelay/pkg/snowflake"
)

type EventType string

const (
	EventContactsSnapshot     EventType = "contacts_snapshot"
	EventHistorySnapshot      EventType = "history_snapshot"
	EventMessageAppended      EventType = "message_appended"
	EventMessageStatusChanged EventType = "message_status_changed"
	EventTypingStarted        EventType = "typing_started"
	EventTypingStopped        EventType = "typing_stopped"
	EventPresenceChanged      EventType = "presence_changed"
	EventError                EventType = "error"
)

// Notification is one outbound event. Data holds one of the payload types below.
type Notification struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Data           any       `json:"data,omitempty"`
	At             time.Time `json:"at"`
}

type ContactsSnapshot struct {
	Self     User           `json:"self"`
	Contacts []User         `json:"contacts"`
	Groups   []Conversation `json:"groups"`
}

type HistorySnapshot struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
}

type MessageAppended struct {
	Message Message `json:"message"`
	From    User    `json:"from"`
}

// StatusChange is emitted for every lifecycle transition. ActorID is empty for
// transitions made by a driver rather than by a client.
type StatusChange struct {
	ConversationID string       `json:"conversation_id"`
	MessageID      snowflake.ID `json:"message_id"`
	SenderID       string       `json:"sender_id"`
	Status         Status       `json:"status"`
	ActorID        string       `json:"-"`
}

type TypingChange struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Typing         bool   `json:"typing"`
}

type PresenceChange struct {
	UserID   string     `json:"user_id"`
	Status   Presence   `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type ErrorPayload struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
