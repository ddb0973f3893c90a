package router

import (
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/mahaj/chatrelay/pkg/snowflake"
)

// Inbound is an event received from a connection.
type Inbound interface {
	EventName() string
}

type DeclareIdentity struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type RequestHistory struct {
	ConversationID string `json:"conversation_id" validate:"required"`
}

type JoinConversation struct {
	ConversationID string `json:"conversation_id" validate:"required"`
}

type SendMessage struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	Text           string `json:"text"`
}

type MarkRead struct {
	ConversationID string       `json:"conversation_id" validate:"required"`
	MessageID      snowflake.ID `json:"message_id" validate:"required"`
}

type MarkDelivered struct {
	ConversationID string       `json:"conversation_id" validate:"required"`
	MessageID      snowflake.ID `json:"message_id" validate:"required"`
}

type TypingStart struct {
	ConversationID string `json:"conversation_id" validate:"required"`
}

type TypingStop struct {
	ConversationID string `json:"conversation_id" validate:"required"`
}

type UpdatePresence struct {
	Status model.Presence `json:"status" validate:"required"`
}

func (DeclareIdentity) EventName() string  { return "declare_identity" }
func (RequestHistory) EventName() string   { return "request_history" }
func (JoinConversation) EventName() string { return "join_conversation" }
func (SendMessage) EventName() string      { return "send_message" }
func (MarkRead) EventName() string         { return "mark_read" }
func (MarkDelivered) EventName() string    { return "mark_delivered" }
func (TypingStart) EventName() string      { return "typing_start" }
func (TypingStop) EventName() string       { return "typing_stop" }
func (UpdatePresence) EventName() string   { return "update_presence" }
