package model

import (
	"time"

	"github.com/mahaj/chatrelay/pkg/snowflake"
)

// Status is the delivery stage of a message as seen by its sender.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Rank orders statuses along the lifecycle. Unknown statuses rank -1.
func (s Status) Rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	default:
		return -1
	}
}

type Message struct {
	ID             snowflake.ID `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	Text           string       `json:"text"`
	CreatedAt      time.Time    `json:"created_at"`
	Status         Status       `json:"status"`
}
