package model

type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// Conversation is a snapshot of a conversation without its log.
type Conversation struct {
	ID          string           `json:"id"`
	Kind        ConversationKind `json:"kind"`
	Members     []string         `json:"members"`
	MemberCount int              `json:"member_count,omitempty"`
}
