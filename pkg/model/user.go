package model

import "time"

type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceAway    Presence = "away"
	PresenceOffline Presence = "offline"
)

func (p Presence) Valid() bool {
	switch p {
	case PresenceOnline, PresenceAway, PresenceOffline:
		return true
	}
	return false
}

// User is a declared profile. ID is the id of the connection that declared it.
type User struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"name"`
	Avatar      string     `json:"avatar"`
	Presence    Presence   `json:"status"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}

// PresenceState is what the presence tracker keeps per user.
type PresenceState struct {
	Status   Presence   `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}
