// Package identity maps live connections to the profile they declared.
package identity

import (
	"sort"
	"strings"
	"sync"

	"github.com/mahaj/chatrelay/pkg/apperr"
	"github.com/mahaj/chatrelay/pkg/model"
)

const DefaultAvatar = "👤"

type entry struct {
	user model.User
	live bool
}

// Registry keeps every declared user. Users removed on disconnect stay known
// for history attribution but are no longer returned by Lookup.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[string]*entry)}
}

// Declare creates or overwrites the profile of connID and marks it live.
func (r *Registry) Declare(connID, name, avatar string) (model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.User{}, apperr.ErrInvalidIdentity
	}
	avatar = strings.TrimSpace(avatar)
	if avatar == "" {
		avatar = DefaultAvatar
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[connID]
	if !ok {
		e = &entry{}
		r.users[connID] = e
	}
	e.user.ID = connID
	e.user.DisplayName = name
	e.user.Avatar = avatar
	e.user.Presence = model.PresenceOnline
	e.user.LastSeen = nil
	e.live = true
	return e.user, nil
}

func (r *Registry) Lookup(connID string) (model.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.users[connID]
	if !ok || !e.live {
		return model.User{}, false
	}
	return e.user, true
}

// Profile returns the user whether live or retained.
func (r *Registry) Profile(id string) (model.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.users[id]
	if !ok {
		return model.User{}, false
	}
	return e.user, true
}

// Remove detaches the user from its connection. The returned user is the
// last live profile; ok is false when connID was not live.
func (r *Registry) Remove(connID string) (model.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[connID]
	if !ok || !e.live {
		return model.User{}, false
	}
	e.live = false
	return e.user, true
}

// SetPresence copies presence state into the stored profile.
func (r *Registry) SetPresence(id string, state model.PresenceState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.users[id]; ok {
		e.user.Presence = state.Status
		e.user.LastSeen = state.LastSeen
	}
}

func (r *Registry) IsLive(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Live returns the live users ordered by id.
func (r *Registry) Live() []model.User {
	return r.collect(true)
}

// Known returns every user ever declared ordered by id.
func (r *Registry) Known() []model.User {
	return r.collect(false)
}

func (r *Registry) collect(liveOnly bool) []model.User {
	r.mu.RLock()
	users := make([]model.User, 0, len(r.users))
	for _, e := range r.users {
		if liveOnly && !e.live {
			continue
		}
		users = append(users, e.user)
	}
	r.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}
