// Package presence tracks whether users are online, away or offline.
package presence

import (
	"fmt"
	"sync"
	"time"

	"github.com/mahaj/chatrelay/pkg/apperr"
	"github.com/mahaj/chatrelay/pkg/model"
)

type Listener func(model.PresenceChange)

// Tracker keeps one state per user. LastSeen is only set while the user is
// away or offline. Listeners run with the tracker lock held, so changes of a
// user are observed in order; they must not call back into the tracker.
type Tracker struct {
	mu        sync.Mutex
	states    map[string]model.PresenceState
	listeners []Listener
	now       func() time.Time
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		states: make(map[string]model.PresenceState),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) OnChange(fn Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Connect marks userID online after an identity declaration.
func (t *Tracker) Connect(userID string) (model.PresenceChange, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.apply(userID, model.PresenceState{Status: model.PresenceOnline})
}

// Update applies an explicit status. Repeating the current status changes
// nothing, the previous LastSeen is kept.
func (t *Tracker) Update(userID string, status model.Presence) (model.PresenceChange, bool, error) {
	if !status.Valid() {
		return model.PresenceChange{}, false, fmt.Errorf("%q: %w", status, apperr.ErrInvalidPresence)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.states[userID]; ok && current.Status == status {
		return model.PresenceChange{}, false, nil
	}
	next := model.PresenceState{Status: status}
	if status != model.PresenceOnline {
		next.LastSeen = t.stamp()
	}
	change, changed := t.apply(userID, next)
	return change, changed, nil
}

// Disconnect marks userID offline as of now.
func (t *Tracker) Disconnect(userID string) (model.PresenceChange, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.apply(userID, model.PresenceState{Status: model.PresenceOffline, LastSeen: t.stamp()})
}

func (t *Tracker) stamp() *time.Time {
	now := t.now().UTC()
	return &now
}

func (t *Tracker) apply(userID string, next model.PresenceState) (model.PresenceChange, bool) {
	if current, ok := t.states[userID]; ok && same(current, next) {
		return model.PresenceChange{}, false
	}
	t.states[userID] = next

	change := model.PresenceChange{UserID: userID, Status: next.Status, LastSeen: next.LastSeen}
	for _, fn := range t.listeners {
		fn(change)
	}
	return change, true
}

func same(a, b model.PresenceState) bool {
	if a.Status != b.Status {
		return false
	}
	if a.LastSeen == nil || b.LastSeen == nil {
		return a.LastSeen == nil && b.LastSeen == nil
	}
	return a.LastSeen.Equal(*b.LastSeen)
}

func (t *Tracker) Get(userID string) (model.PresenceState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[userID]
	return s, ok
}

// Snapshot copies every known state.
func (t *Tracker) Snapshot() map[string]model.PresenceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]model.PresenceState, len(t.states))
	for id, s := range t.states {
		out[id] = s
	}
	return out
}
