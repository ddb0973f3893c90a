// Package typing tracks who is composing a message where.
//
// A typing entry lives until it is stopped or until timeout passes without a
// refresh. Every started entry ends with exactly one stopped notification.
package typing

import (
	"sort"
	"sync"
	"time"

	"github.com/mahaj/chatrelay/pkg/deferred"
	"github.com/mahaj/chatrelay/pkg/model"
)

const DefaultTimeout = time.Second

type key struct {
	userID         string
	conversationID string
}

func (k key) String() string { return k.userID + "\x00" + k.conversationID }

type entry struct {
	expiresAt time.Time
	stamp     deferred.Stamp
}

type Listener func(model.TypingChange)

type Coordinator struct {
	timeout   time.Duration
	scheduler *deferred.Scheduler
	now       func() time.Time

	// mu is held while listeners run so that started and stopped
	// notifications for a key are never reordered.
	mu        sync.Mutex
	entries   map[key]*entry
	listeners []Listener
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(timeout time.Duration, opts ...Option) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Coordinator{
		timeout:   timeout,
		scheduler: deferred.NewScheduler(),
		now:       time.Now,
		entries:   make(map[key]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange registers a listener. Listeners must not call back into the coordinator.
func (c *Coordinator) OnChange(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Start marks userID as typing in conversationID and pushes the expiry back.
// It reports whether the user was not typing before.
func (c *Coordinator) Start(userID, conversationID string) bool {
	k := key{userID: userID, conversationID: conversationID}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, existed := c.entries[k]
	if !existed {
		e = &entry{}
		c.entries[k] = e
	}
	e.expiresAt = c.now().Add(c.timeout)
	e.stamp = c.arm(k, c.timeout)

	if !existed {
		c.notify(model.TypingChange{UserID: userID, ConversationID: conversationID, Typing: true})
	}
	return !existed
}

func (c *Coordinator) arm(k key, delay time.Duration) deferred.Stamp {
	return c.scheduler.Schedule(k.String(), delay, func(stamp deferred.Stamp) { c.expire(k, stamp) })
}

// Stop ends the typing entry. It reports whether one existed.
func (c *Coordinator) Stop(userID, conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked(key{userID: userID, conversationID: conversationID})
}

func (c *Coordinator) stopLocked(k key) bool {
	if _, ok := c.entries[k]; !ok {
		return false
	}
	delete(c.entries, k)
	c.scheduler.Cancel(k.String())
	c.notify(model.TypingChange{UserID: k.userID, ConversationID: k.conversationID, Typing: false})
	return true
}

// StopUser ends every typing entry of userID and returns the conversations
// that were affected.
func (c *Coordinator) StopUser(userID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []key
	for k := range c.entries {
		if k.userID == userID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].conversationID < keys[j].conversationID })

	conversations := make([]string, 0, len(keys))
	for _, k := range keys {
		c.stopLocked(k)
		conversations = append(conversations, k.conversationID)
	}
	return conversations
}

func (c *Coordinator) expire(k key, stamp deferred.Stamp) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok || e.stamp != stamp {
		return
	}
	if remaining := e.expiresAt.Sub(c.now()); remaining > 0 {
		e.stamp = c.arm(k, remaining)
		return
	}
	c.stopLocked(k)
}

func (c *Coordinator) IsTyping(userID, conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key{userID: userID, conversationID: conversationID}]
	return ok
}

// Typing returns the users typing in conversationID ordered by id.
func (c *Coordinator) Typing(conversationID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var users []string
	for k := range c.entries {
		if k.conversationID == conversationID {
			users = append(users, k.userID)
		}
	}
	sort.Strings(users)
	return users
}

func (c *Coordinator) notify(change model.TypingChange) {
	for _, fn := range c.listeners {
		fn(change)
	}
}

// Close cancels every pending expiry without emitting notifications.
func (c *Coordinator) Close() {
	c.scheduler.Stop()
}
