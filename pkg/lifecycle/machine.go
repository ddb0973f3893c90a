// Package lifecycle advances messages through sent, delivered and read.
//
// The transition rules live in Path and are applied by Machine against the
// conversation store. What causes a transition is up to a Driver: timers in
// TimerDriver, recipient acknowledgements with AckDriver.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mahaj/chatrelay/pkg/apperr"
	"github.com/mahaj/chatrelay/pkg/conversation"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/mahaj/chatrelay/pkg/snowflake"
)

var order = []model.Status{model.StatusSent, model.StatusDelivered, model.StatusRead}

// Path returns the statuses a message at current passes through to reach
// target, in order. It is empty when target is not ahead of current.
func Path(current, target model.Status) []model.Status {
	from, to := current.Rank(), target.Rank()
	if from < 0 || to <= from {
		return nil
	}
	return append([]model.Status(nil), order[from+1:to+1]...)
}

// StatusListener receives every transition after it is stored.
type StatusListener func(model.StatusChange)

type Machine struct {
	store *conversation.Store

	// serial keeps listeners seeing transitions in the order they were stored.
	serial sync.Mutex

	mu        sync.RWMutex
	listeners []StatusListener
}

func NewMachine(store *conversation.Store) *Machine {
	return &Machine{store: store}
}

// OnStatusChange registers a listener. Listeners run on the goroutine that
// made the transition, outside any store lock, and must not start transitions.
func (m *Machine) OnStatusChange(fn StatusListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Advance moves a message forward to target on behalf of a driver. Unknown
// messages and targets that are not ahead are ignored.
func (m *Machine) Advance(conversationID string, messageID snowflake.ID, target model.Status) []model.StatusChange {
	changes, err := m.transition(conversationID, messageID, target, "")
	if err != nil {
		return nil
	}
	return changes
}

// MarkDelivered records that recipientID received the message.
func (m *Machine) MarkDelivered(conversationID string, messageID snowflake.ID, recipientID string) ([]model.StatusChange, error) {
	return m.transition(conversationID, messageID, model.StatusDelivered, recipientID)
}

// MarkRead records that readerID read the message. A sender reading its own
// message and a message already read are silent no-ops.
func (m *Machine) MarkRead(conversationID string, messageID snowflake.ID, readerID string) ([]model.StatusChange, error) {
	return m.transition(conversationID, messageID, model.StatusRead, readerID)
}

func (m *Machine) transition(conversationID string, messageID snowflake.ID, target model.Status, actorID string) ([]model.StatusChange, error) {
	m.serial.Lock()
	defer m.serial.Unlock()

	var steps []model.Status
	msg, changed, err := m.store.Update(conversationID, messageID, func(msg *model.Message) bool {
		if actorID != "" && actorID == msg.SenderID {
			return false
		}
		steps = Path(msg.Status, target)
		if len(steps) == 0 {
			return false
		}
		msg.Status = target
		return true
	})
	if err != nil {
		if errors.Is(err, apperr.ErrUnknownConversation) || errors.Is(err, apperr.ErrUnknownMessage) {
			return nil, fmt.Errorf("message %s in %s: %w", messageID, conversationID, err)
		}
		return nil, err
	}
	if !changed {
		return nil, nil
	}

	changes := make([]model.StatusChange, 0, len(steps))
	for _, status := range steps {
		changes = append(changes, model.StatusChange{
			ConversationID: conversationID,
			MessageID:      messageID,
			SenderID:       msg.SenderID,
			Status:         status,
			ActorID:        actorID,
		})
	}
	m.notify(changes)
	return changes, nil
}

func (m *Machine) notify(changes []model.StatusChange) {
	m.mu.RLock()
	listeners := append([]StatusListener(nil), m.listeners...)
	m.mu.RUnlock()

	for _, change := range changes {
		for _, fn := range listeners {
			fn(change)
		}
	}
}
