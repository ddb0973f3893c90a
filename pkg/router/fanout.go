package router

import (
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// onStatus sends a transition to the sender of the message only. The actor
// that caused it, the reader, already knows.
func (r *Router) onStatus(change model.StatusChange) {
	var recipients []string
	if change.SenderID != change.ActorID && r.identities.IsLive(change.SenderID) {
		recipients = []string{change.SenderID}
	}
	r.emit(model.Notification{
		Type:           model.EventMessageStatusChanged,
		ConversationID: change.ConversationID,
		Data:           change,
	}, recipients)
}

// onTyping sends typing changes to the other live members of the conversation.
func (r *Router) onTyping(change model.TypingChange) {
	members, err := r.store.Members(change.ConversationID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"function":     "onTyping",
			"conversation": change.ConversationID,
			"error":        err,
		}).Warn("Typing change for unknown conversation")
		return
	}

	kind := model.EventTypingStopped
	if change.Typing {
		kind = model.EventTypingStarted
	}
	r.emit(model.Notification{
		Type:           kind,
		ConversationID: change.ConversationID,
		Data:           change,
	}, r.live(members, change.UserID))
}

// onPresence mirrors the change into the profile and tells every other live
// user: the contact directory is shared by everyone.
func (r *Router) onPresence(change model.PresenceChange) {
	r.identities.SetPresence(change.UserID, model.PresenceState{Status: change.Status, LastSeen: change.LastSeen})

	ids := lo.Map(r.identities.Live(), func(u model.User, _ int) string { return u.ID })
	r.emit(model.Notification{
		Type: model.EventPresenceChanged,
		Data: change,
	}, lo.Without(ids, change.UserID))
}

// live keeps the ids that currently have a connection, minus except.
func (r *Router) live(ids []string, except string) []string {
	return lo.Filter(ids, func(id string, _ int) bool {
		return id != except && r.identities.IsLive(id)
	})
}

func (r *Router) deliverTo(connID string, n model.Notification) {
	r.emit(n, []string{connID})
}

func (r *Router) emit(n model.Notification, recipients []string) {
	if n.At.IsZero() {
		n.At = r.now().UTC()
	}
	for _, id := range recipients {
		r.sink.Deliver(id, n)
	}
	for _, o := range r.observers {
		o.Observe(n)
	}

	r.log.WithFields(logrus.Fields{
		"function":     "emit",
		"type":         n.Type,
		"conversation": n.ConversationID,
		"recipients":   len(recipients),
	}).Debug("Notification fanned out")
}
