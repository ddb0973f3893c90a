// Package router is the entry and exit point of the relay engine.
//
// It dispatches inbound events to the components and decides which
// connections see each resulting notification. It keeps no state of its own.
package router

//go:generate mockgen -source=router.go -destination=../../mocks/router.go -package=mocks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mahaj/chatrelay/pkg/apperr"
	"github.com/mahaj/chatrelay/pkg/conversation"
	"github.com/mahaj/chatrelay/pkg/identity"
	"github.com/mahaj/chatrelay/pkg/lifecycle"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/mahaj/chatrelay/pkg/presence"
	"github.com/mahaj/chatrelay/pkg/typing"
	"github.com/sirupsen/logrus"
)

// Sink hands a notification to one connection. Deliver must not block.
type Sink interface {
	Deliver(connID string, n model.Notification)
}

// Observer sees every notification once, whoever receives it.
// Observe must not block.
type Observer interface {
	Observe(n model.Notification)
}

type Deps struct {
	Identities *identity.Registry
	Store      *conversation.Store
	Machine    *lifecycle.Machine
	Driver     lifecycle.Driver
	Typing     *typing.Coordinator
	Presence   *presence.Tracker
	Sink       Sink
	Observers  []Observer
	Log        logrus.FieldLogger
	Now        func() time.Time
}

type Router struct {
	identities *identity.Registry
	store      *conversation.Store
	machine    *lifecycle.Machine
	driver     lifecycle.Driver
	typing     *typing.Coordinator
	presence   *presence.Tracker
	sink       Sink
	observers  []Observer
	log        logrus.FieldLogger
	now        func() time.Time
}

// New wires the router as listener of the machine, the typing coordinator
// and the presence tracker.
func New(d Deps) *Router {
	r := &Router{
		identities: d.Identities,
		store:      d.Store,
		machine:    d.Machine,
		driver:     d.Driver,
		typing:     d.Typing,
		presence:   d.Presence,
		sink:       d.Sink,
		observers:  d.Observers,
		log:        d.Log,
		now:        d.Now,
	}
	if r.driver == nil {
		r.driver = lifecycle.AckDriver{}
	}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	if r.now == nil {
		r.now = time.Now
	}

	r.machine.OnStatusChange(r.onStatus)
	r.typing.OnChange(r.onTyping)
	r.presence.OnChange(r.onPresence)
	return r
}

// Handle processes one inbound event of connID. Errors concern only this
// request and leave every other connection untouched.
func (r *Router) Handle(ctx context.Context, connID string, in Inbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{
		"function": "Handle",
		"conn":     connID,
		"event":    in.EventName(),
	}).Debug("Handling inbound event")

	if ev, ok := in.(DeclareIdentity); ok {
		return r.declare(connID, ev)
	}

	user, ok := r.identities.Lookup(connID)
	if !ok {
		return apperr.ErrNotIdentified
	}

	switch ev := in.(type) {
	case RequestHistory:
		return r.history(connID, user, ev.ConversationID)
	case JoinConversation:
		return r.history(connID, user, ev.ConversationID)
	case SendMessage:
		return r.send(user, ev)
	case MarkRead:
		if err := r.requireMember(ev.ConversationID, user.ID); err != nil {
			return err
		}
		_, err := r.machine.MarkRead(ev.ConversationID, ev.MessageID, user.ID)
		return err
	case MarkDelivered:
		if err := r.requireMember(ev.ConversationID, user.ID); err != nil {
			return err
		}
		_, err := r.machine.MarkDelivered(ev.ConversationID, ev.MessageID, user.ID)
		return err
	case TypingStart:
		if _, err := r.store.Join(ev.ConversationID, user.ID); err != nil {
			return err
		}
		r.typing.Start(user.ID, ev.ConversationID)
		return nil
	case TypingStop:
		r.typing.Stop(user.ID, ev.ConversationID)
		return nil
	case UpdatePresence:
		_, _, err := r.presence.Update(user.ID, ev.Status)
		return err
	default:
		return fmt.Errorf("%s: %w", in.EventName(), apperr.ErrUnknownEvent)
	}
}

// Disconnect removes the identity of connID, ends its typing entries and
// marks it offline.
func (r *Router) Disconnect(connID string) {
	user, ok := r.identities.Remove(connID)
	if !ok {
		return
	}

	stopped := r.typing.StopUser(user.ID)
	r.presence.Disconnect(user.ID)

	r.log.WithFields(logrus.Fields{
		"function":       "Disconnect",
		"conn":           connID,
		"user":           user.DisplayName,
		"typing_cleared": len(stopped),
	}).Info("Connection left")
}

func (r *Router) declare(connID string, ev DeclareIdentity) error {
	user, err := r.identities.Declare(connID, ev.Name, ev.Avatar)
	if err != nil {
		return err
	}
	r.presence.Connect(user.ID)

	r.log.WithFields(logrus.Fields{
		"function": "declare",
		"conn":     connID,
		"user":     user.DisplayName,
	}).Info("Identity declared")

	r.deliverTo(connID, model.Notification{
		Type: model.EventContactsSnapshot,
		Data: r.contacts(user.ID),
	})
	return nil
}

func (r *Router) contacts(selfID string) model.ContactsSnapshot {
	snap := model.ContactsSnapshot{Contacts: []model.User{}, Groups: r.store.Groups()}
	for _, u := range r.identities.Known() {
		if u.ID == selfID {
			snap.Self = u
			continue
		}
		snap.Contacts = append(snap.Contacts, u)
	}
	return snap
}

func (r *Router) history(connID string, user model.User, conversationID string) error {
	conversationID = strings.TrimSpace(conversationID)
	if _, err := r.store.Join(conversationID, user.ID); err != nil {
		return err
	}
	messages, err := r.store.History(conversationID)
	if err != nil {
		return err
	}
	r.deliverTo(connID, model.Notification{
		Type:           model.EventHistorySnapshot,
		ConversationID: conversationID,
		Data:           model.HistorySnapshot{ConversationID: conversationID, Messages: messages},
	})
	return nil
}

func (r *Router) send(user model.User, ev SendMessage) error {
	conversationID := strings.TrimSpace(ev.ConversationID)
	msg, members, err := r.store.Append(conversationID, user.ID, ev.Text)
	if err != nil {
		return err
	}
	r.driver.MessageAppended(msg)
	r.typing.Stop(user.ID, conversationID)

	r.emit(model.Notification{
		Type:           model.EventMessageAppended,
		ConversationID: conversationID,
		Data:           model.MessageAppended{Message: msg, From: user},
	}, r.live(members, ""))
	return nil
}

func (r *Router) requireMember(conversationID, userID string) error {
	members, err := r.store.Members(conversationID)
	if err != nil {
		return fmt.Errorf("%s: %w", conversationID, err)
	}
	for _, m := range members {
		if m == userID {
			return nil
		}
	}
	return fmt.Errorf("%s in %s: %w", userID, conversationID, apperr.ErrNotMember)
}
