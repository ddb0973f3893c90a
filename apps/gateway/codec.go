package main

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mahaj/chatrelay/pkg/apperr"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/mahaj/chatrelay/pkg/router"
)

var validate = validator.New()

// envelope is the inbound frame: {"type": "...", "data": {...}}.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type decoder func(json.RawMessage) (router.Inbound, error)

var decoders = map[string]decoder{
	router.DeclareIdentity{}.EventName():  decodeAs[router.DeclareIdentity],
	router.RequestHistory{}.EventName():   decodeAs[router.RequestHistory],
	router.JoinConversation{}.EventName(): decodeAs[router.JoinConversation],
	router.SendMessage{}.EventName():      decodeAs[router.SendMessage],
	router.MarkRead{}.EventName():         decodeAs[router.MarkRead],
	router.MarkDelivered{}.EventName():    decodeAs[router.MarkDelivered],
	router.TypingStart{}.EventName():      decodeAs[router.TypingStart],
	router.TypingStop{}.EventName():       decodeAs[router.TypingStop],
	router.UpdatePresence{}.EventName():   decodeAs[router.UpdatePresence],
}

func decodeAs[T router.Inbound](raw json.RawMessage) (router.Inbound, error) {
	var ev T
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("%s: %v: %w", ev.EventName(), err, apperr.ErrBadPayload)
		}
	}
	if err := validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", ev.EventName(), err, apperr.ErrBadPayload)
	}
	return ev, nil
}

// Decode turns one inbound frame into a router event.
func Decode(frame []byte) (router.Inbound, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("envelope: %v: %w", err, apperr.ErrBadPayload)
	}
	decode, ok := decoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%q: %w", env.Type, apperr.ErrUnknownEvent)
	}
	return decode(env.Data)
}

func Encode(n model.Notification) ([]byte, error) {
	return json.Marshal(n)
}

// errorNotification reports a failed request back to its connection.
func errorNotification(err error) model.Notification {
	return model.Notification{
		Type: model.EventError,
		Data: model.ErrorPayload{Code: apperr.Code(err), Msg: err.Error()},
	}
}
