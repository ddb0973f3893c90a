// Package apperr holds the request scoped errors of the relay and their wire codes.
// None of them is fatal to the process.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidIdentity     = fmt.Errorf("display name is required")
	ErrEmptyMessage        = fmt.Errorf("message text is empty")
	ErrUnknownMessage      = fmt.Errorf("unknown message")
	ErrUnknownConversation = fmt.Errorf("unknown conversation")
	ErrNotMember           = fmt.Errorf("not a member of the conversation")
	ErrInvalidPresence     = fmt.Errorf("invalid presence status")
	ErrNotIdentified       = fmt.Errorf("identity not declared")
	ErrUnknownEvent        = fmt.Errorf("unknown event type")
	ErrBadPayload          = fmt.Errorf("malformed event payload")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidIdentity, "invalid_identity"},
	{ErrEmptyMessage, "empty_message"},
	{ErrUnknownMessage, "unknown_message"},
	{ErrUnknownConversation, "unknown_conversation"},
	{ErrNotMember, "not_member"},
	{ErrInvalidPresence, "invalid_presence"},
	{ErrNotIdentified, "not_identified"},
	{ErrUnknownEvent, "unknown_event"},
	{ErrBadPayload, "bad_payload"},
}

// Code returns the protocol code for err, "internal_error" when it is not one of ours.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal_error"
}
