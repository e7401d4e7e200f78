package common

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors raised by the store, resolver and policy gate.
// Handlers map them to wire shapes with HTTPStatus.
var (
	ErrNotAParticipant             = errors.New("not a participant")
	ErrConversationNotFound        = errors.New("conversation not found")
	ErrMessageNotFound             = errors.New("message not found")
	ErrDuplicateDirectConversation = errors.New("direct conversation already exists")
	ErrEditWindowExpired           = errors.New("edit window expired")
	ErrNotSender                   = errors.New("not the sender")
	ErrInvalidParticipants         = errors.New("no valid participants")
	ErrSpamRejected                = errors.New("message rejected as spam")
	ErrGone                        = errors.New("endpoint retired")
)

// RateLimitedError carries the advisory retry delay alongside the refusal.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Millisecond))
}

// DuplicateDirectError wraps ErrDuplicateDirectConversation and carries the
// conversation the caller should use instead.
type DuplicateDirectError struct {
	ExistingID string
}

func (e *DuplicateDirectError) Error() string { return ErrDuplicateDirectConversation.Error() }

func (e *DuplicateDirectError) Unwrap() error { return ErrDuplicateDirectConversation }

// HTTPStatus maps a store error to a response code. NotAParticipant maps to
// 404, same as a missing conversation, so a non-participant cannot probe
// whether a conversation exists.
func HTTPStatus(err error) int {
	var rl *RateLimitedError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotAParticipant),
		errors.Is(err, ErrConversationNotFound),
		errors.Is(err, ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateDirectConversation):
		return http.StatusConflict
	case errors.Is(err, ErrEditWindowExpired), errors.Is(err, ErrNotSender):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidParticipants):
		return http.StatusBadRequest
	case errors.As(err, &rl):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrSpamRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrGone):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
