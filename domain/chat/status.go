package chat

import (
	"strings"

	"support-chat/errors"
)

// Status is the lifecycle state of a support session.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
	StatusClosed   Status = "closed"
)

var statuses = []Status{StatusActive, StatusResolved, StatusClosed}

func Statuses() []Status {
	return append([]Status(nil), statuses...)
}

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusResolved, StatusClosed:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus accepts the wire names case-insensitively.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", errors.ErrInvalidStatus
	}
	return s, nil
}

// Transition is one edge of the session state machine together with the
// system message recorded when it is taken.
type Transition struct {
	From   Status
	To     Status
	Notice string
}

const (
	NoticeResolved = "Chat marked resolved."
	NoticeClosed   = "Chat closed."
	NoticeReopened = "Chat reopened."
)

// NextTransition validates from -> to.
// Allowed edges are active->resolved, active->closed and {resolved,closed}->active.
// Self loops and resolved<->closed are rejected.
func NextTransition(from, to Status) (Transition, error) {
	if !from.Valid() || !to.Valid() {
		return Transition{}, errors.ErrInvalidStatus
	}
	switch {
	case from == StatusActive && to == StatusResolved:
		return Transition{From: from, To: to, Notice: NoticeResolved}, nil
	case from == StatusActive && to == StatusClosed:
		return Transition{From: from, To: to, Notice: NoticeClosed}, nil
	case from != StatusActive && to == StatusActive:
		return Transition{From: from, To: to, Notice: NoticeReopened}, nil
	default:
		return Transition{}, errors.ErrInvalidTransition
	}
}
