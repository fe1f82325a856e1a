package campaigns

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

var (
	ErrIllegalTransition = errors.New("illegal campaign status transition")
	ErrUnknownStatus     = errors.New("unknown campaign status")
)

// transitions is the full table; anything absent is rejected.
var transitions = map[Status]map[Status]struct{}{
	StatusDraft:     {StatusActive: {}},
	StatusActive:    {StatusDraft: {}, StatusPaused: {}, StatusCompleted: {}},
	StatusPaused:    {StatusDraft: {}, StatusActive: {}},
	StatusCompleted: {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, v)
	}
	return s, nil
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// Transition returns ErrIllegalTransition unless from -> to is in the table.
func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// Runnable reports whether a scrape run may start from s.
func Runnable(s Status) bool {
	return CanTransition(s, StatusActive)
}

// Resettable reports whether a manual reset to draft is allowed from s.
func Resettable(s Status) bool {
	return s == StatusActive || s == StatusPaused
}
