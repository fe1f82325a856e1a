package leads

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusNew       Status = "new"
	StatusValidated Status = "validated"
	StatusEnriched  Status = "enriched"
	StatusCalling   Status = "calling"
	StatusCalled    Status = "called"
	StatusConverted Status = "converted"
)

var (
	ErrIllegalTransition = errors.New("illegal lead status transition")
	ErrUnknownStatus     = errors.New("unknown lead status")
)

var transitions = map[Status]map[Status]struct{}{
	StatusNew:       {StatusValidated: {}},
	StatusValidated: {StatusEnriched: {}},
	StatusEnriched:  {StatusCalling: {}},
	// calling -> enriched undoes a reservation whose call was never placed.
	StatusCalling:   {StatusCalled: {}, StatusEnriched: {}, StatusConverted: {}},
	StatusCalled:    {StatusCalling: {}, StatusConverted: {}},
	StatusConverted: {},
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

func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// PastValidation reports whether enrichment already ran successfully.
func PastValidation(s Status) bool {
	switch s {
	case StatusEnriched, StatusCalling, StatusCalled, StatusConverted:
		return true
	default:
		return false
	}
}
