package pricing

import (
	"errors"
	"fmt"

	"leadgen-platform/internal/config"
)

var (
	ErrPricingNotFound   = errors.New("pricing not found")
	ErrInvalidPricingReq = errors.New("invalid pricing request")
)

// Service prices billable events.
//
// Contract:
// - Pure calculation, no persistence.
// - Quantity must be positive; a zero-quantity charge is a caller bug.
type Service struct {
	table Table
}

// NewService overrides the defaults with t. A zero price makes the event free.
func NewService(t Table) *Service {
	merged := DefaultTable()
	for e, p := range t {
		if e.Valid() && p >= 0 {
			merged[e] = p
		}
	}
	return &Service{table: merged}
}

// FromConfig builds the price table from PRICE_* settings. Unset (zero)
// settings keep the default price.
func FromConfig(c config.PricingConfig) *Service {
	t := Table{}
	for e, p := range map[Event]int64{
		EventLeadScraped:       c.LeadScraped,
		EventLeadEnriched:      c.LeadEnriched,
		EventLeadCalled:        c.LeadCalled,
		EventAppointmentBooked: c.AppointmentBooked,
	} {
		if p > 0 {
			t[e] = p
		}
	}
	return NewService(t)
}

// Price returns the unit price of an event.
func (s *Service) Price(e Event) (int64, error) {
	p, ok := s.table[e]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPricingNotFound, e)
	}
	return p, nil
}

// Cost is unit price times quantity.
func (s *Service) Cost(e Event, quantity int) (int64, error) {
	if quantity <= 0 {
		return 0, ErrInvalidPricingReq
	}
	p, err := s.Price(e)
	if err != nil {
		return 0, err
	}
	return p * int64(quantity), nil
}

// Table returns a copy of the effective prices.
func (s *Service) Table() Table {
	out := make(Table, len(s.table))
	for k, v := range s.table {
		out[k] = v
	}
	return out
}
