package pricing

// Event is a billable action. The string values double as billing
// transaction types.
type Event string

const (
	EventLeadScraped       Event = "lead_scraped"
	EventLeadEnriched      Event = "lead_enriched"
	EventLeadCalled        Event = "lead_called"
	EventAppointmentBooked Event = "appointment_booked"
)

// Events lists every billable event in display order.
var Events = []Event{EventLeadScraped, EventLeadEnriched, EventLeadCalled, EventAppointmentBooked}

func (e Event) Valid() bool {
	switch e {
	case EventLeadScraped, EventLeadEnriched, EventLeadCalled, EventAppointmentBooked:
		return true
	default:
		return false
	}
}

// Table holds the credit price of each event. Prices are whole credits.
type Table map[Event]int64

// DefaultTable is used when config does not override a price.
func DefaultTable() Table {
	return Table{
		EventLeadScraped:       1,
		EventLeadEnriched:      2,
		EventLeadCalled:        7,
		EventAppointmentBooked: 3,
	}
}
