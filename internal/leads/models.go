package leads

import (
	"encoding/json"
	"time"
)

// Lead is a scraped business record moving through validation, enrichment
// and calling. Status only moves through Transition.
type Lead struct {
	ID         string `json:"id" db:"id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`

	BusinessName  string  `json:"business_name" db:"business_name"`
	Category      string  `json:"category,omitempty" db:"category"`
	Address       string  `json:"address,omitempty" db:"address"`
	Phone         string  `json:"phone,omitempty" db:"phone"`
	Website       string  `json:"website,omitempty" db:"website"`
	Email         string  `json:"email,omitempty" db:"email"`
	Rating        float64 `json:"rating,omitempty" db:"rating"`
	ReviewsCount  int     `json:"reviews_count,omitempty" db:"reviews_count"`
	Latitude      float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude     float64 `json:"longitude,omitempty" db:"longitude"`
	GooglePlaceID string  `json:"google_place_id,omitempty" db:"google_place_id"`
	PlaceURL      string  `json:"place_url,omitempty" db:"place_url"`

	ValidationScore int             `json:"validation_score" db:"validation_score"`
	ValidationData  json.RawMessage `json:"validation_data,omitempty" db:"validation_data"`

	ContactName     string          `json:"contact_name,omitempty" db:"contact_name"`
	ContactTitle    string          `json:"contact_title,omitempty" db:"contact_title"`
	ContactEmail    string          `json:"contact_email,omitempty" db:"contact_email"`
	ContactPhone    string          `json:"contact_phone,omitempty" db:"contact_phone"`
	ContactLinkedIn string          `json:"contact_linkedin,omitempty" db:"contact_linkedin"`
	EnrichmentData  json.RawMessage `json:"enrichment_data,omitempty" db:"enrichment_data"`

	Status Status `json:"status" db:"status"`

	// ScrapeCharged is set by the settlement that billed this lead.
	ScrapeCharged bool `json:"scrape_charged" db:"scrape_charged"`

	ValidatedAt *time.Time `json:"validated_at,omitempty" db:"validated_at"`
	EnrichedAt  *time.Time `json:"enriched_at,omitempty" db:"enriched_at"`
	CalledAt    *time.Time `json:"called_at,omitempty" db:"called_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// HasContact is the enrichment invariant: an enriched lead can be reached.
func (l Lead) HasContact() bool {
	return l.ContactEmail != "" || l.ContactPhone != ""
}

// Callable reports whether the lead can be dialled.
func (l Lead) Callable() bool {
	return (l.Status == StatusEnriched || l.Status == StatusCalled) && l.ContactPhone != ""
}

// Contact is one person found for a lead's company.
type Contact struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Company     string `json:"company,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
}

// EnrichmentData is stored in leads.enrichment_data after a successful run.
type EnrichmentData struct {
	Contacts         []Contact `json:"contacts"`
	EnrichedAt       time.Time `json:"enriched_at"`
	PrimaryContactID string    `json:"primary_contact_id,omitempty"`
}

// EnrichmentFailure is stored in leads.enrichment_data when no contact was usable.
type EnrichmentFailure struct {
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// Enrichment is the write applied to a lead by one enrichment attempt.
type Enrichment struct {
	Primary Contact
	Data    json.RawMessage
	At      time.Time
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// ListFilter narrows lead listings to one user's campaigns.
type ListFilter struct {
	UserID     string
	CampaignID string
	Status     Status
	Limit      int
	Offset     int
}

// Normalize applies paging defaults.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
