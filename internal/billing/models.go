package billing

import (
	"errors"
	"time"

	"leadgen-platform/internal/pricing"
)

// Transaction is an immutable append-only ledger row.
//
// Money invariant: users.credits only changes together with a Transaction
// row, in the same database transaction.
type Transaction struct {
	ID         string `json:"id" db:"id"`
	UserID     string `json:"user_id" db:"user_id"`
	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`

	Type TxType `json:"type" db:"type"`

	// Amount is signed spend: usage positive, purchases and refunds negative.
	Amount       int64 `json:"amount" db:"amount"`
	CreditsUsed  int64 `json:"credits_used" db:"credits_used"`
	CreditsAdded int64 `json:"credits_added" db:"credits_added"`
	Quantity     int   `json:"quantity" db:"quantity"`

	Description    string `json:"description,omitempty" db:"description"`
	RelatedID      string `json:"related_id,omitempty" db:"related_id"`
	IdempotencyKey string `json:"idempotency_key" db:"idempotency_key"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Delta is the change this row applied to the balance.
func (t Transaction) Delta() int64 {
	return t.CreditsAdded - t.CreditsUsed
}

type TxType string

const (
	TypeCreditPurchase    TxType = "credit_purchase"
	TypeLeadScraped       TxType = TxType(pricing.EventLeadScraped)
	TypeLeadEnriched      TxType = TxType(pricing.EventLeadEnriched)
	TypeLeadCalled        TxType = TxType(pricing.EventLeadCalled)
	TypeAppointmentBooked TxType = TxType(pricing.EventAppointmentBooked)
)

// Account is the users.credits projection.
type Account struct {
	UserID    string    `json:"user_id" db:"id"`
	Credits   int64     `json:"credits" db:"credits"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Usage summarises a user's ledger for the billing page.
type Usage struct {
	TotalCredits       int64         `json:"totalCredits"`
	CreditsUsed        int64         `json:"creditsUsed"`
	CreditsRemaining   int64         `json:"creditsRemaining"`
	LeadsScraped       int           `json:"leadsScraped"`
	LeadsEnriched      int           `json:"leadsEnriched"`
	LeadsCalled        int           `json:"leadsCalled"`
	AppointmentsBooked int           `json:"appointmentsBooked"`
	Transactions       []Transaction `json:"transactions"`
}

var (
	ErrNotFound            = errors.New("account not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidArgument     = errors.New("invalid argument")
)
