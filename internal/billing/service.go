package billing

import (
	"context"
	"fmt"
	"time"

	"leadgen-platform/internal/pricing"

	"github.com/google/uuid"
)

// Store is the persistence the ledger needs. WithLedger runs fn in one
// database transaction; the pipeline uses its own wider transactions and
// passes them to Charge directly.
type Store interface {
	WithLedger(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
	GetAccount(ctx context.Context, userID string) (Account, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
}

// Service prices and posts credit movements.
//
// Money invariants:
// - No balance update without a ledger row
// - Ledger is append-only
// - Usage never drives the balance negative
type Service struct {
	store  Store
	prices *pricing.Service
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store Store, prices *pricing.Service) *Service {
	if prices == nil {
		prices = pricing.NewService(nil)
	}
	return &Service{store: store, prices: prices, clock: time.Now}
}

// WithClock overrides the clock; used by tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

func (s *Service) Prices() *pricing.Service { return s.prices }

// Charge is a priced usage posting.
type Charge struct {
	UserID         string
	CampaignID     string
	Event          pricing.Event
	Quantity       int
	RelatedID      string
	IdempotencyKey string
	Description    string
}

func (s *Service) Balance(ctx context.Context, userID string) (Account, error) {
	if userID == "" {
		return Account{}, ErrInvalidArgument
	}
	return s.store.GetAccount(ctx, userID)
}

// Estimate is the credit cost of quantity events.
func (s *Service) Estimate(e pricing.Event, quantity int) (int64, error) {
	return s.prices.Cost(e, quantity)
}

// Charge posts a usage charge inside the caller's transaction. A free event
// posts nothing and returns a zero Transaction.
func (s *Service) Charge(ctx context.Context, tx LedgerTx, c Charge) (Transaction, bool, error) {
	cost, err := s.prices.Cost(c.Event, c.Quantity)
	if err != nil {
		return Transaction{}, false, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if cost == 0 {
		return Transaction{}, false, nil
	}
	return Debit(ctx, tx, Entry{
		UserID:         c.UserID,
		CampaignID:     c.CampaignID,
		Type:           TxType(c.Event),
		Quantity:       c.Quantity,
		Credits:        cost,
		Description:    c.Description,
		RelatedID:      c.RelatedID,
		IdempotencyKey: c.IdempotencyKey,
	}, s.clock().UTC())
}

// ChargeNow posts a usage charge in its own transaction.
func (s *Service) ChargeNow(ctx context.Context, c Charge) (Transaction, error) {
	var out Transaction
	err := s.store.WithLedger(ctx, func(ctx context.Context, tx LedgerTx) error {
		t, _, err := s.Charge(ctx, tx, c)
		out = t
		return err
	})
	return out, err
}

// Refund reverses orig inside the caller's transaction. Refunding a charge
// that posted nothing is a no-op.
func (s *Service) Refund(ctx context.Context, tx LedgerTx, orig Transaction, reason string) (Transaction, bool, error) {
	if orig.ID == "" || orig.CreditsUsed == 0 {
		return Transaction{}, false, nil
	}
	return Reverse(ctx, tx, orig, reason, s.clock().UTC())
}

// TopUp increments the balance through a credit_purchase row. An empty key
// makes the request non-idempotent.
func (s *Service) TopUp(ctx context.Context, userID string, amount int64, key string) (Transaction, Account, error) {
	if userID == "" || amount <= 0 {
		return Transaction{}, Account{}, ErrInvalidArgument
	}
	if key == "" {
		key = "credit_purchase:" + uuid.NewString()
	}

	var outTx Transaction
	var outAcct Account
	err := s.store.WithLedger(ctx, func(ctx context.Context, tx LedgerTx) error {
		now := s.clock().UTC()
		t, _, err := Credit(ctx, tx, Entry{
			UserID:         userID,
			Type:           TypeCreditPurchase,
			Credits:        amount,
			Description:    fmt.Sprintf("Added %d credits", amount),
			IdempotencyKey: key,
		}, now)
		if err != nil {
			return err
		}
		acct, err := tx.LockAccount(ctx, userID)
		if err != nil {
			return err
		}
		outTx, outAcct = t, acct
		return nil
	})
	return outTx, outAcct, err
}

const usageRecentTransactions = 50

// Usage computes spend and activity counts from the ledger. Refund rows carry
// negative quantities so counts stay net.
func (s *Service) Usage(ctx context.Context, userID string) (Usage, error) {
	acct, err := s.Balance(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	txs, err := s.store.ListTransactions(ctx, userID, 0)
	if err != nil {
		return Usage{}, err
	}

	u := Usage{CreditsRemaining: acct.Credits, Transactions: []Transaction{}}
	for _, t := range txs {
		if t.Type == TypeCreditPurchase {
			u.TotalCredits += t.CreditsAdded
		}
		u.CreditsUsed += t.CreditsUsed
		switch t.Type {
		case TypeLeadScraped:
			u.LeadsScraped += t.Quantity
		case TypeLeadEnriched:
			u.LeadsEnriched += t.Quantity
		case TypeLeadCalled:
			u.LeadsCalled += t.Quantity
		case TypeAppointmentBooked:
			u.AppointmentsBooked += t.Quantity
		}
	}
	if len(txs) > usageRecentTransactions {
		txs = txs[:usageRecentTransactions]
	}
	u.Transactions = append(u.Transactions, txs...)
	return u, nil
}
