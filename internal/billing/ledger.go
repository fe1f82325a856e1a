package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LedgerTx is the part of a store transaction the ledger writes through.
// Implementations must make LockAccount serialize concurrent postings for
// the same user (SELECT ... FOR UPDATE in Postgres).
type LedgerTx interface {
	LockAccount(ctx context.Context, userID string) (Account, error)
	FindTransactionByKey(ctx context.Context, userID, key string) (Transaction, bool, error)
	InsertTransaction(ctx context.Context, t Transaction) error
	AdjustCredits(ctx context.Context, userID string, delta int64, at time.Time) (Account, error)
}

// Entry is one posting. Credits is a magnitude; the direction comes from
// the entry kind.
type Entry struct {
	UserID         string
	CampaignID     string
	Type           TxType
	Quantity       int
	Credits        int64
	Description    string
	RelatedID      string
	IdempotencyKey string
}

type entryKind int

const (
	kindDebit entryKind = iota
	kindCredit
	kindRefund
)

// Debit charges usage. It never drives the balance negative.
func Debit(ctx context.Context, tx LedgerTx, e Entry, now time.Time) (Transaction, bool, error) {
	return post(ctx, tx, e, kindDebit, now)
}

// Credit adds purchased credits.
func Credit(ctx context.Context, tx LedgerTx, e Entry, now time.Time) (Transaction, bool, error) {
	return post(ctx, tx, e, kindCredit, now)
}

// Reverse appends a compensating row for orig: same type, negative usage
// and quantity, balance restored.
func Reverse(ctx context.Context, tx LedgerTx, orig Transaction, reason string, now time.Time) (Transaction, bool, error) {
	if orig.CreditsUsed <= 0 {
		return Transaction{}, false, fmt.Errorf("%w: only usage can be reversed", ErrInvalidArgument)
	}
	return post(ctx, tx, Entry{
		UserID:         orig.UserID,
		CampaignID:     orig.CampaignID,
		Type:           orig.Type,
		Quantity:       orig.Quantity,
		Credits:        orig.CreditsUsed,
		Description:    reason,
		RelatedID:      orig.ID,
		IdempotencyKey: "refund:" + orig.IdempotencyKey,
	}, kindRefund, now)
}

// post is idempotent per (user, key): a replay returns the stored row and
// applied=false without touching the balance.
func post(ctx context.Context, tx LedgerTx, e Entry, kind entryKind, now time.Time) (Transaction, bool, error) {
	if err := validateEntry(e); err != nil {
		return Transaction{}, false, err
	}

	acct, err := tx.LockAccount(ctx, e.UserID)
	if err != nil {
		return Transaction{}, false, err
	}

	if existing, ok, err := tx.FindTransactionByKey(ctx, e.UserID, e.IdempotencyKey); err != nil {
		return Transaction{}, false, err
	} else if ok {
		return existing, false, nil
	}

	t := Transaction{
		ID:             uuid.NewString(),
		UserID:         e.UserID,
		CampaignID:     e.CampaignID,
		Type:           e.Type,
		Quantity:       e.Quantity,
		Description:    e.Description,
		RelatedID:      e.RelatedID,
		IdempotencyKey: e.IdempotencyKey,
		CreatedAt:      now,
	}
	switch kind {
	case kindDebit:
		if acct.Credits < e.Credits {
			return Transaction{}, false, fmt.Errorf("%w: balance %d, need %d", ErrInsufficientCredits, acct.Credits, e.Credits)
		}
		t.Amount = e.Credits
		t.CreditsUsed = e.Credits
	case kindCredit:
		t.Amount = -e.Credits
		t.CreditsAdded = e.Credits
	case kindRefund:
		t.Amount = -e.Credits
		t.CreditsUsed = -e.Credits
		t.Quantity = -e.Quantity
	}

	if err := tx.InsertTransaction(ctx, t); err != nil {
		return Transaction{}, false, err
	}
	if _, err := tx.AdjustCredits(ctx, e.UserID, t.Delta(), now); err != nil {
		return Transaction{}, false, err
	}
	return t, true, nil
}

func validateEntry(e Entry) error {
	if e.UserID == "" || e.IdempotencyKey == "" || e.Type == "" {
		return ErrInvalidArgument
	}
	if e.Credits <= 0 {
		return ErrInvalidArgument
	}
	if e.Quantity < 0 {
		return ErrInvalidArgument
	}
	return nil
}
