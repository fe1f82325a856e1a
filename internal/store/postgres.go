package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadgen-platform/internal/audit"
	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/businesses"
	"leadgen-platform/pkg/utils"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Postgres is the production Store. Top-level methods run on the pool;
// InTx hands fn a view bound to one *sql.Tx.
type Postgres struct {
	pgTx
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{pgTx: pgTx{q: db}, db: db}
}

func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, pgTx{q: tx})
	})
}

func (p *Postgres) WithLedger(ctx context.Context, fn func(ctx context.Context, tx billing.LedgerTx) error) error {
	return p.InTx(ctx, func(ctx context.Context, tx Tx) error { return fn(ctx, tx) })
}

func (p *Postgres) Ping(ctx context.Context) error {
	return utils.HealthCheck(ctx, p.db, 2*time.Second)
}

type pgTx struct {
	q utils.Querier
}

type scanner interface {
	Scan(dest ...any) error
}

/* ===================== USERS / LEDGER ===================== */

func (t pgTx) EnsureUser(ctx context.Context, userID, email string, now time.Time) error {
	const q = `
INSERT INTO users (id, email, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (id) DO NOTHING
`
	_, err := t.q.ExecContext(ctx, q, userID, email, now)
	return err
}

func (t pgTx) GetAccount(ctx context.Context, userID string) (billing.Account, error) {
	return t.account(ctx, `SELECT id, credits, updated_at FROM users WHERE id = $1`, userID)
}

// LockAccount serializes credit movements per user.
func (t pgTx) LockAccount(ctx context.Context, userID string) (billing.Account, error) {
	return t.account(ctx, `SELECT id, credits, updated_at FROM users WHERE id = $1 FOR UPDATE`, userID)
}

func (t pgTx) account(ctx context.Context, q, userID string) (billing.Account, error) {
	var a billing.Account
	if err := t.q.QueryRowContext(ctx, q, userID).Scan(&a.UserID, &a.Credits, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return billing.Account{}, accountNotFound()
		}
		return billing.Account{}, err
	}
	return a, nil
}

func (t pgTx) AdjustCredits(ctx context.Context, userID string, delta int64, at time.Time) (billing.Account, error) {
	const q = `
UPDATE users SET credits = credits + $2, updated_at = $3
WHERE id = $1
RETURNING id, credits, updated_at
`
	var a billing.Account
	if err := t.q.QueryRowContext(ctx, q, userID, delta, at).Scan(&a.UserID, &a.Credits, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return billing.Account{}, accountNotFound()
		}
		if utils.IsCheckViolation(err) {
			return billing.Account{}, billing.ErrInsufficientCredits
		}
		return billing.Account{}, err
	}
	return a, nil
}

const txColumns = `id, user_id, campaign_id, type, amount, credits_used, credits_added, quantity, description, related_id, idempotency_key, created_at`

func scanTransaction(s scanner) (billing.Transaction, error) {
	var x billing.Transaction
	err := s.Scan(
		&x.ID,
		&x.UserID,
		&x.CampaignID,
		&x.Type,
		&x.Amount,
		&x.CreditsUsed,
		&x.CreditsAdded,
		&x.Quantity,
		&x.Description,
		&x.RelatedID,
		&x.IdempotencyKey,
		&x.CreatedAt,
	)
	return x, err
}

func (t pgTx) FindTransactionByKey(ctx context.Context, userID, key string) (billing.Transaction, bool, error) {
	q := `SELECT ` + txColumns + ` FROM billing_transactions WHERE user_id = $1 AND idempotency_key = $2 LIMIT 1`
	x, err := scanTransaction(t.q.QueryRowContext(ctx, q, userID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return billing.Transaction{}, false, nil
		}
		return billing.Transaction{}, false, err
	}
	return x, true, nil
}

func (t pgTx) InsertTransaction(ctx context.Context, x billing.Transaction) error {
	q := `INSERT INTO billing_transactions (` + txColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := t.q.ExecContext(ctx, q,
		x.ID,
		x.UserID,
		x.CampaignID,
		x.Type,
		x.Amount,
		x.CreditsUsed,
		x.CreditsAdded,
		x.Quantity,
		x.Description,
		x.RelatedID,
		x.IdempotencyKey,
		x.CreatedAt,
	)
	if utils.IsUniqueViolation(err) {
		return fmt.Errorf("%w: idempotency key %q", ErrConflict, x.IdempotencyKey)
	}
	return err
}

func (t pgTx) ListTransactions(ctx context.Context, userID string, limit int) ([]billing.Transaction, error) {
	b := psql.Select(txColumns).
		From("billing_transactions").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []billing.Transaction{}
	for rows.Next() {
		x, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

/* ===================== BUSINESSES ===================== */

const businessColumns = `id, user_id, website_url, business_name, description, value_proposition, industry,
target_markets, decision_maker_roles, analysis_data, discovery_answers, business_metadata,
is_active, created_at, updated_at`

func scanBusiness(s scanner) (businesses.Business, error) {
	var b businesses.Business
	var markets, roles, analysis, answers, metadata []byte
	if err := s.Scan(
		&b.ID,
		&b.UserID,
		&b.WebsiteURL,
		&b.BusinessName,
		&b.Description,
		&b.ValueProposition,
		&b.Industry,
		&markets,
		&roles,
		&analysis,
		&answers,
		&metadata,
		&b.IsActive,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return businesses.Business{}, err
	}
	b.TargetMarkets = rawJSON(markets)
	b.Metadata = rawJSON(metadata)
	if err := decodeJSON(roles, &b.DecisionMakerRoles); err != nil {
		return businesses.Business{}, fmt.Errorf("decision_maker_roles: %w", err)
	}
	if err := decodeJSON(analysis, &b.AnalysisData); err != nil {
		return businesses.Business{}, fmt.Errorf("analysis_data: %w", err)
	}
	if err := decodeJSON(answers, &b.DiscoveryAnswers); err != nil {
		return businesses.Business{}, fmt.Errorf("discovery_answers: %w", err)
	}
	return b, nil
}

func (t pgTx) InsertBusiness(ctx context.Context, b businesses.Business) error {
	roles, err := encodeJSON(b.DecisionMakerRoles)
	if err != nil {
		return err
	}
	analysis, err := encodeJSON(b.AnalysisData)
	if err != nil {
		return err
	}
	answers, err := encodeJSON(b.DiscoveryAnswers)
	if err != nil {
		return err
	}
	q := `INSERT INTO businesses (` + businessColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err = t.q.ExecContext(ctx, q,
		b.ID,
		b.UserID,
		b.WebsiteURL,
		b.BusinessName,
		b.Description,
		b.ValueProposition,
		b.Industry,
		nullJSON(b.TargetMarkets),
		roles,
		analysis,
		answers,
		nullJSON(b.Metadata),
		b.IsActive,
		b.CreatedAt,
		b.UpdatedAt,
	)
	return err
}

func (t pgTx) GetBusiness(ctx context.Context, userID, id string) (businesses.Business, error) {
	q := `SELECT ` + businessColumns + ` FROM businesses WHERE id = $1 AND user_id = $2`
	return t.business(ctx, q, id, userID)
}

func (t pgTx) ActiveBusiness(ctx context.Context, userID string) (businesses.Business, error) {
	q := `SELECT ` + businessColumns + ` FROM businesses WHERE user_id = $1 AND is_active ORDER BY created_at DESC LIMIT 1`
	return t.business(ctx, q, userID)
}

func (t pgTx) businessByID(ctx context.Context, id string) (businesses.Business, error) {
	return t.business(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id)
}

func (t pgTx) business(ctx context.Context, q string, args ...any) (businesses.Business, error) {
	b, err := scanBusiness(t.q.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return businesses.Business{}, businessNotFound()
		}
		return businesses.Business{}, err
	}
	return b, nil
}

func (t pgTx) UpdateBusinessKnowledge(ctx context.Context, b businesses.Business) error {
	roles, err := encodeJSON(b.DecisionMakerRoles)
	if err != nil {
		return err
	}
	analysis, err := encodeJSON(b.AnalysisData)
	if err != nil {
		return err
	}
	answers, err := encodeJSON(b.DiscoveryAnswers)
	if err != nil {
		return err
	}
	const q = `
UPDATE businesses SET
  business_name = $3,
  description = $4,
  value_proposition = $5,
  industry = $6,
  target_markets = $7,
  decision_maker_roles = $8,
  analysis_data = $9,
  discovery_answers = $10,
  updated_at = $11
WHERE id = $1 AND user_id = $2
`
	res, err := t.q.ExecContext(ctx, q,
		b.ID,
		b.UserID,
		b.BusinessName,
		b.Description,
		b.ValueProposition,
		b.Industry,
		nullJSON(b.TargetMarkets),
		roles,
		analysis,
		answers,
		b.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return expectOne(res, businessNotFound())
}

func (t pgTx) FindMigration(ctx context.Context, token string) (businesses.Migration, bool, error) {
	const q = `SELECT token, user_id, business_id, created_at FROM kb_migrations WHERE token = $1`
	var m businesses.Migration
	if err := t.q.QueryRowContext(ctx, q, token).Scan(&m.Token, &m.UserID, &m.BusinessID, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return businesses.Migration{}, false, nil
		}
		return businesses.Migration{}, false, err
	}
	return m, true, nil
}

func (t pgTx) InsertMigration(ctx context.Context, m businesses.Migration) error {
	const q = `INSERT INTO kb_migrations (token, user_id, business_id, created_at) VALUES ($1,$2,$3,$4)`
	_, err := t.q.ExecContext(ctx, q, m.Token, m.UserID, m.BusinessID, m.CreatedAt)
	if utils.IsUniqueViolation(err) {
		return fmt.Errorf("%w: migration token %q", ErrConflict, m.Token)
	}
	return err
}

/* ===================== AUDIT ===================== */

func (t pgTx) AppendAudit(ctx context.Context, e audit.Event) error {
	const q = `
INSERT INTO audit_events (id, user_id, type, actor_role, ip_address, campaign_id, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	var metadata any
	if e.Metadata != "" {
		metadata = e.Metadata
	}
	_, err := t.q.ExecContext(ctx, q,
		e.ID,
		e.UserID,
		e.Type,
		e.ActorRole,
		e.IPAddress,
		e.CampaignID,
		e.Message,
		metadata,
		e.CreatedAt,
	)
	return err
}

/* ===================== HELPERS ===================== */

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// nullJSON passes SQL NULL for an empty document.
func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}

func decodeJSON(b []byte, v any) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, v)
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
