package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"leadgen-platform/internal/audit"
	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/businesses"
	"leadgen-platform/internal/calls"
	"leadgen-platform/internal/campaigns"
	"leadgen-platform/internal/leads"

	"github.com/google/uuid"
)

// Memory is an in-process Store for tests and database-less local runs.
// InTx holds the store lock for the whole unit of work and restores a
// snapshot when fn fails, so it has the same all-or-nothing behaviour as a
// Postgres transaction.
type Memory struct {
	memTx
	mu sync.Mutex
	st *memState
}

func NewMemory() *Memory {
	m := &Memory{st: newMemState()}
	m.memTx = memTx{m: m, locking: true}
	return m
}

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.st.clone()
	defer func() {
		if p := recover(); p != nil {
			m.st = snap
			panic(p)
		}
		if err != nil {
			m.st = snap
		}
	}()
	return fn(ctx, memTx{m: m})
}

func (m *Memory) WithLedger(ctx context.Context, fn func(ctx context.Context, tx billing.LedgerTx) error) error {
	return m.InTx(ctx, func(ctx context.Context, tx Tx) error { return fn(ctx, tx) })
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

// SeedUser creates a user funded through a credit_purchase row.
func (m *Memory) SeedUser(userID string, credits int64) {
	now := time.Now().UTC()
	_ = m.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.EnsureUser(ctx, userID, userID+"@example.com", now); err != nil {
			return err
		}
		if credits <= 0 {
			return nil
		}
		_, _, err := billing.Credit(ctx, tx, billing.Entry{
			UserID:         userID,
			Type:           billing.TypeCreditPurchase,
			Credits:        credits,
			Description:    "seed",
			IdempotencyKey: "seed:" + uuid.NewString(),
		}, now)
		return err
	})
}

// Appointments returns a copy of every stored appointment.
func (m *Memory) Appointments() []calls.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]calls.Appointment(nil), m.st.appointments...)
}

// AuditEvents returns a copy of the audit log.
func (m *Memory) AuditEvents() []audit.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Event(nil), m.st.audit...)
}

type memUser struct {
	email   string
	account billing.Account
}

type memState struct {
	users        map[string]memUser
	txs          []billing.Transaction
	businesses   map[string]businesses.Business
	bizOrder     []string
	migrations   map[string]businesses.Migration
	campaigns    map[string]campaigns.Campaign
	campOrder    []string
	leads        map[string]leads.Lead
	leadOrder    []string
	calls        map[string]calls.CallLog
	callOrder    []string
	appointments []calls.Appointment
	audit        []audit.Event
}

func newMemState() *memState {
	return &memState{
		users:      map[string]memUser{},
		businesses: map[string]businesses.Business{},
		migrations: map[string]businesses.Migration{},
		campaigns:  map[string]campaigns.Campaign{},
		leads:      map[string]leads.Lead{},
		calls:      map[string]calls.CallLog{},
	}
}

// clone copies every map and slice. Values are replaced on write, never
// mutated in place, so a shallow copy per entry is enough.
func (s *memState) clone() *memState {
	out := &memState{
		users:        make(map[string]memUser, len(s.users)),
		txs:          append([]billing.Transaction(nil), s.txs...),
		businesses:   make(map[string]businesses.Business, len(s.businesses)),
		bizOrder:     append([]string(nil), s.bizOrder...),
		migrations:   make(map[string]businesses.Migration, len(s.migrations)),
		campaigns:    make(map[string]campaigns.Campaign, len(s.campaigns)),
		campOrder:    append([]string(nil), s.campOrder...),
		leads:        make(map[string]leads.Lead, len(s.leads)),
		leadOrder:    append([]string(nil), s.leadOrder...),
		calls:        make(map[string]calls.CallLog, len(s.calls)),
		callOrder:    append([]string(nil), s.callOrder...),
		appointments: append([]calls.Appointment(nil), s.appointments...),
		audit:        append([]audit.Event(nil), s.audit...),
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.businesses {
		out.businesses[k] = v
	}
	for k, v := range s.migrations {
		out.migrations[k] = v
	}
	for k, v := range s.campaigns {
		out.campaigns[k] = v
	}
	for k, v := range s.leads {
		out.leads[k] = v
	}
	for k, v := range s.calls {
		out.calls[k] = v
	}
	return out
}

// memTx implements Tx over the shared state. The embedded copy in Memory
// locks per call; the copy handed out by InTx runs under InTx's lock.
type memTx struct {
	m       *Memory
	locking bool
}

func (t memTx) lock() func() {
	if !t.locking {
		return func() {}
	}
	t.m.mu.Lock()
	return t.m.mu.Unlock
}

func (t memTx) state() *memState { return t.m.st }

/* ===================== USERS / LEDGER ===================== */

func (t memTx) EnsureUser(ctx context.Context, userID, email string, now time.Time) error {
	defer t.lock()()
	if _, ok := t.state().users[userID]; ok {
		return nil
	}
	t.state().users[userID] = memUser{email: email, account: billing.Account{UserID: userID, UpdatedAt: now}}
	return nil
}

func (t memTx) GetAccount(ctx context.Context, userID string) (billing.Account, error) {
	defer t.lock()()
	u, ok := t.state().users[userID]
	if !ok {
		return billing.Account{}, accountNotFound()
	}
	return u.account, nil
}

func (t memTx) LockAccount(ctx context.Context, userID string) (billing.Account, error) {
	return t.GetAccount(ctx, userID)
}

func (t memTx) AdjustCredits(ctx context.Context, userID string, delta int64, at time.Time) (billing.Account, error) {
	defer t.lock()()
	u, ok := t.state().users[userID]
	if !ok {
		return billing.Account{}, accountNotFound()
	}
	if u.account.Credits+delta < 0 {
		return billing.Account{}, billing.ErrInsufficientCredits
	}
	u.account.Credits += delta
	u.account.UpdatedAt = at
	t.state().users[userID] = u
	return u.account, nil
}

func (t memTx) FindTransactionByKey(ctx context.Context, userID, key string) (billing.Transaction, bool, error) {
	defer t.lock()()
	for _, x := range t.state().txs {
		if x.UserID == userID && x.IdempotencyKey == key {
			return x, true, nil
		}
	}
	return billing.Transaction{}, false, nil
}

func (t memTx) InsertTransaction(ctx context.Context, x billing.Transaction) error {
	defer t.lock()()
	for _, e := range t.state().txs {
		if e.UserID == x.UserID && e.IdempotencyKey == x.IdempotencyKey {
			return fmt.Errorf("%w: idempotency key %q", ErrConflict, x.IdempotencyKey)
		}
	}
	t.state().txs = append(t.state().txs, x)
	return nil
}

func (t memTx) ListTransactions(ctx context.Context, userID string, limit int) ([]billing.Transaction, error) {
	defer t.lock()()
	out := []billing.Transaction{}
	txs := t.state().txs
	for i := len(txs) - 1; i >= 0; i-- {
		if txs[i].UserID != userID {
			continue
		}
		out = append(out, txs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

/* ===================== BUSINESSES ===================== */

func (t memTx) InsertBusiness(ctx context.Context, b businesses.Business) error {
	defer t.lock()()
	if _, ok := t.state().businesses[b.ID]; ok {
		return fmt.Errorf("%w: business %s exists", ErrConflict, b.ID)
	}
	t.state().businesses[b.ID] = b
	t.state().bizOrder = append(t.state().bizOrder, b.ID)
	return nil
}

func (t memTx) GetBusiness(ctx context.Context, userID, id string) (businesses.Business, error) {
	defer t.lock()()
	b, ok := t.state().businesses[id]
	if !ok || b.UserID != userID {
		return businesses.Business{}, businessNotFound()
	}
	return b, nil
}

func (t memTx) ActiveBusiness(ctx context.Context, userID string) (businesses.Business, error) {
	defer t.lock()()
	var (
		best  businesses.Business
		found bool
	)
	for _, id := range t.state().bizOrder {
		b := t.state().businesses[id]
		if b.UserID != userID || !b.IsActive {
			continue
		}
		if !found || !b.CreatedAt.Before(best.CreatedAt) {
			best, found = b, true
		}
	}
	if !found {
		return businesses.Business{}, businessNotFound()
	}
	return best, nil
}

func (t memTx) UpdateBusinessKnowledge(ctx context.Context, b businesses.Business) error {
	defer t.lock()()
	cur, ok := t.state().businesses[b.ID]
	if !ok || cur.UserID != b.UserID {
		return businessNotFound()
	}
	cur.BusinessName = b.BusinessName
	cur.Description = b.Description
	cur.ValueProposition = b.ValueProposition
	cur.Industry = b.Industry
	cur.TargetMarkets = b.TargetMarkets
	cur.DecisionMakerRoles = b.DecisionMakerRoles
	cur.AnalysisData = b.AnalysisData
	cur.DiscoveryAnswers = b.DiscoveryAnswers
	cur.UpdatedAt = b.UpdatedAt
	t.state().businesses[b.ID] = cur
	return nil
}

func (t memTx) FindMigration(ctx context.Context, token string) (businesses.Migration, bool, error) {
	defer t.lock()()
	m, ok := t.state().migrations[token]
	return m, ok, nil
}

func (t memTx) InsertMigration(ctx context.Context, m businesses.Migration) error {
	defer t.lock()()
	if _, ok := t.state().migrations[m.Token]; ok {
		return fmt.Errorf("%w: migration token %q", ErrConflict, m.Token)
	}
	t.state().migrations[m.Token] = m
	return nil
}

/* ===================== CAMPAIGNS ===================== */

func (t memTx) InsertCampaign(ctx context.Context, c campaigns.Campaign) error {
	defer t.lock()()
	if _, ok := t.state().campaigns[c.ID]; ok {
		return fmt.Errorf("%w: campaign %s exists", ErrConflict, c.ID)
	}
	t.state().campaigns[c.ID] = c
	t.state().campOrder = append(t.state().campOrder, c.ID)
	return nil
}

func (t memTx) GetCampaign(ctx context.Context, id string) (campaigns.Campaign, businesses.Business, error) {
	defer t.lock()()
	c, ok := t.state().campaigns[id]
	if !ok {
		return campaigns.Campaign{}, businesses.Business{}, ErrNotFound
	}
	b, ok := t.state().businesses[c.BusinessID]
	if !ok {
		return campaigns.Campaign{}, businesses.Business{}, businessNotFound()
	}
	return c, b, nil
}

func (t memTx) GetOwnedCampaign(ctx context.Context, userID, id string) (campaigns.Campaign, businesses.Business, error) {
	defer t.lock()()
	c, ok := t.state().campaigns[id]
	if !ok {
		return campaigns.Campaign{}, businesses.Business{}, ErrNotFound
	}
	b, ok := t.state().businesses[c.BusinessID]
	if !ok || b.UserID != userID {
		return campaigns.Campaign{}, businesses.Business{}, ErrNotFound
	}
	return c, b, nil
}

func (t memTx) ListCampaigns(ctx context.Context, f campaigns.ListFilter) ([]campaigns.Campaign, error) {
	defer t.lock()()
	out := []campaigns.Campaign{}
	for _, id := range t.state().campOrder {
		c := t.state().campaigns[id]
		if t.ownerOfBusiness(c.BusinessID) != f.UserID {
			continue
		}
		if f.BusinessID != "" && c.BusinessID != f.BusinessID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t memTx) ListStuckCampaigns(ctx context.Context, startedBefore time.Time) ([]campaigns.Campaign, error) {
	defer t.lock()()
	out := []campaigns.Campaign{}
	for _, id := range t.state().campOrder {
		c := t.state().campaigns[id]
		if c.Status == campaigns.StatusActive && c.StartedAt != nil && c.StartedAt.Before(startedBefore) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (t memTx) TransitionCampaign(ctx context.Context, id string, from, to campaigns.Status, now time.Time) error {
	if err := campaigns.Transition(from, to); err != nil {
		return err
	}
	defer t.lock()()
	c, ok := t.state().campaigns[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status != from {
		return ErrConflict
	}
	c.Status = to
	switch to {
	case campaigns.StatusActive:
		c.StartedAt = timePtr(now)
	case campaigns.StatusDraft:
		c.StartedAt = nil
		c.ScrapeCursor = 0
	case campaigns.StatusCompleted:
		c.CompletedAt = timePtr(now)
	}
	c.UpdatedAt = now
	t.state().campaigns[id] = c
	return nil
}

func (t memTx) AdvanceScrape(ctx context.Context, id string, added, cursor int, now time.Time) error {
	return t.updateCampaign(id, func(c *campaigns.Campaign) {
		c.LeadsScraped += added
		c.ScrapeCursor = cursor
		c.UpdatedAt = now
	})
}

func (t memTx) SetAssistantID(ctx context.Context, id, assistantID string, now time.Time) error {
	return t.updateCampaign(id, func(c *campaigns.Campaign) {
		c.VAPIAssistantID = assistantID
		c.UpdatedAt = now
	})
}

func (t memTx) BumpCampaign(ctx context.Context, id string, d campaigns.Counters, now time.Time) error {
	return t.updateCampaign(id, func(c *campaigns.Campaign) {
		c.LeadsCalled += d.LeadsCalled
		c.AppointmentsBooked += d.AppointmentsBooked
		c.TotalSpent += d.Spent
		c.UpdatedAt = now
	})
}

func (t memTx) updateCampaign(id string, fn func(c *campaigns.Campaign)) error {
	defer t.lock()()
	c, ok := t.state().campaigns[id]
	if !ok {
		return ErrNotFound
	}
	fn(&c)
	t.state().campaigns[id] = c
	return nil
}

func (t memTx) ownerOfBusiness(businessID string) string {
	return t.state().businesses[businessID].UserID
}

func (t memTx) ownerOfCampaign(campaignID string) string {
	return t.ownerOfBusiness(t.state().campaigns[campaignID].BusinessID)
}

/* ===================== LEADS ===================== */

func (t memTx) InsertLead(ctx context.Context, l leads.Lead) (bool, error) {
	defer t.lock()()
	if _, ok := t.state().leads[l.ID]; ok {
		return false, nil
	}
	if l.GooglePlaceID != "" {
		for _, id := range t.state().leadOrder {
			e := t.state().leads[id]
			if e.CampaignID == l.CampaignID && e.GooglePlaceID == l.GooglePlaceID {
				return false, nil
			}
		}
	}
	t.state().leads[l.ID] = l
	t.state().leadOrder = append(t.state().leadOrder, l.ID)
	return true, nil
}

func (t memTx) GetLead(ctx context.Context, id string) (leads.Lead, error) {
	defer t.lock()()
	l, ok := t.state().leads[id]
	if !ok {
		return leads.Lead{}, ErrNotFound
	}
	return l, nil
}

func (t memTx) LeadsByIDs(ctx context.Context, campaignID string, ids []string) ([]leads.Lead, error) {
	defer t.lock()()
	out := []leads.Lead{}
	seen := map[string]struct{}{}
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if l, ok := t.state().leads[id]; ok && l.CampaignID == campaignID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (t memTx) ListLeads(ctx context.Context, f leads.ListFilter) ([]leads.Lead, error) {
	defer t.lock()()
	f = f.Normalize()
	var matched []leads.Lead
	for _, id := range t.state().leadOrder {
		l := t.state().leads[id]
		if t.ownerOfCampaign(l.CampaignID) != f.UserID {
			continue
		}
		if f.CampaignID != "" && l.CampaignID != f.CampaignID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		matched = append(matched, l)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return page(matched, f.Offset, f.Limit), nil
}

func (t memTx) UnchargedLeads(ctx context.Context, campaignID string) ([]string, error) {
	defer t.lock()()
	var out []string
	for _, id := range t.state().leadOrder {
		l := t.state().leads[id]
		if l.CampaignID == campaignID && !l.ScrapeCharged {
			out = append(out, id)
		}
	}
	return out, nil
}

func (t memTx) MarkLeadsCharged(ctx context.Context, ids []string, now time.Time) error {
	defer t.lock()()
	for _, id := range ids {
		l, ok := t.state().leads[id]
		if !ok {
			continue
		}
		l.ScrapeCharged = true
		l.UpdatedAt = now
		t.state().leads[id] = l
	}
	return nil
}

func (t memTx) EnrichLead(ctx context.Context, id string, e leads.Enrichment) error {
	defer t.lock()()
	l, ok := t.state().leads[id]
	if !ok {
		return ErrNotFound
	}
	if l.Status != leads.StatusValidated {
		return ErrConflict
	}
	l.ContactName = e.Primary.Name
	l.ContactTitle = e.Primary.Title
	l.ContactEmail = e.Primary.Email
	l.ContactPhone = e.Primary.Phone
	l.ContactLinkedIn = e.Primary.LinkedInURL
	l.EnrichmentData = e.Data
	l.Status = leads.StatusEnriched
	l.EnrichedAt = timePtr(e.At)
	l.UpdatedAt = e.At
	t.state().leads[id] = l
	return nil
}

func (t memTx) RecordEnrichmentFailure(ctx context.Context, id string, data json.RawMessage, now time.Time) error {
	defer t.lock()()
	l, ok := t.state().leads[id]
	if !ok {
		return ErrNotFound
	}
	l.EnrichmentData = data
	l.UpdatedAt = now
	t.state().leads[id] = l
	return nil
}

func (t memTx) TransitionLead(ctx context.Context, id string, from, to leads.Status, now time.Time) error {
	if err := leads.Transition(from, to); err != nil {
		return err
	}
	defer t.lock()()
	l, ok := t.state().leads[id]
	if !ok {
		return ErrNotFound
	}
	if l.Status != from {
		return ErrConflict
	}
	l.Status = to
	if to == leads.StatusCalling {
		l.CalledAt = timePtr(now)
	}
	l.UpdatedAt = now
	t.state().leads[id] = l
	return nil
}

func (t memTx) LeadStatusCounts(ctx context.Context, campaignID string) (map[leads.Status]int, error) {
	defer t.lock()()
	out := map[leads.Status]int{}
	for _, l := range t.state().leads {
		if l.CampaignID == campaignID {
			out[l.Status]++
		}
	}
	return out, nil
}

/* ===================== CALLS ===================== */

func (t memTx) InsertCallLog(ctx context.Context, c calls.CallLog) error {
	defer t.lock()()
	if _, ok := t.state().calls[c.VAPICallID]; ok {
		return fmt.Errorf("%w: vapi call %s exists", ErrConflict, c.VAPICallID)
	}
	t.state().calls[c.VAPICallID] = c
	t.state().callOrder = append(t.state().callOrder, c.VAPICallID)
	return nil
}

func (t memTx) GetCallLogByVAPIID(ctx context.Context, vapiCallID string) (calls.CallLog, error) {
	defer t.lock()()
	c, ok := t.state().calls[vapiCallID]
	if !ok {
		return calls.CallLog{}, ErrNotFound
	}
	return c, nil
}

func (t memTx) MarkCallStarted(ctx context.Context, vapiCallID string, at time.Time) error {
	return t.updateCall(vapiCallID, func(c *calls.CallLog) error {
		c.StartedAt = timePtr(at)
		if c.Outcome == calls.OutcomeInitiated {
			c.Outcome = calls.OutcomeInProgress
		}
		c.UpdatedAt = at
		return nil
	})
}

func (t memTx) EndCall(ctx context.Context, vapiCallID string, e calls.CallEnd) error {
	return t.updateCall(vapiCallID, func(c *calls.CallLog) error {
		if c.Outcome != calls.OutcomeAppointmentBooked {
			c.Outcome = e.Outcome
		}
		c.DurationSeconds = e.DurationSeconds
		c.Cost = e.Cost
		c.RecordingURL = e.RecordingURL
		merged, err := mergeJSON(c.VAPIData, e.VAPIData)
		if err != nil {
			return err
		}
		c.VAPIData = merged
		c.EndedAt = timePtr(e.EndedAt)
		c.UpdatedAt = e.EndedAt
		return nil
	})
}

func (t memTx) AppendTranscript(ctx context.Context, vapiCallID, line string, at time.Time) error {
	return t.updateCall(vapiCallID, func(c *calls.CallLog) error {
		c.Transcript += line
		c.UpdatedAt = at
		return nil
	})
}

func (t memTx) SetCallOutcome(ctx context.Context, vapiCallID string, o calls.Outcome, at time.Time) error {
	return t.updateCall(vapiCallID, func(c *calls.CallLog) error {
		c.Outcome = o
		c.UpdatedAt = at
		return nil
	})
}

func (t memTx) MergeCallData(ctx context.Context, vapiCallID string, patch json.RawMessage, at time.Time) error {
	return t.updateCall(vapiCallID, func(c *calls.CallLog) error {
		merged, err := mergeJSON(c.VAPIData, patch)
		if err != nil {
			return err
		}
		c.VAPIData = merged
		c.UpdatedAt = at
		return nil
	})
}

func (t memTx) updateCall(vapiCallID string, fn func(c *calls.CallLog) error) error {
	defer t.lock()()
	c, ok := t.state().calls[vapiCallID]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&c); err != nil {
		return err
	}
	t.state().calls[vapiCallID] = c
	return nil
}

func (t memTx) ListCallLogs(ctx context.Context, f calls.ListFilter) ([]calls.CallLog, error) {
	defer t.lock()()
	limit := f.Limit
	if limit <= 0 {
		limit = leads.DefaultListLimit
	}
	if limit > leads.MaxListLimit {
		limit = leads.MaxListLimit
	}
	var matched []calls.CallLog
	for _, id := range t.state().callOrder {
		c := t.state().calls[id]
		if t.ownerOfCampaign(c.CampaignID) != f.UserID {
			continue
		}
		if f.CampaignID != "" && c.CampaignID != f.CampaignID {
			continue
		}
		if f.LeadID != "" && c.LeadID != f.LeadID {
			continue
		}
		if f.Outcome != "" && c.Outcome != f.Outcome {
			continue
		}
		matched = append(matched, c)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return page(matched, f.Offset, limit), nil
}

func (t memTx) InsertAppointment(ctx context.Context, a calls.Appointment) error {
	defer t.lock()()
	t.state().appointments = append(t.state().appointments, a)
	return nil
}

/* ===================== AUDIT ===================== */

func (t memTx) AppendAudit(ctx context.Context, e audit.Event) error {
	defer t.lock()()
	t.state().audit = append(t.state().audit, e)
	return nil
}

/* ===================== HELPERS ===================== */

func timePtr(t time.Time) *time.Time { return &t }

func page[T any](in []T, offset, limit int) []T {
	out := []T{}
	if offset >= len(in) {
		return out
	}
	in = in[offset:]
	if limit < len(in) {
		in = in[:limit]
	}
	return append(out, in...)
}

// mergeJSON mirrors jsonb `||` for objects: keys in patch win.
func mergeJSON(base, patch json.RawMessage) (json.RawMessage, error) {
	if len(patch) == 0 || strings.TrimSpace(string(patch)) == "null" {
		return base, nil
	}
	m := map[string]json.RawMessage{}
	if len(base) > 0 && strings.TrimSpace(string(base)) != "null" {
		if err := json.Unmarshal(base, &m); err != nil {
			return nil, err
		}
	}
	var p map[string]json.RawMessage
	if err := json.Unmarshal(patch, &p); err != nil {
		return nil, err
	}
	for k, v := range p {
		m[k] = v
	}
	return json.Marshal(m)
}
