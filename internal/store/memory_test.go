package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/businesses"
	"leadgen-platform/internal/calls"
	"leadgen-platform/internal/campaigns"
	"leadgen-platform/internal/leads"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seedCampaign(t *testing.T, m *Memory, userID string) campaigns.Campaign {
	t.Helper()
	ctx := context.Background()
	m.SeedUser(userID, 0)
	b := businesses.Business{ID: "biz-" + userID, UserID: userID, BusinessName: "Acme", IsActive: true, CreatedAt: t0}
	require.NoError(t, m.InsertBusiness(ctx, b))
	c := campaigns.Campaign{ID: "camp-" + userID, BusinessID: b.ID, Name: "Q1", Status: campaigns.StatusDraft, CreatedAt: t0}
	require.NoError(t, m.InsertCampaign(ctx, c))
	return c
}

func TestMemory_TransitionCampaignIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := seedCampaign(t, m, "u1")

	require.NoError(t, m.TransitionCampaign(ctx, c.ID, campaigns.StatusDraft, campaigns.StatusActive, t0))
	err := m.TransitionCampaign(ctx, c.ID, campaigns.StatusDraft, campaigns.StatusActive, t0)
	assert.ErrorIs(t, err, ErrConflict)

	got, _, err := m.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StartedAt)
	assert.Equal(t, campaigns.StatusActive, got.Status)

	require.NoError(t, m.TransitionCampaign(ctx, c.ID, campaigns.StatusActive, campaigns.StatusDraft, t0))
	got, _, _ = m.GetCampaign(ctx, c.ID)
	assert.Nil(t, got.StartedAt)

	err = m.TransitionCampaign(ctx, c.ID, campaigns.StatusDraft, campaigns.StatusCompleted, t0)
	assert.ErrorIs(t, err, campaigns.ErrIllegalTransition)
	assert.ErrorIs(t, m.TransitionCampaign(ctx, "missing", campaigns.StatusDraft, campaigns.StatusActive, t0), ErrNotFound)
}

func TestMemory_InTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := seedCampaign(t, m, "u1")
	boom := errors.New("boom")

	err := m.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.InsertLead(ctx, leads.Lead{ID: "l1", CampaignID: c.ID, BusinessName: "A", Status: leads.StatusValidated}); err != nil {
			return err
		}
		if err := tx.AdvanceScrape(ctx, c.ID, 1, 1, t0); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = m.GetLead(ctx, "l1")
	assert.ErrorIs(t, err, ErrNotFound)
	got, _, _ := m.GetCampaign(ctx, c.ID)
	assert.Equal(t, 0, got.LeadsScraped)
	assert.Equal(t, 0, got.ScrapeCursor)
}

func TestMemory_InsertLeadSkipsDuplicatePlaceIDs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := seedCampaign(t, m, "u1")

	ok, err := m.InsertLead(ctx, leads.Lead{ID: "l1", CampaignID: c.ID, GooglePlaceID: "p1"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.InsertLead(ctx, leads.Lead{ID: "l2", CampaignID: c.ID, GooglePlaceID: "p1"})
	require.NoError(t, err)
	assert.False(t, ok)

	// Leads without a place id are never treated as duplicates.
	ok, _ = m.InsertLead(ctx, leads.Lead{ID: "l3", CampaignID: c.ID})
	assert.True(t, ok)
	ok, _ = m.InsertLead(ctx, leads.Lead{ID: "l4", CampaignID: c.ID})
	assert.True(t, ok)
}

func TestMemory_EnrichLeadOnlyFromValidated(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := seedCampaign(t, m, "u1")
	_, _ = m.InsertLead(ctx, leads.Lead{ID: "l1", CampaignID: c.ID, Status: leads.StatusValidated})

	e := leads.Enrichment{Primary: leads.Contact{Name: "Jane", Phone: "+15550100"}, Data: json.RawMessage(`{"contacts":[]}`), At: t0}
	require.NoError(t, m.EnrichLead(ctx, "l1", e))
	assert.ErrorIs(t, m.EnrichLead(ctx, "l1", e), ErrConflict)

	l, err := m.GetLead(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, leads.StatusEnriched, l.Status)
	assert.True(t, l.HasContact())
}

func TestMemory_CallLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := seedCampaign(t, m, "u1")
	_, _ = m.InsertLead(ctx, leads.Lead{ID: "l1", CampaignID: c.ID})
	require.NoError(t, m.InsertCallLog(ctx, calls.CallLog{
		ID: "cl1", LeadID: "l1", CampaignID: c.ID, VAPICallID: "v1",
		Outcome: calls.OutcomeInitiated, VAPIData: json.RawMessage(`{"id":"v1"}`), CreatedAt: t0,
	}))

	require.NoError(t, m.MarkCallStarted(ctx, "v1", t0))
	require.NoError(t, m.AppendTranscript(ctx, "v1", "assistant: hi\n", t0))
	require.NoError(t, m.AppendTranscript(ctx, "v1", "user: hello\n", t0))
	require.NoError(t, m.SetCallOutcome(ctx, "v1", calls.OutcomeAppointmentBooked, t0))
	require.NoError(t, m.EndCall(ctx, "v1", calls.CallEnd{
		Outcome: calls.OutcomeCompleted, DurationSeconds: 90, EndedAt: t0.Add(time.Minute),
		VAPIData: json.RawMessage(`{"endedReason":"hangup"}`),
	}))

	cl, err := m.GetCallLogByVAPIID(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "assistant: hi\nuser: hello\n", cl.Transcript)
	assert.Equal(t, calls.OutcomeAppointmentBooked, cl.Outcome)
	assert.Equal(t, 90, cl.DurationSeconds)
	assert.JSONEq(t, `{"id":"v1","endedReason":"hangup"}`, string(cl.VAPIData))

	assert.ErrorIs(t, m.MarkCallStarted(ctx, "nope", t0), ErrNotFound)
}

func TestMemory_ListingsAreScopedToOwner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c1 := seedCampaign(t, m, "u1")
	c2 := seedCampaign(t, m, "u2")
	for i, id := range []string{"a", "b", "c"} {
		_, _ = m.InsertLead(ctx, leads.Lead{ID: id, CampaignID: c1.ID, Status: leads.StatusValidated, CreatedAt: t0.Add(time.Duration(i) * time.Second)})
	}
	_, _ = m.InsertLead(ctx, leads.Lead{ID: "z", CampaignID: c2.ID, Status: leads.StatusValidated})

	got, err := m.ListLeads(ctx, leads.ListFilter{UserID: "u1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)

	got, _ = m.ListLeads(ctx, leads.ListFilter{UserID: "u1", Offset: 2})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	_, _, err = m.GetOwnedCampaign(ctx, "u2", c1.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	cs, _ := m.ListCampaigns(ctx, campaigns.ListFilter{UserID: "u2"})
	require.Len(t, cs, 1)
	assert.Equal(t, c2.ID, cs[0].ID)
}

func TestMemory_AccountErrorsMatchBilling(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.GetAccount(ctx, "ghost")
	assert.ErrorIs(t, err, billing.ErrNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	m.SeedUser("u1", 5)
	_, err = m.AdjustCredits(ctx, "u1", -6, t0)
	assert.ErrorIs(t, err, billing.ErrInsufficientCredits)

	txs, err := m.ListTransactions(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(5), txs[0].CreditsAdded)
}

func TestMergeJSON(t *testing.T) {
	out, err := mergeJSON(nil, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(out))

	out, err = mergeJSON(json.RawMessage(`{"a":1,"b":2}`), json.RawMessage(`{"b":3}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":3}`, string(out))

	out, _ = mergeJSON(json.RawMessage(`{"a":1}`), nil)
	assert.JSONEq(t, `{"a":1}`, string(out))
}
