package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"leadgen-platform/internal/audit"
	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/businesses"
	"leadgen-platform/internal/campaigns"
	"leadgen-platform/internal/integrations/apify"
	"leadgen-platform/internal/integrations/vapi"
	"leadgen-platform/internal/leads"
	"leadgen-platform/internal/pricing"
	"leadgen-platform/internal/store"
	"leadgen-platform/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeScraper struct {
	perQuery int
	panicOn  string
	failOn   string
	queries  []string
}

func (f *fakeScraper) SearchPlaces(_ context.Context, query, location string, max int) ([]leads.Lead, error) {
	f.queries = append(f.queries, query)
	if query == f.panicOn {
		panic("scraper blew up")
	}
	if query == f.failOn {
		return nil, errors.New("actor run failed")
	}
	n := min(f.perQuery, max)
	out := make([]leads.Lead, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, leads.Lead{
			BusinessName:  fmt.Sprintf("%s %d", query, i),
			Address:       location,
			Phone:         "+1555000" + fmt.Sprint(i),
			GooglePlaceID: fmt.Sprintf("%s-%s-%d", location, query, i),
		})
	}
	return out, nil
}

type fakeValidator struct {
	score int
	err   error
}

func (f fakeValidator) ValidateBatch(_ context.Context, items []leads.Lead, _ json.RawMessage, _ string) ([]validator.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]validator.Result, len(items))
	for i := range out {
		out[i] = validator.Result{RelevanceScore: f.score, Recommendation: "QUALIFY"}
	}
	return out, nil
}

type fakeContacts struct {
	contacts []leads.Contact
}

func (f fakeContacts) FindContacts(context.Context, string, string, []string) []leads.Contact {
	return f.contacts
}

type searchArgs struct {
	company, location string
	roles             []string
}

type recordingContacts struct {
	mu       sync.Mutex
	searches []searchArgs
}

func (r *recordingContacts) FindContacts(_ context.Context, company, location string, roles []string) []leads.Contact {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches = append(r.searches, searchArgs{company: company, location: location, roles: roles})
	return []leads.Contact{{ID: "p9", Name: "Ana Diaz", Email: "ana@lead.test"}}
}

type fakeDialer struct {
	mu        sync.Mutex
	failFor   map[string]bool
	calls     []vapi.CallRequest
	assistant int
}

func (f *fakeDialer) CreateAssistant(_ context.Context, a vapi.Assistant) (vapi.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assistant++
	a.ID = fmt.Sprintf("asst-%d", f.assistant)
	return a, nil
}

func (f *fakeDialer) CreateCall(_ context.Context, req vapi.CallRequest) (vapi.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.failFor[req.Customer.Number] {
		return vapi.Call{}, errors.New("vapi: 400 invalid number")
	}
	id := "call-" + req.Metadata["leadId"]
	return vapi.Call{ID: id, Status: "queued", Raw: json.RawMessage(`{"id":"` + id + `"}`)}, nil
}

type fakeAdHoc struct {
	found []apify.AdHocLead
}

func (f fakeAdHoc) RunSync(context.Context, []string, string, int) ([]apify.AdHocLead, error) {
	return f.found, nil
}

type fixture struct {
	st      *store.Memory
	svc     *Service
	scraper *fakeScraper
	dialer  *fakeDialer
	seq     int
}

func newFixture(t *testing.T, credits int64) *fixture {
	t.Helper()
	st := store.NewMemory()
	st.SeedUser("u1", credits)
	f := &fixture{
		st:      st,
		scraper: &fakeScraper{perQuery: 8},
		dialer:  &fakeDialer{failFor: map[string]bool{}},
	}
	f.svc = New(Deps{
		Store:     st,
		Billing:   billing.NewService(st, pricing.NewService(nil)),
		Audit:     audit.NewService(st),
		Scraper:   f.scraper,
		AdHoc:     fakeAdHoc{},
		Validator: fakeValidator{score: 80},
		Contacts:  fakeContacts{contacts: []leads.Contact{{ID: "p1", Name: "Jane Roe", Title: "Owner", Email: "jane@acme.test"}}},
		Dialer:    f.dialer,
	}).WithClock(func() time.Time { return now })
	return f
}

func (f *fixture) campaign(t *testing.T, p campaigns.SearchParameters) campaigns.Campaign {
	t.Helper()
	ctx := context.Background()
	b := businesses.Business{ID: "biz-1", UserID: "u1", BusinessName: "Acme Growth", IsActive: true, CreatedAt: now}
	if _, err := f.st.GetBusiness(ctx, "u1", b.ID); err != nil {
		require.NoError(t, f.st.InsertBusiness(ctx, b))
	}
	f.seq++
	c := campaigns.Campaign{ID: fmt.Sprintf("camp-%d", f.seq), BusinessID: b.ID, Name: "Q1", Status: campaigns.StatusDraft, SearchParameters: p, CreatedAt: now}
	require.NoError(t, f.st.InsertCampaign(ctx, c))
	return c
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	acct, err := f.st.GetAccount(context.Background(), "u1")
	require.NoError(t, err)
	return acct.Credits
}

func twoPairs(quota int) campaigns.SearchParameters {
	return campaigns.SearchParameters{Location: "Denver", Keywords: []string{"dentist", "plumber"}, NumberOfLeads: quota}
}

func TestScrape_StopsAtQuotaAndSettlesOnce(t *testing.T) {
	f := newFixture(t, 100)
	c := f.campaign(t, twoPairs(10))

	res, err := f.svc.Scrape(context.Background(), "u1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, res.LeadsScraped)
	assert.Equal(t, campaigns.StatusCompleted, res.Status)

	got, _, err := f.st.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.LeadsScraped)
	assert.Equal(t, 2, got.ScrapeCursor)
	assert.Equal(t, int64(10), got.TotalSpent)
	require.NotNil(t, got.CompletedAt)

	txs, err := f.st.ListTransactions(context.Background(), "u1", 0)
	require.NoError(t, err)
	var scraped []billing.Transaction
	for _, x := range txs {
		if x.Type == billing.TypeLeadScraped {
			scraped = append(scraped, x)
		}
	}
	require.Len(t, scraped, 1)
	assert.Equal(t, int64(10), scraped[0].CreditsUsed)
	assert.Equal(t, 10, scraped[0].Quantity)
	assert.Equal(t, int64(90), f.balance(t))

	uncharged, _ := f.st.UnchargedLeads(context.Background(), c.ID)
	assert.Empty(t, uncharged)
}

func TestScrape_RejectsCompletedAndRunning(t *testing.T) {
	f := newFixture(t, 100)
	c := f.campaign(t, twoPairs(10))
	_, err := f.svc.Scrape(context.Background(), "u1", c.ID)
	require.NoError(t, err)

	_, err = f.svc.Scrape(context.Background(), "u1", c.ID)
	assert.ErrorIs(t, err, ErrAlreadyComplete)

	_, err = f.svc.Scrape(context.Background(), "u2", c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestScrape_HeldLockIsAlreadyRunning(t *testing.T) {
	f := newFixture(t, 100)
	c := f.campaign(t, twoPairs(10))
	ok, err := f.svc.lock.Acquire(context.Background(), runLockKey(c.ID), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Scrape(context.Background(), "u1", c.ID)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	got, _, _ := f.st.GetCampaign(context.Background(), c.ID)
	assert.Equal(t, campaigns.StatusDraft, got.Status)
}

func TestScrape_FailedPairIsSkipped(t *testing.T) {
	f := newFixture(t, 100)
	f.scraper.failOn = "dentist"
	c := f.campaign(t, twoPairs(10))

	res, err := f.svc.Scrape(context.Background(), "u1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, res.LeadsScraped)
	assert.Equal(t, campaigns.StatusPaused, res.Status)
}

func TestScrape_ValidatorErrorNeverLeavesActive(t *testing.T) {
	f := newFixture(t, 100)
	boom := errors.New("gemini down")
	f.svc.validator = fakeValidator{err: boom}
	c := f.campaign(t, twoPairs(10))

	_, err := f.svc.Scrape(context.Background(), "u1", c.ID)
	require.ErrorIs(t, err, boom)

	got, _, _ := f.st.GetCampaign(context.Background(), c.ID)
	assert.Equal(t, campaigns.StatusPaused, got.Status)
}

func TestScrape_PanicNeverLeavesActive(t *testing.T) {
	f := newFixture(t, 100)
	f.scraper.panicOn = "plumber"
	c := f.campaign(t, twoPairs(20))

	assert.Panics(t, func() { _, _ = f.svc.Scrape(context.Background(), "u1", c.ID) })

	got, _, _ := f.st.GetCampaign(context.Background(), c.ID)
	assert.Equal(t, campaigns.StatusPaused, got.Status)
	assert.Equal(t, 8, got.LeadsScraped)
	assert.Equal(t, int64(92), f.balance(t))

	ok, _ := f.svc.lock.Acquire(context.Background(), runLockKey(c.ID), time.Minute)
	assert.True(t, ok, "run lock must be released")
}

func TestScrape_InsufficientCreditsPausesUncharged(t *testing.T) {
	f := newFixture(t, 5)
	c := f.campaign(t, twoPairs(10))

	res, err := f.svc.Scrape(context.Background(), "u1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaigns.StatusPaused, res.Status)
	assert.Equal(t, int64(5), f.balance(t))

	uncharged, _ := f.st.UnchargedLeads(context.Background(), c.ID)
	assert.Len(t, uncharged, 10)
}

func TestScrape_RetriesFailedPairOnNextRun(t *testing.T) {
	f := newFixture(t, 100)
	f.scraper.failOn = "dentist"
	c := f.campaign(t, twoPairs(10))
	res, err := f.svc.Scrape(context.Background(), "u1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaigns.StatusPaused, res.Status)
	assert.Equal(t, 8, res.LeadsScraped)

	got, _, err := f.st.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ScrapeCursor, "cursor stays on the failed pair")

	f.scraper.failOn = ""
	f.scraper.queries = nil
	res, err = f.svc.Scrape(context.Background(), "u1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"dentist"}, f.scraper.queries)
	assert.Equal(t, 10, res.LeadsScraped)
	assert.Equal(t, campaigns.StatusCompleted, res.Status)
}

func TestScrape_WrapsAroundWhenQuotaStillOpen(t *testing.T) {
	f := newFixture(t, 100)
	c := f.campaign(t, twoPairs(20))
	res, err := f.svc.Scrape(context.Background(), "u1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, 16, res.LeadsScraped)
	assert.Equal(t, campaigns.StatusPaused, res.Status)

	f.scraper.queries = nil
	res, err = f.svc.Scrape(context.Background(), "u1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"dentist", "plumber"}, f.scraper.queries, "rescans from the first pair")
	assert.Equal(t, 16, res.LeadsScraped, "known places are not inserted twice")
	assert.Equal(t, campaigns.StatusPaused, res.Status)
}

func TestResetCampaign_ClearsScrapeCursor(t *testing.T) {
	f := newFixture(t, 100)
	c := f.campaign(t, twoPairs(20))
	_, err := f.svc.Scrape(context.Background(), "u1", c.ID)
	require.NoError(t, err)

	got, err := f.svc.ResetCampaign(context.Background(), Actor{UserID: "u1", Role: "user"}, c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaigns.StatusDraft, got.Status)
	assert.Equal(t, 0, got.ScrapeCursor)
	assert.Equal(t, 16, got.LeadsScraped)

	f.scraper.queries = nil
	_, err = f.svc.Scrape(context.Background(), "u1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"dentist", "plumber"}, f.scraper.queries)
}

func seedLead(t *testing.T, st *store.Memory, campaignID, id string, status leads.Status, phone string) {
	t.Helper()
	ok, err := st.InsertLead(context.Background(), leads.Lead{
		ID: id, CampaignID: campaignID, BusinessName: "Lead " + id, Phone: "+15550199",
		ContactName: "Sam", ContactPhone: phone, Status: status, ScrapeCharged: true, CreatedAt: now,
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEnrich_ChargesOncePerLead(t *testing.T) {
	f := newFixture(t, 100)
	c := f.campaign(t, twoPairs(10))
	seedLead(t, f.st, c.ID, "l1", leads.StatusValidated, "")
	seedLead(t, f.st, c.ID, "l2", leads.StatusNew, "")

	res, err := f.svc.Enrich(context.Background(), "u1", c.ID, []string{"l1", "l2", "missing"})
	require.NoError(t, err)
	assert.Equal(t, EnrichResult{Success: true, EnrichedCount: 1, SkippedCount: 1, TotalLeads: 2}, res)

	l, err := f.st.GetLead(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, leads.StatusEnriched, l.Status)
	assert.True(t, l.HasContact())
	assert.Equal(t, "Jane Roe", l.ContactName)
	assert.Equal(t, "+15550199", l.ContactPhone, "falls back to the business phone")
	assert.Equal(t, int64(98), f.balance(t))

	res, err = f.svc.Enrich(context.Background(), "u1", c.ID, []string{"l1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Equal(t, int64(98), f.balance(t))

	got, _, _ := f.st.GetCampaign(context.Background(), c.ID)
	assert.Equal(t, int64(2), got.TotalSpent)
}

func TestEnrich_SearchesByCompanyAndRoleOnly(t *testing.T) {
	f := newFixture(t, 100)
	rec := &recordingContacts{}
	f.svc.contacts = rec
	c := f.campaign(t, twoPairs(10))
	ok, err := f.st.InsertLead(context.Background(), leads.Lead{
		ID: "l1", CampaignID: c.ID, BusinessName: "Bright Smiles", Address: "1 Main St, Austin TX 78701",
		Status: leads.StatusValidated, ScrapeCharged: true, CreatedAt: now,
	})
	require.NoError(t, err)
	require.True(t, ok)

	res, err := f.svc.Enrich(context.Background(), "u1", c.ID, []string{"l1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.EnrichedCount)
	require.Len(t, rec.searches, 1)
	assert.Equal(t, "Bright Smiles", rec.searches[0].company)
	assert.Empty(t, rec.searches[0].location)
	assert.NotEmpty(t, rec.searches[0].roles)
}

func TestEnrich_NoContactsRecordsFailure(t *testing.T) {
	f := newFixture(t, 100)
	f.svc.contacts = fakeContacts{}
	c := f.campaign(t, twoPairs(10))
	seedLead(t, f.st, c.ID, "l1", leads.StatusValidated, "")

	res, err := f.svc.Enrich(context.Background(), "u1", c.ID, []string{"l1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedCount)
	assert.Equal(t, int64(100), f.balance(t))

	l, _ := f.st.GetLead(context.Background(), "l1")
	assert.Equal(t, leads.StatusValidated, l.Status)
	assert.JSONEq(t, `{"error":"No contacts found","failed_at":"2025-03-01T12:00:00Z"}`, string(l.EnrichmentData))
}

func TestEnrich_Validation(t *testing.T) {
	f := newFixture(t, 100)
	c := f.campaign(t, twoPairs(10))

	_, err := f.svc.Enrich(context.Background(), "u1", c.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.Enrich(context.Background(), "u1", c.ID, []string{"nope"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTargetRoles(t *testing.T) {
	c := campaigns.Campaign{}
	biz := businesses.Business{}
	assert.Equal(t, DefaultTargetRoles, TargetRoles(c, biz))

	biz.AnalysisData.TargetDecisionMakers = []businesses.DecisionMaker{{Title: "COO"}}
	assert.Equal(t, []string{"COO"}, TargetRoles(c, biz))

	c.SearchParameters.DecisionMakers = []string{"CFO"}
	assert.Equal(t, []string{"CFO"}, TargetRoles(c, biz))
}

func callingParams() campaigns.SearchParameters {
	p := twoPairs(10)
	p.ServiceOption = campaigns.ServiceScrapingCalling
	return p
}

func TestInitiateCalls_OneResultPerID(t *testing.T) {
	f := newFixture(t, 100)
	c := f.campaign(t, callingParams())
	seedLead(t, f.st, c.ID, "ok", leads.StatusEnriched, "+15550001")
	seedLead(t, f.st, c.ID, "bad", leads.StatusEnriched, "+15550002")
	seedLead(t, f.st, c.ID, "fresh", leads.StatusValidated, "")
	f.dialer.failFor["+15550002"] = true

	ids := []string{"ok", "bad", "fresh", "ghost", "ok"}
	res, err := f.svc.InitiateCalls(context.Background(), "u1", c.ID, ids)
	require.NoError(t, err)
	require.Len(t, res.Results, len(ids))
	assert.Equal(t, len(ids), res.CallsInitiated+res.CallsFailed)
	assert.Equal(t, 1, res.CallsInitiated)
	assert.Equal(t, "call-ok", res.Results[0].CallID)
	assert.Equal(t, CallFailed, res.Results[4].Status)

	// The failed placement was refunded and the lead released.
	assert.Equal(t, int64(93), f.balance(t))
	bad, _ := f.st.GetLead(context.Background(), "bad")
	assert.Equal(t, leads.StatusEnriched, bad.Status)
	good, _ := f.st.GetLead(context.Background(), "ok")
	assert.Equal(t, leads.StatusCalling, good.Status)

	cl, err := f.st.GetCallLogByVAPIID(context.Background(), "call-ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", cl.LeadID)

	got, _, _ := f.st.GetCampaign(context.Background(), c.ID)
	assert.Equal(t, 1, got.LeadsCalled)
	assert.Equal(t, int64(7), got.TotalSpent)
	assert.Equal(t, "asst-1", got.VAPIAssistantID)

	for _, req := range f.dialer.calls {
		require.NotNil(t, req.AssistantOverrides)
		assert.NotEmpty(t, req.AssistantOverrides.FirstMessage)
		assert.Equal(t, c.ID, req.Metadata["campaignId"])
	}
}

func TestInitiateCalls_RetryIsChargedAgain(t *testing.T) {
	f := newFixture(t, 100)
	c := f.campaign(t, callingParams())
	seedLead(t, f.st, c.ID, "l1", leads.StatusEnriched, "+15550001")
	f.dialer.failFor["+15550001"] = true

	_, err := f.svc.InitiateCalls(context.Background(), "u1", c.ID, []string{"l1"})
	require.NoError(t, err)
	f.dialer.failFor = map[string]bool{}
	res, err := f.svc.InitiateCalls(context.Background(), "u1", c.ID, []string{"l1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CallsInitiated)
	assert.Equal(t, int64(93), f.balance(t))

	txs, _ := f.st.ListTransactions(context.Background(), "u1", 0)
	keys := map[string]bool{}
	for _, x := range txs {
		keys[x.IdempotencyKey] = true
	}
	assert.True(t, keys["lead_called:l1:1"])
	assert.True(t, keys["refund:lead_called:l1:1"])
	assert.True(t, keys["lead_called:l1:2"])
}

func TestInitiateCalls_FreeCallFailureReleasesLead(t *testing.T) {
	f := newFixture(t, 10)
	f.svc.billing = billing.NewService(f.st, pricing.NewService(pricing.Table{pricing.EventLeadCalled: 0}))
	c := f.campaign(t, callingParams())
	seedLead(t, f.st, c.ID, "l1", leads.StatusEnriched, "+15550001")
	f.dialer.failFor["+15550001"] = true

	res, err := f.svc.InitiateCalls(context.Background(), "u1", c.ID, []string{"l1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CallsFailed)

	l, _ := f.st.GetLead(context.Background(), "l1")
	assert.Equal(t, leads.StatusEnriched, l.Status)
	assert.Equal(t, int64(10), f.balance(t))
	txs, _ := f.st.ListTransactions(context.Background(), "u1", 0)
	assert.Empty(t, txs)
}

func TestInitiateCalls_Guards(t *testing.T) {
	f := newFixture(t, 100)
	scraping := f.campaign(t, twoPairs(10))
	_, err := f.svc.InitiateCalls(context.Background(), "u1", scraping.ID, []string{"x"})
	assert.ErrorIs(t, err, ErrCallingDisabled)

	c := f.campaign(t, callingParams())
	_, err = f.svc.InitiateCalls(context.Background(), "u1", c.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.InitiateCalls(context.Background(), "u1", c.ID, []string{"ghost"})
	assert.ErrorIs(t, err, ErrNoEligibleLeads)
}

func TestInitiateCalls_InsufficientCreditsFailsLead(t *testing.T) {
	f := newFixture(t, 3)
	c := f.campaign(t, callingParams())
	seedLead(t, f.st, c.ID, "l1", leads.StatusEnriched, "+15550001")

	res, err := f.svc.InitiateCalls(context.Background(), "u1", c.ID, []string{"l1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CallsFailed)
	assert.Empty(t, f.dialer.calls)
	l, _ := f.st.GetLead(context.Background(), "l1")
	assert.Equal(t, leads.StatusEnriched, l.Status)
}

func TestRecoverStuck_SettlesAndAudits(t *testing.T) {
	f := newFixture(t, 100)
	c := f.campaign(t, twoPairs(10))
	ctx := context.Background()
	require.NoError(t, f.st.TransitionCampaign(ctx, c.ID, campaigns.StatusDraft, campaigns.StatusActive, now.Add(-2*time.Hour)))
	ok, err := f.st.InsertLead(ctx, leads.Lead{ID: "l1", CampaignID: c.ID, BusinessName: "A", Status: leads.StatusValidated})
	require.NoError(t, err)
	require.True(t, ok)

	n, err := f.svc.RecoverStuck(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _, _ := f.st.GetCampaign(ctx, c.ID)
	assert.Equal(t, campaigns.StatusPaused, got.Status)
	assert.Equal(t, int64(99), f.balance(t))

	events := f.st.AuditEvents()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeCampaignRecovered, events[0].Type)

	n, err = f.svc.RecoverStuck(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecoverStuck_SkipsLockedRuns(t *testing.T) {
	f := newFixture(t, 100)
	c := f.campaign(t, twoPairs(10))
	ctx := context.Background()
	require.NoError(t, f.st.TransitionCampaign(ctx, c.ID, campaigns.StatusDraft, campaigns.StatusActive, now.Add(-2*time.Hour)))
	_, _ = f.svc.lock.Acquire(ctx, runLockKey(c.ID), time.Hour)

	n, err := f.svc.RecoverStuck(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
	got, _, _ := f.st.GetCampaign(ctx, c.ID)
	assert.Equal(t, campaigns.StatusActive, got.Status)
}

func TestResetCampaign(t *testing.T) {
	f := newFixture(t, 100)
	c := f.campaign(t, twoPairs(10))
	ctx := context.Background()
	actor := Actor{UserID: "u1", Role: "user", IP: "10.0.0.1"}

	_, err := f.svc.ResetCampaign(ctx, actor, c.ID)
	assert.ErrorIs(t, err, campaigns.ErrIllegalTransition)

	require.NoError(t, f.st.TransitionCampaign(ctx, c.ID, campaigns.StatusDraft, campaigns.StatusActive, now))
	got, err := f.svc.ResetCampaign(ctx, actor, c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaigns.StatusDraft, got.Status)
	assert.Nil(t, got.StartedAt)

	events := f.st.AuditEvents()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeCampaignReset, events[0].Type)
	assert.Equal(t, "10.0.0.1", events[0].IPAddress)

	_, err = f.svc.ResetCampaign(ctx, Actor{UserID: "u2"}, c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdHocScrape(t *testing.T) {
	f := newFixture(t, 3)
	f.svc.adhoc = fakeAdHoc{found: []apify.AdHocLead{{BusinessName: "A"}, {BusinessName: "B"}, {BusinessName: "C"}}}
	ctx := context.Background()

	_, err := f.svc.AdHocScrape(ctx, "u1", AdHocRequest{SalesTargets: []string{"dentist"}, Location: "Austin, TX", Quantity: 5})
	var ie *InsufficientCreditsError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, int64(5), ie.Required)
	assert.Equal(t, int64(3), ie.Available)
	assert.ErrorIs(t, err, billing.ErrInsufficientCredits)

	res, err := f.svc.AdHocScrape(ctx, "u1", AdHocRequest{SalesTargets: []string{"dentist"}, Location: "Austin, TX", Quantity: 2})
	require.NoError(t, err)
	assert.Len(t, res.Leads, 2)
	assert.Equal(t, 3, res.TotalFound)
	assert.Equal(t, int64(2), res.CreditsUsed)
	assert.Equal(t, int64(1), f.balance(t))

	_, err = f.svc.AdHocScrape(ctx, "u1", AdHocRequest{Location: "Austin"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLocalRunLock_Expires(t *testing.T) {
	l := NewLocalRunLock()
	clock := now
	l.clock = func() time.Time { return clock }
	ctx := context.Background()

	ok, _ := l.Acquire(ctx, "k", time.Minute)
	assert.True(t, ok)
	ok, _ = l.Acquire(ctx, "k", time.Minute)
	assert.False(t, ok)
	clock = clock.Add(2 * time.Minute)
	ok, _ = l.Acquire(ctx, "k", time.Minute)
	assert.True(t, ok)
	require.NoError(t, l.Release(ctx, "k"))
}

func TestSaga_UndoesInReverse(t *testing.T) {
	var trail []string
	sg := &saga{}
	sg.add("a", func(context.Context) error { trail = append(trail, "do a"); return nil },
		func(context.Context) error { trail = append(trail, "undo a"); return nil })
	sg.add("b", func(context.Context) error { trail = append(trail, "do b"); return nil },
		func(context.Context) error { trail = append(trail, "undo b"); return nil })
	sg.add("c", func(context.Context) error { return errors.New("nope") }, nil)

	err := sg.run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"do a", "do b", "undo b", "undo a"}, trail)
}
