package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadgen-platform/internal/audit"
	"leadgen-platform/internal/auth"
	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/businesses"
	"leadgen-platform/internal/config"
	"leadgen-platform/internal/httpapi"
	"leadgen-platform/internal/integrations/apify"
	"leadgen-platform/internal/integrations/vapi"
	"leadgen-platform/internal/knowledgebase"
	"leadgen-platform/internal/leads"
	"leadgen-platform/internal/notify"
	"leadgen-platform/internal/pipeline"
	"leadgen-platform/internal/pricing"
	"leadgen-platform/internal/reporting"
	"leadgen-platform/internal/store"
	"leadgen-platform/internal/validator"
	"leadgen-platform/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScraper struct{ n int }

func (s stubScraper) SearchPlaces(_ context.Context, query, location string, max int) ([]leads.Lead, error) {
	out := make([]leads.Lead, 0, s.n)
	for i := 0; i < min(s.n, max); i++ {
		out = append(out, leads.Lead{
			BusinessName:  fmt.Sprintf("%s %d", query, i),
			Phone:         fmt.Sprintf("+1555010%d", i),
			GooglePlaceID: fmt.Sprintf("%s-%s-%d", location, query, i),
		})
	}
	return out, nil
}

type stubValidator struct{}

func (stubValidator) ValidateBatch(_ context.Context, items []leads.Lead, _ json.RawMessage, _ string) ([]validator.Result, error) {
	out := make([]validator.Result, len(items))
	for i := range out {
		out[i] = validator.Result{RelevanceScore: 90, Recommendation: "QUALIFY"}
	}
	return out, nil
}

type stubContacts struct{}

func (stubContacts) FindContacts(context.Context, string, string, []string) []leads.Contact {
	return []leads.Contact{{ID: "p1", Name: "Jane Roe", Title: "Owner", Phone: "+15550199"}}
}

type stubDialer struct{}

func (stubDialer) CreateAssistant(_ context.Context, a vapi.Assistant) (vapi.Assistant, error) {
	a.ID = "asst-1"
	return a, nil
}

func (stubDialer) CreateCall(_ context.Context, req vapi.CallRequest) (vapi.Call, error) {
	return vapi.Call{ID: "call-" + req.Metadata["leadId"], Status: "queued"}, nil
}

type stubAdHoc struct{}

func (stubAdHoc) RunSync(context.Context, []string, string, int) ([]apify.AdHocLead, error) {
	return nil, nil
}

type stubGen struct {
	out string
	err error
}

func (g stubGen) Generate(context.Context, string, string) (string, error) { return g.out, g.err }

type stubFetcher struct{}

func (stubFetcher) FetchText(context.Context, string) (string, error) {
	return "Acme builds scheduling software for clinics.", nil
}

type env struct {
	t      *testing.T
	st     *store.Memory
	auth   *auth.Manager
	router *gin.Engine
	gen    *stubGen
}

type option func(*httpapi.Handlers)

func newEnv(t *testing.T, opts ...option) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemory()
	mgr, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	require.NoError(t, err)

	bill := billing.NewService(st, pricing.NewService(nil))
	aud := audit.NewService(st)
	gen := &stubGen{}
	e := &env{t: t, st: st, auth: mgr, gen: gen}

	h := httpapi.Handlers{
		Auth:    mgr,
		Store:   st,
		Billing: bill,
		Audit:   aud,
		Pipeline: pipeline.New(pipeline.Deps{
			Store:     st,
			Billing:   bill,
			Audit:     aud,
			Scraper:   stubScraper{n: 3},
			AdHoc:     stubAdHoc{},
			Validator: stubValidator{},
			Contacts:  stubContacts{},
			Dialer:    stubDialer{},
		}),
		Knowledge: knowledgebase.New(knowledgebase.Deps{
			Store:   st,
			Gemini:  genFunc(e),
			Fetcher: stubFetcher{},
			Audit:   aud,
		}),
		Reporting:     reporting.NewService(st),
		Webhook:       webhook.NewProcessor(st, bill, notify.NopPublisher{}, webhook.NewMemoryDeduper(), time.Hour),
		WebhookSecret: "hook-secret",
		Ready:         map[string]func(context.Context) error{"postgres": st.Ping},
	}
	for _, o := range opts {
		o(&h)
	}

	r := gin.New()
	httpapi.Register(r, h)
	e.router = r
	return e
}

// genFunc reads the env's generator at call time so tests can swap outputs.
func genFunc(e *env) lazyGen { return lazyGen{e: e} }

type lazyGen struct{ e *env }

func (g lazyGen) Generate(ctx context.Context, model, prompt string) (string, error) {
	return g.e.gen.Generate(ctx, model, prompt)
}

func (e *env) token(userID, role string) string {
	e.t.Helper()
	pair, err := e.auth.IssuePair(time.Now(), userID, userID+"@example.com", role)
	require.NoError(e.t, err)
	return pair.AccessToken
}

func (e *env) do(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (e *env) seedBusiness(userID string) {
	e.t.Helper()
	e.st.SeedUser(userID, 0)
	require.NoError(e.t, e.st.InsertBusiness(context.Background(), businesses.Business{
		ID: "biz-" + userID, UserID: userID, BusinessName: "Acme", IsActive: true, CreatedAt: time.Now().UTC(),
	}))
}

func TestHealthAndReadiness(t *testing.T) {
	failing := func(h *httpapi.Handlers) {
		h.Ready["redis"] = func(context.Context) error { return errors.New("connection refused") }
	}
	e := newEnv(t, failing)

	w, _ := e.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := e.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "up", checks["postgres"])
	assert.Equal(t, "down", checks["redis"])
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/campaigns", "/leads", "/billing/usage", "/knowledge-base"} {
		w, body := e.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, "Unauthorized", body["error"])
	}
}

func TestIssueToken_DevOnlyAndRefresh(t *testing.T) {
	e := newEnv(t)
	w, _ := e.do(http.MethodPost, "/auth/token", "", map[string]string{"user_id": "u1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	e = newEnv(t, func(h *httpapi.Handlers) { h.IssueTokens = true })
	w, body := e.do(http.MethodPost, "/auth/token", "", map[string]string{"user_id": "u1", "email": "u1@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	refresh := body["refresh_token"].(string)

	w, body = e.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code)
	access := body["access_token"].(string)

	// First authenticated request creates the user row.
	w, body = e.do(http.MethodGet, "/billing/usage", access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["usage"].(map[string]any)["creditsRemaining"])

	w, _ = e.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": access})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCampaignFlow(t *testing.T) {
	e := newEnv(t)
	e.seedBusiness("u1")
	tok := e.token("u1", "user")

	w, body := e.do(http.MethodPost, "/campaigns", tok, map[string]any{
		"name":          "Denver dentists",
		"location":      "Denver, CO",
		"salesTargets":  []string{"dentist"},
		"numberOfLeads": 3,
		"service":       "scraping",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := body["campaign"].(map[string]any)["id"].(string)

	w, body = e.do(http.MethodGet, "/campaigns?status=draft", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["campaigns"], 1)

	w, _ = e.do(http.MethodGet, "/campaigns?status=bogus", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Three leads at one credit each, nothing in the account yet.
	w, body = e.do(http.MethodPost, "/campaigns/"+id+"/scrape", tok, nil)
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, float64(3), body["required"])
	assert.Equal(t, float64(0), body["balance"])

	_, _, err := billing.NewService(e.st, pricing.NewService(nil)).TopUp(context.Background(), "u1", 50, "")
	require.NoError(t, err)

	w, body = e.do(http.MethodPost, "/campaigns/"+id+"/scrape", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(3), body["leads_scraped"])
	assert.Equal(t, id, body["campaign_id"])

	w, body = e.do(http.MethodGet, "/leads?campaignId="+id+"&status=validated", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := body["leads"].([]any)
	require.Len(t, list, 3)

	ids := make([]string, 0, len(list))
	for _, l := range list {
		ids = append(ids, l.(map[string]any)["id"].(string))
	}
	w, body = e.do(http.MethodPost, "/leads/enrich", tok, map[string]any{"leadIds": ids, "campaignId": id})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(3), body["enriched_count"])
	assert.Equal(t, float64(3), body["total_leads"])

	w, body = e.do(http.MethodPost, "/calls/initiate", tok, map[string]any{"leadIds": ids, "campaignId": id})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Campaign does not have calling enabled", body["error"])

	w, body = e.do(http.MethodGet, "/campaigns/"+id+"/metrics", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	m := body["metrics"].(map[string]any)
	assert.Equal(t, float64(3), m["leads_scraped"])
	assert.Equal(t, float64(3), m["leads_enriched"])

	// Another user sees nothing.
	e.seedBusiness("u2")
	other := e.token("u2", "user")
	w, _ = e.do(http.MethodGet, "/campaigns/"+id, other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = e.do(http.MethodPost, "/campaigns/"+id+"/reset", other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// A completed campaign cannot be reset or scraped again.
	w, _ = e.do(http.MethodPost, "/campaigns/"+id+"/reset", tok, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w, body = e.do(http.MethodPost, "/campaigns/"+id+"/scrape", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Campaign is already completed", body["error"])
}

func TestCreateCampaign_UnknownBusiness(t *testing.T) {
	e := newEnv(t)
	e.seedBusiness("u1")
	e.seedBusiness("u2")

	w, body := e.do(http.MethodPost, "/campaigns", e.token("u1", "user"), map[string]any{
		"businessId":   "biz-u2",
		"name":         "Q1",
		"location":     "Denver",
		"salesTargets": []string{"dentist"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Business not found", body["error"])
}

func TestLeadBatch_Validation(t *testing.T) {
	e := newEnv(t)
	e.seedBusiness("u1")
	tok := e.token("u1", "user")

	w, body := e.do(http.MethodPost, "/leads/enrich", tok, map[string]any{"campaignId": "c1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Lead IDs and campaign ID are required", body["error"])

	w, body = e.do(http.MethodPost, "/calls/initiate", tok, map[string]any{"leadIds": []string{"a", "b"}, "campaignId": "c1"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, float64(14), body["required"])
}

func TestAddCredits(t *testing.T) {
	e := newEnv(t)
	e.st.SeedUser("u1", 0)

	w, _ := e.do(http.MethodPost, "/credits/add", e.token("u1", "user"), map[string]any{"amount": 10})
	assert.Equal(t, http.StatusForbidden, w.Code)

	e = newEnv(t, func(h *httpapi.Handlers) { h.OpenTopUp = true })
	tok := e.token("u1", "user")

	w, body := e.do(http.MethodPost, "/credits/add", tok, map[string]any{"amount": 10, "idempotencyKey": "k1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(10), body["total_credits"])

	w, body = e.do(http.MethodPost, "/credits/add", tok, map[string]any{"amount": 15})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(25), body["total_credits"])
	assert.Equal(t, "Successfully added 15 credits", body["message"])

	w, body = e.do(http.MethodPost, "/credits/add", tok, map[string]any{"amount": 10, "idempotencyKey": "k1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(25), body["total_credits"])

	w, _ = e.do(http.MethodPost, "/credits/add", tok, map[string]any{"amount": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(http.MethodPost, "/credits/add", tok, map[string]any{"amount": 5, "userId": "u2"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	var topUps int
	for _, ev := range e.st.AuditEvents() {
		if ev.Type == audit.EventTypeCreditTopUp {
			topUps++
		}
	}
	assert.Equal(t, 3, topUps)
}

func TestKnowledgeBase_DraftMigrateAndRoundTrip(t *testing.T) {
	e := newEnv(t)
	e.gen.out = `{"businessName":"Acme","industry":"Software","description":"Scheduling"}`

	w, body := e.do(http.MethodPost, "/analyze", "", map[string]string{"websiteUrl": "acme.test"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	analysis := body["analysis"]
	assert.Equal(t, "Acme", analysis.(map[string]any)["businessName"])

	w, _ = e.do(http.MethodPost, "/analyze", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = e.do(http.MethodPost, "/knowledge-base/drafts", "", map[string]any{
		"websiteUrl":    "https://acme.test",
		"knowledgeBase": analysis,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	draftID := body["draft"].(map[string]any)["temporaryId"].(string)

	w, _ = e.do(http.MethodGet, "/knowledge-base/drafts/"+draftID, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(http.MethodGet, "/knowledge-base/drafts/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	tok := e.token("u1", "user")
	w, body = e.do(http.MethodGet, "/knowledge-base", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No business knowledge base found", body["error"])

	migrate := map[string]string{"token": "mig-1", "draftId": draftID}
	w, body = e.do(http.MethodPost, "/knowledge-base/migrate", tok, migrate)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, body["migrated"])
	bizID := body["business"].(map[string]any)["id"].(string)

	w, body = e.do(http.MethodPost, "/knowledge-base/migrate", tok, migrate)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["migrated"])
	assert.Equal(t, bizID, body["business"].(map[string]any)["id"])

	w, _ = e.do(http.MethodPost, "/knowledge-base/migrate", e.token("u2", "user"), migrate)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = e.do(http.MethodPut, "/knowledge-base", tok, map[string]any{"discoveryAnswers": map[string]string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Business ID is required", body["error"])

	answers := map[string]string{
		"target_audience": "Clinics with 5-20 staff",
		"top_objections":  "Already use a paper diary",
	}
	w, _ = e.do(http.MethodPut, "/knowledge-base", tok, map[string]any{"businessId": bizID, "discoveryAnswers": answers})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = e.do(http.MethodGet, "/knowledge-base", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Business struct {
			DiscoveryAnswers map[string]string `json:"discovery_answers"`
		} `json:"business"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	for k, v := range answers {
		assert.Equal(t, v, got.Business.DiscoveryAnswers[k], k)
	}
}

func TestSuggest_DispatchesOnShape(t *testing.T) {
	e := newEnv(t)
	e.st.SeedUser("u1", 0)
	tok := e.token("u1", "user")

	e.gen.out = `["dentist","orthodontist"]`
	w, body := e.do(http.MethodPost, "/ai-suggest", tok, map[string]any{
		"type":            "sales_targets",
		"location":        "Denver",
		"businessContext": map[string]string{"industry": "Healthcare"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []any{"dentist", "orthodontist"}, body["suggestions"])

	e.gen.out = "not json at all"
	w, body = e.do(http.MethodPost, "/ai-suggest", tok, map[string]any{
		"type":            "sales_targets",
		"businessContext": map[string]string{"industry": "Healthcare"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["suggestions"])

	e.gen.out = "  Clinics with 5-20 staff.  "
	w, body = e.do(http.MethodPost, "/ai-suggest", tok, map[string]any{
		"questionId":       "idealCustomer",
		"question":         "Who is your ideal customer?",
		"businessAnalysis": map[string]string{"businessName": "Acme"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Clinics with 5-20 staff.", body["suggestion"])

	w, _ = e.do(http.MethodPost, "/ai-suggest", tok, map[string]any{"type": "colours"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateScript_ModelFailureIs500(t *testing.T) {
	e := newEnv(t)
	e.st.SeedUser("u1", 0)
	e.gen.err = errors.New("gemini: 503")

	w, body := e.do(http.MethodPost, "/generate-script", e.token("u1", "user"), map[string]any{
		"businessData":  map[string]string{"businessName": "Acme"},
		"decisionMaker": "Owner",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to generate script", body["error"])
}

func TestVAPIWebhook_SecretAndAck(t *testing.T) {
	e := newEnv(t)
	payload := map[string]any{"type": "status-update", "call": map[string]any{"id": "unknown-call"}}

	w, _ := e.do(http.MethodPost, "/vapi/webhook", "", payload)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(payload))
	req := httptest.NewRequest(http.MethodPost, "/vapi/webhook", &buf)
	req.Header.Set(webhook.SecretHeader, "hook-secret")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
}
