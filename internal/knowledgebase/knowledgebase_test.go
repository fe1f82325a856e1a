package knowledgebase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"leadgen-platform/internal/audit"
	"leadgen-platform/internal/businesses"
	"leadgen-platform/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeGen struct {
	mu      sync.Mutex
	out     string
	err     error
	prompts []string
}

func (g *fakeGen) Generate(_ context.Context, model, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.out, g.err
}

type fakeFetcher struct {
	text string
	err  error
}

func (f fakeFetcher) FetchText(context.Context, string) (string, error) { return f.text, f.err }

func newTestService(t *testing.T, gen *fakeGen) (*Service, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	seq := 0
	s := New(Deps{
		Store:   st,
		Gemini:  gen,
		Fetcher: fakeFetcher{text: "Acme builds scheduling software for clinics."},
		Audit:   audit.NewService(st),
	}).WithClock(func() time.Time { return now })
	s.newID = func() string {
		seq++
		return "id-" + string(rune('0'+seq))
	}
	return s, st
}

func TestHTMLToText(t *testing.T) {
	html := `<html><head><style>body{color:red}</style><script>var x = "<b>";</script></head>
<body><h1>Acme</h1>
<p>We   build <b>tools</b>.</p></body></html>`
	assert.Equal(t, "Acme We build tools .", HTMLToText(html))
	assert.Equal(t, "Smith & Sons © plumbing since 1990 <fast>",
		HTMLToText(`<p>Smith &amp; Sons&nbsp;&copy; plumbing&#32;since 1990 &lt;fast&gt;</p><noscript>enable js</noscript>`))

	long := strings.Repeat("é", maxContentRunes+10)
	assert.Len(t, []rune(HTMLToText(long)), maxContentRunes)
}

func TestHTTPFetcher_SendsUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<p>Hello</p>"))
	}))
	defer srv.Close()

	text, err := NewHTTPFetcher(srv.Client()).FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, userAgent, ua)
}

func TestHTTPFetcher_RefusesInternalAddresses(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		_, _ = w.Write([]byte("<p>instance metadata</p>"))
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(nil).FetchText(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedAddress)
	assert.False(t, hit)
}

func TestIsPublic(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "172.16.0.9", "192.168.1.1", "169.254.169.254",
		"100.64.0.1", "0.0.0.0", "::1", "fe80::1", "fd00::1", "::ffff:127.0.0.1"} {
		assert.False(t, isPublic(netip.MustParseAddr(ip)), ip)
	}
	for _, ip := range []string{"93.184.216.34", "8.8.8.8", "2606:4700::1111"} {
		assert.True(t, isPublic(netip.MustParseAddr(ip)), ip)
	}
}

func TestDecodeObject_RepairsModelOutput(t *testing.T) {
	out := "Here you go:\n```json\n{businessName: “Acme”, \"services\": [\"a\", \"b\",],}\n```"
	var kb businesses.KnowledgeBase
	require.NoError(t, decodeObject(out, &kb))
	assert.Equal(t, "Acme", kb.BusinessName)
	assert.Equal(t, []string{"a", "b"}, kb.Services)

	assert.ErrorIs(t, decodeObject("no json here", &kb), errNoJSON)
}

func TestBusinessNameFromURL(t *testing.T) {
	assert.Equal(t, "Acme", BusinessNameFromURL("https://www.acme.io/about"))
	assert.Equal(t, "Shop", BusinessNameFromURL("http://shop.example.com"))
	assert.Equal(t, "Unknown Business", BusinessNameFromURL("::"))
}

func TestNormalizeURL(t *testing.T) {
	u, err := NormalizeURL(" acme.io ")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.io", u)

	_, err = NormalizeURL("")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NormalizeURL("ftp://acme.io")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAnalyze_FillsMissingFields(t *testing.T) {
	gen := &fakeGen{out: `{"businessName":"Acme Scheduling","services":["booking"],"targetDecisionMakers":[{"title":"Practice Manager"}]}`}
	s, _ := newTestService(t, gen)

	kb, err := s.Analyze(context.Background(), "acme.io")
	require.NoError(t, err)
	assert.Equal(t, "Acme Scheduling", kb.BusinessName)
	assert.Equal(t, "Business analysis completed", kb.Description)
	assert.Equal(t, "Business Services", kb.Industry)
	assert.Equal(t, []string{"Practice Manager"}, kb.DecisionMakerTitles())
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "scheduling software for clinics")
}

func TestAnalyze_Fallbacks(t *testing.T) {
	gen := &fakeGen{out: "I could not analyze this site."}
	s, _ := newTestService(t, gen)
	s.fetcher = fakeFetcher{err: errors.New("dial tcp: timeout")}

	kb, err := s.Analyze(context.Background(), "https://www.acme.io")
	require.NoError(t, err)
	assert.Equal(t, "Acme", kb.BusinessName)
	assert.Equal(t, "Business services and solutions provider", kb.Description)
	assert.Contains(t, gen.prompts[0], unfetchable)

	gen.err = errors.New("quota")
	_, err = s.Analyze(context.Background(), "acme.io")
	assert.Error(t, err)
}

func TestDrafts_CreateGetUpdate(t *testing.T) {
	s, _ := newTestService(t, &fakeGen{})
	ctx := context.Background()

	_, err := s.CreateDraft(ctx, DraftInput{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	d, err := s.CreateDraft(ctx, DraftInput{
		WebsiteURL:    "https://acme.io",
		KnowledgeBase: businesses.KnowledgeBase{BusinessName: "Acme"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, d.TemporaryID)
	assert.Equal(t, now, d.CreatedAt)

	up, err := s.UpdateDraft(ctx, d.TemporaryID, DraftInput{
		KnowledgeBase:    businesses.KnowledgeBase{BusinessName: "Acme Inc"},
		DiscoveryAnswers: businesses.DiscoveryAnswers{TopObjections: "price"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://acme.io", up.WebsiteURL)

	got, err := s.GetDraft(ctx, d.TemporaryID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc", got.KnowledgeBase.BusinessName)
	assert.Equal(t, "price", got.DiscoveryAnswers.TopObjections)

	_, err = s.GetDraft(ctx, "missing")
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestMemoryDraftStore_Expires(t *testing.T) {
	m := NewMemoryDraftStore()
	clock := now
	m.clock = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, Draft{TemporaryID: "d1"}, time.Hour))
	_, err := m.Get(ctx, "d1")
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	_, err = m.Get(ctx, "d1")
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestMigrate_ExactlyOnce(t *testing.T) {
	s, st := newTestService(t, &fakeGen{})
	ctx := context.Background()

	d, err := s.CreateDraft(ctx, DraftInput{
		WebsiteURL:       "https://acme.io",
		KnowledgeBase:    businesses.KnowledgeBase{BusinessName: "Acme", Industry: "SaaS"},
		DiscoveryAnswers: businesses.DiscoveryAnswers{SuccessStory: "2x pipeline"},
	})
	require.NoError(t, err)

	first, err := s.Migrate(ctx, "u1", MigrateRequest{Token: "tok-1", DraftID: d.TemporaryID})
	require.NoError(t, err)
	assert.True(t, first.Migrated)
	assert.Equal(t, "Acme", first.Business.BusinessName)
	assert.Equal(t, "2x pipeline", first.Business.DiscoveryAnswers.SuccessStory)

	// The draft is gone, the token still answers.
	_, err = s.GetDraft(ctx, d.TemporaryID)
	assert.ErrorIs(t, err, ErrDraftNotFound)

	again, err := s.Migrate(ctx, "u1", MigrateRequest{Token: "tok-1", DraftID: d.TemporaryID})
	require.NoError(t, err)
	assert.False(t, again.Migrated)
	assert.Equal(t, first.Business.ID, again.Business.ID)

	inline, err := s.Migrate(ctx, "u1", MigrateRequest{Token: "tok-1", Draft: &d})
	require.NoError(t, err)
	assert.False(t, inline.Migrated)
	assert.Equal(t, first.Business.ID, inline.Business.ID)

	_, err = s.Migrate(ctx, "u2", MigrateRequest{Token: "tok-1", Draft: &d})
	assert.ErrorIs(t, err, ErrTokenConflict)

	var migrated int
	for _, e := range st.AuditEvents() {
		if e.Type == audit.EventTypeKnowledgeMigrated {
			migrated++
		}
	}
	assert.Equal(t, 1, migrated)
}

func TestMigrate_Validation(t *testing.T) {
	s, _ := newTestService(t, &fakeGen{})
	ctx := context.Background()

	_, err := s.Migrate(ctx, "u1", MigrateRequest{DraftID: "x"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.Migrate(ctx, "u1", MigrateRequest{Token: "t"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.Migrate(ctx, "u1", MigrateRequest{Token: "t", DraftID: "missing"})
	assert.ErrorIs(t, err, ErrDraftNotFound)
	_, err = s.Migrate(ctx, "u1", MigrateRequest{Token: "t", Draft: &Draft{}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGetAndUpdate_RoundTripsDiscoveryAnswers(t *testing.T) {
	s, _ := newTestService(t, &fakeGen{})
	ctx := context.Background()

	_, err := s.Get(ctx, "u1")
	assert.ErrorIs(t, err, businesses.ErrNotFound)

	res, err := s.Migrate(ctx, "u1", MigrateRequest{Token: "t1", Draft: &Draft{
		WebsiteURL:    "https://acme.io",
		KnowledgeBase: businesses.KnowledgeBase{BusinessName: "Acme"},
	}})
	require.NoError(t, err)

	answers := businesses.DiscoveryAnswers{
		MeasurableOutcome:     "30% fewer no-shows",
		TargetAudience:        "clinics with 5-50 staff",
		KeyDifferentiator:     "two-way SMS",
		TopObjections:         "we already have a system",
		UrgencyFactors:        "lost revenue each week",
		SuccessStory:          "Bright Dental doubled bookings",
		QualificationCriteria: "uses paper calendars",
	}
	kb := businesses.KnowledgeBase{BusinessName: "Acme Health", Industry: "Healthcare IT", ValueProposition: "Fill every slot"}
	_, err = s.Update(ctx, "u1", UpdateRequest{BusinessID: res.Business.ID, KnowledgeBase: &kb, DiscoveryAnswers: &answers})
	require.NoError(t, err)

	v, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Health", v.Business.BusinessName)
	assert.Equal(t, "Healthcare IT", v.Business.Industry)
	assert.Equal(t, answers, v.KnowledgeBase.DiscoveryAnswers)
	assert.Equal(t, res.Business.ID, v.KnowledgeBase.BusinessMetadata.BusinessID)

	raw, err := json.Marshal(v.KnowledgeBase)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	da := m["discoveryAnswers"].(map[string]any)
	assert.Len(t, da, len(businesses.DiscoveryQuestionIDs))

	_, err = s.Update(ctx, "u2", UpdateRequest{BusinessID: res.Business.ID, DiscoveryAnswers: &answers})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Update(ctx, "u1", UpdateRequest{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSuggestList(t *testing.T) {
	gen := &fakeGen{out: "```json\n[\"Dental Clinics\", \" \", \"Orthodontists\"]\n```"}
	s, _ := newTestService(t, gen)
	ctx := context.Background()

	got, err := s.SuggestList(ctx, ListSuggestRequest{Type: SuggestSalesTargets, Location: "Austin, TX"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dental Clinics", "Orthodontists"}, got)
	assert.Contains(t, gen.prompts[0], "Austin, TX")

	gen.out = "Sorry, I can't help."
	got, _ = s.SuggestList(ctx, ListSuggestRequest{Type: SuggestSalesTargets, BusinessContext: businesses.KnowledgeBase{Industry: "Medical devices"}})
	assert.Equal(t, "Weight Loss Clinics", got[0])

	got, _ = s.SuggestList(ctx, ListSuggestRequest{Type: SuggestDecisionMakers, BusinessContext: businesses.KnowledgeBase{Description: "B2B software"}})
	assert.Equal(t, "Chief Technology Officer (CTO)", got[0])

	got, _ = s.SuggestList(ctx, ListSuggestRequest{Type: SuggestSalesTargets, BusinessContext: businesses.KnowledgeBase{Industry: "Financial planning"}})
	assert.Equal(t, "Accounting Firms", got[0])

	gen.err = errors.New("unavailable")
	got, _ = s.SuggestList(ctx, ListSuggestRequest{Type: SuggestDecisionMakers, BusinessContext: businesses.KnowledgeBase{
		TargetDecisionMakers: []businesses.DecisionMaker{{Title: "Office Manager"}},
	}})
	assert.Equal(t, []string{"Office Manager"}, got)

	got, _ = s.SuggestList(ctx, ListSuggestRequest{Type: SuggestSalesTargets})
	assert.Equal(t, "Small Businesses", got[0])

	_, err = s.SuggestList(ctx, ListSuggestRequest{Type: "colors"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSuggestAnswer(t *testing.T) {
	gen := &fakeGen{out: "  Clinics with 3+ providers.  \n"}
	s, _ := newTestService(t, gen)
	ctx := context.Background()

	got, err := s.SuggestAnswer(ctx, AnswerSuggestRequest{
		QuestionID:       "target_audience",
		Question:         "Who is your ideal customer?",
		BusinessAnalysis: json.RawMessage(`{"businessName":"Acme","targetMarkets":["US"]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "Clinics with 3+ providers.", got)
	assert.Contains(t, gen.prompts[0], `Target Markets: ["US"]`)

	_, err = s.SuggestAnswer(ctx, AnswerSuggestRequest{QuestionID: "x", Question: "y"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGenerateScript(t *testing.T) {
	gen := &fakeGen{out: `{"firstMessage":"Hi there","systemPrompt":"Be brief."}`}
	s, _ := newTestService(t, gen)
	ctx := context.Background()
	req := ScriptRequest{
		BusinessData:  &businesses.KnowledgeBase{BusinessName: "Acme", ValueProposition: "Cut No-Shows in half"},
		DecisionMaker: "Practice Manager",
		SalesTargets:  []string{"Dental"},
		Location:      "Austin",
	}

	sc, err := s.GenerateScript(ctx, "u1", req)
	require.NoError(t, err)
	assert.Equal(t, Script{FirstMessage: "Hi there", SystemPrompt: "Be brief."}, sc)

	gen.out = "not json"
	sc, err = s.GenerateScript(ctx, "u1", req)
	require.NoError(t, err)
	assert.Equal(t, "Hi [Name], this is [Your Name] from Acme. I know I'm calling out of the blue, but we help Practice Managers at Dental companies cut no-shows in half. Do you have 30 seconds for me to explain why I called?", sc.FirstMessage)
	assert.Contains(t, sc.SystemPrompt, "You are calling a Practice Manager at a Dental company in Austin.")
	assert.Contains(t, sc.SystemPrompt, "operational efficiency and cost reduction")

	_, err = s.GenerateScript(ctx, "u1", ScriptRequest{DecisionMaker: "CEO"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	gen.err = errors.New("quota")
	_, err = s.GenerateScript(ctx, "u1", req)
	assert.Error(t, err)
}

func TestGenerateScript_PrefersStoredAnalysis(t *testing.T) {
	gen := &fakeGen{out: `{"firstMessage":"a","systemPrompt":"b"}`}
	s, _ := newTestService(t, gen)
	ctx := context.Background()
	res, err := s.Migrate(ctx, "u1", MigrateRequest{Token: "t", Draft: &Draft{
		KnowledgeBase: businesses.KnowledgeBase{BusinessName: "Stored Co", CompetitiveAdvantage: "24/7 support"},
	}})
	require.NoError(t, err)

	_, err = s.GenerateScript(ctx, "u1", ScriptRequest{
		BusinessData:  &businesses.KnowledgeBase{BusinessName: "Posted Co"},
		DecisionMaker: "CEO",
		BusinessID:    res.Business.ID,
	})
	require.NoError(t, err)
	assert.Contains(t, gen.prompts[0], "Stored Co")
	assert.NotContains(t, gen.prompts[0], "Posted Co")
}
