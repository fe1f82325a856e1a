package httpapi

import (
	"leadgen-platform/internal/auth"
	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/metrics"
	"leadgen-platform/internal/pricing"
	"leadgen-platform/internal/rbac"
	"leadgen-platform/internal/webhook"

	"github.com/gin-gonic/gin"
)

// Register wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func Register(r gin.IRouter, h Handlers) {
	// public
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", metrics.Handler())

	// Provider webhook, guarded by the shared secret instead of a token.
	r.POST("/vapi/webhook", webhook.Handler(h.Webhook, h.WebhookSecret))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/token", h.IssueToken)
		authGroup.POST("/refresh", h.RefreshToken)
	}

	// Onboarding runs before sign-up: analysis and drafts are anonymous.
	r.POST("/analyze", auth.OptionalAccessToken(h.Auth), h.Analyze)
	drafts := r.Group("/knowledge-base/drafts")
	{
		drafts.POST("", h.CreateDraft)
		drafts.GET("/:id", h.GetDraft)
		drafts.PUT("/:id", h.UpdateDraft)
	}

	// protected
	user := r.Group("")
	user.Use(auth.RequireAccessToken(h.Auth), rbac.RequireUser(), h.EnsureUser())
	{
		user.POST("/knowledge-base/migrate", h.MigrateDraft)
		user.GET("/knowledge-base", h.GetKnowledgeBase)
		user.PUT("/knowledge-base", h.UpdateKnowledgeBase)
		user.POST("/ai-suggest", h.Suggest)
		user.POST("/generate-script", h.GenerateScript)

		campaigns := user.Group("/campaigns")
		{
			campaigns.GET("", h.ListCampaigns)
			campaigns.POST("", h.CreateCampaign)
			campaigns.GET("/:id", h.GetCampaign)
			campaigns.POST("/:id/scrape", billing.RequireCredits(h.Billing, h.scrapeEstimate), h.ScrapeCampaign)
			campaigns.POST("/:id/reset", h.ResetCampaign)
			campaigns.GET("/:id/metrics", h.CampaignMetrics)
		}

		user.GET("/leads", h.ListLeads)
		user.POST("/leads/enrich", billing.RequireCredits(h.Billing, h.batchEstimate(pricing.EventLeadEnriched)), h.EnrichLeads)

		callsGroup := user.Group("/calls")
		{
			callsGroup.GET("", h.ListCalls)
			callsGroup.GET("/summary", h.CallsSummary)
			callsGroup.POST("/initiate", billing.RequireCredits(h.Billing, h.batchEstimate(pricing.EventLeadCalled)), h.InitiateCalls)
		}

		user.POST("/credits/add", rbac.AdminUnless(h.OpenTopUp), h.AddCredits)
		user.GET("/billing/usage", h.Usage)
		user.POST("/scrape-business-leads", h.ScrapeBusinessLeads)
	}
}
