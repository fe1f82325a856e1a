package httpapi

import (
	"errors"
	"net/http"

	"leadgen-platform/internal/campaigns"
	"leadgen-platform/internal/pipeline"
	"leadgen-platform/internal/store"

	"github.com/gin-gonic/gin"
)

const campaignNotFound = "Campaign not found"

func (h Handlers) ListCampaigns(c *gin.Context) {
	f := campaigns.ListFilter{UserID: userID(c), BusinessID: c.Query("businessId")}
	if v := c.Query("status"); v != "" {
		st, err := campaigns.ParseStatus(v)
		if err != nil {
			fail(c, err, "", "Failed to fetch campaigns")
			return
		}
		f.Status = st
	}
	list, err := h.Pipeline.ListCampaigns(c.Request.Context(), f)
	if err != nil {
		fail(c, err, "", "Failed to fetch campaigns")
		return
	}
	if list == nil {
		list = []campaigns.Campaign{}
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": list})
}

func (h Handlers) CreateCampaign(c *gin.Context) {
	var req pipeline.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	camp, err := h.Pipeline.CreateCampaign(c.Request.Context(), userID(c), req)
	if err != nil {
		fail(c, err, "Business not found", "Failed to create campaign")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "campaign": camp})
}

func (h Handlers) GetCampaign(c *gin.Context) {
	camp, err := h.Pipeline.GetCampaign(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		fail(c, err, campaignNotFound, "Failed to fetch campaign")
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": camp})
}

// scrapeEstimate prices the rest of the campaign's quota for RequireCredits.
// A missing campaign costs nothing here so the handler can answer 404.
func (h Handlers) scrapeEstimate(c *gin.Context) (int64, error) {
	need, err := h.Pipeline.ScrapeEstimate(c.Request.Context(), userID(c), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	return need, err
}

// ScrapeCampaign runs the scrape phase synchronously and reports how many
// leads the campaign holds afterwards.
func (h Handlers) ScrapeCampaign(c *gin.Context) {
	res, err := h.Pipeline.Scrape(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		fail(c, err, campaignNotFound, "Failed to scrape leads")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) ResetCampaign(c *gin.Context) {
	actor := pipeline.Actor{UserID: userID(c), Role: c.GetString("role"), IP: c.ClientIP()}
	camp, err := h.Pipeline.ResetCampaign(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		fail(c, err, campaignNotFound, "Failed to reset campaign")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "campaign": camp})
}

func (h Handlers) CampaignMetrics(c *gin.Context) {
	m, err := h.Reporting.ConversionMetrics(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		fail(c, err, campaignNotFound, "Failed to compute campaign metrics")
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": m})
}

// ScrapeBusinessLeads is the one-off Google Maps search outside a campaign.
func (h Handlers) ScrapeBusinessLeads(c *gin.Context) {
	var req pipeline.AdHocRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Pipeline.AdHocScrape(c.Request.Context(), userID(c), req)
	if err != nil {
		fail(c, err, "", "Failed to scrape leads")
		return
	}
	c.JSON(http.StatusOK, res)
}
