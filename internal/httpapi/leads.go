package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"leadgen-platform/internal/calls"
	"leadgen-platform/internal/leads"
	"leadgen-platform/internal/pricing"
	"leadgen-platform/internal/reporting"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// leadBatch is the body of /leads/enrich and /calls/initiate.
type leadBatch struct {
	LeadIDs    []string `json:"leadIds"`
	CampaignID string   `json:"campaignId"`
}

const msgBatchFields = "Lead IDs and campaign ID are required"

// bindBatch reads the body so both the credit pre-check and the handler
// can see it.
func bindBatch(c *gin.Context) (leadBatch, error) {
	var b leadBatch
	if err := c.ShouldBindBodyWith(&b, binding.JSON); err != nil {
		return leadBatch{}, errors.New("invalid json")
	}
	if len(b.LeadIDs) == 0 || strings.TrimSpace(b.CampaignID) == "" {
		return leadBatch{}, errors.New(msgBatchFields)
	}
	return b, nil
}

func (h Handlers) batchEstimate(e pricing.Event) func(*gin.Context) (int64, error) {
	return func(c *gin.Context) (int64, error) {
		b, err := bindBatch(c)
		if err != nil {
			return 0, err
		}
		return h.Billing.Estimate(e, len(b.LeadIDs))
	}
}

// paging reads limit and offset; bad values fall back to the defaults.
func paging(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	return limit, offset
}

func (h Handlers) ListLeads(c *gin.Context) {
	f := leads.ListFilter{UserID: userID(c), CampaignID: c.Query("campaignId")}
	f.Limit, f.Offset = paging(c)
	if v := c.Query("status"); v != "" {
		st, err := leads.ParseStatus(v)
		if err != nil {
			fail(c, err, "", "Failed to fetch leads")
			return
		}
		f.Status = st
	}
	list, err := h.Store.ListLeads(c.Request.Context(), f.Normalize())
	if err != nil {
		fail(c, err, "", "Failed to fetch leads")
		return
	}
	if list == nil {
		list = []leads.Lead{}
	}
	c.JSON(http.StatusOK, gin.H{"leads": list})
}

func (h Handlers) EnrichLeads(c *gin.Context) {
	b, err := bindBatch(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.Pipeline.Enrich(c.Request.Context(), userID(c), b.CampaignID, b.LeadIDs)
	if err != nil {
		fail(c, err, "No leads found", "Failed to enrich leads")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) InitiateCalls(c *gin.Context) {
	b, err := bindBatch(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.Pipeline.InitiateCalls(c.Request.Context(), userID(c), b.CampaignID, b.LeadIDs)
	if err != nil {
		fail(c, err, campaignNotFound, "Failed to initiate calls")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) ListCalls(c *gin.Context) {
	f := calls.ListFilter{
		UserID:     userID(c),
		CampaignID: c.Query("campaignId"),
		LeadID:     c.Query("leadId"),
		Outcome:    calls.Outcome(c.Query("outcome")),
	}
	f.Limit, f.Offset = paging(c)
	list, err := h.Store.ListCallLogs(c.Request.Context(), f)
	if err != nil {
		fail(c, err, "", "Failed to fetch call logs")
		return
	}
	if list == nil {
		list = []calls.CallLog{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": list})
}

// CallsSummary aggregates the caller's calls. from/to are RFC 3339.
func (h Handlers) CallsSummary(c *gin.Context) {
	req := reporting.CallsSummaryRequest{UserID: userID(c), CampaignID: c.Query("campaignId")}
	var err error
	if req.Range.From, err = queryTime(c, "from"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
		return
	}
	if req.Range.To, err = queryTime(c, "to"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
		return
	}
	if req.CampaignID != "" {
		if _, err := h.Pipeline.GetCampaign(c.Request.Context(), req.UserID, req.CampaignID); err != nil {
			fail(c, err, campaignNotFound, "Failed to summarize calls")
			return
		}
	}
	sum, err := h.Reporting.CallsSummary(c.Request.Context(), req)
	if err != nil {
		fail(c, err, "", "Failed to summarize calls")
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": sum})
}

func queryTime(c *gin.Context, key string) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
