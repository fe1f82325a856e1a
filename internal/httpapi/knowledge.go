package httpapi

import (
	"net/http"
	"strings"

	"leadgen-platform/internal/knowledgebase"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const (
	kbNotFound    = "No business knowledge base found"
	draftNotFound = "Draft not found or expired"
)

type analyzeRequest struct {
	WebsiteURL string `json:"websiteUrl"`
}

// Analyze builds a knowledge base from a website. Nothing is persisted;
// the client keeps the result in a draft.
func (h Handlers) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.WebsiteURL) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Website URL is required"})
		return
	}
	kb, err := h.Knowledge.Analyze(c.Request.Context(), req.WebsiteURL)
	if err != nil {
		fail(c, err, "", "Failed to analyze website")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "analysis": kb})
}

// --- Drafts ---

func (h Handlers) CreateDraft(c *gin.Context) {
	var in knowledgebase.DraftInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	d, err := h.Knowledge.CreateDraft(c.Request.Context(), in)
	if err != nil {
		fail(c, err, draftNotFound, "Failed to save draft")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "draft": d})
}

func (h Handlers) GetDraft(c *gin.Context) {
	d, err := h.Knowledge.GetDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, draftNotFound, "Failed to load draft")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "draft": d})
}

func (h Handlers) UpdateDraft(c *gin.Context) {
	var in knowledgebase.DraftInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	d, err := h.Knowledge.UpdateDraft(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		fail(c, err, draftNotFound, "Failed to save draft")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "draft": d})
}

// MigrateDraft turns a draft into the caller's business exactly once per
// migration token.
func (h Handlers) MigrateDraft(c *gin.Context) {
	var req knowledgebase.MigrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Knowledge.Migrate(c.Request.Context(), userID(c), req)
	if err != nil {
		fail(c, err, draftNotFound, "Failed to migrate knowledge base")
		return
	}
	status := http.StatusOK
	if res.Migrated {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"success": true, "business": res.Business, "migrated": res.Migrated})
}

// --- Knowledge base ---

func (h Handlers) GetKnowledgeBase(c *gin.Context) {
	v, err := h.Knowledge.Get(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err, kbNotFound, "Failed to fetch knowledge base")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "business": v.Business, "knowledgeBase": v.KnowledgeBase})
}

func (h Handlers) UpdateKnowledgeBase(c *gin.Context) {
	var req knowledgebase.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.BusinessID) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Business ID is required"})
		return
	}
	b, err := h.Knowledge.Update(c.Request.Context(), userID(c), req)
	if err != nil {
		fail(c, err, "Business not found", "Failed to update knowledge base")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "business": b})
}

// --- AI assistance ---

type suggestKind struct {
	Type       string `json:"type"`
	QuestionID string `json:"questionId"`
}

// Suggest serves two shapes: a list request carries type, a discovery
// answer request carries questionId.
func (h Handlers) Suggest(c *gin.Context) {
	var kind suggestKind
	if err := c.ShouldBindBodyWith(&kind, binding.JSON); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if kind.QuestionID != "" {
		var req knowledgebase.AnswerSuggestRequest
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		answer, err := h.Knowledge.SuggestAnswer(c.Request.Context(), req)
		if err != nil {
			fail(c, err, "", "Failed to generate suggestion")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "suggestion": answer})
		return
	}

	var req knowledgebase.ListSuggestRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	list, err := h.Knowledge.SuggestList(c.Request.Context(), req)
	if err != nil {
		fail(c, err, "", "Failed to generate suggestions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "suggestions": list})
}

func (h Handlers) GenerateScript(c *gin.Context) {
	var req knowledgebase.ScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	s, err := h.Knowledge.GenerateScript(c.Request.Context(), userID(c), req)
	if err != nil {
		fail(c, err, "", "Failed to generate script")
		return
	}
	c.JSON(http.StatusOK, s)
}
