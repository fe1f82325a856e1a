package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/campaigns"
	"leadgen-platform/internal/knowledgebase"
	"leadgen-platform/internal/leads"
	"leadgen-platform/internal/pipeline"
	"leadgen-platform/internal/reporting"
	"leadgen-platform/internal/store"
	"leadgen-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	msgAlreadyRunning  = "Campaign is already running"
	msgAlreadyComplete = "Campaign is already completed"
	msgCallingDisabled = "Campaign does not have calling enabled"
	msgNoEligibleLeads = "No enriched leads with phone numbers found"
)

var badRequest = []error{
	pipeline.ErrInvalidArgument,
	knowledgebase.ErrInvalidArgument,
	billing.ErrInvalidArgument,
	reporting.ErrInvalidRequest,
	campaigns.ErrUnknownStatus,
	leads.ErrUnknownStatus,
}

var conflict = []error{
	campaigns.ErrIllegalTransition,
	leads.ErrIllegalTransition,
	knowledgebase.ErrTokenConflict,
	store.ErrConflict,
}

// fail maps a service error onto a status and a short message. Anything
// unrecognised is logged and answered with internal.
func fail(c *gin.Context, err error, notFound, internal string) {
	var credits *pipeline.InsufficientCreditsError
	switch {
	case errors.As(err, &credits):
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
			"error":    "Insufficient credits",
			"required": credits.Required,
			"balance":  credits.Available,
		})
		return
	case errors.Is(err, billing.ErrInsufficientCredits):
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient credits"})
		return
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msgAlreadyRunning})
		return
	case errors.Is(err, pipeline.ErrAlreadyComplete):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msgAlreadyComplete})
		return
	case errors.Is(err, pipeline.ErrCallingDisabled):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msgCallingDisabled})
		return
	case errors.Is(err, pipeline.ErrNoEligibleLeads):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": msgNoEligibleLeads})
		return
	case errors.Is(err, store.ErrNotFound), errors.Is(err, knowledgebase.ErrDraftNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": detail(err, target)})
			return
		}
	}
	for _, target := range conflict {
		if errors.Is(err, target) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
	}
	logger.FromGin(c).Error(internal, "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": internal})
}

// detail drops the sentinel prefix from "invalid argument: name is required".
func detail(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok && rest != "" {
		return rest
	}
	return msg
}
