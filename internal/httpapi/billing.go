package httpapi

import (
	"fmt"
	"net/http"

	"leadgen-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

type addCreditsRequest struct {
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotencyKey"`
	// UserID lets an admin credit another account.
	UserID string `json:"userId,omitempty"`
}

// AddCredits increments the balance. Repeating a request with the same
// idempotency key credits once.
func (h Handlers) AddCredits(c *gin.Context) {
	var req addCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Amount <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
		return
	}

	role := c.GetString("role")
	target := userID(c)
	if req.UserID != "" && req.UserID != target {
		if !rbac.IsAdmin(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		target = req.UserID
	}

	_, acct, err := h.Billing.TopUp(c.Request.Context(), target, req.Amount, req.IdempotencyKey)
	if err != nil {
		fail(c, err, "Account not found", "Failed to add credits")
		return
	}
	h.Audit.LogTopUp(c.Request.Context(), target, role, c.ClientIP(), req.Amount, acct.Credits)

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"credits_added": req.Amount,
		"total_credits": acct.Credits,
		"message":       fmt.Sprintf("Successfully added %d credits", req.Amount),
	})
}

func (h Handlers) Usage(c *gin.Context) {
	u, err := h.Billing.Usage(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err, "Account not found", "Failed to fetch usage")
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": u})
}
