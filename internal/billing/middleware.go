package billing

import (
	"context"
	"errors"
	"net/http"

	"leadgen-platform/internal/auth"
	"leadgen-platform/internal/rbac"
	"leadgen-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// BalanceReader is the minimal billing interface needed by middleware.
type BalanceReader interface {
	Balance(ctx context.Context, userID string) (Account, error)
}

// Estimator returns the credits a request is expected to cost. A returned
// error aborts with 400; handlers re-validate the same input.
type Estimator func(c *gin.Context) (int64, error)

// RequireCredits blocks the request with 402 if the balance is below the
// estimated cost. It is a fast pre-check only: the charge itself is
// enforced again under the account row lock.
//
// Admin override: admin bypasses.
func RequireCredits(svc BalanceReader, estimate Estimator) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := auth.Role(c.Request.Context())
		if rbac.IsAdmin(role) {
			c.Next()
			return
		}

		userID, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		need, err := estimate(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if need <= 0 {
			c.Next()
			return
		}

		acct, err := svc.Balance(c.Request.Context(), userID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			logger.FromGin(c).Error("balance lookup failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
			return
		}
		if acct.Credits < need {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":    "Insufficient credits",
				"required": need,
				"balance":  acct.Credits,
			})
			return
		}
		c.Next()
	}
}
