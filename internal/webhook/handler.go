package webhook

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"leadgen-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	SecretHeader = "X-Vapi-Secret"
	maxBodyBytes = 1 << 20
)

// Handler returns the gin handler for POST /vapi/webhook. An empty secret
// disables the shared-secret check.
func Handler(p *Processor, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret != "" {
			got := c.GetHeader(SecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				return
			}
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid body"})
			return
		}

		res, err := p.Process(c.Request.Context(), body)
		switch {
		case errors.Is(err, ErrMalformed):
			logger.FromGin(c).Warn("malformed vapi webhook", "err", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
			return
		case err != nil:
			logger.FromGin(c).Error("vapi webhook failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
			return
		}

		out := gin.H{"success": true}
		if res.Duplicate {
			out["duplicate"] = true
		}
		if res.FunctionResult != "" {
			out["result"] = res.FunctionResult
		}
		c.JSON(http.StatusOK, out)
	}
}
