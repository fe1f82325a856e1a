package httpapi

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"leadgen-platform/internal/audit"
	"leadgen-platform/internal/auth"
	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/knowledgebase"
	"leadgen-platform/internal/pipeline"
	"leadgen-platform/internal/rbac"
	"leadgen-platform/internal/reporting"
	"leadgen-platform/internal/store"
	"leadgen-platform/internal/webhook"
	"leadgen-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Store     store.Store
	Billing   *billing.Service
	Pipeline  *pipeline.Service
	Knowledge *knowledgebase.Service
	Reporting *reporting.Service
	Audit     *audit.Service

	Webhook       *webhook.Processor
	WebhookSecret string

	// Ready is checked by /readyz, keyed by dependency name.
	Ready map[string]func(ctx context.Context) error

	// IssueTokens enables POST /auth/token. Local and dev only.
	IssueTokens bool
	// OpenTopUp lets any signed-in user add credits to their own account.
	OpenTopUp bool

	Clock func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}

// --- Health ---

func (h Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.Ready))
	for name := range h.Ready {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := gin.H{}
	ok := true
	for _, name := range names {
		if err := h.Ready[name](ctx); err != nil {
			logger.FromGin(c).Warn("readiness check failed", "dependency", name, "err", err)
			checks[name] = "down"
			ok = false
			continue
		}
		checks[name] = "up"
	}
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

// --- Auth ---

type tokenRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// IssueToken signs a token pair for any user id.
//
// NOTE: local/dev only. Production identities come from the external
// auth provider, which signs tokens with the shared secret.
func (h Handlers) IssueToken(c *gin.Context) {
	if !h.IssueTokens {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	if req.Role == "" {
		req.Role = rbac.RoleUser
	}
	if !rbac.IsKnownRole(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), req.UserID, req.Email, req.Role)
	if err != nil {
		logger.FromGin(c).Error("token issuance failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h Handlers) RefreshToken(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	pair, err := h.Auth.Refresh(req.RefreshToken, h.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// EnsureUser creates the caller's user row on first contact so ledger
// writes always have an account to lock.
func (h Handlers) EnsureUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if err := h.Store.EnsureUser(c.Request.Context(), uid, auth.Email(c.Request.Context()), h.now()); err != nil {
			logger.FromGin(c).Error("ensure user failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
			return
		}
		c.Next()
	}
}

// userID is only called behind RequireAccessToken.
func userID(c *gin.Context) string {
	uid, _ := auth.UserID(c.Request.Context())
	return uid
}
