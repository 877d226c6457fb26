package handlers

import (
	"net/http"

	"github.com/gaiya-app/gaiya-cloud/internal/httputil"
	"github.com/gaiya-app/gaiya-cloud/internal/quota"
	"github.com/gaiya-app/gaiya-cloud/internal/validate"
	"github.com/gin-gonic/gin"
)

// QuotaHandler reports daily AI usage.
type QuotaHandler struct {
	quota *quota.Service
}

// NewQuotaHandler constructs a QuotaHandler.
func NewQuotaHandler(q *quota.Service) *QuotaHandler {
	return &QuotaHandler{quota: q}
}

// Status returns today's usage and remaining allowance per feature.
func (h *QuotaHandler) Status(c *gin.Context) {
	userID, errUser := validate.UserID(c.Query("user_id"))
	if errUser != nil {
		httputil.Fail(c, errUser, nil, "quota-status")
		return
	}
	ctx := c.Request.Context()
	tier := h.quota.ResolveTier(ctx, userID, c.Query("user_tier"))
	status, errStatus := h.quota.Status(ctx, userID, tier)
	if errStatus != nil {
		httputil.Fail(c, errStatus, nil, "quota-status")
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{
		"user_id":   status.UserID,
		"user_tier": status.UserTier,
		"date":      status.Date,
		"usage":     status.Usage,
		"limits":    status.Limits,
		"remaining": status.Remaining,
		"reset_at":  status.ResetAt,
	}, nil)
}
