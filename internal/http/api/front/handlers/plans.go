package handlers

import (
	"net/http"

	"github.com/gaiya-app/gaiya-cloud/internal/httputil"
	"github.com/gaiya-app/gaiya-cloud/internal/subscription"
	"github.com/gin-gonic/gin"
)

// PlanFrontHandler serves the plan catalog.
type PlanFrontHandler struct {
	catalog *subscription.Catalog
}

// NewPlanFrontHandler constructs a PlanFrontHandler.
func NewPlanFrontHandler(catalog *subscription.Catalog) *PlanFrontHandler {
	return &PlanFrontHandler{catalog: catalog}
}

// List returns the purchasable plans, cheapest first.
func (h *PlanFrontHandler) List(c *gin.Context) {
	plans := h.catalog.List()
	out := make([]gin.H, 0, len(plans))
	for _, plan := range plans {
		out = append(out, gin.H{
			"id":            plan.ID,
			"name":          plan.Name,
			"tier":          plan.Tier,
			"duration_days": plan.DurationDays,
			"price":         plan.Price.StringFixed(2),
			"currency":      plan.Currency,
		})
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{"plans": out}, nil)
}
