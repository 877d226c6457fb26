package handlers

import (
	"net/http"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/auth"
	"github.com/gaiya-app/gaiya-cloud/internal/db"
	"github.com/gaiya-app/gaiya-cloud/internal/httputil"
	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"github.com/gaiya-app/gaiya-cloud/internal/payment"
	"github.com/gaiya-app/gaiya-cloud/internal/subscription"
	"github.com/gaiya-app/gaiya-cloud/internal/validate"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// UserHandler serves operator endpoints for user accounts.
type UserHandler struct {
	db       *gorm.DB
	payments *payment.Service
	subs     *subscription.Service
	now      func() time.Time
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(conn *gorm.DB, payments *payment.Service, subs *subscription.Service, now func() time.Time) *UserHandler {
	if now == nil {
		now = time.Now
	}
	return &UserHandler{db: conn, payments: payments, subs: subs, now: now}
}

// manualUpgradeRequest identifies an order whose webhook never arrived.
type manualUpgradeRequest struct {
	UserID     string `json:"user_id"`
	PlanType   string `json:"plan_type"`
	OutTradeNo string `json:"out_trade_no"`
}

// ManualUpgrade settles an order by hand.
func (h *UserHandler) ManualUpgrade(c *gin.Context) {
	var body manualUpgradeRequest
	if errBind := httputil.BindBody(c, &body); errBind != nil {
		httputil.SendError(c, httputil.BodyError(errBind), nil)
		return
	}
	fields := map[string]any{"user_id": body.UserID, "plan_type": body.PlanType, "out_trade_no": body.OutTradeNo}
	if missing := httputil.ValidateRequiredFields(fields, []string{"user_id", "plan_type", "out_trade_no"}, nil); missing != nil {
		httputil.SendError(c, missing, nil)
		return
	}

	res, errUpgrade := h.payments.ManualUpgrade(c.Request.Context(), payment.ManualUpgradeInput{
		UserID:     body.UserID,
		PlanType:   body.PlanType,
		OutTradeNo: body.OutTradeNo,
	})
	if errUpgrade != nil {
		httputil.Fail(c, errUpgrade, nil, "manual-upgrade-subscription")
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{
		"user_tier":               res.UserTier,
		"subscription_expires_at": res.SubscriptionExpiresAt,
		"already_applied":         res.Duplicate,
	}, nil)
}

// Get returns an account with its current subscription and payments.
func (h *UserHandler) Get(c *gin.Context) {
	userID, errUser := validate.UserID(c.Param("id"))
	if errUser != nil {
		httputil.Fail(c, errUser, nil, "admin-user-get")
		return
	}
	ctx := c.Request.Context()

	var user models.User
	if errFind := h.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; errFind != nil {
		if db.IsNotFound(errFind) {
			httputil.SendError(c, httputil.NotFound("User not found"), nil)
			return
		}
		httputil.HandleInternalError(c, errFind, "admin-user-get")
		return
	}
	current, errCurrent := h.subs.Current(ctx, h.db, userID)
	if errCurrent != nil {
		httputil.HandleInternalError(c, errCurrent, "admin-user-get")
		return
	}
	var payments []models.Payment
	if errPayments := h.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(50).
		Find(&payments).Error; errPayments != nil {
		httputil.HandleInternalError(c, errPayments, "admin-user-get")
		return
	}

	out := make([]gin.H, 0, len(payments))
	for _, p := range payments {
		out = append(out, gin.H{
			"id":           p.ID,
			"provider":     p.Provider,
			"order_id":     p.OrderID,
			"trade_no":     p.ProviderTradeNo,
			"pay_type":     p.PayType,
			"amount":       p.Amount.StringFixed(2),
			"currency":     p.Currency,
			"plan_type":    p.PlanType,
			"status":       p.Status,
			"completed_at": p.CompletedAt,
		})
	}
	var sub gin.H
	if current != nil {
		sub = gin.H{
			"plan_type":  current.PlanType,
			"tier":       current.Tier,
			"payment_id": current.PaymentID,
			"started_at": current.StartedAt,
			"expires_at": current.ExpiresAt,
		}
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{
		"user":         auth.NewUserView(&user, h.now()),
		"stored_tier":  user.Tier,
		"is_active":    user.IsActive,
		"subscription": sub,
		"payments":     out,
	}, nil)
}

// HealthHandler reports storage reachability.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(conn *gorm.DB) *HealthHandler {
	return &HealthHandler{db: conn}
}

// Healthz pings the database.
func (h *HealthHandler) Healthz(c *gin.Context) {
	sqlDB, errDB := h.db.DB()
	if errDB == nil {
		errDB = sqlDB.PingContext(c.Request.Context())
	}
	if errDB != nil {
		logging.Module("http").WithError(errDB).Error("health check: database unreachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
