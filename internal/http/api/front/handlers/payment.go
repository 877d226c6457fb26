package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gaiya-app/gaiya-cloud/internal/httputil"
	"github.com/gaiya-app/gaiya-cloud/internal/payment"
	"github.com/gaiya-app/gaiya-cloud/internal/ratelimit"
	"github.com/gaiya-app/gaiya-cloud/internal/validate"
	"github.com/gin-gonic/gin"
)

// PaymentHandler serves order creation, polling, and provider callbacks.
type PaymentHandler struct {
	payments *payment.Service
	limiter  *ratelimit.Manager
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(payments *payment.Service, limiter *ratelimit.Manager) *PaymentHandler {
	return &PaymentHandler{payments: payments, limiter: limiter}
}

type createOrderRequest struct {
	UserID   string `json:"user_id"`
	PlanType string `json:"plan_type"`
	PayType  string `json:"pay_type"`
}

// CreateOrder registers an order with the payment provider.
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var body createOrderRequest
	if errBind := httputil.BindBody(c, &body); errBind != nil {
		httputil.SendError(c, httputil.BodyError(errBind), nil)
		return
	}
	if missing := httputil.ValidateRequiredFields(map[string]any{"user_id": body.UserID, "plan_type": body.PlanType}, []string{"user_id", "plan_type"}, nil); missing != nil {
		httputil.SendError(c, missing, nil)
		return
	}
	userID, errUser := validate.UserID(body.UserID)
	if errUser != nil {
		httputil.Fail(c, errUser, nil, "payment-create-order")
		return
	}
	rate, ok := httputil.Limit(c, h.limiter, ratelimit.EndpointCreateOrder, userID)
	if !ok {
		return
	}

	res, errCreate := h.payments.CreateOrder(c.Request.Context(), payment.CreateOrderInput{
		UserID:   userID,
		PlanType: body.PlanType,
		PayType:  body.PayType,
		ClientIP: c.ClientIP(),
	})
	if errCreate != nil {
		httputil.Fail(c, errCreate, rate, "payment-create-order")
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{
		"out_trade_no": res.OutTradeNo,
		"payment_url":  res.PaymentURL,
		"qrcode":       res.QRCode,
		"amount":       res.Amount.StringFixed(2),
		"currency":     res.Currency,
		"plan_name":    res.PlanName,
		"pay_type":     res.PayType,
	}, rate)
}

// CheckOrder answers a client poll. Unknown orders are reported unpaid so
// the client keeps polling.
func (h *PaymentHandler) CheckOrder(c *gin.Context) {
	outTradeNo := strings.TrimSpace(c.Query("out_trade_no"))
	if outTradeNo == "" {
		httputil.SendError(c, httputil.Validation("Missing required field: out_trade_no").With("missing_fields", []string{"out_trade_no"}), nil)
		return
	}
	order, errCheck := h.payments.CheckOrder(c.Request.Context(), outTradeNo)
	if errCheck != nil {
		httputil.Fail(c, errCheck, nil, "payment-check-v2")
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{"order": order}, nil)
}

// Notify is the Z-Pay callback. The plain-text reply tells the provider
// whether to retry.
func (h *PaymentHandler) Notify(c *gin.Context) {
	if errParse := c.Request.ParseForm(); errParse != nil {
		c.String(http.StatusOK, "fail")
		return
	}
	params := make(map[string]string, len(c.Request.Form))
	for key, values := range c.Request.Form {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	if h.payments.HandleZPayNotify(c.Request.Context(), params) {
		c.String(http.StatusOK, "success")
		return
	}
	c.String(http.StatusOK, "fail")
}

// StripeWebhook ingests Stripe events.
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	payload, errRead := io.ReadAll(io.LimitReader(c.Request.Body, httputil.MaxBodyBytes))
	if errRead != nil {
		httputil.SendError(c, httputil.Validation("Unreadable request body"), nil)
		return
	}
	if errHandle := h.payments.HandleStripeWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); errHandle != nil {
		httputil.Fail(c, errHandle, nil, "stripe-webhook")
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{"received": true}, nil)
}
