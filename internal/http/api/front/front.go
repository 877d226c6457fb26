// Package front registers the public /api routes used by the client app.
package front

import (
	"net/http"

	"github.com/gaiya-app/gaiya-cloud/internal/aiproxy"
	"github.com/gaiya-app/gaiya-cloud/internal/auth"
	handlers "github.com/gaiya-app/gaiya-cloud/internal/http/api/front/handlers"
	"github.com/gaiya-app/gaiya-cloud/internal/httputil"
	"github.com/gaiya-app/gaiya-cloud/internal/payment"
	"github.com/gaiya-app/gaiya-cloud/internal/quota"
	"github.com/gaiya-app/gaiya-cloud/internal/ratelimit"
	"github.com/gaiya-app/gaiya-cloud/internal/subscription"
	"github.com/gin-gonic/gin"
)

// Services are the domain services behind the front routes.
type Services struct {
	Auth     *auth.Service
	Payments *payment.Service
	Catalog  *subscription.Catalog
	Quota    *quota.Service
	AI       *aiproxy.Service
	Limiter  *ratelimit.Manager
}

// RegisterFrontRoutes registers the /api routes. Every POST route also
// answers its CORS preflight.
func RegisterFrontRoutes(r *gin.Engine, svc Services, cors *httputil.CORS) {
	if r == nil {
		return
	}
	api := r.Group("/api")
	post := func(path string, h gin.HandlerFunc) {
		api.POST(path, h)
		api.OPTIONS(path, cors.Preflight(http.MethodPost))
	}
	get := func(path string, h gin.HandlerFunc) {
		api.GET(path, h)
		api.OPTIONS(path, cors.Preflight(http.MethodGet))
	}

	authHandler := handlers.NewAuthHandler(svc.Auth, svc.Limiter)
	post("/auth-signup", authHandler.Signup)
	post("/auth-signin", authHandler.Signin)
	post("/auth-update-password", authHandler.UpdatePassword)
	post("/auth-reset-password", authHandler.ResetPassword)
	post("/auth-send-otp", authHandler.SendOTP)
	post("/auth-verify-otp", authHandler.VerifyOTP)
	api.GET("/auth-confirm-email", authHandler.ConfirmEmail)
	get("/auth-verification-status", authHandler.VerificationStatus)

	paymentHandler := handlers.NewPaymentHandler(svc.Payments, svc.Limiter)
	post("/payment-create-order", paymentHandler.CreateOrder)
	get("/payment-check-v2", paymentHandler.CheckOrder)
	api.GET("/payment-notify", paymentHandler.Notify)
	api.POST("/payment-notify", paymentHandler.Notify)
	api.POST("/stripe-webhook", paymentHandler.StripeWebhook)

	planHandler := handlers.NewPlanFrontHandler(svc.Catalog)
	get("/plans", planHandler.List)

	quotaHandler := handlers.NewQuotaHandler(svc.Quota)
	get("/quota-status", quotaHandler.Status)

	aiHandler := handlers.NewAIHandler(svc.AI, svc.Limiter)
	post("/plan-tasks", aiHandler.PlanTasks)
	post("/generate-weekly-report", aiHandler.WeeklyReport)
	post("/chat-query", aiHandler.ChatQuery)
	post("/generate-theme", aiHandler.GenerateTheme)
}
