// Package admin registers operator routes: health, manual subscription
// upgrades, and account lookup.
package admin

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	handlers "github.com/gaiya-app/gaiya-cloud/internal/http/api/admin/handlers"
	"github.com/gaiya-app/gaiya-cloud/internal/httputil"
	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/gaiya-app/gaiya-cloud/internal/payment"
	"github.com/gaiya-app/gaiya-cloud/internal/subscription"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers health and operator routes. Operator
// routes require the configured bearer token; with no token configured they
// reject every request.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, payments *payment.Service, subs *subscription.Service, operatorToken string, cors *httputil.CORS, now func() time.Time) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	userHandler := handlers.NewUserHandler(db, payments, subs, now)
	authMiddleware := adminAuthMiddleware(operatorToken)

	r.OPTIONS("/api/manual-upgrade-subscription", cors.Preflight(http.MethodPost))
	r.POST("/api/manual-upgrade-subscription", authMiddleware, userHandler.ManualUpgrade)

	authed := r.Group("/v0/admin")
	authed.Use(authMiddleware)
	authed.GET("/users/:id", userHandler.Get)
}

// adminAuthMiddleware compares the bearer token in constant time.
func adminAuthMiddleware(operatorToken string) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(operatorToken))
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || token == authHeader {
			httputil.SendError(c, httputil.Unauthorized(""), nil)
			return
		}
		token = strings.TrimSpace(token)
		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			logging.Module("admin").WithFields(logging.Fields(logging.IP(c.ClientIP()))).
				WithField("path", c.Request.URL.Path).
				Warn("operator request with invalid token")
			httputil.SendError(c, httputil.Unauthorized(""), nil)
			return
		}
		c.Next()
	}
}
