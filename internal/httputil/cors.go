package httputil

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const defaultAllowHeaders = "Content-Type, Authorization"

// CORS resolves the Access-Control-Allow-Origin value for a request.
type CORS struct {
	allowed       map[string]struct{}
	defaultOrigin string
}

// NewCORS builds a resolver. An empty defaultOrigin falls back to the first
// allowed origin.
func NewCORS(allowedOrigins []string, defaultOrigin string) *CORS {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		allowed[origin] = struct{}{}
		if defaultOrigin == "" {
			defaultOrigin = origin
		}
	}
	return &CORS{allowed: allowed, defaultOrigin: strings.TrimRight(strings.TrimSpace(defaultOrigin), "/")}
}

// ResolveOrigin echoes origin when it is allowed and returns the default
// origin otherwise.
func (c *CORS) ResolveOrigin(origin string) string {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if _, ok := c.allowed[origin]; ok && origin != "" {
		return origin
	}
	if _, wildcard := c.allowed["*"]; wildcard && origin != "" {
		return origin
	}
	return c.defaultOrigin
}

// Middleware sets the allow-origin header on every response.
func (c *CORS) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if origin := c.ResolveOrigin(ctx.GetHeader("Origin")); origin != "" {
			h := ctx.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		ctx.Next()
	}
}

// Preflight answers OPTIONS for one endpoint with its own method list.
func (c *CORS) Preflight(methods ...string) gin.HandlerFunc {
	allow := strings.Join(append(append([]string{}, methods...), http.MethodOptions), ", ")
	return func(ctx *gin.Context) {
		h := ctx.Writer.Header()
		h.Set("Access-Control-Allow-Methods", allow)
		h.Set("Access-Control-Allow-Headers", defaultAllowHeaders)
		h.Set("Access-Control-Max-Age", "86400")
		ctx.AbortWithStatus(http.StatusNoContent)
	}
}
