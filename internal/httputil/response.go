package httputil

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/gaiya-app/gaiya-cloud/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// SetRateLimitHeaders writes the X-RateLimit-* headers of an enforced
// result, and Retry-After when it was denied.
func SetRateLimitHeaders(c *gin.Context, rate *ratelimit.Result) {
	if rate == nil || !rate.Enforced() {
		return
	}
	h := c.Writer.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(rate.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(rate.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(rate.Reset.Unix(), 10))
	if !rate.Allowed {
		h.Set("Retry-After", strconv.FormatInt(retryAfterSeconds(rate.RetryAfter), 10))
	}
}

// SendSuccess writes {"success": true, ...payload}.
func SendSuccess(c *gin.Context, status int, payload gin.H, rate *ratelimit.Result) {
	SetRateLimitHeaders(c, rate)
	body := gin.H{}
	for k, v := range payload {
		body[k] = v
	}
	body["success"] = true
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, body)
}

// SendError writes {"success": false, "error": message, ...details}.
func SendError(c *gin.Context, apiErr *APIError, rate *ratelimit.Result) {
	if apiErr == nil {
		apiErr = Internal()
	}
	SetRateLimitHeaders(c, rate)
	body := gin.H{}
	for k, v := range apiErr.Details {
		body[k] = v
	}
	body["success"] = false
	body["error"] = apiErr.Message
	c.AbortWithStatusJSON(apiErr.Status, body)
}

// SendRateLimited writes the 429 for a denied rate limit check.
func SendRateLimited(c *gin.Context, rate ratelimit.Result) {
	SendError(c, RateLimited().With("retry_after", retryAfterSeconds(rate.RetryAfter)), &rate)
}

func retryAfterSeconds(d time.Duration) int64 {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// ValidateRequiredFields reports the fields of data that are missing or
// blank, named by displayNames when given.
func ValidateRequiredFields(data map[string]any, fields []string, displayNames map[string]string) *APIError {
	var missing []string
	for _, field := range fields {
		v, ok := data[field]
		if !ok || v == nil {
			missing = append(missing, field)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for _, field := range missing {
		if name, ok := displayNames[field]; ok && name != "" {
			names = append(names, name)
			continue
		}
		names = append(names, field)
	}
	message := fmt.Sprintf("Missing required field: %s", names[0])
	if len(names) > 1 {
		message = fmt.Sprintf("Missing required fields: %s", strings.Join(names, ", "))
	}
	return Validation(message).With("missing_fields", missing)
}

// HandleInternalError logs err with its context and writes a generic 500.
func HandleInternalError(c *gin.Context, err error, context string) {
	logging.Module("http").WithError(err).
		WithField("context", context).
		WithField("path", c.Request.URL.Path).
		Error("internal error")
	SendError(c, Internal(), nil)
}
