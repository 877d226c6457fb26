package httputil

import (
	"errors"
	"net/http"

	"github.com/gaiya-app/gaiya-cloud/internal/aiproxy"
	"github.com/gaiya-app/gaiya-cloud/internal/auth"
	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/gaiya-app/gaiya-cloud/internal/payment"
	"github.com/gaiya-app/gaiya-cloud/internal/quota"
	"github.com/gaiya-app/gaiya-cloud/internal/ratelimit"
	"github.com/gaiya-app/gaiya-cloud/internal/subscription"
	"github.com/gaiya-app/gaiya-cloud/internal/validate"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ErrorFor maps a service error onto its wire form. Upstream errors get a
// fresh correlation id. It returns nil for errors with no client-facing
// meaning.
func ErrorFor(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var vErr *validate.Error
	if errors.As(err, &vErr) {
		out := Validation(vErr.Message).With("reason", vErr.Reason)
		if vErr.Field != "" {
			out = out.With("field", vErr.Field)
		}
		return out
	}
	var quotaErr *aiproxy.QuotaExceededError
	if errors.As(err, &quotaErr) {
		return &APIError{
			Kind:    KindRateLimited,
			Status:  http.StatusTooManyRequests,
			Message: "Daily quota exceeded",
			Details: map[string]any{
				"feature":    quotaErr.Feature,
				"remaining":  0,
				"limit":      quotaErr.Info.Limit,
				"user_tier":  quotaErr.Info.UserTier,
				"reset_at":   quotaErr.Info.ResetAt,
				"quota_info": quotaErr.Info,
			},
		}
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return Unauthorized("Invalid email or password")
	case errors.Is(err, auth.ErrUnauthorized):
		return Unauthorized("")
	case errors.Is(err, auth.ErrDuplicateEmail):
		return Conflict("Email already registered")
	case errors.Is(err, auth.ErrInvalidConfirmation):
		return Validation("Invalid or expired confirmation link")
	case errors.Is(err, payment.ErrUserNotFound), errors.Is(err, subscription.ErrUserNotFound):
		return NotFound("User not found")
	case errors.Is(err, payment.ErrOrderOwnedByOtherUser):
		return Conflict("Order already settled for another account")
	case errors.Is(err, subscription.ErrDowngradeRejected):
		return Conflict("Lifetime subscription cannot be replaced by a shorter plan")
	case errors.Is(err, payment.ErrInvalidSignature):
		return Validation("Invalid signature")
	case errors.Is(err, quota.ErrUnknownFeature):
		return Validation("Unknown feature")
	case errors.Is(err, quota.ErrQuotaExceeded):
		return &APIError{Kind: KindRateLimited, Status: http.StatusTooManyRequests, Message: "Daily quota exceeded"}
	case errors.Is(err, payment.ErrProviderUnavailable):
		return Unavailable("Payment provider is not configured")
	case errors.Is(err, aiproxy.ErrNotConfigured):
		return Unavailable("AI service is not configured")
	case errors.Is(err, payment.ErrUpstreamTimeout), errors.Is(err, aiproxy.ErrUpstreamTimeout):
		return UpstreamTimeout(uuid.NewString())
	case errors.Is(err, payment.ErrUpstream), errors.Is(err, aiproxy.ErrUpstream), errors.Is(err, aiproxy.ErrMalformedContent):
		return Upstream(uuid.NewString())
	}
	return nil
}

// Fail writes err in the error envelope. Unmapped errors become a generic
// 500; upstream failures are logged with their correlation id.
func Fail(c *gin.Context, err error, rate *ratelimit.Result, context string) {
	FailWith(c, err, nil, rate, context)
}

// FailWith is Fail with extra fields merged into a mapped error.
func FailWith(c *gin.Context, err error, details gin.H, rate *ratelimit.Result, context string) {
	apiErr := ErrorFor(err)
	if apiErr == nil {
		SetRateLimitHeaders(c, rate)
		HandleInternalError(c, err, context)
		return
	}
	for k, v := range details {
		apiErr = apiErr.With(k, v)
	}
	if apiErr.Kind == KindUpstream || apiErr.Kind == KindUpstreamTimeout {
		logging.Module("http").WithError(err).
			WithField("context", context).
			WithField("correlation_id", apiErr.Details["correlation_id"]).
			Error("upstream call failed")
	}
	SendError(c, apiErr, rate)
}

// Limit checks endpoint for identifier and writes the 429 when denied.
func Limit(c *gin.Context, limiter *ratelimit.Manager, endpoint, identifier string) (*ratelimit.Result, bool) {
	res := limiter.Check(c.Request.Context(), endpoint, identifier)
	if !res.Allowed {
		SendRateLimited(c, res)
		return &res, false
	}
	return &res, true
}
