package ratelimit

import "time"

// Rate-limited endpoints.
const (
	EndpointSignup         = "auth-signup"
	EndpointSignin         = "auth-signin"
	EndpointSendOTP        = "auth-send-otp"
	EndpointVerifyOTP      = "auth-verify-otp"
	EndpointResetPassword  = "auth-reset-password"
	EndpointUpdatePassword = "auth-update-password"
	EndpointCreateOrder    = "payment-create-order"
	EndpointPlanTasks      = "plan-tasks"
	EndpointWeeklyReport   = "generate-weekly-report"
	EndpointChatQuery      = "chat-query"
	EndpointGenerateTheme  = "generate-theme"
)

// DefaultRules returns the built-in rule table keyed by endpoint.
func DefaultRules() map[string]Rule {
	const day = 24 * time.Hour
	rules := []Rule{
		{Endpoint: EndpointSignin, Max: 5, Window: time.Minute, Kind: KindIP},
		{Endpoint: EndpointSignup, Max: 3, Window: 5 * time.Minute, Kind: KindIP},
		{Endpoint: EndpointSendOTP, Max: 3, Window: time.Hour, Kind: KindEmail},
		{Endpoint: EndpointVerifyOTP, Max: 5, Window: 5 * time.Minute, Kind: KindEmail},
		{Endpoint: EndpointResetPassword, Max: 3, Window: time.Hour, Kind: KindIP},
		{Endpoint: EndpointUpdatePassword, Max: 5, Window: time.Hour, Kind: KindIP},
		{Endpoint: EndpointCreateOrder, Max: 10, Window: time.Hour, Kind: KindUserID},
		{Endpoint: EndpointPlanTasks, Max: 20, Window: day, Kind: KindUserID},
		{Endpoint: EndpointWeeklyReport, Max: 10, Window: day, Kind: KindUserID},
		{Endpoint: EndpointChatQuery, Max: 50, Window: time.Hour, Kind: KindUserID},
		{Endpoint: EndpointGenerateTheme, Max: 10, Window: day, Kind: KindUserID},
	}
	out := make(map[string]Rule, len(rules))
	for _, r := range rules {
		out[r.Endpoint] = r
	}
	return out
}
