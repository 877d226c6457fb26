package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gaiya-app/gaiya-cloud/internal/aiproxy"
	"github.com/gaiya-app/gaiya-cloud/internal/httputil"
	"github.com/gaiya-app/gaiya-cloud/internal/ratelimit"
	"github.com/gaiya-app/gaiya-cloud/internal/validate"
	"github.com/gin-gonic/gin"
)

// AIHandler serves the quota-metered AI endpoints.
type AIHandler struct {
	ai      *aiproxy.Service
	limiter *ratelimit.Manager
}

// NewAIHandler constructs an AIHandler.
func NewAIHandler(ai *aiproxy.Service, limiter *ratelimit.Manager) *AIHandler {
	return &AIHandler{ai: ai, limiter: limiter}
}

type planTasksRequest struct {
	UserID   string `json:"user_id"`
	UserTier string `json:"user_tier"`
	Input    string `json:"input"`
}

type weeklyReportRequest struct {
	UserID     string          `json:"user_id"`
	UserTier   string          `json:"user_tier"`
	Statistics json.RawMessage `json:"statistics"`
}

type chatQueryRequest struct {
	UserID   string          `json:"user_id"`
	UserTier string          `json:"user_tier"`
	Query    string          `json:"query"`
	Context  json.RawMessage `json:"context"`
}

type generateThemeRequest struct {
	UserID      string `json:"user_id"`
	UserTier    string `json:"user_tier"`
	Description string `json:"description"`
}

// admit parses the body into dst, checks that user_id is present and
// well-formed, and applies the endpoint rate limit.
func (h *AIHandler) admit(c *gin.Context, endpoint string, dst any, userID func() string) (string, *ratelimit.Result, bool) {
	if errBind := httputil.BindBody(c, dst); errBind != nil {
		httputil.SendError(c, httputil.BodyError(errBind), nil)
		return "", nil, false
	}
	if missing := httputil.ValidateRequiredFields(map[string]any{"user_id": userID()}, []string{"user_id"}, nil); missing != nil {
		httputil.SendError(c, missing, nil)
		return "", nil, false
	}
	id, errUser := validate.UserID(userID())
	if errUser != nil {
		httputil.Fail(c, errUser, nil, endpoint)
		return "", nil, false
	}
	rate, ok := httputil.Limit(c, h.limiter, endpoint, id)
	if !ok {
		return "", rate, false
	}
	return id, rate, true
}

func (h *AIHandler) fail(c *gin.Context, err error, info aiproxy.QuotaInfo, rate *ratelimit.Result, endpoint string) {
	if info.UserTier == "" {
		httputil.Fail(c, err, rate, endpoint)
		return
	}
	httputil.FailWith(c, err, gin.H{"quota_info": info}, rate, endpoint)
}

// PlanTasks turns a free-text description into tasks.
func (h *AIHandler) PlanTasks(c *gin.Context) {
	var body planTasksRequest
	userID, rate, ok := h.admit(c, ratelimit.EndpointPlanTasks, &body, func() string { return body.UserID })
	if !ok {
		return
	}
	res, info, errPlan := h.ai.PlanTasks(c.Request.Context(), userID, body.UserTier, body.Input)
	if errPlan != nil {
		h.fail(c, errPlan, info, rate, ratelimit.EndpointPlanTasks)
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{"tasks": res.Tasks, "quota_info": res.QuotaInfo}, rate)
}

// WeeklyReport summarizes a week of statistics.
func (h *AIHandler) WeeklyReport(c *gin.Context) {
	var body weeklyReportRequest
	userID, rate, ok := h.admit(c, ratelimit.EndpointWeeklyReport, &body, func() string { return body.UserID })
	if !ok {
		return
	}
	res, info, errReport := h.ai.WeeklyReport(c.Request.Context(), userID, body.UserTier, body.Statistics)
	if errReport != nil {
		h.fail(c, errReport, info, rate, ratelimit.EndpointWeeklyReport)
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{"report": res.Report, "quota_info": res.QuotaInfo}, rate)
}

// ChatQuery answers a question.
func (h *AIHandler) ChatQuery(c *gin.Context) {
	var body chatQueryRequest
	userID, rate, ok := h.admit(c, ratelimit.EndpointChatQuery, &body, func() string { return body.UserID })
	if !ok {
		return
	}
	res, info, errChat := h.ai.Chat(c.Request.Context(), userID, body.UserTier, body.Query, body.Context)
	if errChat != nil {
		h.fail(c, errChat, info, rate, ratelimit.EndpointChatQuery)
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{"response": res.Response, "quota_info": res.QuotaInfo}, rate)
}

// GenerateTheme designs a color theme from a description.
func (h *AIHandler) GenerateTheme(c *gin.Context) {
	var body generateThemeRequest
	userID, rate, ok := h.admit(c, ratelimit.EndpointGenerateTheme, &body, func() string { return body.UserID })
	if !ok {
		return
	}
	res, info, errTheme := h.ai.GenerateTheme(c.Request.Context(), userID, body.UserTier, body.Description)
	if errTheme != nil {
		h.fail(c, errTheme, info, rate, ratelimit.EndpointGenerateTheme)
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{"theme": res.Theme, "quota_info": res.QuotaInfo}, rate)
}
