package aiproxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"github.com/gaiya-app/gaiya-cloud/internal/quota"
	"github.com/gaiya-app/gaiya-cloud/internal/validate"
	"github.com/tidwall/gjson"
)

const maxInputRunes = 4000

var logger = logging.Module("aiproxy")

// Completer produces assistant text for a system and user message.
type Completer interface {
	Complete(ctx context.Context, system, user string, jsonMode bool) (string, error)
}

// Quota is the usage accounting used by Service.
type Quota interface {
	ResolveTier(ctx context.Context, userID, claimed string) models.Tier
	Consume(ctx context.Context, userID string, tier models.Tier, feature string) (quota.Info, error)
}

// QuotaInfo is returned with every AI answer so clients can update their
// display without another request.
type QuotaInfo struct {
	Remaining int         `json:"remaining"`
	Limit     int         `json:"limit"`
	UserTier  models.Tier `json:"user_tier"`
	ResetAt   time.Time   `json:"reset_at"`
}

func newQuotaInfo(info quota.Info) QuotaInfo {
	return QuotaInfo{Remaining: info.Remaining, Limit: info.Limit, UserTier: info.UserTier, ResetAt: info.ResetAt}
}

// QuotaExceededError carries the quota state of a refused request.
type QuotaExceededError struct {
	Feature string
	Info    QuotaInfo
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("aiproxy: %s quota exceeded", e.Feature)
}

// Unwrap lets errors.Is match quota.ErrQuotaExceeded.
func (e *QuotaExceededError) Unwrap() error {
	return quota.ErrQuotaExceeded
}

// Service wraps upstream calls with quota checks.
type Service struct {
	client Completer
	quota  Quota
}

// NewService constructs a Service.
func NewService(client Completer, q Quota) *Service {
	return &Service{client: client, quota: q}
}

// call consumes quota for feature and forwards the prompt. A consumed unit
// stays consumed when the upstream fails.
func (s *Service) call(ctx context.Context, feature, rawUserID, claimedTier, system, user string, jsonMode bool, parse func(string) (any, error)) (any, QuotaInfo, error) {
	userID, errUser := validate.UserID(rawUserID)
	if errUser != nil {
		return nil, QuotaInfo{}, errUser
	}
	entry := logger.WithFields(logging.Fields(logging.UserID(userID))).WithField("feature", feature)

	tier := s.quota.ResolveTier(ctx, userID, claimedTier)
	info, errConsume := s.quota.Consume(ctx, userID, tier, feature)
	if errConsume != nil {
		if errors.Is(errConsume, quota.ErrQuotaExceeded) {
			entry.WithField("tier", tier).Info("quota exceeded")
			return nil, newQuotaInfo(info), &QuotaExceededError{Feature: feature, Info: newQuotaInfo(info)}
		}
		return nil, QuotaInfo{}, errConsume
	}

	content, errComplete := s.client.Complete(ctx, system, user, jsonMode)
	if errComplete != nil {
		entry.WithError(errComplete).Warn("upstream call failed")
		return nil, newQuotaInfo(info), errComplete
	}
	out, errParse := parse(content)
	if errParse != nil {
		entry.WithError(errParse).Warn("upstream returned unusable content")
		return nil, newQuotaInfo(info), errParse
	}
	return out, newQuotaInfo(info), nil
}

func requireText(field, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", &validate.Error{Field: field, Reason: validate.ReasonRequired, Message: fmt.Sprintf("%s is required", field)}
	}
	if utf8.RuneCountInString(v) > maxInputRunes {
		return "", &validate.Error{Field: field, Reason: validate.ReasonTooLong, Message: fmt.Sprintf("%s must be at most %d characters", field, maxInputRunes)}
	}
	return v, nil
}

// PlanTasksResult is the planned task list.
type PlanTasksResult struct {
	Tasks     json.RawMessage `json:"tasks"`
	QuotaInfo QuotaInfo       `json:"quota_info"`
}

// PlanTasks turns a free-text description into a task list.
func (s *Service) PlanTasks(ctx context.Context, userID, userTier, input string) (*PlanTasksResult, QuotaInfo, error) {
	text, errText := requireText("input", input)
	if errText != nil {
		return nil, QuotaInfo{}, errText
	}
	out, info, err := s.call(ctx, quota.FeaturePlanTasks, userID, userTier, planTasksPrompt, text, true, parseTasks)
	if err != nil {
		return nil, info, err
	}
	return &PlanTasksResult{Tasks: out.(json.RawMessage), QuotaInfo: info}, info, nil
}

func parseTasks(content string) (any, error) {
	raw, errParse := ParseJSONContent(content)
	if errParse != nil {
		return nil, errParse
	}
	parsed := gjson.ParseBytes(raw)
	if parsed.IsArray() {
		return raw, nil
	}
	tasks := parsed.Get("tasks")
	if !tasks.IsArray() {
		return nil, ErrMalformedContent
	}
	return json.RawMessage(tasks.Raw), nil
}

// WeeklyReportResult is a generated weekly report.
type WeeklyReportResult struct {
	Report    json.RawMessage `json:"report"`
	QuotaInfo QuotaInfo       `json:"quota_info"`
}

// WeeklyReport summarizes a week of statistics.
func (s *Service) WeeklyReport(ctx context.Context, userID, userTier string, statistics json.RawMessage) (*WeeklyReportResult, QuotaInfo, error) {
	stats, errStats := requireText("statistics", string(statistics))
	if errStats != nil {
		return nil, QuotaInfo{}, errStats
	}
	out, info, err := s.call(ctx, quota.FeatureWeeklyReport, userID, userTier, weeklyReportPrompt, stats, true, parseObject)
	if err != nil {
		return nil, info, err
	}
	return &WeeklyReportResult{Report: out.(json.RawMessage), QuotaInfo: info}, info, nil
}

// ChatResult is an assistant answer.
type ChatResult struct {
	Response  string    `json:"response"`
	QuotaInfo QuotaInfo `json:"quota_info"`
}

// Chat answers a question, optionally with client-supplied context.
func (s *Service) Chat(ctx context.Context, userID, userTier, query string, chatContext json.RawMessage) (*ChatResult, QuotaInfo, error) {
	q, errQuery := requireText("query", query)
	if errQuery != nil {
		return nil, QuotaInfo{}, errQuery
	}
	prompt := q
	if c := strings.TrimSpace(string(chatContext)); c != "" && c != "null" {
		prompt = q + "\n\nContext:\n" + c
	}
	out, info, err := s.call(ctx, quota.FeatureChatQuery, userID, userTier, chatPrompt, prompt, false, func(content string) (any, error) {
		return StripFences(content), nil
	})
	if err != nil {
		return nil, info, err
	}
	return &ChatResult{Response: out.(string), QuotaInfo: info}, info, nil
}

// ThemeResult is a generated color theme.
type ThemeResult struct {
	Theme     json.RawMessage `json:"theme"`
	QuotaInfo QuotaInfo       `json:"quota_info"`
}

// GenerateTheme designs a theme from a description.
func (s *Service) GenerateTheme(ctx context.Context, userID, userTier, description string) (*ThemeResult, QuotaInfo, error) {
	text, errText := requireText("description", description)
	if errText != nil {
		return nil, QuotaInfo{}, errText
	}
	out, info, err := s.call(ctx, quota.FeatureGenerateTheme, userID, userTier, themePrompt, text, true, parseObject)
	if err != nil {
		return nil, info, err
	}
	return &ThemeResult{Theme: out.(json.RawMessage), QuotaInfo: info}, info, nil
}

func parseObject(content string) (any, error) {
	raw, errParse := ParseJSONContent(content)
	if errParse != nil {
		return nil, errParse
	}
	if !gjson.ParseBytes(raw).IsObject() {
		return nil, ErrMalformedContent
	}
	return raw, nil
}
