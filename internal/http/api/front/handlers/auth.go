package handlers

import (
	"net/http"
	"strings"

	"github.com/gaiya-app/gaiya-cloud/internal/auth"
	"github.com/gaiya-app/gaiya-cloud/internal/httputil"
	"github.com/gaiya-app/gaiya-cloud/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// AuthHandler serves the account endpoints.
type AuthHandler struct {
	auth    *auth.Service
	limiter *ratelimit.Manager
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(svc *auth.Service, limiter *ratelimit.Manager) *AuthHandler {
	return &AuthHandler{auth: svc, limiter: limiter}
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updatePasswordRequest struct {
	AccessToken string `json:"access_token"`
	NewPassword string `json:"new_password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// Signup registers an account and signs it in.
func (h *AuthHandler) Signup(c *gin.Context) {
	rate, ok := httputil.Limit(c, h.limiter, ratelimit.EndpointSignup, c.ClientIP())
	if !ok {
		return
	}
	var body signupRequest
	if errBind := httputil.BindBody(c, &body); errBind != nil {
		httputil.SendError(c, httputil.BodyError(errBind), rate)
		return
	}
	if missing := httputil.ValidateRequiredFields(map[string]any{"email": body.Email, "password": body.Password}, []string{"email", "password"}, nil); missing != nil {
		httputil.SendError(c, missing, rate)
		return
	}

	res, errSignup := h.auth.Signup(c.Request.Context(), auth.SignupInput{
		Email:    body.Email,
		Password: body.Password,
		Username: strings.TrimSpace(body.Username),
	})
	if errSignup != nil {
		httputil.Fail(c, errSignup, rate, "auth-signup")
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{"user": res.User, "session": res.Session}, rate)
}

// Signin exchanges credentials for a session.
func (h *AuthHandler) Signin(c *gin.Context) {
	rate, ok := httputil.Limit(c, h.limiter, ratelimit.EndpointSignin, c.ClientIP())
	if !ok {
		return
	}
	var body credentialsRequest
	if errBind := httputil.BindBody(c, &body); errBind != nil {
		httputil.SendError(c, httputil.BodyError(errBind), rate)
		return
	}
	if missing := httputil.ValidateRequiredFields(map[string]any{"email": body.Email, "password": body.Password}, []string{"email", "password"}, nil); missing != nil {
		httputil.SendError(c, missing, rate)
		return
	}

	res, errSignin := h.auth.Signin(c.Request.Context(), body.Email, body.Password)
	if errSignin != nil {
		httputil.Fail(c, errSignin, rate, "auth-signin")
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{"user": res.User, "session": res.Session}, rate)
}

// UpdatePassword changes the password of the session or recovery token
// holder. The token may come from the body or the Authorization header.
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	rate, ok := httputil.Limit(c, h.limiter, ratelimit.EndpointUpdatePassword, c.ClientIP())
	if !ok {
		return
	}
	var body updatePasswordRequest
	if errBind := httputil.BindBody(c, &body); errBind != nil {
		httputil.SendError(c, httputil.BodyError(errBind), rate)
		return
	}
	token := strings.TrimSpace(body.AccessToken)
	if token == "" {
		token = bearerToken(c)
	}
	if missing := httputil.ValidateRequiredFields(map[string]any{"access_token": token, "new_password": body.NewPassword}, []string{"access_token", "new_password"}, nil); missing != nil {
		httputil.SendError(c, missing, rate)
		return
	}

	user, errUpdate := h.auth.UpdatePassword(c.Request.Context(), token, body.NewPassword)
	if errUpdate != nil {
		httputil.Fail(c, errUpdate, rate, "auth-update-password")
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{"message": "Password updated", "user_id": user.ID}, rate)
}

// ResetPassword emails a recovery link. The reply never reveals whether the
// address is registered.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	rate, ok := httputil.Limit(c, h.limiter, ratelimit.EndpointResetPassword, c.ClientIP())
	if !ok {
		return
	}
	var body emailRequest
	if errBind := httputil.BindBody(c, &body); errBind != nil {
		httputil.SendError(c, httputil.BodyError(errBind), rate)
		return
	}
	if errReset := h.auth.RequestPasswordReset(c.Request.Context(), body.Email); errReset != nil {
		httputil.Fail(c, errReset, rate, "auth-reset-password")
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{"message": "If the address is registered, a reset link has been sent"}, rate)
}

// ConfirmEmail consumes a confirmation link and renders a static page.
func (h *AuthHandler) ConfirmEmail(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(confirmFailedPage))
		return
	}
	if _, errConfirm := h.auth.ConfirmEmail(c.Request.Context(), token); errConfirm != nil {
		if apiErr := httputil.ErrorFor(errConfirm); apiErr == nil {
			httputil.HandleInternalError(c, errConfirm, "auth-confirm-email")
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(confirmFailedPage))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(confirmSucceededPage))
}

// VerificationStatus reports whether an address has been confirmed.
func (h *AuthHandler) VerificationStatus(c *gin.Context) {
	email := c.Query("email")
	if strings.TrimSpace(email) == "" {
		httputil.SendError(c, httputil.Validation("Missing required field: email"), nil)
		return
	}
	state, errStatus := h.auth.VerificationStatus(c.Request.Context(), email)
	if errStatus != nil {
		httputil.Fail(c, errStatus, nil, "auth-verification-status")
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{"status": state}, nil)
}

// SendOTP emails a one-time sign-in code.
func (h *AuthHandler) SendOTP(c *gin.Context) {
	var body emailRequest
	if errBind := httputil.BindBody(c, &body); errBind != nil {
		httputil.SendError(c, httputil.BodyError(errBind), nil)
		return
	}
	rate, ok := httputil.Limit(c, h.limiter, ratelimit.EndpointSendOTP, body.Email)
	if !ok {
		return
	}
	if errSend := h.auth.SendOTP(c.Request.Context(), body.Email); errSend != nil {
		httputil.Fail(c, errSend, rate, "auth-send-otp")
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{"message": "If the address is registered, a code has been sent"}, rate)
}

// VerifyOTP signs in with an emailed code.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var body verifyOTPRequest
	if errBind := httputil.BindBody(c, &body); errBind != nil {
		httputil.SendError(c, httputil.BodyError(errBind), nil)
		return
	}
	if missing := httputil.ValidateRequiredFields(map[string]any{"email": body.Email, "token": body.Token}, []string{"email", "token"}, nil); missing != nil {
		httputil.SendError(c, missing, nil)
		return
	}
	rate, ok := httputil.Limit(c, h.limiter, ratelimit.EndpointVerifyOTP, body.Email)
	if !ok {
		return
	}
	res, errVerify := h.auth.VerifyOTP(c.Request.Context(), body.Email, body.Token)
	if errVerify != nil {
		httputil.Fail(c, errVerify, rate, "auth-verify-otp")
		return
	}
	httputil.SendSuccess(c, http.StatusOK, gin.H{"user": res.User, "session": res.Session}, rate)
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return ""
	}
	return strings.TrimSpace(token)
}

const confirmSucceededPage = `<!DOCTYPE html>
<html lang="zh-CN">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>Email confirmed</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 48px;">
<h1>邮箱验证成功</h1>
<p>Your email address has been confirmed. You can return to the app now.</p>
</body>
</html>`

const confirmFailedPage = `<!DOCTYPE html>
<html lang="zh-CN">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>Confirmation failed</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 48px;">
<h1>验证链接无效或已过期</h1>
<p>This confirmation link is invalid or has expired. Request a new one from the app.</p>
</body>
</html>`
