package mailer

import (
	"fmt"
	"net/url"
	"strings"
)

// VerificationEmail builds the signup confirmation message.
func VerificationEmail(to, siteName, baseURL, token string) Message {
	link := strings.TrimRight(baseURL, "/") + "/api/auth-confirm-email?token=" + url.QueryEscape(token)
	return Message{
		To:        to,
		Subject:   fmt.Sprintf("Confirm your %s account", siteName),
		PlainText: fmt.Sprintf("Welcome to %s.\n\nConfirm your email address within 24 hours:\n%s\n", siteName, link),
		HTML:      fmt.Sprintf(`<p>Welcome to %s.</p><p><a href="%s">Confirm your email address</a> within 24 hours.</p>`, siteName, link),
	}
}

// RecoveryEmail builds the password reset message.
func RecoveryEmail(to, siteName, baseURL, token string) Message {
	link := strings.TrimRight(baseURL, "/") + "/reset-password#access_token=" + url.QueryEscape(token)
	return Message{
		To:        to,
		Subject:   fmt.Sprintf("Reset your %s password", siteName),
		PlainText: fmt.Sprintf("Use this link within one hour to choose a new password:\n%s\n\nIgnore this message if you did not ask for it.\n", link),
		HTML:      fmt.Sprintf(`<p><a href="%s">Choose a new password</a> within one hour.</p><p>Ignore this message if you did not ask for it.</p>`, link),
	}
}

// OTPEmail builds the one-time sign-in code message.
func OTPEmail(to, siteName, code string) Message {
	return Message{
		To:        to,
		Subject:   fmt.Sprintf("Your %s sign-in code", siteName),
		PlainText: fmt.Sprintf("Your sign-in code is %s. It expires in 5 minutes.\n", code),
		HTML:      fmt.Sprintf(`<p>Your sign-in code is <strong>%s</strong>. It expires in 5 minutes.</p>`, code),
	}
}
