package identity

import (
	"context"
	"fmt"

	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"github.com/gaiya-app/gaiya-cloud/internal/settings"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var otpOpts = totp.ValidateOpts{
	Period:    uint(settings.OTPPeriod.Seconds()),
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// IssueOTP returns a six-digit code for user, provisioning the per-user
// secret on first use.
func (p *Provider) IssueOTP(ctx context.Context, user *models.User) (string, error) {
	if user.OTPSecret == "" {
		key, errGenerate := totp.Generate(totp.GenerateOpts{
			Issuer:      p.issuer,
			AccountName: user.Email,
			Period:      otpOpts.Period,
			Digits:      otpOpts.Digits,
			Algorithm:   otpOpts.Algorithm,
		})
		if errGenerate != nil {
			return "", fmt.Errorf("identity: generate otp secret: %w", errGenerate)
		}
		if errSave := p.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
			Update("otp_secret", key.Secret()).Error; errSave != nil {
			return "", fmt.Errorf("identity: save otp secret: %w", errSave)
		}
		user.OTPSecret = key.Secret()
	}
	code, errCode := totp.GenerateCodeCustom(user.OTPSecret, p.now(), otpOpts)
	if errCode != nil {
		return "", fmt.Errorf("identity: generate otp: %w", errCode)
	}
	return code, nil
}

// VerifyOTP checks code for email. A valid code also confirms the address.
func (p *Provider) VerifyOTP(ctx context.Context, email, code string) (*models.User, error) {
	user, errFind := p.UserByEmail(ctx, email)
	if errFind != nil {
		return nil, ErrInvalidCredentials
	}
	if user.OTPSecret == "" || !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	ok, errValidate := totp.ValidateCustom(code, user.OTPSecret, p.now(), otpOpts)
	if errValidate != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	if user.EmailConfirmedAt == nil {
		now := p.now().UTC()
		if errUpdate := p.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
			Update("email_confirmed_at", now).Error; errUpdate != nil {
			return nil, fmt.Errorf("identity: confirm email: %w", errUpdate)
		}
		user.EmailConfirmedAt = &now
	}
	return user, nil
}
