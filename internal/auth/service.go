// Package auth implements signup, signin, password changes, email
// confirmation, and one-time-code sign-in on top of identity.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/identity"
	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/gaiya-app/gaiya-cloud/internal/mailer"
	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"github.com/gaiya-app/gaiya-cloud/internal/validate"
)

var (
	// ErrDuplicateEmail indicates signup for a registered address.
	ErrDuplicateEmail = errors.New("auth: email already registered")
	// ErrInvalidCredentials is the generic signin failure.
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	// ErrUnauthorized indicates a missing or invalid access token.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrInvalidConfirmation indicates an unknown, used, or expired link.
	ErrInvalidConfirmation = errors.New("auth: invalid or expired confirmation link")
)

var logger = logging.Module("auth")

// Identity is the credential store used by Service.
type Identity interface {
	CreateUser(ctx context.Context, email, password, username string) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id string) (*models.User, error)
	IssueSession(user *models.User) (identity.Session, error)
	IssueRecoveryToken(user *models.User) (string, error)
	ParseToken(raw string, purposes ...identity.Purpose) (*identity.Claims, error)
	SetPassword(ctx context.Context, userID, password string) error
	CreateEmailVerification(ctx context.Context, user *models.User) (string, error)
	ConfirmEmail(ctx context.Context, token string) (*models.User, error)
	VerificationStatus(ctx context.Context, email string) (identity.VerificationState, error)
	IssueOTP(ctx context.Context, user *models.User) (string, error)
	VerifyOTP(ctx context.Context, email, code string) (*models.User, error)
}

// UserView is the account shape returned to clients.
type UserView struct {
	ID                    string     `json:"id"`
	Email                 string     `json:"email"`
	Username              string     `json:"username,omitempty"`
	UserTier              string     `json:"user_tier"`
	EmailConfirmed        bool       `json:"email_confirmed"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at"`
	CreatedAt             time.Time  `json:"created_at"`
}

// Result is a signed-in user with their session.
type Result struct {
	User    UserView         `json:"user"`
	Session identity.Session `json:"session"`
}

// Options configures Service.
type Options struct {
	SiteName      string
	PublicBaseURL string
	Now           func() time.Time
}

// Service implements the authentication operations.
type Service struct {
	identity Identity
	mailer   mailer.Mailer
	opts     Options
}

// NewService constructs a Service.
func NewService(id Identity, m mailer.Mailer, opts Options) *Service {
	if m == nil {
		m = mailer.LogMailer{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{identity: id, mailer: m, opts: opts}
}

// SignupInput is the signup request.
type SignupInput struct {
	Email    string
	Password string
	Username string
}

// Signup validates input, creates the account, sends the confirmation link,
// and signs the user in.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Result, error) {
	email, errEmail := validate.Email(in.Email)
	if errEmail != nil {
		return nil, errEmail
	}
	if errPassword := validate.Password(in.Password); errPassword != nil {
		return nil, errPassword
	}
	user, errCreate := s.identity.CreateUser(ctx, email, in.Password, in.Username)
	if errCreate != nil {
		if errors.Is(errCreate, identity.ErrEmailTaken) {
			return nil, ErrDuplicateEmail
		}
		return nil, errCreate
	}
	s.sendVerification(ctx, user)
	logger.WithFields(logging.Fields(logging.UserID(user.ID), logging.Email(user.Email))).Info("user signed up")
	return s.result(user)
}

func (s *Service) sendVerification(ctx context.Context, user *models.User) {
	token, errToken := s.identity.CreateEmailVerification(ctx, user)
	if errToken != nil {
		logger.WithError(errToken).WithFields(logging.Fields(logging.UserID(user.ID))).Warn("create verification link failed")
		return
	}
	msg := mailer.VerificationEmail(user.Email, s.opts.SiteName, s.opts.PublicBaseURL, token)
	if errSend := s.mailer.Send(ctx, msg); errSend != nil {
		logger.WithError(errSend).WithFields(logging.Fields(logging.Email(user.Email))).Warn("send verification email failed")
	}
}

// Signin checks credentials and issues a session.
func (s *Service) Signin(ctx context.Context, rawEmail, password string) (*Result, error) {
	email := strings.ToLower(strings.TrimSpace(rawEmail))
	user, errAuth := s.identity.Authenticate(ctx, email, password)
	if errAuth != nil {
		if errors.Is(errAuth, identity.ErrInvalidCredentials) {
			logger.WithFields(logging.Fields(logging.Email(email))).Warn("signin failed")
			return nil, ErrInvalidCredentials
		}
		return nil, errAuth
	}
	return s.result(user)
}

// Authenticate resolves a bearer token to the signed-in user. Recovery
// tokens are accepted only when allowRecovery is set.
func (s *Service) Authenticate(ctx context.Context, accessToken string, allowRecovery bool) (*models.User, error) {
	purposes := []identity.Purpose{identity.PurposeSession}
	if allowRecovery {
		purposes = append(purposes, identity.PurposeRecovery)
	}
	claims, errParse := s.identity.ParseToken(accessToken, purposes...)
	if errParse != nil {
		return nil, ErrUnauthorized
	}
	user, errUser := s.identity.UserByID(ctx, claims.Subject)
	if errUser != nil {
		if errors.Is(errUser, identity.ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errUser
	}
	if !user.IsActive {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// UpdatePassword changes the password of the token holder.
func (s *Service) UpdatePassword(ctx context.Context, accessToken, newPassword string) (*models.User, error) {
	user, errAuth := s.Authenticate(ctx, accessToken, true)
	if errAuth != nil {
		return nil, errAuth
	}
	if errPassword := validate.Password(newPassword); errPassword != nil {
		return nil, errPassword
	}
	if errSet := s.identity.SetPassword(ctx, user.ID, newPassword); errSet != nil {
		return nil, errSet
	}
	logger.WithFields(logging.Fields(logging.UserID(user.ID))).Info("password updated")
	return user, nil
}

// RequestPasswordReset emails a recovery link when the address is
// registered. The outcome is never revealed to the caller.
func (s *Service) RequestPasswordReset(ctx context.Context, rawEmail string) error {
	email, errEmail := validate.Email(rawEmail)
	if errEmail != nil {
		return errEmail
	}
	user, errUser := s.identity.UserByEmail(ctx, email)
	if errUser != nil {
		if errors.Is(errUser, identity.ErrUserNotFound) {
			return nil
		}
		return errUser
	}
	token, errToken := s.identity.IssueRecoveryToken(user)
	if errToken != nil {
		return errToken
	}
	if errSend := s.mailer.Send(ctx, mailer.RecoveryEmail(user.Email, s.opts.SiteName, s.opts.PublicBaseURL, token)); errSend != nil {
		logger.WithError(errSend).WithFields(logging.Fields(logging.Email(user.Email))).Warn("send recovery email failed")
	}
	return nil
}

// ConfirmEmail consumes a confirmation link.
func (s *Service) ConfirmEmail(ctx context.Context, token string) (*models.User, error) {
	user, errConfirm := s.identity.ConfirmEmail(ctx, token)
	if errConfirm != nil {
		if errors.Is(errConfirm, identity.ErrInvalidToken) || errors.Is(errConfirm, identity.ErrVerificationExpired) || errors.Is(errConfirm, identity.ErrUserNotFound) {
			return nil, ErrInvalidConfirmation
		}
		return nil, errConfirm
	}
	return user, nil
}

// VerificationStatus reports the confirmation state of an address.
func (s *Service) VerificationStatus(ctx context.Context, rawEmail string) (identity.VerificationState, error) {
	email, errEmail := validate.Email(rawEmail)
	if errEmail != nil {
		return identity.VerificationError, errEmail
	}
	return s.identity.VerificationStatus(ctx, email)
}

// SendOTP emails a sign-in code when the address is registered.
func (s *Service) SendOTP(ctx context.Context, rawEmail string) error {
	email, errEmail := validate.Email(rawEmail)
	if errEmail != nil {
		return errEmail
	}
	user, errUser := s.identity.UserByEmail(ctx, email)
	if errUser != nil {
		if errors.Is(errUser, identity.ErrUserNotFound) {
			return nil
		}
		return errUser
	}
	code, errCode := s.identity.IssueOTP(ctx, user)
	if errCode != nil {
		return errCode
	}
	if errSend := s.mailer.Send(ctx, mailer.OTPEmail(user.Email, s.opts.SiteName, code)); errSend != nil {
		logger.WithError(errSend).WithFields(logging.Fields(logging.Email(user.Email))).Warn("send otp email failed")
	}
	return nil
}

// VerifyOTP signs the user in with an emailed code.
func (s *Service) VerifyOTP(ctx context.Context, rawEmail, code string) (*Result, error) {
	email := strings.ToLower(strings.TrimSpace(rawEmail))
	user, errVerify := s.identity.VerifyOTP(ctx, email, strings.TrimSpace(code))
	if errVerify != nil {
		if errors.Is(errVerify, identity.ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, errVerify
	}
	return s.result(user)
}

func (s *Service) result(user *models.User) (*Result, error) {
	session, errSession := s.identity.IssueSession(user)
	if errSession != nil {
		return nil, errSession
	}
	return &Result{User: NewUserView(user, s.opts.Now()), Session: session}, nil
}

// NewUserView projects user for clients.
func NewUserView(user *models.User, now time.Time) UserView {
	return UserView{
		ID:                    user.ID,
		Email:                 user.Email,
		Username:              user.Username,
		UserTier:              string(user.EffectiveTier(now)),
		EmailConfirmed:        user.EmailConfirmedAt != nil,
		SubscriptionExpiresAt: user.SubscriptionExpiresAt,
		CreatedAt:             user.CreatedAt,
	}
}
