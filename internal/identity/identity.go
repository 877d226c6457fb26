// Package identity owns user credentials: password hashes, signed session
// and recovery tokens, email confirmation links, and emailed one-time codes.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/db"
	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"github.com/gaiya-app/gaiya-cloud/internal/settings"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("identity: email already registered")
	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrUserNotFound indicates no account matches.
	ErrUserNotFound = errors.New("identity: user not found")
	// ErrVerificationExpired indicates a confirmation link past its expiry.
	ErrVerificationExpired = errors.New("identity: verification expired")
)

// VerificationState is the confirmation status of an email address.
type VerificationState string

const (
	VerificationPending  VerificationState = "pending"
	VerificationVerified VerificationState = "verified"
	VerificationExpired  VerificationState = "expired"
	VerificationError    VerificationState = "error"
)

// Options configures a Provider.
type Options struct {
	Secret     string
	SessionTTL time.Duration
	Issuer     string
	Now        func() time.Time
}

// Provider stores accounts and issues credentials.
type Provider struct {
	db         *gorm.DB
	signer     *TokenSigner
	sessionTTL time.Duration
	issuer     string
	now        func() time.Time
}

// NewProvider constructs a Provider.
func NewProvider(conn *gorm.DB, opts Options) *Provider {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	if strings.TrimSpace(opts.Issuer) == "" {
		opts.Issuer = settings.DefaultSiteName
	}
	return &Provider{
		db:         conn,
		signer:     NewTokenSigner(opts.Secret, opts.Issuer),
		sessionTTL: opts.SessionTTL,
		issuer:     opts.Issuer,
		now:        opts.Now,
	}
}

// CreateUser registers a free, active account. email must be normalized.
func (p *Provider) CreateUser(ctx context.Context, email, password, username string) (*models.User, error) {
	hash, errHash := HashPassword(password)
	if errHash != nil {
		return nil, fmt.Errorf("identity: hash password: %w", errHash)
	}
	now := p.now().UTC()
	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     strings.TrimSpace(username),
		PasswordHash: hash,
		Tier:         models.TierFree,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errCreate := p.db.WithContext(ctx).Create(&user).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("identity: create user: %w", errCreate)
	}
	return &user, nil
}

// Authenticate returns the account when email and password match.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, errFind := p.UserByEmail(ctx, email)
	if errFind != nil {
		if errors.Is(errFind, ErrUserNotFound) {
			CheckPassword(password, "")
			return nil, ErrInvalidCredentials
		}
		return nil, errFind
	}
	if !CheckPassword(password, user.PasswordHash) || !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// UserByEmail loads an account by normalized email.
func (p *Provider) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if errFind := p.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error; errFind != nil {
		if db.IsNotFound(errFind) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("identity: load user: %w", errFind)
	}
	return &user, nil
}

// UserByID loads an account by id.
func (p *Provider) UserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if errFind := p.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; errFind != nil {
		if db.IsNotFound(errFind) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("identity: load user: %w", errFind)
	}
	return &user, nil
}

// IssueSession signs an access token for user.
func (p *Provider) IssueSession(user *models.User) (Session, error) {
	token, expiresAt, err := p.signer.Sign(user.ID, user.Email, PurposeSession, p.sessionTTL, p.now())
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(p.sessionTTL / time.Second),
		ExpiresAt:   expiresAt,
	}, nil
}

// IssueRecoveryToken signs a short-lived token that only permits a password change.
func (p *Provider) IssueRecoveryToken(user *models.User) (string, error) {
	token, _, err := p.signer.Sign(user.ID, user.Email, PurposeRecovery, settings.RecoveryTokenTTL, p.now())
	return token, err
}

// ParseToken verifies raw for one of purposes.
func (p *Provider) ParseToken(raw string, purposes ...Purpose) (*Claims, error) {
	return p.signer.Parse(strings.TrimSpace(raw), p.now(), purposes...)
}

// SetPassword replaces the password hash of userID.
func (p *Provider) SetPassword(ctx context.Context, userID, password string) error {
	hash, errHash := HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("identity: hash password: %w", errHash)
	}
	res := p.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"password_hash": hash,
		"updated_at":    p.now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("identity: update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateEmailVerification stores a confirmation link for user and returns
// the raw token to embed in it.
func (p *Provider) CreateEmailVerification(ctx context.Context, user *models.User) (string, error) {
	token, errToken := randomToken()
	if errToken != nil {
		return "", errToken
	}
	now := p.now().UTC()
	row := models.EmailVerification{
		UserID:    user.ID,
		Email:     user.Email,
		TokenHash: hashToken(token),
		Purpose:   models.EmailVerificationPurposeSignup,
		ExpiresAt: now.Add(settings.VerificationTokenTTL),
		CreatedAt: now,
	}
	if errCreate := p.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return "", fmt.Errorf("identity: create verification: %w", errCreate)
	}
	return token, nil
}

// ConfirmEmail consumes a confirmation token and marks the address confirmed.
func (p *Provider) ConfirmEmail(ctx context.Context, token string) (*models.User, error) {
	now := p.now().UTC()
	var user models.User
	errTx := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.EmailVerification
		if errFind := db.ForUpdate(tx).Where("token_hash = ?", hashToken(strings.TrimSpace(token))).Take(&row).Error; errFind != nil {
			if db.IsNotFound(errFind) {
				return ErrInvalidToken
			}
			return errFind
		}
		if errUser := tx.Where("id = ?", row.UserID).Take(&user).Error; errUser != nil {
			if db.IsNotFound(errUser) {
				return ErrUserNotFound
			}
			return errUser
		}
		if user.EmailConfirmedAt != nil {
			return nil
		}
		if row.ConsumedAt != nil {
			return ErrInvalidToken
		}
		if !now.Before(row.ExpiresAt) {
			return ErrVerificationExpired
		}
		if errConsume := tx.Model(&row).Update("consumed_at", now).Error; errConsume != nil {
			return errConsume
		}
		user.EmailConfirmedAt = &now
		return tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
			"email_confirmed_at": now,
			"updated_at":         now,
		}).Error
	})
	if errTx != nil {
		return nil, errTx
	}
	return &user, nil
}

// VerificationStatus reports whether email has been confirmed. Unknown
// addresses report pending so the endpoint does not reveal registrations.
func (p *Provider) VerificationStatus(ctx context.Context, email string) (VerificationState, error) {
	user, errFind := p.UserByEmail(ctx, email)
	if errFind != nil {
		if errors.Is(errFind, ErrUserNotFound) {
			return VerificationPending, nil
		}
		return VerificationError, errFind
	}
	if user.EmailConfirmedAt != nil {
		return VerificationVerified, nil
	}
	var latest models.EmailVerification
	errLatest := p.db.WithContext(ctx).
		Where("user_id = ? AND consumed_at IS NULL", user.ID).
		Order("created_at DESC").
		Take(&latest).Error
	if errLatest != nil {
		if db.IsNotFound(errLatest) {
			return VerificationExpired, nil
		}
		return VerificationError, fmt.Errorf("identity: load verification: %w", errLatest)
	}
	if !p.now().Before(latest.ExpiresAt) {
		return VerificationExpired, nil
	}
	return VerificationPending, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("identity: random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
