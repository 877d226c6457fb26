package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/db"
	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound indicates activation for an unknown account.
	ErrUserNotFound = errors.New("subscription: user not found")
	// ErrDowngradeRejected indicates a pro plan arriving for a lifetime user.
	ErrDowngradeRejected = errors.New("subscription: lifetime account cannot be downgraded")
)

// Activation is the outcome of applying a plan.
type Activation struct {
	User         models.User
	Subscription models.Subscription
	// Existing reports that the payment had already been applied.
	Existing bool
}

// Service applies plans to accounts.
type Service struct {
	catalog *Catalog
	now     func() time.Time
}

// NewService constructs a Service. A nil now uses time.Now.
func NewService(catalog *Catalog, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{catalog: catalog, now: now}
}

// Catalog returns the plan catalog.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Activate applies planType to userID on behalf of paymentID inside tx.
// Repeated calls for the same payment return the stored activation unchanged.
func (s *Service) Activate(ctx context.Context, tx *gorm.DB, userID, planType string, paymentID uint64) (*Activation, error) {
	log := logging.Module("subscription").WithFields(logging.Fields(logging.UserID(userID))).
		WithField("plan_type", planType).WithField("payment_id", paymentID)

	var existing models.Subscription
	errExisting := tx.WithContext(ctx).Where("payment_id = ?", paymentID).First(&existing).Error
	switch {
	case errExisting == nil:
		var user models.User
		if errUser := tx.WithContext(ctx).Where("id = ?", existing.UserID).First(&user).Error; errUser != nil {
			return nil, fmt.Errorf("subscription: load user: %w", errUser)
		}
		return &Activation{User: user, Subscription: existing, Existing: true}, nil
	case !db.IsNotFound(errExisting):
		return nil, fmt.Errorf("subscription: find by payment: %w", errExisting)
	}

	now := s.now().UTC()
	tier, expiresAt, errDerive := s.catalog.Derive(planType, now)
	if errDerive != nil {
		return nil, errDerive
	}

	var user models.User
	if errUser := db.ForUpdate(tx.WithContext(ctx)).Where("id = ?", userID).First(&user).Error; errUser != nil {
		if db.IsNotFound(errUser) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("subscription: load user: %w", errUser)
	}
	if user.Tier == models.TierLifetime && tier != models.TierLifetime {
		log.Warn("rejected downgrade of lifetime account")
		return nil, ErrDowngradeRejected
	}

	updates := map[string]any{
		"tier":                    tier,
		"is_active":               true,
		"subscription_expires_at": expiresAt,
		"updated_at":              now,
	}
	if errUpdate := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; errUpdate != nil {
		return nil, fmt.Errorf("subscription: update user: %w", errUpdate)
	}
	if errSupersede := tx.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		Updates(map[string]any{"status": models.SubscriptionStatusSuperseded, "updated_at": now}).Error; errSupersede != nil {
		return nil, fmt.Errorf("subscription: supersede previous: %w", errSupersede)
	}

	sub := models.Subscription{
		UserID:    userID,
		PlanType:  planType,
		Tier:      tier,
		PaymentID: paymentID,
		StartedAt: now,
		ExpiresAt: expiresAt,
		Status:    models.SubscriptionStatusActive,
	}
	if errCreate := tx.WithContext(ctx).Create(&sub).Error; errCreate != nil {
		return nil, fmt.Errorf("subscription: create: %w", errCreate)
	}

	user.Tier = tier
	user.IsActive = true
	user.SubscriptionExpiresAt = expiresAt
	user.UpdatedAt = now
	log.WithField("tier", tier).Info("subscription activated")
	return &Activation{User: user, Subscription: sub}, nil
}

// Current returns the active subscription of userID, or nil.
func (s *Service) Current(ctx context.Context, conn *gorm.DB, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	errFind := conn.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		Order("started_at DESC").
		First(&sub).Error
	if errFind != nil {
		if db.IsNotFound(errFind) {
			return nil, nil
		}
		return nil, fmt.Errorf("subscription: current: %w", errFind)
	}
	return &sub, nil
}
