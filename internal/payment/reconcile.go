package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/db"
	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"github.com/gaiya-app/gaiya-cloud/internal/subscription"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// settlement is a verified payment from any reconciliation path.
type settlement struct {
	Provider models.PaymentProvider
	OrderID  string
	TradeNo  string
	UserID   string
	PlanType string
	Amount   decimal.Decimal
	Currency string
	PayType  string
	Param    string
	// Manual marks an operator settlement. Without a provider outcome behind
	// it, a refused activation must leave no ledger row.
	Manual bool
}

// outcome is the result of applying a settlement.
type outcome struct {
	Payment    models.Payment
	Activation *subscription.Activation
	// Duplicate reports that the order had already been settled.
	Duplicate bool
	// DowngradeRejected reports that the payment was recorded but the plan
	// was not applied because the account is lifetime.
	DowngradeRejected bool
}

// settle records st in the ledger and activates the plan. The ledger row and
// the activation commit together; (provider, order_id) uniqueness makes the
// first writer win and every later writer a no-op.
func (s *Service) settle(ctx context.Context, st settlement) (*outcome, error) {
	var out *outcome
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, errApply := s.applyTx(ctx, tx, st)
		out = res
		return errApply
	})
	if errTx == nil {
		return out, nil
	}
	if !db.IsUniqueViolation(errTx) {
		return nil, errTx
	}
	// A concurrent writer inserted the same order first.
	var existing models.Payment
	if errFind := s.db.WithContext(ctx).Where("order_id = ?", st.OrderID).First(&existing).Error; errFind != nil {
		return nil, fmt.Errorf("payment: reload after conflict: %w", errFind)
	}
	return s.existingOutcome(ctx, s.db, existing, st.UserID)
}

func (s *Service) applyTx(ctx context.Context, tx *gorm.DB, st settlement) (*outcome, error) {
	var existing models.Payment
	errFind := db.ForUpdate(tx.WithContext(ctx)).
		Where("order_id = ? AND status = ?", st.OrderID, models.PaymentStatusCompleted).
		First(&existing).Error
	switch {
	case errFind == nil:
		return s.existingOutcome(ctx, tx, existing, st.UserID)
	case !db.IsNotFound(errFind):
		return nil, fmt.Errorf("payment: find payment: %w", errFind)
	}

	now := s.now().UTC()
	currency := st.Currency
	if currency == "" {
		currency = s.currency
	}
	payment := models.Payment{
		UserID:          st.UserID,
		Provider:        st.Provider,
		OrderID:         st.OrderID,
		ProviderTradeNo: st.TradeNo,
		PayType:         st.PayType,
		Amount:          st.Amount,
		Currency:        currency,
		PlanType:        st.PlanType,
		Status:          models.PaymentStatusCompleted,
		CompletedAt:     &now,
	}
	if errCreate := tx.WithContext(ctx).Create(&payment).Error; errCreate != nil {
		return nil, fmt.Errorf("payment: record payment: %w", errCreate)
	}

	activation, errActivate := s.subs.Activate(ctx, tx, st.UserID, st.PlanType, payment.ID)
	if errors.Is(errActivate, subscription.ErrDowngradeRejected) {
		if st.Manual {
			return nil, ErrDowngradeRejected
		}
		return &outcome{Payment: payment, DowngradeRejected: true}, nil
	}
	if errActivate != nil {
		if errors.Is(errActivate, subscription.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, errActivate
	}
	return &outcome{Payment: payment, Activation: activation}, nil
}

func (s *Service) existingOutcome(ctx context.Context, conn *gorm.DB, existing models.Payment, userID string) (*outcome, error) {
	if existing.UserID != userID {
		return nil, ErrOrderOwnedByOtherUser
	}
	out := &outcome{Payment: existing, Duplicate: true}
	var sub models.Subscription
	errSub := conn.WithContext(ctx).Where("payment_id = ?", existing.ID).First(&sub).Error
	switch {
	case errSub == nil:
		var user models.User
		if errUser := conn.WithContext(ctx).Where("id = ?", existing.UserID).First(&user).Error; errUser != nil {
			return nil, fmt.Errorf("payment: load user: %w", errUser)
		}
		out.Activation = &subscription.Activation{User: user, Subscription: sub, Existing: true}
	case db.IsNotFound(errSub):
		out.DowngradeRejected = true
	default:
		return nil, fmt.Errorf("payment: find subscription: %w", errSub)
	}
	return out, nil
}

// cache writes a paid snapshot for client polls. Failures only cost a
// provider round trip on the next poll.
func (s *Service) cache(ctx context.Context, st settlement) {
	param := datatypes.JSON(st.Param)
	if st.Param == "" {
		param = datatypes.JSON(OrderParam{UserID: st.UserID, PlanType: st.PlanType}.Encode())
	}
	row := models.PaymentCache{
		OutTradeNo: st.OrderID,
		TradeNo:    st.TradeNo,
		Provider:   st.Provider,
		Type:       st.PayType,
		Status:     models.PaymentCacheStatusPaid,
		Money:      st.Amount,
		PlanType:   st.PlanType,
		UserID:     st.UserID,
		Param:      param,
	}
	errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "out_trade_no"}},
		DoUpdates: clause.AssignmentColumns([]string{"trade_no", "provider", "type", "status", "money", "plan_type", "user_id", "param", "updated_at"}),
	}).Create(&row).Error
	if errUpsert != nil {
		logger.WithError(errUpsert).WithFields(logging.Fields(logging.OrderID(st.OrderID))).
			Warn("payment cache write failed")
	}
}

// PurgeCache deletes cache rows created before cutoff.
func PurgeCache(ctx context.Context, conn *gorm.DB, cutoff time.Time) (int64, error) {
	res := conn.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&models.PaymentCache{})
	if res.Error != nil {
		return 0, fmt.Errorf("payment: purge cache: %w", res.Error)
	}
	return res.RowsAffected, nil
}
