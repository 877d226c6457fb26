package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/db"
	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"github.com/gaiya-app/gaiya-cloud/internal/validate"
	"github.com/gaiya-app/gaiya-cloud/internal/zpay"
)

// Order statuses reported to polling clients.
const (
	OrderStatusPaid   = "paid"
	OrderStatusUnpaid = "unpaid"
)

// OrderStatus is the polled view of an order.
type OrderStatus struct {
	OutTradeNo string          `json:"out_trade_no"`
	TradeNo    string          `json:"trade_no"`
	Status     string          `json:"status"`
	Money      string          `json:"money"`
	Type       string          `json:"type"`
	Param      json.RawMessage `json:"param"`
	// Source names where the answer came from: cache, ledger, or provider.
	Source string `json:"-"`
}

// CheckOrder answers a client poll. The cache and the ledger are consulted
// before the provider. A paid answer from the provider is reported but never
// activates anything; the webhook remains the only writer.
func (s *Service) CheckOrder(ctx context.Context, outTradeNo string) (*OrderStatus, error) {
	outTradeNo = normalizeOrderID(outTradeNo)
	if outTradeNo == "" {
		return nil, &validate.Error{Field: "out_trade_no", Reason: validate.ReasonRequired, Message: "out_trade_no is required"}
	}

	var cached models.PaymentCache
	errCache := s.db.WithContext(ctx).Where("out_trade_no = ?", outTradeNo).First(&cached).Error
	switch {
	case errCache == nil && cached.Status == models.PaymentCacheStatusPaid:
		return &OrderStatus{
			OutTradeNo: cached.OutTradeNo,
			TradeNo:    cached.TradeNo,
			Status:     OrderStatusPaid,
			Money:      cached.Money.StringFixed(2),
			Type:       cached.Type,
			Param:      rawParam(string(cached.Param)),
			Source:     "cache",
		}, nil
	case errCache != nil && !db.IsNotFound(errCache):
		logger.WithError(errCache).Warn("payment cache read failed")
	}

	var paid models.Payment
	errLedger := s.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", outTradeNo, models.PaymentStatusCompleted).
		First(&paid).Error
	switch {
	case errLedger == nil:
		return &OrderStatus{
			OutTradeNo: paid.OrderID,
			TradeNo:    paid.ProviderTradeNo,
			Status:     OrderStatusPaid,
			Money:      paid.Amount.StringFixed(2),
			Type:       paid.PayType,
			Param:      rawParam(OrderParam{UserID: paid.UserID, PlanType: paid.PlanType}.Encode()),
			Source:     "ledger",
		}, nil
	case !db.IsNotFound(errLedger):
		return nil, fmt.Errorf("payment: read ledger: %w", errLedger)
	}

	unpaid := &OrderStatus{OutTradeNo: outTradeNo, Status: OrderStatusUnpaid, Param: rawParam(""), Source: "provider"}
	if s.zpay == nil {
		return unpaid, nil
	}
	order, errQuery := s.zpay.QueryOrder(ctx, outTradeNo)
	if errQuery != nil {
		if !errors.Is(errQuery, zpay.ErrOrderNotFound) && !errors.Is(errQuery, zpay.ErrNotConfigured) {
			logger.WithError(errQuery).WithFields(logging.Fields(logging.OrderID(outTradeNo))).
				Warn("zpay order query failed")
		}
		return unpaid, nil
	}
	status := OrderStatusUnpaid
	if order.Paid {
		status = OrderStatusPaid
	}
	return &OrderStatus{
		OutTradeNo: outTradeNo,
		TradeNo:    order.TradeNo,
		Status:     status,
		Money:      order.Money.StringFixed(2),
		Type:       order.Type,
		Param:      rawParam(order.Param),
		Source:     "provider",
	}, nil
}

func rawParam(raw string) json.RawMessage {
	if raw == "" || !json.Valid([]byte(raw)) {
		return json.RawMessage("null")
	}
	return json.RawMessage(raw)
}

// ManualUpgradeInput identifies an order whose webhook never arrived.
type ManualUpgradeInput struct {
	UserID     string
	PlanType   string
	OutTradeNo string
}

// ManualUpgradeResult is the account state after a manual upgrade.
type ManualUpgradeResult struct {
	UserTier              models.Tier `json:"user_tier"`
	SubscriptionExpiresAt *time.Time  `json:"subscription_expires_at"`
	// Duplicate reports that the order had already been settled.
	Duplicate bool `json:"-"`
}

// ManualUpgrade settles an order by hand. It is idempotent per
// (user, order) and refuses orders already settled for another user.
func (s *Service) ManualUpgrade(ctx context.Context, in ManualUpgradeInput) (*ManualUpgradeResult, error) {
	userID, errUser := validate.UserID(in.UserID)
	if errUser != nil {
		return nil, errUser
	}
	price, errPlan := validate.PlanType(in.PlanType, s.catalog().Prices())
	if errPlan != nil {
		return nil, errPlan
	}
	orderID := normalizeOrderID(in.OutTradeNo)
	if orderID == "" {
		return nil, &validate.Error{Field: "out_trade_no", Reason: validate.ReasonRequired, Message: "out_trade_no is required"}
	}

	entry := logger.WithFields(logging.Fields(logging.UserID(userID), logging.OrderID(orderID))).
		WithField("plan_type", in.PlanType)
	st := settlement{
		Provider: models.PaymentProviderZPay,
		OrderID:  orderID,
		TradeNo:  "manual",
		UserID:   userID,
		PlanType: in.PlanType,
		Amount:   price,
		PayType:  "manual",
		Manual:   true,
	}
	out, errSettle := s.settle(ctx, st)
	if errSettle != nil {
		if !errors.Is(errSettle, ErrOrderOwnedByOtherUser) && !errors.Is(errSettle, ErrUserNotFound) && !errors.Is(errSettle, ErrDowngradeRejected) {
			entry.WithError(errSettle).Error("manual upgrade failed")
		} else {
			entry.WithError(errSettle).Warn("manual upgrade refused")
		}
		return nil, errSettle
	}
	if out.DowngradeRejected {
		entry.Warn("manual upgrade would downgrade lifetime account")
		return nil, ErrDowngradeRejected
	}
	if !out.Duplicate {
		s.cache(ctx, st)
	}
	entry.WithField("duplicate", out.Duplicate).Info("manual upgrade applied")
	return &ManualUpgradeResult{
		UserTier:              out.Activation.User.Tier,
		SubscriptionExpiresAt: out.Activation.User.SubscriptionExpiresAt,
		Duplicate:             out.Duplicate,
	}, nil
}
