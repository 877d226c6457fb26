package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"github.com/gaiya-app/gaiya-cloud/internal/stripepay"
	"github.com/gaiya-app/gaiya-cloud/internal/validate"
	"github.com/gaiya-app/gaiya-cloud/internal/zpay"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// HandleZPayNotify processes a Z-Pay notification and reports whether the
// provider should be told "success". A false return makes the provider retry.
func (s *Service) HandleZPayNotify(ctx context.Context, params map[string]string) bool {
	entry := logger.WithFields(logging.Fields(logging.OrderID(params["out_trade_no"]))).
		WithField("trade_no", params["trade_no"]).
		WithField("trade_status", params["trade_status"])

	if s.zpay == nil {
		entry.Error("zpay notify received but provider is not configured")
		return false
	}
	if !s.zpay.VerifyNotify(params) {
		entry.WithField("sign", params["sign"]).Warn("zpay notify signature mismatch")
		return false
	}
	if params["trade_status"] != zpay.TradeSuccess {
		entry.Info("zpay notify for unsettled trade")
		return false
	}
	orderID := normalizeOrderID(params["out_trade_no"])
	if orderID == "" {
		entry.Warn("zpay notify without out_trade_no")
		return false
	}
	param, errParam := DecodeOrderParam(params["param"])
	if errParam != nil {
		entry.WithError(errParam).Warn("zpay notify with unreadable param")
		return false
	}
	entry = entry.WithFields(logging.Fields(logging.UserID(param.UserID))).WithField("plan_type", param.PlanType)

	money, errMoney := decimal.NewFromString(strings.TrimSpace(params["money"]))
	if errMoney != nil {
		entry.WithField("money", params["money"]).Warn("zpay notify with unreadable money")
		return false
	}
	if errAmount := validate.PaymentAmount(param.PlanType, money, s.catalog().Prices()); errAmount != nil {
		entry.WithError(errAmount).WithField("money", money.StringFixed(2)).Warn("zpay notify amount rejected")
		return false
	}

	st := settlement{
		Provider: models.PaymentProviderZPay,
		OrderID:  orderID,
		TradeNo:  params["trade_no"],
		UserID:   param.UserID,
		PlanType: param.PlanType,
		Amount:   money,
		PayType:  params["type"],
		Param:    param.Encode(),
	}
	if !s.finishWebhook(ctx, entry, st) {
		return false
	}
	s.cache(ctx, st)
	return true
}

// HandleStripeWebhook processes a Stripe event. Events other than a paid
// checkout are acknowledged without effect.
func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if s.stripe == nil {
		return ErrProviderUnavailable
	}
	completion, errParse := s.stripe.ParseWebhook(payload, signatureHeader)
	switch {
	case errors.Is(errParse, stripepay.ErrIgnoredEvent):
		return nil
	case errors.Is(errParse, stripepay.ErrInvalidSignature):
		logger.WithError(errParse).Warn("stripe webhook signature mismatch")
		return ErrInvalidSignature
	case errors.Is(errParse, stripepay.ErrNotConfigured):
		return ErrProviderUnavailable
	case errParse != nil:
		return errParse
	}

	entry := logger.WithFields(logging.Fields(logging.OrderID(completion.OutTradeNo))).
		WithField("session", completion.SessionID).WithField("plan_type", completion.PlanType)
	userID, errUser := validate.UserID(completion.UserID)
	if errUser != nil || completion.OutTradeNo == "" {
		entry.Warn("stripe checkout without order metadata")
		return nil
	}
	entry = entry.WithFields(logging.Fields(logging.UserID(userID)))
	if errAmount := validate.PaymentAmount(completion.PlanType, completion.Amount, s.catalog().Prices()); errAmount != nil {
		entry.WithError(errAmount).Warn("stripe checkout amount rejected")
		return nil
	}

	st := settlement{
		Provider: models.PaymentProviderStripe,
		OrderID:  completion.OutTradeNo,
		TradeNo:  completion.SessionID,
		UserID:   userID,
		PlanType: completion.PlanType,
		Amount:   completion.Amount,
		Currency: completion.Currency,
		PayType:  "stripe",
	}
	if !s.finishWebhook(ctx, entry, st) {
		return errors.New("payment: stripe settlement failed")
	}
	s.cache(ctx, st)
	return nil
}

func (s *Service) finishWebhook(ctx context.Context, entry *log.Entry, st settlement) bool {
	out, errSettle := s.settle(ctx, st)
	if errSettle != nil {
		logging.Critical(entry.WithError(errSettle), "payment settlement failed")
		return false
	}
	switch {
	case out.DowngradeRejected:
		entry.Warn("payment recorded but lifetime account kept its tier")
	case out.Duplicate:
		entry.Info("duplicate notification acknowledged")
	default:
		entry.WithField("tier", out.Activation.User.Tier).Info("payment settled")
	}
	return true
}
