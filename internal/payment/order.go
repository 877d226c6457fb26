package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"github.com/gaiya-app/gaiya-cloud/internal/stripepay"
	"github.com/gaiya-app/gaiya-cloud/internal/validate"
	"github.com/gaiya-app/gaiya-cloud/internal/zpay"
	"github.com/shopspring/decimal"
)

// OrderParam is the opaque parameter attached to provider orders so a
// notification can be traced back to its user and plan.
type OrderParam struct {
	UserID   string `json:"user_id"`
	PlanType string `json:"plan_type"`
}

// Encode renders p as compact JSON.
func (p OrderParam) Encode() string {
	raw, _ := json.Marshal(p)
	return string(raw)
}

// DecodeOrderParam parses and validates a param blob.
func DecodeOrderParam(raw string) (OrderParam, error) {
	var p OrderParam
	if errUnmarshal := json.Unmarshal([]byte(raw), &p); errUnmarshal != nil {
		return OrderParam{}, fmt.Errorf("payment: decode param: %w", errUnmarshal)
	}
	userID, errUser := validate.UserID(p.UserID)
	if errUser != nil {
		return OrderParam{}, errUser
	}
	p.UserID = userID
	return p, nil
}

// CreateOrderInput is a purchase request.
type CreateOrderInput struct {
	UserID   string
	PlanType string
	PayType  string
	ClientIP string
}

// CreateOrderResult is what the client needs to complete payment.
type CreateOrderResult struct {
	OutTradeNo string          `json:"out_trade_no"`
	PaymentURL string          `json:"payment_url"`
	QRCode     string          `json:"qrcode"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	PlanName   string          `json:"plan_name"`
	PayType    string          `json:"pay_type"`
}

// CreateOrder validates the request and registers an order with the
// provider chosen by PayType. Nothing is written to the ledger.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	userID, errUser := validate.UserID(in.UserID)
	if errUser != nil {
		return nil, errUser
	}
	price, errPlan := validate.PlanType(in.PlanType, s.catalog().Prices())
	if errPlan != nil {
		return nil, errPlan
	}
	payType, errPayType := validate.PayType(in.PayType)
	if errPayType != nil {
		return nil, errPayType
	}
	plan, _ := s.catalog().Lookup(in.PlanType)

	user, errLoad := s.loadUser(ctx, userID)
	if errLoad != nil {
		return nil, errLoad
	}
	if user.Tier == models.TierLifetime && plan.Tier != models.TierLifetime {
		return nil, ErrDowngradeRejected
	}

	outTradeNo := NewOrderID(userID, s.now())
	param := OrderParam{UserID: userID, PlanType: plan.ID}
	result := &CreateOrderResult{
		OutTradeNo: outTradeNo,
		Amount:     price,
		Currency:   s.currency,
		PlanName:   plan.Name,
		PayType:    payType,
	}
	log := logger.WithFields(logging.Fields(logging.UserID(userID), logging.OrderID(outTradeNo))).
		WithField("plan_type", plan.ID).WithField("pay_type", payType)

	if payType == validate.PayTypeStripe {
		if s.stripe == nil {
			return nil, ErrProviderUnavailable
		}
		checkout, errCheckout := s.stripe.CreateCheckout(ctx, stripepay.CheckoutRequest{
			OutTradeNo: outTradeNo,
			UserID:     userID,
			PlanType:   plan.ID,
			PlanName:   plan.Name,
			Amount:     price,
			Currency:   s.currency,
		})
		if errCheckout != nil {
			if errors.Is(errCheckout, stripepay.ErrNotConfigured) {
				return nil, ErrProviderUnavailable
			}
			log.WithError(errCheckout).Error("stripe checkout failed")
			return nil, upstreamError(errCheckout)
		}
		result.PaymentURL = checkout.URL
		log.Info("order created")
		return result, nil
	}

	if s.zpay == nil {
		return nil, ErrProviderUnavailable
	}
	resp, errCreate := s.zpay.CreateOrder(ctx, zpay.CreateOrderRequest{
		OutTradeNo: outTradeNo,
		Name:       plan.Name,
		Money:      price,
		PayType:    payType,
		ClientIP:   in.ClientIP,
		Param:      param.Encode(),
	})
	if errCreate != nil {
		if errors.Is(errCreate, zpay.ErrNotConfigured) {
			return nil, ErrProviderUnavailable
		}
		log.WithError(errCreate).Error("zpay create order failed")
		return nil, upstreamError(errCreate)
	}
	result.PaymentURL = resp.PayURL
	result.QRCode = resp.QRCode
	log.Info("order created")
	return result, nil
}
