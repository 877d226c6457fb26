// Package stripepay creates Stripe Checkout sessions for card payments and
// verifies Stripe webhooks.
package stripepay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
)

const eventCheckoutCompleted = "checkout.session.completed"

var (
	// ErrNotConfigured indicates missing Stripe credentials.
	ErrNotConfigured = errors.New("stripepay: not configured")
	// ErrInvalidSignature indicates a webhook that failed verification.
	ErrInvalidSignature = errors.New("stripepay: invalid webhook signature")
	// ErrIgnoredEvent indicates a verified event that needs no action.
	ErrIgnoredEvent = errors.New("stripepay: event ignored")
)

// Config holds Stripe credentials and redirect URLs.
type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// Client wraps the Stripe Checkout API.
type Client struct {
	cfg      Config
	sessions *session.Client
}

// NewClient constructs a Client. A nil backend uses the live Stripe API.
func NewClient(cfg Config, backend stripe.Backend) *Client {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Client{
		cfg:      cfg,
		sessions: &session.Client{B: backend, Key: cfg.SecretKey},
	}
}

// CheckoutRequest describes a one-off plan purchase.
type CheckoutRequest struct {
	OutTradeNo string
	UserID     string
	PlanType   string
	PlanName   string
	Amount     decimal.Decimal
	Currency   string
}

// Checkout is a created Checkout session.
type Checkout struct {
	SessionID string
	URL       string
}

// CreateCheckout creates a payment-mode Checkout session. The merchant order
// id travels as client_reference_id; user and plan travel as metadata.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if strings.TrimSpace(c.cfg.SecretKey) == "" {
		return nil, ErrNotConfigured
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(c.cfg.SuccessURL),
		CancelURL:         stripe.String(c.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.OutTradeNo),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.Amount.Shift(2).Round(0).IntPart()),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.PlanName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("user_id", req.UserID)
	params.AddMetadata("plan_type", req.PlanType)
	params.AddMetadata("out_trade_no", req.OutTradeNo)

	sess, err := c.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripepay: create checkout session: %w", err)
	}
	return &Checkout{SessionID: sess.ID, URL: sess.URL}, nil
}

// Completion is a paid Checkout session extracted from a webhook.
type Completion struct {
	EventID    string
	SessionID  string
	OutTradeNo string
	UserID     string
	PlanType   string
	Amount     decimal.Decimal
	Currency   string
}

// ParseWebhook verifies payload against the Stripe-Signature header and
// extracts a paid checkout. Other event types return ErrIgnoredEvent.
func (c *Client) ParseWebhook(payload []byte, signatureHeader string) (*Completion, error) {
	if strings.TrimSpace(c.cfg.WebhookSecret) == "" {
		return nil, ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if string(event.Type) != eventCheckoutCompleted {
		return nil, ErrIgnoredEvent
	}

	var sess stripe.CheckoutSession
	if errUnmarshal := json.Unmarshal(event.Data.Raw, &sess); errUnmarshal != nil {
		return nil, fmt.Errorf("stripepay: decode checkout session: %w", errUnmarshal)
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, ErrIgnoredEvent
	}
	outTradeNo := sess.ClientReferenceID
	if outTradeNo == "" {
		outTradeNo = sess.Metadata["out_trade_no"]
	}
	return &Completion{
		EventID:    event.ID,
		SessionID:  sess.ID,
		OutTradeNo: outTradeNo,
		UserID:     sess.Metadata["user_id"],
		PlanType:   sess.Metadata["plan_type"],
		Amount:     decimal.New(sess.AmountTotal, -2),
		Currency:   strings.ToUpper(string(sess.Currency)),
	}, nil
}
