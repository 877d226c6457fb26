// Package payment creates orders with the payment providers and reconciles
// their outcomes (webhooks, client polls, and manual upgrades) into the
// payment ledger and the user's subscription.
package payment

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/db"
	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"github.com/gaiya-app/gaiya-cloud/internal/stripepay"
	"github.com/gaiya-app/gaiya-cloud/internal/subscription"
	"github.com/gaiya-app/gaiya-cloud/internal/zpay"
	"gorm.io/gorm"
)

const orderIDPrefix = "GAIYA"

var (
	// ErrUserNotFound indicates an order for an unknown account.
	ErrUserNotFound = errors.New("payment: user not found")
	// ErrOrderOwnedByOtherUser indicates an order already settled for someone else.
	ErrOrderOwnedByOtherUser = errors.New("payment: order belongs to another user")
	// ErrDowngradeRejected indicates a pro purchase for a lifetime account.
	ErrDowngradeRejected = subscription.ErrDowngradeRejected
	// ErrProviderUnavailable indicates the requested provider is not configured.
	ErrProviderUnavailable = errors.New("payment: provider not configured")
	// ErrUpstream indicates a provider API failure.
	ErrUpstream = errors.New("payment: provider request failed")
	// ErrUpstreamTimeout indicates a provider API timeout.
	ErrUpstreamTimeout = errors.New("payment: provider request timed out")
	// ErrInvalidSignature indicates a webhook that failed verification.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
)

var logger = logging.Module("payment")

// ZPayGateway is the Z-Pay API used by Service.
type ZPayGateway interface {
	CreateOrder(ctx context.Context, req zpay.CreateOrderRequest) (*zpay.CreateOrderResponse, error)
	QueryOrder(ctx context.Context, outTradeNo string) (*zpay.Order, error)
	VerifyNotify(params map[string]string) bool
}

// StripeGateway is the Stripe API used by Service.
type StripeGateway interface {
	CreateCheckout(ctx context.Context, req stripepay.CheckoutRequest) (*stripepay.Checkout, error)
	ParseWebhook(payload []byte, signatureHeader string) (*stripepay.Completion, error)
}

// Options configures Service.
type Options struct {
	Currency string
	Now      func() time.Time
}

// Service implements order creation and reconciliation.
type Service struct {
	db       *gorm.DB
	subs     *subscription.Service
	zpay     ZPayGateway
	stripe   StripeGateway
	currency string
	now      func() time.Time
}

// NewService constructs a Service. A nil gateway disables that provider.
func NewService(conn *gorm.DB, subs *subscription.Service, zp ZPayGateway, sp StripeGateway, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Currency == "" {
		opts.Currency = "CNY"
	}
	return &Service{db: conn, subs: subs, zpay: zp, stripe: sp, currency: opts.Currency, now: opts.Now}
}

// NewOrderID returns GAIYA{unix ms}{md5(userID)[:6]}.
func NewOrderID(userID string, now time.Time) string {
	sum := md5.Sum([]byte(userID))
	return fmt.Sprintf("%s%d%s", orderIDPrefix, now.UnixMilli(), hex.EncodeToString(sum[:])[:6])
}

func (s *Service) catalog() *subscription.Catalog {
	return s.subs.Catalog()
}

func (s *Service) loadUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; errFind != nil {
		if db.IsNotFound(errFind) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("payment: load user: %w", errFind)
	}
	return &user, nil
}

func upstreamError(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}

func normalizeOrderID(raw string) string {
	return strings.TrimSpace(raw)
}
