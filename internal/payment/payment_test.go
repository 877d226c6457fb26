package payment

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/db/dbtest"
	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"github.com/gaiya-app/gaiya-cloud/internal/stripepay"
	"github.com/gaiya-app/gaiya-cloud/internal/subscription"
	"github.com/gaiya-app/gaiya-cloud/internal/zpay"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/gorm"
)

const (
	userA         = "3f1c2a9e-1b2c-4d3e-8f90-0123456789ab"
	userB         = "9d2e4f60-7a8b-4c9d-8e0f-112233445566"
	merchantPID   = "1001"
	merchantKey   = "merchant-secret"
	stripeWebhook = "whsec_test"
)

type fakeProvider struct {
	mu   sync.Mutex
	paid map[string]bool
}

func (f *fakeProvider) markPaid(orderID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paid[orderID] = true
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/mapi.php":
		_ = r.ParseForm()
		fmt.Fprintf(w, `{"code":1,"trade_no":"Z%s","payurl":"https://pay.example/%s","qrcode":"weixin://wxpay/%s"}`,
			r.PostForm.Get("out_trade_no"), r.PostForm.Get("out_trade_no"), r.PostForm.Get("out_trade_no"))
	case "/api.php":
		orderID := r.URL.Query().Get("out_trade_no")
		f.mu.Lock()
		paid := f.paid[orderID]
		f.mu.Unlock()
		if !paid {
			_, _ = w.Write([]byte(`{"code":-1,"msg":"order not found"}`))
			return
		}
		fmt.Fprintf(w, `{"code":1,"out_trade_no":%q,"trade_no":"Z%s","type":"alipay","money":"29.00","status":1,"param":"{}"}`, orderID, orderID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type harness struct {
	svc      *Service
	conn     *gorm.DB
	provider *fakeProvider
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	for _, u := range []models.User{
		{ID: userA, Email: "alice@example.com", PasswordHash: "x", Tier: models.TierFree, IsActive: true},
		{ID: userB, Email: "bob@example.com", PasswordHash: "x", Tier: models.TierFree, IsActive: true},
	} {
		if errCreate := conn.Create(&u).Error; errCreate != nil {
			t.Fatalf("create user: %v", errCreate)
		}
	}
	provider := &fakeProvider{paid: map[string]bool{}}
	srv := httptest.NewServer(provider)
	t.Cleanup(srv.Close)

	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	nowFn := func() time.Time { return now }
	subs := subscription.NewService(subscription.NewCatalog(nil, "CNY"), nowFn)
	zp := zpay.NewClient(zpay.Config{PID: merchantPID, Key: merchantKey, APIBase: srv.URL}, srv.Client())
	sp := stripepay.NewClient(stripepay.Config{WebhookSecret: stripeWebhook}, nil)
	svc := NewService(conn, subs, zp, sp, Options{Currency: "CNY", Now: nowFn})
	return &harness{svc: svc, conn: conn, provider: provider, now: now}
}

func (h *harness) user(t *testing.T, id string) models.User {
	t.Helper()
	var u models.User
	if errFind := h.conn.First(&u, "id = ?", id).Error; errFind != nil {
		t.Fatalf("load user: %v", errFind)
	}
	return u
}

func (h *harness) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	if errCount := h.conn.Model(model).Count(&n).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	return n
}

func notifyParams(orderID, userID, plan, money string) map[string]string {
	params := map[string]string{
		"pid":          merchantPID,
		"trade_no":     "Z" + orderID,
		"out_trade_no": orderID,
		"type":         "alipay",
		"name":         "Gaiya Pro Monthly",
		"money":        money,
		"trade_status": zpay.TradeSuccess,
		"param":        OrderParam{UserID: userID, PlanType: plan}.Encode(),
	}
	params["sign"] = zpay.Sign(params, merchantKey)
	params["sign_type"] = "MD5"
	return params
}

func TestNewOrderID(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	id := NewOrderID(userA, now)
	if !strings.HasPrefix(id, "GAIYA1700000000000") || len(id) != len("GAIYA1700000000000")+6 {
		t.Fatalf("unexpected order id %q", id)
	}
	if NewOrderID(userB, now) == id {
		t.Fatalf("expected user hash to distinguish orders")
	}
}

func TestCreateOrder(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: userA, PlanType: "pro_monthly", ClientIP: "203.0.113.9"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if !strings.HasPrefix(res.OutTradeNo, "GAIYA") || res.PayType != "alipay" {
		t.Fatalf("unexpected order %+v", res)
	}
	if res.PaymentURL != "https://pay.example/"+res.OutTradeNo || res.QRCode == "" {
		t.Fatalf("expected provider urls, got %+v", res)
	}
	if !res.Amount.Equal(decimal.RequireFromString("29")) || res.PlanName != "Gaiya Pro Monthly" {
		t.Fatalf("unexpected amount %s %s", res.Amount, res.PlanName)
	}
	if h.count(t, &models.Payment{}) != 0 {
		t.Fatalf("expected no ledger rows on order creation")
	}

	if _, err = h.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: "nope", PlanType: "pro_monthly"}); err == nil {
		t.Fatalf("expected invalid user id to be rejected")
	}
	if _, err = h.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: userA, PlanType: "weekly"}); err == nil {
		t.Fatalf("expected unknown plan to be rejected")
	}
	if _, err = h.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: "00000000-0000-4000-8000-000000000000", PlanType: "pro_monthly"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestWebhookThenPollFromCache(t *testing.T) {
	h := newHarness(t)
	order, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{UserID: userA, PlanType: "pro_monthly"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if !h.svc.HandleZPayNotify(context.Background(), notifyParams(order.OutTradeNo, userA, "pro_monthly", "29.00")) {
		t.Fatalf("expected webhook success")
	}

	status, err := h.svc.CheckOrder(context.Background(), order.OutTradeNo)
	if err != nil {
		t.Fatalf("check order: %v", err)
	}
	if status.Status != OrderStatusPaid || status.Source != "cache" || status.Money != "29.00" {
		t.Fatalf("expected paid from cache, got %+v", status)
	}
	if !strings.Contains(string(status.Param), userA) {
		t.Fatalf("expected param in cached answer, got %s", status.Param)
	}

	u := h.user(t, userA)
	if u.Tier != models.TierPro || u.SubscriptionExpiresAt == nil || !u.SubscriptionExpiresAt.Equal(h.now.Add(30*24*time.Hour)) {
		t.Fatalf("expected pro for 30 days, got %+v", u)
	}
}

func TestWebhookBadSignature(t *testing.T) {
	h := newHarness(t)
	params := notifyParams("GAIYA1700000000000abcdef", userA, "pro_monthly", "29.00")
	sign := []byte(params["sign"])
	if sign[0] == 'a' {
		sign[0] = 'b'
	} else {
		sign[0] = 'a'
	}
	params["sign"] = string(sign)

	if h.svc.HandleZPayNotify(context.Background(), params) {
		t.Fatalf("expected corrupted signature to fail")
	}
	if h.user(t, userA).Tier != models.TierFree {
		t.Fatalf("expected tier unchanged")
	}
	if h.count(t, &models.PaymentCache{}) != 0 || h.count(t, &models.Payment{}) != 0 {
		t.Fatalf("expected no rows written")
	}
}

func TestWebhookRejectsUnsettledAndWrongAmount(t *testing.T) {
	h := newHarness(t)
	params := notifyParams("GAIYA1", userA, "pro_monthly", "29.00")
	params["trade_status"] = "WAIT_BUYER_PAY"
	params["sign"] = zpay.Sign(params, merchantKey)
	if h.svc.HandleZPayNotify(context.Background(), params) {
		t.Fatalf("expected unsettled trade to fail")
	}
	if h.svc.HandleZPayNotify(context.Background(), notifyParams("GAIYA2", userA, "pro_monthly", "0.01")) {
		t.Fatalf("expected underpaid trade to fail")
	}
	if h.count(t, &models.Payment{}) != 0 {
		t.Fatalf("expected no ledger rows")
	}
}

func TestWebhookRetryIsIdempotent(t *testing.T) {
	h := newHarness(t)
	params := notifyParams("GAIYA1700000000000abcdef", userA, "pro_monthly", "29.00")
	if !h.svc.HandleZPayNotify(context.Background(), params) {
		t.Fatalf("expected first webhook success")
	}
	first := h.user(t, userA)

	later := h.now.Add(5 * time.Minute)
	h.svc.now = func() time.Time { return later }
	if !h.svc.HandleZPayNotify(context.Background(), params) {
		t.Fatalf("expected retried webhook success")
	}
	second := h.user(t, userA)
	if h.count(t, &models.Payment{}) != 1 || h.count(t, &models.Subscription{}) != 1 {
		t.Fatalf("expected a single payment and subscription")
	}
	if !second.SubscriptionExpiresAt.Equal(*first.SubscriptionExpiresAt) || second.Tier != first.Tier {
		t.Fatalf("expected retry to leave the account unchanged")
	}
}

func TestWebhookLifetimeDowngradeRejected(t *testing.T) {
	h := newHarness(t)
	if errUpdate := h.conn.Model(&models.User{}).Where("id = ?", userA).
		Updates(map[string]any{"tier": models.TierLifetime, "subscription_expires_at": nil}).Error; errUpdate != nil {
		t.Fatalf("seed lifetime: %v", errUpdate)
	}
	hook := test.NewGlobal()
	defer hook.Reset()

	if !h.svc.HandleZPayNotify(context.Background(), notifyParams("GAIYA1700000000000abcdef", userA, "pro_monthly", "29.00")) {
		t.Fatalf("expected the provider to be acknowledged")
	}
	u := h.user(t, userA)
	if u.Tier != models.TierLifetime || u.SubscriptionExpiresAt != nil {
		t.Fatalf("expected lifetime account untouched, got %+v", u)
	}
	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "lifetime") {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected a warning about the rejected downgrade")
	}
}

func TestCheckOrder_Provider(t *testing.T) {
	h := newHarness(t)
	status, err := h.svc.CheckOrder(context.Background(), "GAIYA-unknown")
	if err != nil {
		t.Fatalf("check order: %v", err)
	}
	if status.Status != OrderStatusUnpaid {
		t.Fatalf("expected unpaid for unknown order, got %+v", status)
	}

	h.provider.markPaid("GAIYA-paid")
	status, err = h.svc.CheckOrder(context.Background(), "GAIYA-paid")
	if err != nil {
		t.Fatalf("check order: %v", err)
	}
	if status.Status != OrderStatusPaid || status.Source != "provider" {
		t.Fatalf("expected paid from provider, got %+v", status)
	}
	if h.count(t, &models.Payment{}) != 0 || h.user(t, userA).Tier != models.TierFree {
		t.Fatalf("expected polling to write nothing")
	}

	if _, err = h.svc.CheckOrder(context.Background(), "  "); err == nil {
		t.Fatalf("expected blank order id to be rejected")
	}
}

func TestManualUpgrade(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.ManualUpgrade(context.Background(), ManualUpgradeInput{UserID: userA, PlanType: "pro_yearly", OutTradeNo: "GAIYA1"})
	if err != nil {
		t.Fatalf("manual upgrade: %v", err)
	}
	if res.UserTier != models.TierPro || res.SubscriptionExpiresAt == nil || !res.SubscriptionExpiresAt.Equal(h.now.Add(365*24*time.Hour)) {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.count(t, &models.Subscription{}) != 1 {
		t.Fatalf("expected a subscription row")
	}

	again, err := h.svc.ManualUpgrade(context.Background(), ManualUpgradeInput{UserID: userA, PlanType: "pro_yearly", OutTradeNo: "GAIYA1"})
	if err != nil || !again.Duplicate {
		t.Fatalf("expected idempotent repeat, got %+v %v", again, err)
	}
	if h.count(t, &models.Payment{}) != 1 {
		t.Fatalf("expected a single payment row")
	}

	if _, err = h.svc.ManualUpgrade(context.Background(), ManualUpgradeInput{UserID: userB, PlanType: "pro_yearly", OutTradeNo: "GAIYA1"}); !errors.Is(err, ErrOrderOwnedByOtherUser) {
		t.Fatalf("expected ErrOrderOwnedByOtherUser, got %v", err)
	}
}

func TestWebhookThenManualUpgradeIsNoop(t *testing.T) {
	h := newHarness(t)
	if !h.svc.HandleZPayNotify(context.Background(), notifyParams("GAIYA1", userA, "pro_monthly", "29.00")) {
		t.Fatalf("expected webhook success")
	}
	before := h.user(t, userA)

	h.svc.now = func() time.Time { return h.now.Add(time.Hour) }
	res, err := h.svc.ManualUpgrade(context.Background(), ManualUpgradeInput{UserID: userA, PlanType: "pro_monthly", OutTradeNo: "GAIYA1"})
	if err != nil {
		t.Fatalf("manual upgrade: %v", err)
	}
	after := h.user(t, userA)
	if !res.Duplicate || !after.SubscriptionExpiresAt.Equal(*before.SubscriptionExpiresAt) {
		t.Fatalf("expected manual upgrade to be a no-op after webhook")
	}
	status, _ := h.svc.CheckOrder(context.Background(), "GAIYA1")
	if status.TradeNo != "ZGAIYA1" {
		t.Fatalf("expected cached webhook trade number kept, got %q", status.TradeNo)
	}
}

func TestManualUpgradeRejectsLifetimeDowngrade(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.ManualUpgrade(context.Background(), ManualUpgradeInput{UserID: userA, PlanType: "lifetime", OutTradeNo: "GAIYA1"}); err != nil {
		t.Fatalf("lifetime upgrade: %v", err)
	}
	if _, err := h.svc.ManualUpgrade(context.Background(), ManualUpgradeInput{UserID: userA, PlanType: "pro_monthly", OutTradeNo: "GAIYA2"}); !errors.Is(err, ErrDowngradeRejected) {
		t.Fatalf("expected ErrDowngradeRejected, got %v", err)
	}
	if u := h.user(t, userA); u.Tier != models.TierLifetime || u.SubscriptionExpiresAt != nil {
		t.Fatalf("expected lifetime kept, got %+v", u)
	}
	var recorded int64
	if errCount := h.conn.Model(&models.Payment{}).Where("order_id = ?", "GAIYA2").Count(&recorded).Error; errCount != nil || recorded != 0 {
		t.Fatalf("expected no ledger row for refused order, got %d %v", recorded, errCount)
	}
	status, err := h.svc.CheckOrder(context.Background(), "GAIYA2")
	if err != nil || status.Status != OrderStatusUnpaid {
		t.Fatalf("expected refused order to poll unpaid, got %+v %v", status, err)
	}
}

func TestLedgerPollReportsPayChannel(t *testing.T) {
	h := newHarness(t)
	if !h.svc.HandleZPayNotify(context.Background(), notifyParams("GAIYA1", userA, "pro_monthly", "29.00")) {
		t.Fatalf("expected webhook success")
	}
	if errDelete := h.conn.Where("out_trade_no = ?", "GAIYA1").Delete(&models.PaymentCache{}).Error; errDelete != nil {
		t.Fatalf("drop cache: %v", errDelete)
	}
	status, err := h.svc.CheckOrder(context.Background(), "GAIYA1")
	if err != nil {
		t.Fatalf("check order: %v", err)
	}
	if status.Source != "ledger" || status.Type != "alipay" || status.TradeNo != "ZGAIYA1" {
		t.Fatalf("expected ledger answer with pay channel, got %+v", status)
	}
}

func stripeEvent(t *testing.T, orderID, userID, plan string, amount int64) ([]byte, string) {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_1", "object": "event", "type": "checkout.session.completed", "api_version": "2020-08-27",
		"data": {"object": {
			"id": "cs_test_1", "object": "checkout.session", "client_reference_id": %q,
			"payment_status": "paid", "amount_total": %d, "currency": "cny",
			"metadata": {"user_id": %q, "plan_type": %q}
		}}
	}`, orderID, amount, userID, plan))
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, stripeWebhook)
	return payload, fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func TestStripeWebhook(t *testing.T) {
	h := newHarness(t)
	payload, sig := stripeEvent(t, "GAIYA9", userA, "pro_yearly", 19900)

	if err := h.svc.HandleStripeWebhook(context.Background(), payload, sig); err != nil {
		t.Fatalf("stripe webhook: %v", err)
	}
	if err := h.svc.HandleStripeWebhook(context.Background(), payload, sig); err != nil {
		t.Fatalf("repeated stripe webhook: %v", err)
	}
	if h.count(t, &models.Payment{}) != 1 {
		t.Fatalf("expected a single payment")
	}
	var p models.Payment
	h.conn.First(&p)
	if p.Provider != models.PaymentProviderStripe || p.ProviderTradeNo != "cs_test_1" {
		t.Fatalf("unexpected payment %+v", p)
	}
	if h.user(t, userA).Tier != models.TierPro {
		t.Fatalf("expected pro after stripe checkout")
	}

	if err := h.svc.HandleStripeWebhook(context.Background(), payload, "t=1,v1=deadbeef"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}
