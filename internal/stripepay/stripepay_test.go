package stripepay

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test"

func signedHeader(payload []byte, secret string, at time.Time) string {
	sig := webhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(sig))
}

func TestParseWebhook_CheckoutCompleted(t *testing.T) {
	c := NewClient(Config{WebhookSecret: testWebhookSecret}, nil)
	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"api_version": "2020-08-27",
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"client_reference_id": "GAIYA1700000000000abcdef",
			"payment_status": "paid",
			"amount_total": 2900,
			"currency": "cny",
			"metadata": {"user_id": "3f1c2a9e-1b2c-4d3e-8f90-0123456789ab", "plan_type": "pro_monthly"}
		}}
	}`)

	completion, err := c.ParseWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now()))
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if completion.OutTradeNo != "GAIYA1700000000000abcdef" || completion.PlanType != "pro_monthly" {
		t.Fatalf("unexpected completion %+v", completion)
	}
	if !completion.Amount.Equal(decimal.RequireFromString("29.00")) || completion.Currency != "CNY" {
		t.Fatalf("unexpected amount %s %s", completion.Amount, completion.Currency)
	}
}

func TestParseWebhook_BadSignature(t *testing.T) {
	c := NewClient(Config{WebhookSecret: testWebhookSecret}, nil)
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)

	_, err := c.ParseWebhook(payload, signedHeader(payload, "whsec_other", time.Now()))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestParseWebhook_IgnoresOtherEvents(t *testing.T) {
	c := NewClient(Config{WebhookSecret: testWebhookSecret}, nil)
	payload := []byte(`{"id":"evt_2","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1","object":"invoice"}}}`)

	_, err := c.ParseWebhook(payload, signedHeader(payload, testWebhookSecret, time.Now()))
	if !errors.Is(err, ErrIgnoredEvent) {
		t.Fatalf("expected ErrIgnoredEvent, got %v", err)
	}
}

func TestCreateCheckout(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = r.ParseForm()
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
	}))
	defer srv.Close()

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	c := NewClient(Config{SecretKey: "sk_test_1", SuccessURL: "https://gaiya.cn/ok", CancelURL: "https://gaiya.cn/cancel"}, backend)

	checkout, err := c.CreateCheckout(context.Background(), CheckoutRequest{
		OutTradeNo: "GAIYA1",
		UserID:     "3f1c2a9e-1b2c-4d3e-8f90-0123456789ab",
		PlanType:   "pro_yearly",
		PlanName:   "Gaiya Pro Yearly",
		Amount:     decimal.RequireFromString("199.00"),
		Currency:   "CNY",
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if checkout.URL != "https://checkout.stripe.com/c/pay/cs_test_1" {
		t.Fatalf("unexpected checkout %+v", checkout)
	}
	if form["line_items[0][price_data][unit_amount]"] != "19900" || form["client_reference_id"] != "GAIYA1" {
		t.Fatalf("unexpected form %v", form)
	}
	if form["metadata[plan_type]"] != "pro_yearly" {
		t.Fatalf("expected plan metadata, got %v", form)
	}
}

func TestCreateCheckout_NotConfigured(t *testing.T) {
	c := NewClient(Config{}, nil)
	if _, err := c.CreateCheckout(context.Background(), CheckoutRequest{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
