package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	var vErr *Error
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *validate.Error, got %T (%v)", err, err)
	}
	return vErr.Reason
}

func TestEmail_Normalizes(t *testing.T) {
	got, err := Email("  Alice.Smith+tag@Example.COM ")
	if err != nil {
		t.Fatalf("expected valid email, got %v", err)
	}
	if got != "alice.smith+tag@example.com" {
		t.Fatalf("expected normalized email, got %q", got)
	}
}

func TestEmail_LengthBoundary(t *testing.T) {
	local := strings.Repeat("a", 64)
	domain := strings.Repeat("b", 63) + "." + strings.Repeat("c", 63) + "." + strings.Repeat("d", 57) + ".com"
	email := local + "@" + domain
	if len(email) != 254 {
		t.Fatalf("fixture length %d", len(email))
	}
	if _, err := Email(email); err != nil {
		t.Fatalf("expected 254-char email to pass, got %v", err)
	}

	tooLong := local + "@" + strings.Repeat("b", 63) + "." + strings.Repeat("c", 63) + "." + strings.Repeat("d", 58) + ".com"
	if reasonOf(t, func() error { _, err := Email(tooLong); return err }()) != ReasonEmailTooLong {
		t.Fatalf("expected 255-char email to fail on length")
	}
}

func TestEmail_Rejects(t *testing.T) {
	cases := []string{
		"",
		"plain",
		"a@@b.com",
		"a@b@c.com",
		"alice.@example.com",
		".alice@example.com",
		"al..ice@example.com",
		"alice@example",
		"alice@-example.com",
		"alice@example.c",
		"al ice@example.com",
		"älice@example.com",
		strings.Repeat("a", 65) + "@example.com",
	}
	for _, raw := range cases {
		if _, err := Email(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestPassword_Boundaries(t *testing.T) {
	if err := Password("Abcdef12"); err != nil {
		t.Fatalf("expected 8-char password to pass, got %v", err)
	}
	if reason := reasonOf(t, Password("Abcde12")); reason != ReasonPasswordShort {
		t.Fatalf("expected too short, got %s", reason)
	}
	long := "Aa1" + strings.Repeat("x", 125)
	if err := Password(long); err != nil {
		t.Fatalf("expected 128-char password to pass, got %v", err)
	}
	if reason := reasonOf(t, Password(long+"x")); reason != ReasonPasswordLong {
		t.Fatalf("expected too long, got %s", reason)
	}
}

func TestPassword_ReasonPerRule(t *testing.T) {
	cases := map[string]string{
		"":             ReasonRequired,
		"Abcd 1234":    ReasonPasswordSpace,
		"abcdefg1":     ReasonPasswordUpper,
		"ABCDEFG1":     ReasonPasswordLower,
		"Abcdefgh":     ReasonPasswordDigit,
		"Abcdef\t1234": ReasonPasswordSpace,
	}
	for pw, want := range cases {
		if got := reasonOf(t, Password(pw)); got != want {
			t.Fatalf("Password(%q) reason=%s, want %s", pw, got, want)
		}
	}
}

func TestUserID(t *testing.T) {
	got, err := UserID("3F1C2A9E-1B2C-4D3E-8F90-0123456789AB")
	if err != nil {
		t.Fatalf("expected uppercase uuid to pass, got %v", err)
	}
	if got != "3f1c2a9e-1b2c-4d3e-8f90-0123456789ab" {
		t.Fatalf("expected lowercased uuid, got %q", got)
	}
	for _, raw := range []string{"", "not-a-uuid", "3f1c2a9e1b2c4d3e8f900123456789ab", "3f1c2a9e-1b2c-4d3e-8f90-0123456789ag"} {
		if _, err := UserID(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestPaymentAmount(t *testing.T) {
	prices := DefaultPrices()
	if err := PaymentAmount(PlanProMonthly, decimal.RequireFromString("29"), prices); err != nil {
		t.Fatalf("expected exact amount to pass, got %v", err)
	}
	for _, near := range []string{"28.991", "29.009"} {
		if err := PaymentAmount(PlanProMonthly, decimal.RequireFromString(near), prices); err != nil {
			t.Fatalf("expected %s to be within a cent, got %v", near, err)
		}
	}
	if reason := reasonOf(t, PaymentAmount(PlanProMonthly, decimal.RequireFromString("28.99"), prices)); reason != ReasonAmountMismatch {
		t.Fatalf("expected amount mismatch, got %s", reason)
	}
	if reason := reasonOf(t, PaymentAmount("pro_weekly", decimal.RequireFromString("29.00"), prices)); reason != ReasonUnknownPlan {
		t.Fatalf("expected unknown plan, got %s", reason)
	}
}

func TestPricesWithOverrides(t *testing.T) {
	prices, err := DefaultPrices().WithOverrides(map[string]string{PlanProMonthly: "19.90"})
	if err != nil {
		t.Fatalf("expected override to apply, got %v", err)
	}
	if !prices[PlanProMonthly].Equal(decimal.RequireFromString("19.9")) {
		t.Fatalf("expected overridden price, got %s", prices[PlanProMonthly])
	}
	if !DefaultPrices()[PlanProMonthly].Equal(decimal.RequireFromString("29")) {
		t.Fatalf("expected defaults untouched")
	}
	if _, err := DefaultPrices().WithOverrides(map[string]string{"weekly": "1"}); err == nil {
		t.Fatalf("expected error for unknown plan override")
	}
}

func TestPayType(t *testing.T) {
	if got, _ := PayType(""); got != PayTypeAlipay {
		t.Fatalf("expected default alipay, got %q", got)
	}
	if got, _ := PayType("WXPAY"); got != PayTypeWxPay {
		t.Fatalf("expected wxpay, got %q", got)
	}
	if _, err := PayType("paypal"); err == nil {
		t.Fatalf("expected paypal to be rejected")
	}
}
