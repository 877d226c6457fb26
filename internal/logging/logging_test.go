package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func newTestLogger(buf *bytes.Buffer, f *LineFormatter) *log.Logger {
	logger := log.New()
	logger.SetOutput(buf)
	logger.SetFormatter(f)
	logger.SetLevel(log.DebugLevel)
	return logger
}

func TestLineFormatter_Layout(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, &LineFormatter{})

	entry := logger.WithFields(log.Fields{ModuleKey: "payment", "plan_type": "pro_monthly", "amount": "29.00"})
	entry.Time = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	entry.Info("order created")

	got := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(got, "[2025-03-01T08:00:00.000Z] [INFO] [payment] order created") {
		t.Fatalf("unexpected layout: %q", got)
	}
	if !strings.HasSuffix(got, "| amount=29.00 | plan_type=pro_monthly") {
		t.Fatalf("expected sorted k=v pairs, got %q", got)
	}
}

func TestLineFormatter_RedactsPII(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, &LineFormatter{})

	logger.WithFields(Fields(
		Email("alice@example.com"),
		IP("203.0.113.42"),
		Token("eyJhbGciOiJIUzI1NiJ9.payload.sig"),
		UserID("3f1c2a9e-0000-4000-8000-00000000abcd"),
		OrderID("GAIYA1700000000000abcdef"),
	)).WithField(ModuleKey, "auth").Warn("signin failed")

	got := buf.String()
	for _, leaked := range []string{"alice@", "113.42", "payload.sig", "00000000abcd"} {
		if strings.Contains(got, leaked) {
			t.Fatalf("expected %q to be redacted, got %q", leaked, got)
		}
	}
	for _, want := range []string{"email=a***@example.com", "ip=203.0.***.***", "token=eyJh...sig***", "user_id=3f1c2a9e***", "order_id=GAIYA1700000000000abcdef", "[WARNING]"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %q", want, got)
		}
	}
}

func TestLineFormatter_VerboseSkipsRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, &LineFormatter{Verbose: true})

	logger.WithFields(Fields(Email("alice@example.com"))).Info("debug")

	if !strings.Contains(buf.String(), "email=alice@example.com") {
		t.Fatalf("expected raw email in verbose mode, got %q", buf.String())
	}
}

func TestCritical(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, &LineFormatter{CriticalOnly: true})

	logger.WithField(ModuleKey, "payment").Error("plain error")
	if buf.Len() != 0 {
		t.Fatalf("expected non-critical error to be suppressed, got %q", buf.String())
	}

	Critical(logger.WithField(ModuleKey, "payment").WithError(errors.New("db down")), "activation failed")
	got := buf.String()
	if !strings.Contains(got, "[CRITICAL] [payment] activation failed | error=db down") {
		t.Fatalf("unexpected critical line %q", got)
	}
}

func TestRedactRules(t *testing.T) {
	cases := []struct {
		key, value, want string
	}{
		{"email", "bob@x.io", "b***@x.io"},
		{"email", "not-an-email", "***"},
		{"client_ip", "2001:db8::1", "2001:db8:***"},
		{"remote_addr", "198.51.100.7:443", "198.51.***.***"},
		{"ip", "garbage", "***"},
		{"api_key", "short", "***"},
		{"password", "Password123", "Pass...123***"},
		{"user_id", "not-a-uuid", "not-a-uuid"},
		{"description", "zip code", "zip code"},
	}
	for _, tc := range cases {
		if got := Redact(tc.key, tc.value); got != tc.want {
			t.Fatalf("Redact(%q, %q) = %q, want %q", tc.key, tc.value, got, tc.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	level, criticalOnly, err := ParseLevel("WARNING")
	if err != nil || level != log.WarnLevel || criticalOnly {
		t.Fatalf("unexpected warning parse: %v %v %v", level, criticalOnly, err)
	}
	_, criticalOnly, err = ParseLevel("critical")
	if err != nil || !criticalOnly {
		t.Fatalf("expected critical-only, got %v %v", criticalOnly, err)
	}
	if _, _, err = ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
