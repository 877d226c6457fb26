package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := Open("file:" + filepath.Join(t.TempDir(), "db.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestOpen_SQLiteDialect(t *testing.T) {
	conn := openTestDB(t)
	if !IsSQLite(conn) {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("expected migrate to be idempotent, got %v", errMigrate)
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestIsSQLiteDSN(t *testing.T) {
	cases := map[string]bool{
		"file:gaiya.db":                          true,
		"./data/gaiya.sqlite":                    true,
		"gaiya.db?cache=shared":                  true,
		"postgres://u:p@localhost:5432/gaiya":    false,
		"host=localhost user=gaiya dbname=gaiya": false,
	}
	for dsn, want := range cases {
		if got := isSQLiteDSN(dsn); got != want {
			t.Fatalf("isSQLiteDSN(%q) = %v, want %v", dsn, got, want)
		}
	}
}

func TestIsUniqueViolation_PaymentOrder(t *testing.T) {
	conn := openTestDB(t)
	payment := models.Payment{
		UserID:   "3f1c2a9e-1b2c-4d3e-8f90-0123456789ab",
		Provider: models.PaymentProviderZPay,
		OrderID:  "GAIYA1",
		Amount:   decimal.RequireFromString("29.00"),
		Currency: "CNY",
		PlanType: "pro_monthly",
		Status:   models.PaymentStatusCompleted,
	}
	if err := conn.Create(&payment).Error; err != nil {
		t.Fatalf("create payment: %v", err)
	}
	dup := payment
	dup.ID = 0
	err := conn.Create(&dup).Error
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	other := payment
	other.ID = 0
	other.Provider = models.PaymentProviderStripe
	if errOther := conn.Create(&other).Error; errOther != nil {
		t.Fatalf("expected same order id under another provider to be allowed, got %v", errOther)
	}
}

func TestIsUniqueViolation_Postgres(t *testing.T) {
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("expected pg 23505 to be a unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("expected foreign key violation not to match")
	}
	if IsUniqueViolation(errors.New("boom")) || IsUniqueViolation(nil) {
		t.Fatalf("expected unrelated errors not to match")
	}
}
