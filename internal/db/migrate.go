package db

import (
	"fmt"

	"github.com/gaiya-app/gaiya-cloud/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.EmailVerification{},
		&models.Payment{},
		&models.Subscription{},
		&models.PaymentCache{},
		&models.RateLimitEntry{},
		&models.QuotaUsage{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_subscriptions_user_active",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_subscriptions_user_active
				ON subscriptions (user_id)
				WHERE status = 'active'
			`,
		},
		{
			name: "idx_payments_user_id_created_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_payments_user_id_created_at
				ON payments (user_id, created_at DESC)
			`,
		},
		{
			name: "idx_email_verifications_email_created_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_email_verifications_email_created_at
				ON email_verifications (email, created_at DESC)
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}
	return nil
}
