// Package app wires configuration, storage, services, and routes into the
// running API server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/aiproxy"
	"github.com/gaiya-app/gaiya-cloud/internal/auth"
	"github.com/gaiya-app/gaiya-cloud/internal/config"
	"github.com/gaiya-app/gaiya-cloud/internal/db"
	"github.com/gaiya-app/gaiya-cloud/internal/http/api/admin"
	"github.com/gaiya-app/gaiya-cloud/internal/http/api/front"
	"github.com/gaiya-app/gaiya-cloud/internal/httputil"
	"github.com/gaiya-app/gaiya-cloud/internal/identity"
	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/gaiya-app/gaiya-cloud/internal/mailer"
	"github.com/gaiya-app/gaiya-cloud/internal/maintenance"
	"github.com/gaiya-app/gaiya-cloud/internal/payment"
	"github.com/gaiya-app/gaiya-cloud/internal/quota"
	"github.com/gaiya-app/gaiya-cloud/internal/ratelimit"
	internalsettings "github.com/gaiya-app/gaiya-cloud/internal/settings"
	"github.com/gaiya-app/gaiya-cloud/internal/stripepay"
	"github.com/gaiya-app/gaiya-cloud/internal/subscription"
	"github.com/gaiya-app/gaiya-cloud/internal/validate"
	"github.com/gaiya-app/gaiya-cloud/internal/zpay"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 15 * time.Second

// ServerOptions tunes RunServer.
type ServerOptions struct {
	// Sweeper runs the maintenance sweeper in-process on the configured schedule.
	Sweeper bool
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.Config) error {
	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// Sweep runs one maintenance pass.
func Sweep(ctx context.Context, cfg config.Config) (maintenance.Report, error) {
	conn, err := openDatabase(cfg)
	if err != nil {
		return maintenance.Report{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return maintenance.Report{}, err
	}
	return maintenance.NewSweeper(conn, loc, nowUTC).SweepOnce(ctx)
}

// RunServer boots the API server and blocks until ctx is cancelled or the
// listener fails.
func RunServer(ctx context.Context, cfg config.Config, opts ServerOptions) error {
	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	engine, err := NewEngine(ctx, conn, cfg, nowUTC)
	if err != nil {
		return err
	}

	if opts.Sweeper {
		loc, errLoc := cfg.Location()
		if errLoc != nil {
			return errLoc
		}
		stop, errStart := maintenance.NewSweeper(conn, loc, nowUTC).Start(ctx, cfg.Sweep.Schedule)
		if errStart != nil {
			return errStart
		}
		defer stop()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting api server on %s (environment=%s)", addr, cfg.Environment)
	if errListen := srv.ListenAndServe(); errListen != nil && errListen != http.ErrServerClosed {
		return errListen
	}
	log.Info("api server stopped")
	return nil
}

// NewEngine builds every service from cfg and registers the routes on a new
// gin engine.
func NewEngine(ctx context.Context, conn *gorm.DB, cfg config.Config, now func() time.Time) (*gin.Engine, error) {
	if now == nil {
		now = nowUTC
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	prices, err := validate.DefaultPrices().WithOverrides(cfg.Plans.Prices)
	if err != nil {
		return nil, err
	}

	id := identity.NewProvider(conn, identity.Options{
		Secret:     cfg.JWT.Secret,
		SessionTTL: cfg.JWT.Expiry,
		Issuer:     internalsettings.DefaultSiteName,
		Now:        now,
	})
	authSvc := auth.NewService(id, mailer.New(cfg.Mail.SendGridAPIKey, cfg.Mail.FromAddress, cfg.Mail.FromName), auth.Options{
		SiteName:      internalsettings.DefaultSiteName,
		PublicBaseURL: cfg.Mail.PublicBaseURL,
		Now:           now,
	})

	catalog := subscription.NewCatalog(prices, cfg.Plans.Currency)
	subs := subscription.NewService(catalog, now)
	payments := payment.NewService(conn, subs, zpayGateway(cfg), stripeGateway(cfg), payment.Options{
		Currency: cfg.Plans.Currency,
		Now:      now,
	})

	quotas := quota.NewService(conn, loc, now)
	aiClient := aiproxy.NewClient(aiproxy.Config{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	}, nil)

	limiter, err := ratelimit.NewLimiter(ctx, conn, ratelimit.SettingsConfig{
		Backend:       cfg.RateLimit.Backend,
		RedisAddr:     cfg.RateLimit.RedisAddr,
		RedisPassword: cfg.RateLimit.RedisPassword,
		RedisDB:       cfg.RateLimit.RedisDB,
		RedisPrefix:   cfg.RateLimit.RedisPrefix,
	}, nil)
	if err != nil {
		return nil, err
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	cors := httputil.NewCORS(cfg.CORS.AllowedOrigins, cfg.CORS.DefaultOrigin)
	engine.Use(cors.Middleware())

	front.RegisterFrontRoutes(engine, front.Services{
		Auth:     authSvc,
		Payments: payments,
		Catalog:  catalog,
		Quota:    quotas,
		AI:       aiproxy.NewService(aiClient, quotas),
		Limiter:  ratelimit.NewManager(limiter, nil, now),
	}, cors)
	admin.RegisterAdminRoutes(engine, conn, payments, subs, cfg.Admin.ManualUpgradeToken, cors, now)
	return engine, nil
}

// zpayGateway returns nil when no merchant credentials are configured so
// the payment service reports the provider as unavailable.
func zpayGateway(cfg config.Config) payment.ZPayGateway {
	if cfg.ZPay.PID == "" || cfg.ZPay.Key == "" {
		return nil
	}
	return zpay.NewClient(zpay.Config{
		PID:       cfg.ZPay.PID,
		Key:       cfg.ZPay.Key,
		APIBase:   cfg.ZPay.APIBase,
		NotifyURL: cfg.ZPay.NotifyURL,
		ReturnURL: cfg.ZPay.ReturnURL,
	}, &http.Client{Timeout: internalsettings.DefaultProviderTimeout})
}

func stripeGateway(cfg config.Config) payment.StripeGateway {
	if cfg.Stripe.SecretKey == "" && cfg.Stripe.WebhookSecret == "" {
		return nil
	}
	return stripepay.NewClient(stripepay.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
	}, nil)
}

func openDatabase(cfg config.Config) (*gorm.DB, error) {
	target, errDescribe := describeDSN(cfg.DSN())
	if errDescribe != nil {
		return nil, errDescribe
	}
	logging.Module("app").
		WithField("database_type", target.Type).
		WithField("database_host", target.Host).
		WithField("database_name", target.Name).
		WithField("database_path", target.Path).
		Info("opening database")
	return db.Open(cfg.DSN())
}

// nowUTC returns the current UTC time.
func nowUTC() time.Time { return time.Now().UTC() }
