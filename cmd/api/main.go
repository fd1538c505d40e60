package main

// @title CampaignDesk API
// @version 1.0
// @description Marketing campaign back office: campaigns, approvals, history and catalog.

// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @securityDefinitions.apikey SessionAuth
// @in header
// @name X-Session-ID

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/jordanlanch/campaigndesk/config"
	"github.com/jordanlanch/campaigndesk/pkg/api/handlers"
	"github.com/jordanlanch/campaigndesk/pkg/approval"
	"github.com/jordanlanch/campaigndesk/pkg/audit"
	"github.com/jordanlanch/campaigndesk/pkg/auth"
	"github.com/jordanlanch/campaigndesk/pkg/cache"
	"github.com/jordanlanch/campaigndesk/pkg/campaign"
	"github.com/jordanlanch/campaigndesk/pkg/catalog"
	"github.com/jordanlanch/campaigndesk/pkg/dashboard"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/email"
	"github.com/jordanlanch/campaigndesk/pkg/events"
	"github.com/jordanlanch/campaigndesk/pkg/history"
	"github.com/jordanlanch/campaigndesk/pkg/jobs"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
	"github.com/jordanlanch/campaigndesk/pkg/metrics"
	custommiddleware "github.com/jordanlanch/campaigndesk/pkg/middleware"
	"github.com/jordanlanch/campaigndesk/pkg/session"
	"github.com/jordanlanch/campaigndesk/pkg/user"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.APIEnvironment)

	// Initialize Sentry for error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 0.2,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s)", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Printf("ℹ️  Sentry disabled (no DSN configured)")
	}

	appLog := logger.New(cfg.LogLevel)
	loc := cfg.Location()

	// Initialize database
	pool := database.DefaultPoolConfig()
	if !cfg.IsProduction() {
		pool = database.DevPoolConfig()
	}
	db, err := database.Open(database.Config{
		Driver: cfg.DatabaseDriver,
		URL:    cfg.DatabaseURL,
		Pool:   pool,
		SSL: &database.SSLConfig{
			Mode:         cfg.DBSSLMode,
			CertPath:     cfg.DBSSLCertPath,
			KeyPath:      cfg.DBSSLKeyPath,
			RootCertPath: cfg.DBSSLRootCertPath,
		},
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		cancelMigrate()
		log.Fatalf("❌ Failed to migrate database: %v", err)
	}
	cancelMigrate()
	log.Printf("✅ Database schema up to date")

	// Initialize Redis cache (optional)
	var redisClient *cache.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Printf("✅ Redis connected")
	} else {
		log.Printf("ℹ️  Redis disabled: no dashboard cache, token blacklist or password reset")
	}

	// Initialize Prometheus metrics
	prometheusMetrics := metrics.New(prometheus.DefaultRegisterer)
	log.Printf("✅ Prometheus metrics initialized")

	// Initialize event publisher
	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Printf("⚠️  Event publishing disabled: %v", err)
		} else {
			defer amqpPublisher.Close()
			publisher = amqpPublisher
			log.Printf("✅ Publishing events to exchange %s", cfg.AMQPExchange)
		}
	} else {
		log.Printf("ℹ️  Event publishing disabled (no AMQP_URL configured)")
	}

	// Workflow writes drop the cached dashboard
	publisher = dashboard.InvalidateOn(publisher, redisClient, appLog)

	// Initialize services
	auditLogger := audit.NewService(db)
	emailService := email.NewService(cfg.EmailFrom, cfg.EmailFromName, cfg.FrontendURL, cfg.SendGridAPIKey)
	sessionStore := auth.NewSessionStore(db)

	authService := auth.NewService(db, auth.Config{
		JWTSecret:          cfg.JWTSecret,
		JWTExpirationHours: cfg.JWTExpirationHours,
		SessionTTL:         cfg.SessionTTL,
		RememberTTL:        cfg.RememberTTL,
		ResetURL:           cfg.FrontendURL + "/reset-password",
	}, redisClient, sessionStore, appLog,
		auth.WithAudit(auditLogger),
		auth.WithResetMailer(emailService),
		auth.WithMetrics(prometheusMetrics),
	)

	registry := session.NewRegistry(session.Config{
		IdleTimeout:   cfg.IdleTimeout,
		WarningBefore: cfg.IdleWarning,
	}, session.RealClock{})
	registry.OnExpire(func(sessionID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := authService.ExpireIdle(ctx, sessionID); err != nil {
			log.Printf("⚠️  Failed to expire idle session %s: %v", sessionID, err)
		}
	})
	log.Printf("✅ Session idle timeout: %s (warning %s before)", cfg.IdleTimeout, cfg.IdleWarning)

	historyService := history.NewService(db, appLog, loc)
	campaignService := campaign.NewService(db, historyService, appLog,
		campaign.WithEvents(publisher),
		campaign.WithMetrics(prometheusMetrics),
	)
	approvalService := approval.NewService(db, campaignService, historyService, appLog,
		approval.WithEvents(publisher),
		approval.WithMailer(emailService),
		approval.WithMetrics(prometheusMetrics),
	)
	if cfg.Cipher == nil {
		log.Printf("⚠️  ENCRYPTION_KEY not set: channel credentials cannot be stored")
	}
	catalogService := catalog.NewService(db, campaignService, cfg.Cipher, appLog)
	userService := user.NewService(db, sessionStore, auditLogger, appLog)
	dashboardService := dashboard.NewService(campaignService, approvalService, historyService, redisClient, prometheusMetrics, appLog)

	// History archive (optional)
	var archiver jobs.HistoryArchiver
	if cfg.ArchiveEnabled() {
		s3Client, err := history.NewS3Client(context.Background(), history.S3Config{
			AWSAccessKeyID:     cfg.AWSAccessKeyID,
			AWSSecretAccessKey: cfg.AWSSecretAccessKey,
			AWSRegion:          cfg.AWSRegion,
		})
		if err != nil {
			log.Printf("⚠️  History archive disabled: %v", err)
		} else {
			archiver = history.NewArchiver(historyService, s3Client, cfg.ArchiveS3Bucket, cfg.ArchiveS3Prefix, appLog)
			log.Printf("✅ History archive enabled (s3://%s/%s)", cfg.ArchiveS3Bucket, cfg.ArchiveS3Prefix)
		}
	} else {
		log.Printf("ℹ️  History archive disabled (ARCHIVE_S3_BUCKET not set)")
	}

	// Cron jobs
	cronManager := jobs.NewCronManager(jobs.Deps{
		Sessions: authService,
		Trackers: registry,
		Archiver: archiver,
		DB:       db,
		Metrics:  prometheusMetrics,
	}, loc, log.Default())
	if err := cronManager.SetupJobs(); err != nil {
		log.Fatalf("❌ Failed to setup cron jobs: %v", err)
	}
	cronManager.Start()

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	defer globalRateLimiter.Stop()

	// Global middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[%s] %s - Status: %d", c.Request().Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true,
		}))
	}

	e.Use(prometheusMetrics.Middleware())
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig(cfg.CORSOrigins...)))
	e.Use(middleware.Gzip())
	e.Use(middleware.Secure())
	e.Use(custommiddleware.SecurityHeaders(custommiddleware.DefaultSecurityHeadersConfig()))
	e.Use(globalRateLimiter.RateLimitMiddleware())

	authRateLimiter := custommiddleware.NewPerEndpointRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	defer authRateLimiter.Stop()
	authRateLimiter.SetEndpointLimit("POST /api/v1/auth/login", 5, 2)
	authRateLimiter.SetEndpointLimit("POST /api/v1/auth/forgot-password", 3, 1)
	authRateLimiter.SetEndpointLimit("POST /api/v1/auth/reset-password", 5, 2)

	registerRoutes(e, routeDeps{
		Auth:          handlers.NewAuthHandler(authService, registry, cfg.SecureCookies),
		Campaigns:     handlers.NewCampaignHandler(campaignService, historyService),
		Approvals:     handlers.NewApprovalHandler(approvalService),
		History:       handlers.NewHistoryHandler(historyService, auditLogger),
		Catalog:       handlers.NewCatalogHandler(catalogService, auditLogger),
		Users:         handlers.NewUserHandler(userService),
		Dashboard:     handlers.NewDashboardHandler(dashboardService),
		Health:        handlers.NewHealthHandler(db, cachePinger(redisClient)),
		Validator:     authService.Authenticator(),
		Expirer:       authService,
		Sessions:      registry,
		AuthRateLimit: authRateLimiter.RateLimitMiddleware(),
	})

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Printf("🚀 CampaignDesk API starting on %s", address)
	log.Printf("📝 Log level: %s, timezone: %s", cfg.LogLevel, cfg.Timezone)
	log.Printf("🔐 JWT expiration: %d hours, session TTL: %s", cfg.JWTExpirationHours, cfg.SessionTTL)
	log.Printf("🛡️  Rate limiting: %d req/min (burst: %d)", cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	log.Printf("⏰ Cron jobs: %v", cronManager.Jobs())

	// Graceful shutdown
	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	cronManager.Stop()
	log.Println("✅ Cron jobs stopped")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}

// cachePinger keeps a nil *cache.Client from becoming a non-nil interface
func cachePinger(c *cache.Client) handlers.Pinger {
	if c == nil {
		return nil
	}
	return c
}
