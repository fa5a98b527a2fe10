package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-queue/internal/api/router"
	"github.com/wolfman30/clinic-queue/internal/clinic"
	appconfig "github.com/wolfman30/clinic-queue/internal/config"
	"github.com/wolfman30/clinic-queue/internal/notify"
	"github.com/wolfman30/clinic-queue/internal/observability/metrics"
	"github.com/wolfman30/clinic-queue/internal/queue"
	"github.com/wolfman30/clinic-queue/internal/realtime"
	"github.com/wolfman30/clinic-queue/internal/reminders"
	"github.com/wolfman30/clinic-queue/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-queue API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	queueMetrics := metrics.NewQueueMetrics(nil)

	// Repositories: Postgres when DATABASE_URL is set, in-memory otherwise.
	var (
		clinicRepo clinic.Repository
		queueRepo  queue.Repository
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		pgClinics := clinic.NewPostgresRepository(pool)
		clinicRepo = pgClinics
		queueRepo = queue.NewPostgresRepository(pool, pgClinics)
		logger.Info("using postgres storage")
	} else {
		memClinics := clinic.NewInMemoryRepository()
		settings := clinic.Settings{GeofenceRadiusKm: cfg.GeofenceRadiusKm}
		if cfg.HospitalLocSet {
			lat, lon := cfg.HospitalLat, cfg.HospitalLon
			settings.HospitalLat = &lat
			settings.HospitalLon = &lon
		}
		memClinics.SeedSettings(settings)
		clinicRepo = memClinics
		queueRepo = queue.NewInMemoryRepository(memClinics)
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	notifier := notify.NewNotifier(buildSMSSender(cfg, logger), buildEmailSender(ctx, cfg, logger), logger, queueMetrics)

	engine := queue.NewEngine(queueRepo, nil, notifier, logger, queueMetrics)

	// Optional Redis cache for catch-up snapshots.
	var snapshotCache *realtime.SnapshotCache
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		snapshotCache = realtime.NewSnapshotCache(redis.NewClient(opts), 0, logger)
		logger.Info("snapshot cache enabled", "addr", cfg.RedisAddr)
	}

	hub := realtime.NewHub(engine, snapshotCache, logger, queueMetrics)
	engine.SetBroadcaster(hub)

	// Reminder sweep.
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	reminderWorker := reminders.NewWorker(queueRepo, notifier, cfg.ReminderLookahead, logger)
	go reminderWorker.Run(workerCtx, cfg.ReminderInterval)

	routerCfg := &router.Config{
		Logger:             logger,
		QueueHandler:       queue.NewHandler(engine, logger),
		ClinicHandler:      clinic.NewHandler(clinicRepo, logger),
		WSHandler:          realtime.NewWSHandler(hub, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		SelfCheckInRate:    5,
		SelfCheckInBurst:   10,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func buildSMSSender(cfg *appconfig.Config, logger *logging.Logger) notify.SMSSender {
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFromNumber != "" {
		logger.Info("SMS via twilio", "from", cfg.TwilioFromNumber)
		return notify.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	}
	logger.Warn("twilio not configured, SMS disabled")
	return notify.NewStubSMSSender(logger)
}

func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender != nil {
			logger.Info("email via sendgrid", "from", cfg.SendGridFromEmail)
			return sender
		}
	case "ses":
		opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
		if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			break
		}
		client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
			if cfg.AWSEndpointOverride != "" {
				o.BaseEndpoint = &cfg.AWSEndpointOverride
			}
		})
		sender := notify.NewSESSender(client, notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
		if sender != nil {
			logger.Info("email via SES", "from", cfg.SESFromEmail)
			return sender
		}
	}
	logger.Warn("email provider not configured, email disabled")
	return notify.NewStubEmailSender(logger)
}
