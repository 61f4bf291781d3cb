package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/megahubhq/megahub-backend/api/routes"
	"github.com/megahubhq/megahub-backend/internal/auth"
	"github.com/megahubhq/megahub-backend/internal/billing"
	"github.com/megahubhq/megahub-backend/internal/brands"
	"github.com/megahubhq/megahub-backend/internal/companies"
	"github.com/megahubhq/megahub-backend/internal/credentials"
	"github.com/megahubhq/megahub-backend/internal/features"
	"github.com/megahubhq/megahub-backend/internal/rbac"
	"github.com/megahubhq/megahub-backend/internal/scope"
	"github.com/megahubhq/megahub-backend/internal/sites"
	"github.com/megahubhq/megahub-backend/internal/slots"
	"github.com/megahubhq/megahub-backend/internal/tasks"
	"github.com/megahubhq/megahub-backend/internal/users"
	stripewebhooks "github.com/megahubhq/megahub-backend/internal/webhooks/stripe"
	"github.com/megahubhq/megahub-backend/pkg/config"
	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/logger"
	"github.com/megahubhq/megahub-backend/pkg/metrics"
	"github.com/megahubhq/megahub-backend/pkg/migrate"
	"github.com/megahubhq/megahub-backend/pkg/outbox"
	"github.com/megahubhq/megahub-backend/pkg/redis"
	"github.com/megahubhq/megahub-backend/pkg/security"
	"github.com/megahubhq/megahub-backend/pkg/stripe"
)

const webhookDedupTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	// the routing table is verified before the server binds; a resource
	// exposed without a scope rule aborts startup
	registry := scope.NewRegistry()
	if err := sites.RegisterResources(registry); err != nil {
		logg.Error(context.Background(), "failed to register scoped resources", err)
		os.Exit(1)
	}
	if err := credentials.RegisterResources(registry); err != nil {
		logg.Error(context.Background(), "failed to register scoped resources", err)
		os.Exit(1)
	}
	if err := registry.Verify([]string{sites.ResourceWebsites, sites.ResourcePages, credentials.ResourceCredentials}); err != nil {
		logg.Error(context.Background(), "scope routing table verification failed", err)
		os.Exit(1)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ledger := slots.NewLedger(outboxSvc)

	slotService, err := slots.NewService(dbClient, ledger)
	if err != nil {
		logg.Error(context.Background(), "failed to create slot service", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:  users.NewRepository(dbClient.DB()),
		JWTConfig: cfg.JWT,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	companyService, err := companies.NewService(companies.ServiceParams{
		DB:             dbClient,
		Ledger:         ledger,
		Slots:          slotService,
		PasswordConfig: cfg.Password,
		TenancyConfig:  cfg.Tenancy,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create company service", err)
		os.Exit(1)
	}

	brandService, err := brands.NewService(brands.ServiceParams{DB: dbClient, Ledger: ledger})
	if err != nil {
		logg.Error(context.Background(), "failed to create brand service", err)
		os.Exit(1)
	}

	userService, err := users.NewService(users.ServiceParams{
		DB:             dbClient,
		Ledger:         ledger,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create user service", err)
		os.Exit(1)
	}

	billingLocks, err := billing.NewRedisLocks(redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create billing locks", err)
		os.Exit(1)
	}
	billingService, err := billing.NewService(billing.ServiceParams{
		DB:      dbClient,
		Locks:   billingLocks,
		Billing: cfg.Billing,
		Events:  outboxSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	featureService, err := features.NewService(features.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create feature service", err)
		os.Exit(1)
	}

	rbacAdmin, err := rbac.NewAdmin(dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create rbac admin", err)
		os.Exit(1)
	}

	siteService, err := sites.NewService(sites.ServiceParams{DB: dbClient, Registry: registry})
	if err != nil {
		logg.Error(context.Background(), "failed to create site service", err)
		os.Exit(1)
	}

	sealer, err := security.NewSealer(cfg.Credentials)
	if err != nil {
		logg.Error(context.Background(), "failed to create credential sealer", err)
		os.Exit(1)
	}
	credentialService, err := credentials.NewService(credentials.ServiceParams{
		DB:       dbClient,
		Registry: registry,
		Sealer:   sealer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create credential service", err)
		os.Exit(1)
	}

	taskService, err := tasks.NewService(dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create task service", err)
		os.Exit(1)
	}

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}
	webhookGuard, err := stripewebhooks.NewIdempotencyGuard(redisClient, webhookDedupTTL, "stripe")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}
	webhookService, err := stripewebhooks.NewService(stripewebhooks.ServiceParams{
		DB:       dbClient,
		Verifier: stripeClient,
		Billing:  billingService,
		Guard:    webhookGuard,
		Metrics:  metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			authService,
			companyService,
			brandService,
			userService,
			billingService,
			featureService,
			rbacAdmin,
			siteService,
			credentialService,
			taskService,
			webhookService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
