package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/megahubhq/megahub-backend/api/controllers"
	"github.com/megahubhq/megahub-backend/api/middleware"
	"github.com/megahubhq/megahub-backend/internal/auth"
	"github.com/megahubhq/megahub-backend/internal/billing"
	"github.com/megahubhq/megahub-backend/internal/brands"
	"github.com/megahubhq/megahub-backend/internal/companies"
	"github.com/megahubhq/megahub-backend/internal/credentials"
	"github.com/megahubhq/megahub-backend/internal/features"
	"github.com/megahubhq/megahub-backend/internal/rbac"
	"github.com/megahubhq/megahub-backend/internal/sites"
	"github.com/megahubhq/megahub-backend/internal/tasks"
	"github.com/megahubhq/megahub-backend/internal/users"
	stripewebhooks "github.com/megahubhq/megahub-backend/internal/webhooks/stripe"
	"github.com/megahubhq/megahub-backend/pkg/config"
	"github.com/megahubhq/megahub-backend/pkg/db"
	"github.com/megahubhq/megahub-backend/pkg/logger"
	"github.com/megahubhq/megahub-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	authService auth.Service,
	companyService companies.Service,
	brandService brands.Service,
	userService users.Service,
	billingService billing.Service,
	featureService features.Service,
	rbacAdmin rbac.Admin,
	siteService sites.Service,
	credentialService credentials.Service,
	taskService tasks.Service,
	webhookService stripewebhooks.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbClient, redisClient, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", controllers.StripeWebhook(webhookService, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.Login(authService, logg))
	})

	// tenant bootstrap is the signup surface; everything else needs a token
	r.Post("/api/v1/companies", controllers.CompanyBootstrap(companyService, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/companies", func(r chi.Router) {
			r.Get("/", controllers.CompanyList(companyService, logg))
			r.Route("/{companyId}", func(r chi.Router) {
				r.Get("/", controllers.CompanyGet(companyService, logg))
				r.Patch("/", controllers.CompanyUpdate(companyService, logg))
				r.Delete("/", controllers.CompanyDeactivate(companyService, logg))
				r.Get("/limits", controllers.CompanyLimits(companyService, logg))
				r.Get("/usage", controllers.CompanyUsage(companyService, logg))
				r.Post("/slots", controllers.CompanyUpgradeSlots(companyService, logg))

				r.Route("/brands", func(r chi.Router) {
					r.Get("/", controllers.BrandList(brandService, logg))
					r.Post("/", controllers.BrandCreate(brandService, logg))
				})
				r.Route("/users", func(r chi.Router) {
					r.Get("/", controllers.UserList(userService, logg))
					r.Post("/", controllers.UserCreate(userService, logg))
				})
				r.Route("/features", func(r chi.Router) {
					r.Get("/", controllers.FeatureList(featureService, logg))
					r.Post("/", controllers.FeatureGrant(featureService, logg))
					r.Get("/{code}", controllers.FeatureCheck(featureService, logg))
					r.Post("/{code}/consume", controllers.FeatureConsume(featureService, logg))
				})
			})
		})

		r.Route("/brands/{brandId}", func(r chi.Router) {
			r.Get("/", controllers.BrandGet(brandService, logg))
			r.Patch("/", controllers.BrandUpdate(brandService, logg))
			r.Delete("/", controllers.BrandDelete(brandService, logg))
			r.Post("/restore", controllers.BrandRestore(brandService, logg))
			r.Post("/toggle-active", controllers.BrandToggleActive(brandService, logg))
			r.Get("/users", controllers.BrandMembers(brandService, logg))
			r.Post("/users", controllers.BrandAssignUsers(brandService, logg))
			r.Post("/users/remove", controllers.BrandRemoveUsers(brandService, logg))
			r.Post("/admin", controllers.BrandSetAdmin(brandService, logg))
		})

		r.Route("/users/{userId}", func(r chi.Router) {
			r.Get("/", controllers.UserGet(userService, logg))
			r.Patch("/", controllers.UserUpdate(userService, logg))
			r.Delete("/", controllers.UserDeactivate(userService, logg))
			r.Post("/toggle-active", controllers.UserToggleActive(userService, logg))
			r.Post("/change-password", controllers.UserChangePassword(userService, logg))
			r.Put("/brands", controllers.UserAssignBrands(userService, logg))
			r.Post("/promote-brand-admin", controllers.UserPromoteBrandAdmin(userService, logg))
		})

		r.Route("/plans", func(r chi.Router) {
			r.Get("/", controllers.PlanList(billingService, logg))
			r.Post("/", controllers.PlanCreate(billingService, logg))
		})
		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", controllers.SubscriptionList(billingService, logg))
			r.Post("/", controllers.SubscriptionCreate(billingService, logg))
			r.Route("/{subscriptionId}", func(r chi.Router) {
				r.Get("/", controllers.SubscriptionGet(billingService, logg))
				r.Post("/cancel", controllers.SubscriptionCancel(billingService, logg))
				r.Post("/change-plan", controllers.SubscriptionChangePlan(billingService, logg))
			})
		})
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", controllers.InvoiceList(billingService, logg))
			r.Get("/{invoiceId}", controllers.InvoiceGet(billingService, logg))
		})
		r.Get("/usage-alerts", controllers.UsageAlertList(billingService, logg))

		r.Route("/roles", func(r chi.Router) {
			r.Get("/", controllers.RoleList(rbacAdmin, logg))
			r.Post("/", controllers.RoleCreate(rbacAdmin, logg))
			r.Put("/{roleId}/permissions", controllers.RoleAssignPermissions(rbacAdmin, logg))
		})
		r.Get("/permissions", controllers.PermissionList(rbacAdmin, logg))
		r.Route("/user-roles", func(r chi.Router) {
			r.Get("/", controllers.UserRoleList(rbacAdmin, logg))
			r.Post("/", controllers.UserRoleAssign(rbacAdmin, logg))
			r.Delete("/{userRoleId}", controllers.UserRoleRevoke(rbacAdmin, logg))
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", controllers.TaskList(taskService, logg))
			r.Post("/", controllers.TaskEnqueue(taskService, logg))
			r.Route("/{taskId}", func(r chi.Router) {
				r.Get("/", controllers.TaskGet(taskService, logg))
				r.Post("/cancel", controllers.TaskCancel(taskService, logg))
			})
		})

		// brand scoped query surface
		r.Group(func(r chi.Router) {
			r.Use(middleware.BrandContext(brandService, logg))

			r.Route("/websites", func(r chi.Router) {
				r.Get("/", controllers.WebsiteList(siteService, logg))
				r.Post("/", controllers.WebsiteCreate(siteService, logg))
				r.Route("/{websiteId}", func(r chi.Router) {
					r.Get("/", controllers.WebsiteGet(siteService, logg))
					r.Patch("/", controllers.WebsiteUpdate(siteService, logg))
					r.Delete("/", controllers.WebsiteDelete(siteService, logg))
				})
			})
			r.Route("/credentials", func(r chi.Router) {
				r.Get("/", controllers.CredentialList(credentialService, logg))
				r.Post("/", controllers.CredentialCreate(credentialService, logg))
				r.Route("/{credentialId}", func(r chi.Router) {
					r.Get("/", controllers.CredentialGet(credentialService, logg))
					r.Delete("/", controllers.CredentialDelete(credentialService, logg))
					r.Post("/rotate", controllers.CredentialRotate(credentialService, logg))
					r.Post("/reveal", controllers.CredentialReveal(credentialService, logg))
				})
			})
			r.Route("/pages", func(r chi.Router) {
				r.Get("/", controllers.PageList(siteService, logg))
				r.Post("/", controllers.PageCreate(siteService, logg))
				r.Route("/{pageId}", func(r chi.Router) {
					r.Get("/", controllers.PageGet(siteService, logg))
					r.Patch("/", controllers.PageUpdate(siteService, logg))
					r.Delete("/", controllers.PageDelete(siteService, logg))
				})
			})
		})
	})

	return r
}
