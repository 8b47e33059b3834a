package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/bargaining-backend/api/controllers"
	"github.com/angelmondragon/bargaining-backend/api/middleware"
	"github.com/angelmondragon/bargaining-backend/internal/bargaining"
	"github.com/angelmondragon/bargaining-backend/internal/bargainrequests"
	"github.com/angelmondragon/bargaining-backend/pkg/config"
	"github.com/angelmondragon/bargaining-backend/pkg/logger"
)

// Dependencies are the services the HTTP surface exposes.
type Dependencies struct {
	Readiness       map[string]controllers.Pinger
	Bargaining      bargaining.Service
	BargainRequests bargainrequests.Service
	Gatherer        prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})

	if cfg.Metrics.Enabled && deps.Gatherer != nil {
		r.Method(http.MethodGet, cfg.Metrics.Path, promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/storefront", func(r chi.Router) {
		r.Post("/bargain-requests", controllers.CreateBargainRequest(deps.BargainRequests, logg))
		r.Get("/shops/{shop}/rules/{variantId}", controllers.StorefrontVariantRule(deps.Bargaining, logg))
	})

	r.Route("/api/v1/bargaining", func(r chi.Router) {
		r.Use(middleware.MerchantContext(logg))

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", controllers.ListRules(deps.Bargaining, logg))
			r.Post("/category", controllers.SetCategoryRules(deps.Bargaining, logg))
			r.Post("/all-products", controllers.SetAllProductsRules(deps.Bargaining, logg))
			r.Post("/variant", controllers.SetVariantRule(deps.Bargaining, logg))
			r.Post("/discount", controllers.SetDiscountRule(deps.Bargaining, logg))
			r.Post("/bulk-min-price", controllers.BulkSetMinPrice(deps.Bargaining, logg))
			r.Post("/deactivate", controllers.DeactivateRules(deps.Bargaining, logg))
			r.Get("/{variantId}", controllers.GetVariantRule(deps.Bargaining, logg))
			r.Delete("/{variantId}", controllers.DeleteRule(deps.Bargaining, logg))
			r.Post("/{variantId}/toggle", controllers.ToggleRule(deps.Bargaining, logg))
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", controllers.ListCategories(deps.Bargaining, logg))
			r.Post("/invalidate", controllers.InvalidateCategories(deps.Bargaining, logg))
		})
		r.Get("/catalog", controllers.CatalogOverview(deps.Bargaining, logg))

		r.Route("/bargain-requests", func(r chi.Router) {
			r.Get("/", controllers.ListBargainRequests(deps.BargainRequests, logg))
			r.Post("/{requestId}/read", controllers.MarkBargainRequestRead(deps.BargainRequests, logg))
		})
	})

	return r
}
