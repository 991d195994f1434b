/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. Logger:     One zap line per request
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counters by route
  5. CORS:       Cross-origin requests for the dashboard
  6. MaxBody:    Request body cap

ROUTE GROUPS:
  /health                          Liveness
  /metrics                         Prometheus scrape
  /api/dispatch-data/*             Dispatch records, duplicate check
  /api/dispatch-stats              Billed tonnage statistics
  /api/sync-master-data            Streamed master sync (NDJSON)
  /api/master/*                    Master refresh, pending, edit, lookups
  /api/{yarn,fabric}-complaints/*  Complaints
  /api/dispatch-results/*          Lab results per lot
  /api/cotton/*                    Cotton groups and planning
  /api/table-layout(s)/*           Saved grid layouts
  /api/users, /api/login           Accounts
  /api/table-columns, ...          Introspection and small reports

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/millops/dispatch"
)

// HealthMessage is the /health status.
const HealthMessage = "Backend is running"

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// CORSOrigins lists the allowed origins. Empty allows every origin.
	CORSOrigins []string

	// MaxBodyBytes caps request bodies. Zero disables the cap.
	MaxBodyBytes int64

	// Registry receives the HTTP metrics and is served on /metrics. Nil
	// uses the prometheus default registry.
	Registry *prometheus.Registry
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	var (
		reg      prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if opts.Registry != nil {
		reg, gatherer = opts.Registry, opts.Registry
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(newHTTPMetrics(reg).middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(maxBody(opts.MaxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: HealthMessage})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		// Dispatch routes
		r.Route("/dispatch-data", func(r chi.Router) {
			r.Get("/", h.ListDispatchData)
			r.Post("/bulk", h.BulkInsertDispatchData)
			r.Post("/check-duplicates", h.CheckDuplicates)
			r.Get("/by-invoice/{invoiceNo}", h.DispatchByInvoice)
			r.Put("/{id}", h.UpdateDispatchData)
			r.Delete("/{id}", h.DeleteDispatchData)
		})
		r.Get("/dispatch-stats", h.DispatchStats)
		r.Post("/sync-master-data", h.SyncMasterData)

		// Master routes
		r.Route("/master", func(r chi.Router) {
			for _, m := range []dispatch.Master{
				dispatch.YarnCountMaster,
				dispatch.FabricCountMaster,
				dispatch.MarketMaster,
				dispatch.CustomerMaster,
			} {
				r.Post("/refresh-"+m.Name, h.RefreshMaster(m))
				r.Get("/pending-"+m.Name, h.PendingMaster(m))
			}
			r.Get("/suggestions/{type}", h.MasterSuggestions)
			r.Get("/market-mappings", h.MarketMappings)
			r.Put("/{kind}/{id}", h.EditMaster)
		})

		// Complaint routes
		for prefix, c := range map[string]complaintRoutes{
			"/yarn-complaints":   h.yarnComplaints(),
			"/fabric-complaints": h.fabricComplaints(),
		} {
			r.Route(prefix, func(r chi.Router) {
				r.Get("/", c.List)
				r.Post("/", c.Create)
				r.Post("/bulk", c.Bulk)
				r.Put("/{id}", c.Update)
				r.Delete("/{id}", c.Delete)
			})
		}

		// Dispatch result routes
		r.Route("/dispatch-results", func(r chi.Router) {
			r.Get("/", h.ListDispatchResults)
			r.Post("/", h.CreateDispatchResult)
			r.Post("/batch", h.BatchDispatchResults)
			r.Get("/update-masters-plan", h.PlanResultMasterUpdates)
			r.Post("/update-masters-execute", h.ExecuteResultMasterUpdates)
			r.Post("/update-masters", h.UpdateResultMastersGone)
		})

		// Cotton routes
		r.Route("/cotton", func(r chi.Router) {
			r.Get("/groups", h.ListCottonGroups)
			r.Post("/groups", h.CreateCottonGroup)
			r.Put("/groups/{id}", h.UpdateCottonGroup)
			r.Delete("/groups/{id}", h.DeleteCottonGroup)
			r.Get("/planning", h.ListCottonPlannings)
			r.Post("/planning", h.CreateCottonPlanning)
			r.Put("/planning/{id}", h.UpdateCottonPlanning)
			r.Delete("/planning/{id}", h.DeleteCottonPlanning)
		})

		// Layout routes
		r.Get("/table-layouts/{table}", h.ListTableLayouts)
		r.Post("/table-layout", h.SaveTableLayout)
		r.Get("/table-layout/{table}", h.LatestTableLayout)
		r.Delete("/table-layout/{id}", h.DeleteTableLayout)

		// User routes
		r.Get("/login-names", h.LoginNames)
		r.Post("/login", h.Login)
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Put("/{id}", h.UpdateUser)
			r.Delete("/{id}", h.DeleteUser)
		})

		// Utility routes
		r.Get("/table-columns/{table}", h.TableColumns)
		r.Get("/unique-values/{table}/{column}", h.UniqueValues)
		r.Get("/available-years", h.ComplaintYears)
		r.Get("/available-years/{table}/{column}", h.AvailableYears)
		r.Get("/max-date/{table}/{column}", h.MaxDate)
		r.Get("/complaint-stats", h.ComplaintStats)
		r.Get("/yarn-realization", h.YarnRealization)
	})

	return r
}
