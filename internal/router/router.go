package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tablebill/api/internal/config"
	"github.com/tablebill/api/internal/database"
	"github.com/tablebill/api/internal/enum"
	"github.com/tablebill/api/internal/handler"
	"github.com/tablebill/api/internal/metrics"
	mw "github.com/tablebill/api/internal/middleware"
	"github.com/tablebill/api/internal/service"
	"github.com/tablebill/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication, business scoping, and role-based middleware as needed.
// orderCache and pub may be nil, in which case caching and event publishing are disabled.
func New(
	cfg *config.Config,
	queries *database.Queries,
	pool *pgxpool.Pool,
	hub *ws.Hub,
	orderCache handler.OrderCache,
	pub service.Publisher,
	m *metrics.Metrics,
) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(mw.Instrument(m))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/businesses/{bid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	hooks := service.Hooks{
		Cache:     orderCache,
		Publisher: pub,
		Notifier:  hub,
		Metrics:   m,
	}.WithDefaults()

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/businesses/{bid}", func(r chi.Router) {
			r.Use(mw.RequireBusiness)

			// Staff management (OWNER only)
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleOwner))
				userHandler := handler.NewUserHandler(queries)
				r.Route("/users", userHandler.RegisterRoutes)
			})

			// Sales and VAT reports (OWNER, MANAGER)
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager))
				reportsHandler := handler.NewReportsHandler(queries, cfg.ReportLocation())
				r.Route("/reports", reportsHandler.RegisterRoutes)
			})

			newOrderStore := func(db database.DBTX) service.OrderStore {
				return database.New(db)
			}
			orderService := service.NewOrderService(pool, newOrderStore, queries, hooks)
			orderHandler := handler.NewOrderHandler(orderService, queries, orderCache, hooks)

			refundService := service.NewRefundService(
				pool,
				func(db database.DBTX) service.RefundStore {
					return database.New(db)
				},
				hooks,
			)

			r.Route("/orders", func(r chi.Router) {
				orderHandler.RegisterRoutes(r)

				// Payments (nested under orders)
				r.Route("/{id}/payments", func(r chi.Router) {
					paymentHandler := handler.NewPaymentHandler(
						queries,
						pool,
						func(db database.DBTX) handler.PaymentStore {
							return database.New(db)
						},
						hooks,
					)
					paymentHandler.RegisterRoutes(r)
				})

				// Refunds (nested under orders)
				r.Route("/{id}/refunds", func(r chi.Router) {
					refundHandler := handler.NewRefundHandler(refundService, queries)
					refundHandler.RegisterRoutes(r)
				})
			})
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
