package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dapoer-pos/api/internal/config"
	"github.com/dapoer-pos/api/internal/database"
	"github.com/dapoer-pos/api/internal/enum"
	"github.com/dapoer-pos/api/internal/handler"
	mw "github.com/dapoer-pos/api/internal/middleware"
	"github.com/dapoer-pos/api/internal/service"
	"github.com/dapoer-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Customer-facing endpoints are unauthenticated and store-scoped by URL;
// staff endpoints require a JWT and are fenced to the caller's store.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173", // SvelteKit dev server
			"http://localhost:3000", // Customer web dev server
		},
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

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/stores/{sid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	newOrderStore := func(db database.DBTX) service.CreateStore {
		return database.New(db)
	}
	orderService := service.NewOrderService(pool, newOrderStore, queries, cfg.Location)
	orderHandler := handler.NewOrderHandler(orderService, queries, hub)
	productHandler := handler.NewProductHandler(queries)
	tableHandler := handler.NewTableHandler(queries)
	storeHandler := handler.NewStoreHandler(queries)
	userHandler := handler.NewUserHandler(queries)

	// Customer-facing routes (no auth, scoped by store in the URL)
	r.Route("/stores/{sid}", func(r chi.Router) {
		storeHandler.RegisterPublicRoutes(r)
		r.Route("/orders", orderHandler.RegisterPublicRoutes)
		r.Route("/products", productHandler.RegisterPublicRoutes)
		r.Route("/tables", tableHandler.RegisterPublicRoutes)
	})

	// Staff routes (require authentication + store fence)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/staff/stores/{sid}", func(r chi.Router) {
			r.Use(mw.RequireStore)

			r.Route("/orders", orderHandler.RegisterStaffRoutes)
			r.Route("/products", productHandler.RegisterStaffRoutes)
			r.Route("/tables", tableHandler.RegisterStaffRoutes)
			r.Route("/profile", storeHandler.RegisterStaffRoutes)

			// Staff management (ADMIN only)
			r.Route("/users", func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleAdmin))
				userHandler.RegisterStaffRoutes(r)
			})
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
