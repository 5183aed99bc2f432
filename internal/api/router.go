package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/manru/manru-be/internal/api/handlers"
	"github.com/manru/manru-be/internal/auth"
	"github.com/manru/manru-be/internal/services"
)

// NewRouter creates and configures a new Chi router.
func NewRouter(
	allowedOrigins []string,
	verifier auth.Verifier,
	authService services.AuthServiceProvider,
	eventService services.EventServiceProvider,
	health handlers.HealthSource,
	metrics http.Handler,
) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(handlers.NotFound)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(authService)
	eventHandler := handlers.NewEventHandler(eventService)
	requireToken := auth.JWTMiddleware(verifier, handlers.Unauthorized)
	optionalToken := auth.OptionalJWTMiddleware(verifier, handlers.Unauthorized)

	if health != nil {
		r.Get("/health", handlers.NewHealthHandler(health).Get)
	}
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", userHandler.Register)
			r.Post("/login", userHandler.Login)
			r.With(requireToken).Get("/me", userHandler.GetMe)
		})

		r.Route("/users/{id}", func(r chi.Router) {
			r.With(optionalToken).Get("/", userHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(requireToken)
				r.Put("/", userHandler.Update)
				r.Delete("/", userHandler.Delete)
				r.Put("/password", userHandler.ChangePassword)
				r.Get("/events", eventHandler.GetRecent)
			})
		})
	})

	return r
}
