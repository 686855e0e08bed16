package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/tasker-api/internal/api"
	apiMiddleware "github.com/phrazzld/tasker-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
// The task API is served under /api/v1 and, unversioned, under /api.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(apiMiddleware.Metrics(app.metrics))
	r.Use(apiMiddleware.CORS(app.config.Server.CORSAllowedOrigins))

	authHandler := api.NewAuthHandler(app.authService, app.logger)
	taskHandler := api.NewTaskHandler(app.taskService, app.userStore, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.authService, app.logger)

	routes := func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/logout", authHandler.Logout)
			r.Get("/user", authHandler.Me)

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", taskHandler.Index)
				r.Post("/", taskHandler.Store)
				r.Get("/overdue", taskHandler.Overdue)
				r.Get("/high-priority", taskHandler.HighPriority)
				r.Get("/{id}", taskHandler.Show)
				r.Put("/{id}", taskHandler.Update)
				r.Patch("/{id}", taskHandler.Update)
				r.Delete("/{id}", taskHandler.Destroy)
				r.Patch("/{id}/complete", taskHandler.Complete)
			})
		})
	}
	r.Route("/api/v1", routes)
	r.Route("/api", routes)

	if app.hub != nil {
		wsHandler := api.NewWebsocketHandler(app.hub, app.logger)
		r.With(authMiddleware.AuthenticateSocket).Get("/ws", wsHandler.Subscribe)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})
	r.Handle("/metrics", app.metrics.Handler())

	return r
}
