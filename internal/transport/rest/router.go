package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/procurex/requisition-engine/internal/auth"
	"github.com/procurex/requisition-engine/internal/notification"
	"github.com/procurex/requisition-engine/internal/requisition"
	"github.com/procurex/requisition-engine/internal/transport/middleware"
	"github.com/procurex/requisition-engine/internal/transport/swagger"
	"github.com/procurex/requisition-engine/internal/user"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, authHandler *auth.Handler, userHandler *user.Handler, requisitionHandler *requisition.Handler, notificationHandler *notification.Handler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if authHandler != nil {
			r.Route("/auth", func(sr chi.Router) {
				sr.Post("/login", authHandler.Login)
				sr.Post("/refresh", authHandler.RefreshToken)
				sr.Post("/logout", authHandler.Logout)
			})

			r.Group(func(pr chi.Router) {
				pr.Use(authHandler.AuthMiddleware)

				if userHandler != nil {
					pr.Get("/users/me", userHandler.GetCurrentUser)
				}

				if requisitionHandler != nil {
					pr.Route("/requisitions", func(rr chi.Router) {
						rr.Post("/", requisitionHandler.CreateRequisition)
						rr.Get("/", requisitionHandler.ListRequisitions)
						rr.Get("/{id}", requisitionHandler.GetRequisition)
						rr.Post("/{id}/submit", requisitionHandler.SubmitRequisition)
						rr.Post("/{id}/transition", requisitionHandler.TransitionRequisition)

						rr.Post("/{id}/items", requisitionHandler.AddItem)
						rr.Patch("/{id}/items/{itemID}", requisitionHandler.UpdateItem)
						rr.Delete("/{id}/items/{itemID}", requisitionHandler.RemoveItem)

						rr.Post("/{id}/comments", requisitionHandler.AddComment)
						rr.Get("/{id}/comments", requisitionHandler.ListComments)
					})

					pr.Get("/projects/{projectID}/budget", requisitionHandler.AvailableBudget)
				}

				if notificationHandler != nil {
					pr.Route("/notifications", func(nr chi.Router) {
						nr.Get("/", notificationHandler.ListNotifications)
						nr.Patch("/{id}/read", notificationHandler.MarkRead)
						nr.Delete("/{id}", notificationHandler.DeleteNotification)
					})
				}
			})
		}
	})
}
