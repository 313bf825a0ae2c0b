// internal/app/features/session/routes.go
package session

import (
	"github.com/musterapp/muster/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)
	r.Post("/resolve", h.HandleResolve)
	r.Get("/events", h.HandleEvents)
	return r
}
