// internal/app/features/groups/routes.go
package groups

import (
	"github.com/musterapp/muster/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Post("/", h.HandleCreate)
	r.Post("/join", h.HandleJoin)
	r.Route("/{groupID}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Post("/leave", h.HandleLeave)
		r.Post("/kick", h.HandleKick)
		r.Delete("/", h.HandleDelete)
		r.Put("/location", h.HandleLocation)
	})
	return r
}
