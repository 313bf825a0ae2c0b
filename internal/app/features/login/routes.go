// internal/app/features/login/routes.go
package login

import (
	"github.com/musterapp/muster/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, limiter *ratelimit.Limiter) chi.Router {
	r := chi.NewRouter()

	// Credential endpoints are brute-forceable and get throttled.
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Post("/signup", h.HandleSignup)
		r.Post("/login", h.HandleLogin)
	})

	r.Post("/role", h.HandleChooseRole)
	return r
}
