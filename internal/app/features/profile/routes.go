// internal/app/features/profile/routes.go
package profile

import "github.com/go-chi/chi/v5"

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeMe)
	r.Patch("/", h.HandleUpdate)
	r.Get("/teams", h.ServeTeams)
	return r
}
