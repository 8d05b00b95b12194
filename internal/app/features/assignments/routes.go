// internal/app/features/assignments/routes.go
package assignments

import "github.com/go-chi/chi/v5"

// TeamRoutes serves the team-scoped endpoints. Mount it at
// /teams/{teamID}/assignments so the teamID parameter is set.
func TeamRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.HandleCreate)
	r.Get("/upcoming", h.ServeUpcoming)
	return r
}

// Routes serves /assignments/{assignmentID}/...
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Patch("/{assignmentID}", h.HandleUpdate)
	r.Get("/{assignmentID}/occurrences", h.ServeOccurrences)
	r.Get("/{assignmentID}/presence", h.ServeOwnPresence)
	r.Put("/{assignmentID}/presence", h.HandleDeclare)
	r.Get("/{assignmentID}/presences", h.ServePresences)
	r.Put("/{assignmentID}/presence/{userID}", h.HandleOverride)
	return r
}
