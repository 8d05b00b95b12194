// internal/app/features/teams/routes.go
package teams

import "github.com/go-chi/chi/v5"

// Routes returns the /teams router. Callers mount team-scoped sub-routers
// (assignments) on the returned router under /{teamID}.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.HandleCreate)
	join := chi.Router(r)
	if h.JoinLimit != nil {
		join = r.With(h.JoinLimit)
	}
	join.Post("/join", h.HandleJoin)
	r.Get("/{teamID}/members", h.ServeMembers)
	r.Post("/{teamID}/members/{userID}/remove", h.HandleRemove)
	r.Get("/{teamID}/invitation", h.ServeInvitation)
	return r
}
