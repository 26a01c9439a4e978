package runs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes serves the run feed. guard wraps the routes that change
// state.
func SetupRoutes(t *Tracker, guard ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	h := Handlers{Tracker: t}

	r.Get("/", h.ListRuns)
	r.Get("/current/{dataset}", h.GetCurrent)
	r.Get("/{id}", h.GetRun)

	r.Group(func(r chi.Router) {
		r.Use(guard...)
		r.Post("/{id}/cancel", h.CancelRun)
	})

	return r
}
