package runs

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handlers serves the read-only run feed plus cancellation.
type Handlers struct {
	Tracker *Tracker
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h Handlers) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Import run not found", http.StatusNotFound)
	case errors.Is(err, ErrFinished):
		http.Error(w, "Import run already finished", http.StatusConflict)
	default:
		h.Tracker.log.Error().Err(err).Msg("run feed request failed")
		http.Error(w, "Failed to fetch import runs", http.StatusInternalServerError)
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid import run id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// ListRuns returns recent runs, filtered by ?dataset= and capped by ?limit=.
func (h Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	out, err := h.Tracker.List(r.Context(), r.URL.Query().Get("dataset"), limit)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if out == nil {
		out = []ImportRun{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	run, err := h.Tracker.Get(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetCurrent returns the live run of a dataset.
func (h Handlers) GetCurrent(w http.ResponseWriter, r *http.Request) {
	run, err := h.Tracker.Current(r.Context(), chi.URLParam(r, "dataset"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// CancelRun asks a running import to stop at its next batch boundary.
func (h Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.Tracker.RequestCancel(r.Context(), id); err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id.String(), "status": "cancel_requested"})
}
