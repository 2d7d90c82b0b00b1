package api

import (
	"net/http"
	"strconv"
)

// RefreshHandler handles cooldown-gated refreshes.
type RefreshHandler struct {
	deps Dependencies
}

// NewRefreshHandler creates a new refresh handler.
func NewRefreshHandler(deps Dependencies) *RefreshHandler {
	return &RefreshHandler{deps: deps}
}

// HandleStart handles POST /refresh.
func (h *RefreshHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_refresh"
	j, err := h.deps.StartRefresh(r.Context(), accountOf(r))
	if err != nil {
		if e, eerr := h.deps.RefreshEligibility(r.Context(), accountOf(r)); eerr == nil && !e.CanRefresh {
			w.Header().Set("Retry-After", strconv.Itoa(int(e.TimeRemaining.Seconds())))
		}
		fail(w, Wrap(op, err))
		return
	}
	w.Header().Set("Location", "/jobs/"+j.ID)
	respondStarted(w, r, h.deps, op, j)
}

// HandleNext handles GET /refresh/next.
func (h *RefreshHandler) HandleNext(w http.ResponseWriter, r *http.Request) {
	const op = "api.next_refresh"
	e, err := h.deps.RefreshEligibility(r.Context(), accountOf(r))
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, e)
}
