package httpapi

import (
	"net/http"
)

// handleStats serves the operator dashboard counters.
func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.stats.Snapshot(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
