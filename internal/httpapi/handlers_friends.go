package httpapi

import (
	"net/http"

	"netpulseserver/internal/domain"
)

type friendsResponse struct {
	Friends []domain.Friend `json:"friends"`
}

// handleFriends serves a user's accepted friends. Friend mutations happen
// over the socket; this read exists for profile screens fetched out of
// band.
func (a *api) handleFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := a.friendsSvc.ListFriends(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, friendsResponse{Friends: friends})
}
