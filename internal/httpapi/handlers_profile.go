package httpapi

import (
	"net/http"

	"netpulseserver/internal/domain"
)

func (a *api) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := a.achievementsSvc.Profile(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}

type achievementsResponse struct {
	Achievements []domain.AchievementStatus `json:"achievements"`
}

func (a *api) handleAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := a.achievementsSvc.ListForUser(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, achievementsResponse{Achievements: list})
}
