package handlers

import (
	"net/http"
)

type nicheDTO struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (a *App) NichesList(w http.ResponseWriter, r *http.Request) {
	niches, err := a.Niches.ListNiches(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("niches: list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load niches")
		return
	}
	out := make([]nicheDTO, 0, len(niches))
	for _, n := range niches {
		out = append(out, nicheDTO{ID: n.ID, Name: n.Name, Description: n.Description})
	}
	a.json(w, http.StatusOK, out)
}
