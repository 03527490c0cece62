package handlers

import (
	"encoding/json"
	"net/http"

	"server/internal/assetcache"
	"server/internal/classifier"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/infra/credentials"
	"server/internal/infra/geoip"
	"server/internal/middleware"
	"server/internal/payments"
	"server/internal/storage"
)

// App carries the dependencies shared by all HTTP handlers.
type App struct {
	Logger      infra.Logger
	Users       domain.UserRepository
	Jobs        domain.ListingJobRepository
	Niches      domain.NicheRepository
	Classifier  *classifier.Classifier
	Store       *storage.FileStore
	Cache       *assetcache.Cache
	Payments    *payments.Client
	Credentials *credentials.Store
	Geo         geoip.CountryResolver
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, codeStr, msg string) {
	a.json(w, code, map[string]errorBody{"error": {Code: codeStr, Message: msg}})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
