package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/sustainability_layer/internal/app"
	"github.com/R3E-Network/sustainability_layer/internal/app/metrics"
)

type healthResponse struct {
	Status   string   `json:"status"`
	Services []string `json:"services"`
}

func newRouter(application *app.Application) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:   "ok",
			Services: application.Services(),
		})
	}).Methods(http.MethodGet)
	return metrics.InstrumentHandler(r)
}
