package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/howlsync/internal/app"
	"github.com/Guilhem-Bonnet/howlsync/internal/httpjson"
)

type DiscoveriesHandler struct {
	discovery *app.DiscoveryService
}

func NewDiscoveriesHandler(discovery *app.DiscoveryService) *DiscoveriesHandler {
	return &DiscoveriesHandler{discovery: discovery}
}

func (h *DiscoveriesHandler) Routes(r chi.Router) {
	r.Post("/discoveries", h.create)
}

func (h *DiscoveriesHandler) create(w http.ResponseWriter, r *http.Request) {
	var req app.DiscoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Empty() {
		httpjson.WriteError(w, http.StatusBadRequest, "nothing to discover")
		return
	}
	res, err := h.discovery.Discover(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, res)
}
