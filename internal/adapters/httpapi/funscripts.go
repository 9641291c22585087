package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/howlsync/internal/app"
	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
	"github.com/Guilhem-Bonnet/howlsync/internal/httpjson"
)

type FunscriptsHandler struct {
	cache *app.CacheService
}

func NewFunscriptsHandler(cache *app.CacheService) *FunscriptsHandler {
	return &FunscriptsHandler{cache: cache}
}

func (h *FunscriptsHandler) Routes(r chi.Router) {
	r.Get("/funscripts", h.list)
	r.Post("/funscripts", h.put)
	r.Delete("/funscripts", h.clear)
	r.Get("/funscripts/{title}", h.get)
	r.Delete("/funscripts/{title}", h.remove)
}

type funscriptList struct {
	Items         []domain.Funscript `json:"items"`
	SelectedTitle string             `json:"selectedTitle,omitempty"`
}

func (h *FunscriptsHandler) list(w http.ResponseWriter, r *http.Request) {
	snap, err := h.cache.Snapshot(r.Context())
	if !markDegraded(w, err) {
		writeServiceError(w, r, err)
		return
	}
	items := snap.List()
	if r.URL.Query().Get("order") == "recent" {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	httpjson.Write(w, http.StatusOK, funscriptList{Items: items, SelectedTitle: snap.SelectedTitle})
}

// titleParam décode le segment {title}. chi route sur RawPath quand il
// existe: le segment reste alors encodé ("AC%2FDC").
func titleParam(r *http.Request) string {
	raw := chi.URLParam(r, "title")
	if r.URL.RawPath == "" {
		return raw
	}
	title, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return title
}

func (h *FunscriptsHandler) get(w http.ResponseWriter, r *http.Request) {
	f, err := h.cache.Get(r.Context(), titleParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, f)
}

func (h *FunscriptsHandler) put(w http.ResponseWriter, r *http.Request) {
	// Les funscripts réels portent des champs annexes (version, range...):
	// décodage permissif.
	var f domain.Funscript
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	stored, err := h.cache.InsertOrUpdate(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, stored)
}

func (h *FunscriptsHandler) remove(w http.ResponseWriter, r *http.Request) {
	removed, err := h.cache.Remove(r.Context(), titleParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (h *FunscriptsHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
