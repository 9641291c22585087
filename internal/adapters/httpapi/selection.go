package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/howlsync/internal/app"
	"github.com/Guilhem-Bonnet/howlsync/internal/httpjson"
)

type SelectionHandler struct {
	selection *app.SelectionService
}

func NewSelectionHandler(selection *app.SelectionService) *SelectionHandler {
	return &SelectionHandler{selection: selection}
}

func (h *SelectionHandler) Routes(r chi.Router) {
	r.Get("/selection", h.get)
	r.Put("/selection", h.put)
	r.Post("/selection/match", h.match)
}

type selectionBody struct {
	Title string `json:"title"`
}

type matchBody struct {
	VideoTitle string `json:"videoTitle"`
}

func (h *SelectionHandler) get(w http.ResponseWriter, r *http.Request) {
	title, err := h.selection.CurrentSelection(r.Context())
	if !markDegraded(w, err) {
		writeServiceError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, selectionBody{Title: title})
}

func (h *SelectionHandler) put(w http.ResponseWriter, r *http.Request) {
	var req selectionBody
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	title, err := h.selection.Select(r.Context(), req.Title)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, selectionBody{Title: title})
}

func (h *SelectionHandler) match(w http.ResponseWriter, r *http.Request) {
	var req matchBody
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	title, err := h.selection.MatchVideo(r.Context(), req.VideoTitle)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, selectionBody{Title: title})
}
