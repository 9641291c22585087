package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/howlsync/internal/app"
	"github.com/Guilhem-Bonnet/howlsync/internal/httpjson"
)

type PlayerHandler struct {
	playback  *app.PlaybackService
	publisher *app.SelectionPublisher
}

func NewPlayerHandler(playback *app.PlaybackService, publisher *app.SelectionPublisher) *PlayerHandler {
	return &PlayerHandler{playback: playback, publisher: publisher}
}

func (h *PlayerHandler) Routes(r chi.Router) {
	r.Route("/player", func(r chi.Router) {
		r.Post("/start", h.start)
		r.Post("/stop", h.stop)
		r.Post("/seek", h.seek)
		r.Post("/load", h.load)
		r.Post("/events", h.event)
	})
}

type startBody struct {
	From float64 `json:"from"`
}

type seekBody struct {
	Position *float64 `json:"position"`
}

type loadBody struct {
	Title string `json:"title"`
}

type playerState struct {
	Active bool `json:"active"`
}

func (h *PlayerHandler) start(w http.ResponseWriter, r *http.Request) {
	var req startBody
	// Corps optionnel: démarrage à 0.
	if r.ContentLength != 0 {
		if err := httpjson.Decode(r, &req); err != nil {
			httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}
	if err := h.playback.Start(r.Context(), req.From); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, playerState{Active: h.playback.Active()})
}

func (h *PlayerHandler) stop(w http.ResponseWriter, r *http.Request) {
	if err := h.playback.Stop(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, playerState{Active: h.playback.Active()})
}

func (h *PlayerHandler) seek(w http.ResponseWriter, r *http.Request) {
	var req seekBody
	if err := httpjson.Decode(r, &req); err != nil || req.Position == nil {
		httpjson.WriteError(w, http.StatusBadRequest, "position must be a number")
		return
	}
	if err := h.playback.Seek(r.Context(), *req.Position); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, playerState{Active: h.playback.Active()})
}

func (h *PlayerHandler) load(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		httpjson.WriteError(w, http.StatusServiceUnavailable, "player relay not configured")
		return
	}
	var req loadBody
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "expected {\"title\": string}")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		httpjson.WriteError(w, http.StatusBadRequest, "title is required")
		return
	}
	if err := h.publisher.Publish(r.Context(), req.Title); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, loadBody{Title: req.Title})
}

func (h *PlayerHandler) event(w http.ResponseWriter, r *http.Request) {
	var evt app.VideoEvent
	if err := httpjson.Decode(r, &evt); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.playback.HandleVideoEvent(r.Context(), evt); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusAccepted, playerState{Active: h.playback.Active()})
}
