package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Guilhem-Bonnet/howlsync/internal/app"
)

const pingInterval = 15 * time.Second

// observerHello est le premier message d'un observateur: l'état courant du
// store, pour qu'un contexte qui aurait manqué des notifications reparte
// d'une valeur à jour.
type observerHello struct {
	ObserverID    string   `json:"observerId"`
	SelectedTitle string   `json:"selectedTitle,omitempty"`
	Titles        []string `json:"titles"`
	Degraded      bool     `json:"degraded,omitempty"`
}

func (s *Server) hello(r *http.Request) observerHello {
	h := observerHello{ObserverID: uuid.NewString(), Titles: []string{}}
	if s.cache == nil {
		return h
	}
	snap, err := s.cache.Snapshot(r.Context())
	if err != nil && !app.IsPersistenceError(err) {
		return h
	}
	h.Degraded = err != nil
	h.SelectedTitle = snap.SelectedTitle
	h.Titles = snap.Titles()
	return h
}

// handleEvents diffuse les événements du bus en SSE.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if s.bus == nil {
		http.Error(w, "event bus unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Abonnement avant le snapshot: aucun événement perdu entre les deux.
	ch, cancel := s.bus.Subscribe()
	defer cancel()

	hello, _ := json.Marshal(s.hello(r))
	fmt.Fprintf(w, "event: hello\ndata: %s\n\n", hello)
	flusher.Flush()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Topic, evt.Payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}
