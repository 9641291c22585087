package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/howlsync/internal/app"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsMaxMessage = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowOrigin,
}

// allowOrigin accepte les extensions de navigateur et les pages locales.
func allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "chrome-extension", "moz-extension", "safari-web-extension":
		return true
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.EqualFold(u.Host, r.Host)
}

// wsFrame est l'enveloppe envoyée aux observateurs WebSocket.
type wsFrame struct {
	ID    string          `json:"id,omitempty"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// wsCommand est un message entrant d'un contexte (popup, content script).
type wsCommand struct {
	Action     string `json:"action"`
	Title      string `json:"title,omitempty"`
	VideoTitle string `json:"videoTitle,omitempty"`
}

const (
	wsActionGetSelection = "get_selection"
	wsActionMatchVideo   = "match_video"
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		http.Error(w, "event bus unavailable", http.StatusServiceUnavailable)
		return
	}
	logger := hlog.FromRequest(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, cancel := s.bus.Subscribe()
	defer cancel()

	hello := s.hello(r)
	log := logger.With().Str("observer_id", hello.ObserverID).Logger()
	out := make(chan wsFrame, 16)

	// Lecture: commandes entrantes + détection de fermeture.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(wsMaxMessage)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			var cmd wsCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Msg("websocket read failed")
				}
				return
			}
			if reply, ok := s.handleCommand(r, cmd); ok {
				select {
				case out <- reply:
				default:
				}
			}
		}
	}()

	if err := writeFrame(conn, wsFrame{Topic: "hello", Data: mustJSON(hello)}); err != nil {
		return
	}
	log.Debug().Msg("websocket observer connected")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			log.Debug().Msg("websocket observer disconnected")
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeFrame(conn, wsFrame{ID: evt.ID, Topic: evt.Topic, Data: evt.Payload}); err != nil {
				return
			}
		case f := <-out:
			if err := writeFrame(conn, f); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleCommand exécute une commande entrante. La réponse directe éventuelle
// est renvoyée au seul émetteur; les autres observateurs passent par le bus.
func (s *Server) handleCommand(r *http.Request, cmd wsCommand) (wsFrame, bool) {
	ctx := r.Context()
	switch cmd.Action {
	case app.ActionUpdateSelection:
		if s.selection == nil {
			return errorFrame(cmd.Action, "selection unavailable"), true
		}
		if _, err := s.selection.Select(ctx, cmd.Title); err != nil && !app.IsPersistenceError(err) {
			return errorFrame(cmd.Action, err.Error()), true
		}
		return wsFrame{}, false
	case wsActionMatchVideo:
		if s.selection == nil {
			return errorFrame(cmd.Action, "selection unavailable"), true
		}
		if _, err := s.selection.MatchVideo(ctx, cmd.VideoTitle); err != nil && !app.IsPersistenceError(err) {
			return errorFrame(cmd.Action, err.Error()), true
		}
		return wsFrame{}, false
	case wsActionGetSelection:
		return wsFrame{Topic: "hello", Data: mustJSON(s.hello(r))}, true
	default:
		return errorFrame(cmd.Action, "unknown action"), true
	}
}

func errorFrame(action, msg string) wsFrame {
	return wsFrame{Topic: "error", Data: mustJSON(map[string]string{"action": action, "error": msg})}
}

func writeFrame(conn *websocket.Conn, f wsFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(f)
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
