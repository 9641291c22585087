package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/Guilhem-Bonnet/howlsync/internal/app"
	"github.com/Guilhem-Bonnet/howlsync/internal/buildinfo"
	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
	"github.com/Guilhem-Bonnet/howlsync/internal/httpjson"
	"github.com/rs/zerolog/hlog"
)

const defaultRequestTimeout = 30 * time.Second

// degradedHeader signale une réponse servie depuis le miroir en mémoire.
const degradedHeader = "X-Cache-Degraded"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, buildinfo.Current())
}

func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	logger := hlog.FromRequest(r)
	logger.Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("http")
}

// writeServiceError traduit les erreurs du cœur en statuts HTTP.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var coded *app.CodedError
	switch {
	case errors.Is(err, domain.ErrInvalidRecord),
		errors.Is(err, domain.ErrInvalidSettings),
		errors.Is(err, domain.ErrInvalidPosition):
		httpjson.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnknownTitle), errors.Is(err, app.ErrNotFound):
		httpjson.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrConflict):
		httpjson.WriteError(w, http.StatusConflict, err.Error())
	case app.IsPersistenceError(err):
		hlog.FromRequest(r).Warn().Err(err).Msg("shared store unavailable")
		httpjson.WriteError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &coded):
		status := http.StatusBadGateway
		if coded.Code == app.CodeInvalidParams {
			status = http.StatusBadRequest
		}
		httpjson.WriteCodedError(w, status, coded.Code, coded.Error())
	default:
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// markDegraded pose l'en-tête de repli si err est un échec de stockage
// toléré en lecture. Renvoie false si err est une autre erreur.
func markDegraded(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	if app.IsPersistenceError(err) {
		w.Header().Set(degradedHeader, "true")
		return true
	}
	return false
}
