package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/howlsync/internal/app"
	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
	"github.com/Guilhem-Bonnet/howlsync/internal/ports"
)

type Server struct {
	logger    zerolog.Logger
	cache     *app.CacheService
	selection *app.SelectionService
	discovery *app.DiscoveryService
	playback  *app.PlaybackService
	publisher *app.SelectionPublisher
	settings  *app.SettingsService
	bus       ports.EventBus

	onSettings func(domain.Settings)
}

func NewServer(logger zerolog.Logger, cache *app.CacheService, selection *app.SelectionService, discovery *app.DiscoveryService, playback *app.PlaybackService, publisher *app.SelectionPublisher, settings *app.SettingsService, bus ports.EventBus) *Server {
	return &Server{logger: logger, cache: cache, selection: selection, discovery: discovery, playback: playback, publisher: publisher, settings: settings, bus: bus}
}

// WithSettingsHook appelle fn après chaque PUT /settings réussi.
func (s *Server) WithSettingsHook(fn func(domain.Settings)) *Server {
	s.onSettings = fn
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)
		r.Get("/openapi.json", s.handleOpenAPI)
		// Flux longs: pas de timeout de requête.
		r.Get("/events", s.handleEvents)
		r.Get("/ws", s.handleWebSocket)
		// Les découvertes sont bornées par leur propre délai de téléchargement.
		if s.discovery != nil {
			NewDiscoveriesHandler(s.discovery).Routes(r)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultRequestTimeout))

			if s.cache != nil {
				NewFunscriptsHandler(s.cache).Routes(r)
			}
			if s.selection != nil {
				NewSelectionHandler(s.selection).Routes(r)
			}
			if s.playback != nil {
				NewPlayerHandler(s.playback, s.publisher).Routes(r)
			}
			if s.settings != nil {
				NewSettingsHandler(s.settings, s.onSettings).Routes(r)
			}
		})
	})

	return r
}
