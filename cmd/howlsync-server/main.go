package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Guilhem-Bonnet/howlsync/internal/adapters/howl"
	"github.com/Guilhem-Bonnet/howlsync/internal/adapters/httpapi"
	"github.com/Guilhem-Bonnet/howlsync/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/howlsync/internal/adapters/scriptfetch"
	"github.com/Guilhem-Bonnet/howlsync/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/howlsync/internal/app"
	"github.com/Guilhem-Bonnet/howlsync/internal/buildinfo"
	"github.com/Guilhem-Bonnet/howlsync/internal/config"
	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
)

func main() {
	configPath := flag.String("config", "", "Fichier YAML de configuration (ex: howlsync.yaml)")
	addr := flag.String("addr", "", "Adresse d'écoute (ex: 127.0.0.1:4696)")
	dbPath := flag.String("db", "", "Chemin SQLite (ex: howlsync.db)")
	logLevel := flag.String("log-level", "", "Niveau de log (debug, info, warn, error)")
	pretty := flag.Bool("pretty", false, "Logs lisibles en console")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *pretty {
		cfg.Pretty = true
	}

	logger := newLogger(cfg)
	log.Logger = logger

	logger.Info().Interface("build", buildinfo.Current()).Str("db", cfg.DBPath).Msg("starting")

	ctx := context.Background()
	db, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open db")
	}
	defer func() { _ = db.Close() }()

	bus := memorybus.New()
	defer bus.Close()

	settingsSvc := app.NewSettingsService(sqlite.NewSettingsRepository(db.SQL), bus)
	cacheSvc := app.NewCacheService(component(logger, "cache"), sqlite.NewCacheRepository(db.SQL), bus, settingsSvc.Get)
	selectionSvc := app.NewSelectionService(component(logger, "selection"), cacheSvc, bus)

	control := howl.NewClient(component(logger, "howl"), settingsSvc.Get)
	fetcher := scriptfetch.NewWithTTL(cfg.FetchTimeout, cfg.FetchCacheTTL, cfg.FetchCacheTTL/2).WithVideoAPI(cfg.VideoAPI)
	fetchLimiter := app.NewDynamicLimiter(cfg.MaxConcurrentFetches)
	discoverySvc := app.NewDiscoveryService(component(logger, "discovery"), cacheSvc, selectionSvc, fetcher, fetchLimiter)
	discoverySvc.FetchTimeout = cfg.FetchTimeout

	playbackSvc := app.NewPlaybackService(component(logger, "playback"), control, bus, settingsSvc.Get)
	defer playbackSvc.Close()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Publisher: pousse chaque nouvelle sélection vers le service Howl.
	publisher := app.NewSelectionPublisher(component(logger, "publisher"), bus, cacheSvc, control)
	go publisher.Run(shutdownCtx)

	srv := httpapi.NewServer(logger, cacheSvc, selectionSvc, discoverySvc, playbackSvc, publisher, settingsSvc, bus).
		WithSettingsHook(func(updated domain.Settings) {
			logger.Info().
				Str("control_url", updated.ControlURL("")).
				Int("sync_delay", updated.SyncDelay).
				Int("max_cached_scripts", updated.MaxCachedScripts).
				Msg("settings updated")
		})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	// Ferme les flux SSE/WebSocket pour que Shutdown n'attende pas le timeout.
	httpServer.RegisterOnShutdown(bus.Close)

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server crashed")
			stop()
		}
	}()

	<-shutdownCtx.Done()
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	if n := bus.Dropped(); n > 0 {
		logger.Warn().Int64("dropped", n).Msg("events dropped for slow observers")
	}
	logger.Info().Msg("bye")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := zerolog.New(os.Stdout)
	if cfg.Pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return out.With().Timestamp().Str("app", "howlsync-server").Logger()
}

func component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
