package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config regroupe la configuration du processus serveur. Les réglages
// utilisateur (adresse Howl, syncDelay, taille du cache) vivent en base,
// pas ici.
type Config struct {
	Addr     string `yaml:"addr"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`
	Pretty   bool   `yaml:"pretty"`

	// Délai global d'une découverte (téléchargements inclus).
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// Durée de rétention des scripts téléchargés, par URL.
	FetchCacheTTL        time.Duration `yaml:"fetch_cache_ttl"`
	MaxConcurrentFetches int           `yaml:"max_concurrent_fetches"`
	// API du site vidéo: {video_api}/videos/{id} et {video_api}/assets/{url}.
	VideoAPI string `yaml:"video_api"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func Default() Config {
	return Config{
		Addr:                 envOr("HOWLSYNC_ADDR", "127.0.0.1:4696"),
		DBPath:               envOr("HOWLSYNC_DB_PATH", "howlsync.db"),
		LogLevel:             envOr("HOWLSYNC_LOG_LEVEL", "info"),
		Pretty:               envBool("HOWLSYNC_PRETTY", false),
		FetchTimeout:         envDuration("HOWLSYNC_FETCH_TIMEOUT", 2*time.Minute),
		FetchCacheTTL:        envDuration("HOWLSYNC_FETCH_CACHE_TTL", 10*time.Minute),
		MaxConcurrentFetches: 4,
		VideoAPI:             envOr("HOWLSYNC_VIDEO_API", "https://faptap.net/api"),
		ShutdownTimeout:      10 * time.Second,
	}
}

// Load part de Default() puis applique le fichier YAML path s'il existe.
// path vide: HOWLSYNC_CONFIG, sinon aucun fichier.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("HOWLSYNC_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.sanitize(), nil
}

func (c Config) sanitize() Config {
	def := Default()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = def.FetchTimeout
	}
	if c.FetchCacheTTL <= 0 {
		c.FetchCacheTTL = def.FetchCacheTTL
	}
	if c.MaxConcurrentFetches <= 0 {
		c.MaxConcurrentFetches = def.MaxConcurrentFetches
	}
	if c.VideoAPI == "" {
		c.VideoAPI = def.VideoAPI
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
