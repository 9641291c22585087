package domain

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultServerAddress    = "http://127.0.0.1"
	DefaultControlPort      = 4695
	DefaultSyncDelay        = 500
	DefaultMaxCachedScripts = 10
	MinCachedScripts        = 1
	MaxCachedScriptsLimit   = 50
)

// Settings correspond à l'espace de clés "synchronisé" de l'extension.
type Settings struct {
	// Adresse du service Howl local (sans port).
	ServerAddress string `json:"serverAddress"`
	ControlPort   int    `json:"controlPort"`

	// Décalage (ms) appliqué aux positions envoyées au player.
	SyncDelay int `json:"syncDelay"`

	// Capacité du cache de scripts, bornée à [1,50].
	MaxCachedScripts int `json:"maxCachedScripts"`
}

func DefaultSettings() Settings {
	return Settings{
		ServerAddress:    DefaultServerAddress,
		ControlPort:      DefaultControlPort,
		SyncDelay:        DefaultSyncDelay,
		MaxCachedScripts: DefaultMaxCachedScripts,
	}
}

// ClampMaxCachedScripts ramène n dans [1,50]; n <= 0 vaut la valeur par défaut.
func ClampMaxCachedScripts(n int) int {
	if n <= 0 {
		return DefaultMaxCachedScripts
	}
	if n > MaxCachedScriptsLimit {
		return MaxCachedScriptsLimit
	}
	return n
}

// NormalizeServerAddress ajoute http:// si aucun schéma n'est présent et
// vérifie que l'adresse est une URL exploitable.
func NormalizeServerAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" || strings.Contains(addr, "undefined") {
		return "", fmt.Errorf("%w: serverAddress is empty", ErrInvalidSettings)
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: serverAddress %q is not a valid URL", ErrInvalidSettings, addr)
	}
	return strings.TrimRight(addr, "/"), nil
}

// Normalize applique les valeurs par défaut et les bornes.
func (s Settings) Normalize() (Settings, error) {
	def := DefaultSettings()
	if strings.TrimSpace(s.ServerAddress) == "" {
		s.ServerAddress = def.ServerAddress
	}
	addr, err := NormalizeServerAddress(s.ServerAddress)
	if err != nil {
		return Settings{}, err
	}
	s.ServerAddress = addr
	if s.ControlPort <= 0 || s.ControlPort > 65535 {
		s.ControlPort = def.ControlPort
	}
	if s.SyncDelay < 0 {
		return Settings{}, fmt.Errorf("%w: syncDelay must be >= 0", ErrInvalidSettings)
	}
	s.MaxCachedScripts = ClampMaxCachedScripts(s.MaxCachedScripts)
	return s, nil
}

// ControlURL renvoie l'URL complète d'un endpoint du service Howl. Le port
// configuré n'est ajouté que si l'adresse n'en porte pas déjà un.
func (s Settings) ControlURL(endpoint string) string {
	base := strings.TrimRight(s.ServerAddress, "/")
	if u, err := url.Parse(base); err == nil && u.Port() != "" {
		return base + endpoint
	}
	port := s.ControlPort
	if port <= 0 {
		port = DefaultControlPort
	}
	return fmt.Sprintf("%s:%d%s", base, port, endpoint)
}
