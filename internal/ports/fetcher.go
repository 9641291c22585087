package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
)

// ScriptFetcher télécharge les scripts référencés par une page découverte.
type ScriptFetcher interface {
	// FetchFunscript récupère un document funscript JSON.
	FetchFunscript(ctx context.Context, url string) (domain.Funscript, error)
	// FetchTimeline récupère une timeline "at,pos" déjà normalisée.
	FetchTimeline(ctx context.Context, url string) ([]domain.Action, error)
}

// ScriptLink est un lien vers un script repéré dans une page.
type ScriptLink struct {
	URL string `json:"url"`
	// Texte du lien, titre de repli du script.
	Label string `json:"label,omitempty"`
}

// PageScanner repère les liens .funscript d'une page HTML.
type PageScanner interface {
	ScanPage(ctx context.Context, pageURL string) ([]ScriptLink, error)
}

// VideoFetcher construit un funscript à partir des données d'une vidéo du
// site (métadonnées et timeline "at,pos" associée).
type VideoFetcher interface {
	FetchVideo(ctx context.Context, videoID string) (domain.Funscript, error)
}
