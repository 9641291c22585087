package app

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
	"github.com/Guilhem-Bonnet/howlsync/internal/ports"
	"github.com/rs/zerolog"
)

// Actions des messages échangés avec les contextes de l'extension.
const (
	ActionUpdateSelection  = "update_funscript_selection"
	ActionSelectionUpdated = "funscript_selection_updated"
)

// SelectionNotice est le message poussé aux observateurs.
type SelectionNotice struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Loaded *bool  `json:"loaded,omitempty"`
	Error  string `json:"error,omitempty"`
}

// SelectionService propage la sélection courante vers les contextes
// observateurs. La notification est best-effort; la valeur de référence
// reste selectedTitle dans le store partagé, que tout observateur relit.
type SelectionService struct {
	logger zerolog.Logger
	cache  *CacheService
	bus    ports.EventBus
}

func NewSelectionService(logger zerolog.Logger, cache *CacheService, bus ports.EventBus) *SelectionService {
	return &SelectionService{logger: logger, cache: cache, bus: bus}
}

// Select valide que le titre existe, l'enregistre puis notifie les
// observateurs. ErrUnknownTitle laisse le store inchangé.
func (s *SelectionService) Select(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	selected, err := s.cache.setSelection(ctx, title)
	if !applied(err) {
		return "", err
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("title", selected).Msg("selection not persisted")
	}
	s.notify(SelectionNotice{Action: ActionUpdateSelection, Title: selected})
	s.logger.Info().Str("title", selected).Msg("funscript selected")
	return selected, err
}

// CurrentSelection relit la sélection dans le store. Vide si aucune.
func (s *SelectionService) CurrentSelection(ctx context.Context) (string, error) {
	snap, err := s.cache.Snapshot(ctx)
	if err != nil && !applied(err) {
		return "", err
	}
	return snap.SelectedTitle, err
}

// MatchVideo sélectionne le script dont le titre correspond à celui de la
// vidéo en cours (extension et casse ignorées).
func (s *SelectionService) MatchVideo(ctx context.Context, videoTitle string) (string, error) {
	if domain.TitleKey(videoTitle) == "" {
		return "", domain.ErrUnknownTitle
	}
	snap, err := s.cache.Snapshot(ctx)
	if err != nil && !applied(err) {
		return "", err
	}
	f, ok := snap.MatchVideo(videoTitle)
	if !ok {
		return "", domain.ErrUnknownTitle
	}
	return s.Select(ctx, f.Metadata.Title)
}

// AutoSelect applique la sélection implicite après une découverte: un seul
// script en cache, ou un script correspondant au titre de la vidéo.
// Renvoie le titre sélectionné, vide si rien n'a été choisi.
func (s *SelectionService) AutoSelect(ctx context.Context, videoTitle string) (string, error) {
	snap, err := s.cache.Snapshot(ctx)
	if err != nil && !applied(err) {
		return "", err
	}
	switch {
	case len(snap.Items) == 1:
		return s.Select(ctx, snap.Items[0].Metadata.Title)
	case domain.TitleKey(videoTitle) != "":
		if f, ok := snap.MatchVideo(videoTitle); ok {
			return s.Select(ctx, f.Metadata.Title)
		}
	}
	return "", nil
}

func (s *SelectionService) notify(n SelectionNotice) {
	if s.bus == nil {
		return
	}
	b, err := json.Marshal(n)
	if err != nil {
		return
	}
	s.bus.Publish(ports.TopicSelection, b)
}
