package app

import (
	"context"
	"encoding/json"

	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
	"github.com/Guilhem-Bonnet/howlsync/internal/ports"
)

type SettingsService struct {
	repo ports.SettingsRepository
	bus  ports.EventBus
}

func NewSettingsService(repo ports.SettingsRepository, bus ports.EventBus) *SettingsService {
	return &SettingsService{repo: repo, bus: bus}
}

func (s *SettingsService) Get(ctx context.Context) (domain.Settings, error) {
	return s.repo.Get(ctx)
}

// Put valide puis enregistre les réglages. Une baisse de maxCachedScripts ne
// réduit le cache qu'à la prochaine insertion.
func (s *SettingsService) Put(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	normalized, err := settings.Normalize()
	if err != nil {
		return domain.Settings{}, err
	}
	updated, err := s.repo.Put(ctx, normalized)
	if err != nil {
		return domain.Settings{}, err
	}
	if s.bus != nil {
		if b, err := json.Marshal(updated); err == nil {
			s.bus.Publish(ports.TopicSettingsUpdated, b)
		}
	}
	return updated, nil
}
