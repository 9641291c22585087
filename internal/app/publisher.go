package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/Guilhem-Bonnet/howlsync/internal/ports"
	"github.com/rs/zerolog"
)

// SelectionPublisher pousse le script sélectionné vers le service Howl à
// chaque notification de sélection, puis publie un accusé pour l'UI.
// Un échec est journalisé, sans nouvel essai.
type SelectionPublisher struct {
	logger  zerolog.Logger
	bus     ports.EventBus
	cache   *CacheService
	control ports.ControlPlane
}

func NewSelectionPublisher(logger zerolog.Logger, bus ports.EventBus, cache *CacheService, control ports.ControlPlane) *SelectionPublisher {
	return &SelectionPublisher{logger: logger, bus: bus, cache: cache, control: control}
}

func (p *SelectionPublisher) Run(ctx context.Context) {
	if p == nil || p.bus == nil || p.cache == nil || p.control == nil {
		return
	}
	ch, cancel := p.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("selection publisher stopped")
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			p.handleEvent(ctx, evt)
		}
	}
}

func (p *SelectionPublisher) handleEvent(ctx context.Context, evt ports.Event) {
	if evt.Topic != ports.TopicSelection {
		return
	}

	var notice SelectionNotice
	if err := json.Unmarshal(evt.Payload, &notice); err != nil {
		return
	}
	notice.Title = strings.TrimSpace(notice.Title)
	if notice.Title == "" {
		return
	}

	err := p.Publish(ctx, notice.Title)
	loaded := err == nil
	ack := SelectionNotice{Action: ActionSelectionUpdated, Title: notice.Title, Loaded: &loaded}
	if err != nil {
		ack.Error = err.Error()
		p.logger.Warn().Err(err).Str("title", notice.Title).Msg("failed to load funscript into player")
	} else {
		p.logger.Info().Str("title", notice.Title).Msg("funscript loaded into player")
	}

	// Best-effort notification.
	if b, _ := json.Marshal(ack); len(b) > 0 {
		p.bus.Publish(ports.TopicSelectionAck, b)
	}
}

// Publish envoie le script nommé au service Howl (/load_funscript).
func (p *SelectionPublisher) Publish(ctx context.Context, title string) error {
	f, err := p.cache.Get(ctx, title)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &CodedError{Code: CodeInvalidParams, Message: "funscript not cached: " + title, Err: err}
		}
		return err
	}
	content, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return p.control.LoadFunscript(ctx, f.Metadata.Title, content)
}
