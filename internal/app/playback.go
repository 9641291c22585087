package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
	"github.com/Guilhem-Bonnet/howlsync/internal/ports"
	"github.com/rs/zerolog"
)

const (
	// DefaultDebounce regroupe les rafales waiting/canplay d'un lecteur vidéo.
	DefaultDebounce = 300 * time.Millisecond
	// SeekThreshold: en dessous (secondes), un seeked n'est pas relayé.
	SeekThreshold = 1.0

	debouncedCallTimeout = 10 * time.Second
)

type VideoEventType string

const (
	VideoPlay    VideoEventType = "play"
	VideoPause   VideoEventType = "pause"
	VideoEnded   VideoEventType = "ended"
	VideoSeeked  VideoEventType = "seeked"
	VideoWaiting VideoEventType = "waiting"
	VideoCanPlay VideoEventType = "canplay"
)

// VideoEvent est un événement du lecteur vidéo relayé par un content script.
type VideoEvent struct {
	Type        VideoEventType `json:"type"`
	CurrentTime float64        `json:"currentTime"` // secondes
	Paused      bool           `json:"paused"`
}

type PlayerCommand struct {
	Command  string  `json:"command"`
	Position float64 `json:"position,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// PlaybackService relaie start/stop/seek vers le service Howl et traduit les
// événements du lecteur vidéo en commandes.
type PlaybackService struct {
	logger   zerolog.Logger
	control  ports.ControlPlane
	bus      ports.EventBus
	settings func(ctx context.Context) (domain.Settings, error)

	Debounce time.Duration

	mu           sync.Mutex
	active       bool
	lastPosition float64
	lastEvent    VideoEvent
	waitingTimer *time.Timer
	canPlayTimer *time.Timer
}

func NewPlaybackService(logger zerolog.Logger, control ports.ControlPlane, bus ports.EventBus, settingsGetter func(ctx context.Context) (domain.Settings, error)) *PlaybackService {
	return &PlaybackService{
		logger:   logger,
		control:  control,
		bus:      bus,
		settings: settingsGetter,
		Debounce: DefaultDebounce,
	}
}

// Start démarre le player à partir de from (secondes), décalé de syncDelay.
func (s *PlaybackService) Start(ctx context.Context, from float64) error {
	if from < 0 || math.IsNaN(from) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPosition, from)
	}
	shifted := s.shift(ctx, from)
	err := s.control.StartPlayer(ctx, shifted)
	s.mu.Lock()
	if err == nil {
		s.active = true
	}
	s.lastPosition = from
	s.mu.Unlock()
	s.publish(PlayerCommand{Command: "start", Position: shifted}, err)
	return err
}

func (s *PlaybackService) Stop(ctx context.Context) error {
	err := s.control.StopPlayer(ctx)
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
	s.publish(PlayerCommand{Command: "stop"}, err)
	return err
}

// Seek positionne le player; position doit être un nombre >= 0.
func (s *PlaybackService) Seek(ctx context.Context, position float64) error {
	if position < 0 || math.IsNaN(position) || math.IsInf(position, 0) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPosition, position)
	}
	shifted := s.shift(ctx, position)
	err := s.control.Seek(ctx, shifted)
	s.mu.Lock()
	s.lastPosition = position
	s.mu.Unlock()
	s.publish(PlayerCommand{Command: "seek", Position: shifted}, err)
	return err
}

// HandleVideoEvent traduit un événement vidéo:
// play → start, pause/ended → stop, seeked → seek si le saut dépasse 1s,
// waiting → stop et canplay → start (si la lecture continue), tous deux
// regroupés sur Debounce.
func (s *PlaybackService) HandleVideoEvent(ctx context.Context, evt VideoEvent) error {
	s.mu.Lock()
	s.lastEvent = evt
	s.mu.Unlock()

	switch evt.Type {
	case VideoPlay:
		return s.Start(ctx, evt.CurrentTime)
	case VideoPause, VideoEnded:
		return s.Stop(ctx)
	case VideoSeeked:
		s.mu.Lock()
		diff := math.Abs(evt.CurrentTime - s.lastPosition)
		s.mu.Unlock()
		if diff <= SeekThreshold {
			return nil
		}
		if err := s.Seek(ctx, evt.CurrentTime); err != nil {
			return err
		}
		if !evt.Paused {
			return s.Start(ctx, evt.CurrentTime)
		}
		return nil
	case VideoWaiting:
		s.debounce(&s.waitingTimer, func() {
			ctx, cancel := context.WithTimeout(context.Background(), debouncedCallTimeout)
			defer cancel()
			if err := s.Stop(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("stop on buffering failed")
			}
		})
		return nil
	case VideoCanPlay:
		s.debounce(&s.canPlayTimer, func() {
			s.mu.Lock()
			last := s.lastEvent
			s.mu.Unlock()
			if last.Paused || last.CurrentTime <= 0 {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), debouncedCallTimeout)
			defer cancel()
			if err := s.Start(ctx, last.CurrentTime); err != nil {
				s.logger.Warn().Err(err).Msg("start on canplay failed")
			}
		})
		return nil
	default:
		return &CodedError{Code: CodeInvalidParams, Message: "unknown video event: " + string(evt.Type)}
	}
}

// Active indique si le player a été démarré et pas encore arrêté.
func (s *PlaybackService) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Close annule les appels différés en attente.
func (s *PlaybackService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range []*time.Timer{s.waitingTimer, s.canPlayTimer} {
		if t != nil {
			t.Stop()
		}
	}
}

func (s *PlaybackService) debounce(slot **time.Timer, fn func()) {
	delay := s.Debounce
	if delay <= 0 {
		delay = DefaultDebounce
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if *slot != nil {
		(*slot).Stop()
	}
	*slot = time.AfterFunc(delay, fn)
}

// shift ajoute syncDelay (ms) à une position en secondes.
func (s *PlaybackService) shift(ctx context.Context, pos float64) float64 {
	if s.settings == nil {
		return pos
	}
	st, err := s.settings(ctx)
	if err != nil || st.SyncDelay <= 0 {
		return pos
	}
	return pos + float64(st.SyncDelay)/1000
}

func (s *PlaybackService) publish(cmd PlayerCommand, err error) {
	if err != nil {
		cmd.Error = err.Error()
		s.logger.Warn().Err(err).Str("command", cmd.Command).Msg("player command failed")
	}
	if s.bus == nil {
		return
	}
	if b, merr := json.Marshal(cmd); merr == nil {
		s.bus.Publish(ports.TopicPlayer, b)
	}
}
