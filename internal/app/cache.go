package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
	"github.com/Guilhem-Bonnet/howlsync/internal/ports"
	"github.com/rs/zerolog"
)

const defaultMaxAttempts = 3

// CacheService est le store de funscripts partagé. Chaque opération relit le
// store, applique la mutation puis réécrit avec contrôle de version: une
// écriture concurrente d'un autre contexte provoque une relecture au lieu
// d'écraser silencieusement ses insertions.
//
// Le miroir en mémoire garde le dernier état appliqué; il sert de repli en
// lecture quand le stockage est indisponible et n'est jamais annulé.
type CacheService struct {
	logger   zerolog.Logger
	repo     ports.CacheRepository
	bus      ports.EventBus
	settings func(ctx context.Context) (domain.Settings, error)

	// MaxAttempts borne les relectures après conflit de version.
	MaxAttempts int

	mu     sync.Mutex
	mirror domain.FunscriptCache
}

func NewCacheService(logger zerolog.Logger, repo ports.CacheRepository, bus ports.EventBus, settingsGetter func(ctx context.Context) (domain.Settings, error)) *CacheService {
	return &CacheService{
		logger:      logger,
		repo:        repo,
		bus:         bus,
		settings:    settingsGetter,
		MaxAttempts: defaultMaxAttempts,
	}
}

// CacheEvent est la charge utile des événements du cache.
type CacheEvent struct {
	Title  string   `json:"title,omitempty"`
	Titles []string `json:"titles,omitempty"`
}

// InsertOrUpdate ajoute ou remplace un script, puis évince les plus anciens
// au-delà de maxCachedScripts. Si le script sélectionné est évincé, la
// sélection est effacée dans la même écriture.
func (s *CacheService) InsertOrUpdate(ctx context.Context, rec domain.Funscript) (domain.Funscript, error) {
	if err := rec.Validate(); err != nil {
		return domain.Funscript{}, err
	}
	max := s.maxCachedScripts(ctx)

	var (
		evicted  []domain.Funscript
		dangling string
	)
	next, err := s.mutate(ctx, func(c *domain.FunscriptCache) error {
		var err error
		evicted, err = c.InsertOrUpdate(rec, max)
		if err != nil {
			return err
		}
		dangling = c.Reconcile()
		return nil
	})
	if !applied(err) {
		return domain.Funscript{}, err
	}

	stored, _ := next.Get(rec.Metadata.Title)
	s.publish(ports.TopicFunscriptCached, CacheEvent{Title: stored.Metadata.Title})
	for _, ev := range evicted {
		s.logger.Debug().Str("title", ev.Metadata.Title).Int("max", max).Msg("funscript evicted")
		s.publish(ports.TopicFunscriptEvicted, CacheEvent{Title: ev.Metadata.Title})
	}
	if dangling != "" {
		s.logger.Warn().Err(domain.ErrEvictionInconsistency).Str("title", dangling).Msg("selection cleared after eviction")
		s.publish(ports.TopicSelectionCleared, CacheEvent{Title: dangling})
	}
	return stored, err
}

// Remove supprime un script; sans effet si le titre est absent.
func (s *CacheService) Remove(ctx context.Context, title string) (bool, error) {
	var (
		removed     bool
		wasSelected bool
	)
	_, err := s.mutate(ctx, func(c *domain.FunscriptCache) error {
		wasSelected = c.SelectedTitle != "" && domain.TitleKey(c.SelectedTitle) == domain.TitleKey(title)
		removed = c.Remove(title)
		return nil
	})
	if !applied(err) {
		return false, err
	}
	if removed {
		s.publish(ports.TopicFunscriptRemoved, CacheEvent{Title: title})
		if wasSelected {
			s.publish(ports.TopicSelectionCleared, CacheEvent{Title: title})
		}
	}
	return removed, err
}

// Clear vide le cache et efface la sélection.
func (s *CacheService) Clear(ctx context.Context) error {
	_, err := s.mutate(ctx, func(c *domain.FunscriptCache) error {
		c.Clear()
		return nil
	})
	if !applied(err) {
		return err
	}
	s.publish(ports.TopicCacheCleared, CacheEvent{})
	return err
}

// Get renvoie ErrNotFound si le titre est absent.
func (s *CacheService) Get(ctx context.Context, title string) (domain.Funscript, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil && !applied(err) {
		return domain.Funscript{}, err
	}
	f, ok := snap.Get(title)
	if !ok {
		return domain.Funscript{}, ErrNotFound
	}
	return f, nil
}

// List renvoie les scripts dans l'ordre d'insertion.
func (s *CacheService) List(ctx context.Context) ([]domain.Funscript, error) {
	snap, err := s.Snapshot(ctx)
	return snap.List(), err
}

// Snapshot relit le store partagé. Une sélection pendante n'est jamais
// exposée. En cas d'échec de lecture, renvoie le miroir et une
// *domain.PersistenceError.
func (s *CacheService) Snapshot(ctx context.Context) (domain.FunscriptCache, error) {
	cur, _, err := s.repo.Load(ctx)
	if err != nil {
		if canceled(ctx, err) {
			return domain.FunscriptCache{}, contextErr(ctx, err)
		}
		s.logger.Warn().Err(err).Msg("cache read failed, serving in-memory mirror")
		s.mu.Lock()
		mirror := s.mirror.Clone()
		s.mu.Unlock()
		mirror.Reconcile()
		return mirror, &domain.PersistenceError{Op: "load", Err: err}
	}
	s.mu.Lock()
	s.mirror = cur.Clone()
	s.mu.Unlock()
	cur.Reconcile()
	return cur, nil
}

// setSelection fixe selectedTitle. Utilisé par SelectionService.
func (s *CacheService) setSelection(ctx context.Context, title string) (string, error) {
	var selected string
	_, err := s.mutate(ctx, func(c *domain.FunscriptCache) error {
		var err error
		selected, err = c.Select(title)
		return err
	})
	if !applied(err) {
		return "", err
	}
	return selected, err
}

// mutate applique fn sur l'état relu puis l'écrit avec la version lue.
// Les opérations d'un même processus sont sérialisées par s.mu.
func (s *CacheService) mutate(ctx context.Context, fn func(c *domain.FunscriptCache) error) (domain.FunscriptCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return s.mirror.Clone(), err
		}
		cur, version, err := s.repo.Load(ctx)
		if err != nil {
			// Appelant parti: rien n'est appliqué, pas même au miroir.
			if canceled(ctx, err) {
				return s.mirror.Clone(), contextErr(ctx, err)
			}
			// Store illisible: on applique sur le miroir, sans écrire.
			next := s.mirror.Clone()
			if ferr := fn(&next); ferr != nil {
				return s.mirror.Clone(), ferr
			}
			s.mirror = next.Clone()
			s.logger.Warn().Err(err).Msg("cache load failed, mutation kept in memory only")
			return next, &domain.PersistenceError{Op: "load", Err: err}
		}

		next := cur.Clone()
		if ferr := fn(&next); ferr != nil {
			s.mirror = cur.Clone()
			return cur, ferr
		}

		_, err = s.repo.Save(ctx, next, version)
		if errors.Is(err, ports.ErrConflict) {
			s.logger.Debug().Int("attempt", i+1).Msg("cache write conflict, retrying")
			continue
		}
		if err != nil && canceled(ctx, err) {
			return cur, contextErr(ctx, err)
		}
		s.mirror = next.Clone()
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache write failed")
			return next, &domain.PersistenceError{Op: "save", Err: err}
		}
		return next, nil
	}
	return s.mirror.Clone(), &domain.PersistenceError{Op: "save", Err: ports.ErrConflict}
}

func (s *CacheService) maxCachedScripts(ctx context.Context) int {
	if s.settings == nil {
		return domain.DefaultMaxCachedScripts
	}
	st, err := s.settings(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("settings unavailable, using default cache size")
		return domain.DefaultMaxCachedScripts
	}
	return domain.ClampMaxCachedScripts(st.MaxCachedScripts)
}

func (s *CacheService) publish(topic string, evt any) {
	if s.bus == nil {
		return
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return
	}
	s.bus.Publish(topic, b)
}

// applied indique si l'état a été modifié, au moins en mémoire.
func applied(err error) bool {
	if err == nil {
		return true
	}
	var perr *domain.PersistenceError
	return errors.As(err, &perr) && !errors.Is(perr.Err, ports.ErrConflict)
}

// canceled est vrai quand l'échec vient du contexte de l'appelant et non du
// stockage.
func canceled(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func contextErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}

// IsPersistenceError est vrai pour les échecs de stockage (non fatals).
func IsPersistenceError(err error) bool {
	var perr *domain.PersistenceError
	return errors.As(err, &perr)
}
