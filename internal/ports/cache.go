package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
)

// CacheRepository persiste le cache partagé ("cached_funscripts" +
// "selected_funscript_title").
type CacheRepository interface {
	// Load renvoie l'état courant et sa version (0 si jamais écrit).
	Load(ctx context.Context) (domain.FunscriptCache, int64, error)
	// Save écrit l'état si la version stockée vaut toujours expected.
	// Renvoie ErrConflict sinon, et la nouvelle version en cas de succès.
	Save(ctx context.Context, cache domain.FunscriptCache, expected int64) (int64, error)
}
