package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
	"github.com/Guilhem-Bonnet/howlsync/internal/ports"
)

// Clés du store partagé, identiques à celles de l'extension.
const (
	CachedFunscriptsKey = "cached_funscripts"
	SelectedTitleKey    = "selected_funscript_title"
)

// CacheRepository stocke le cache dans kv_store. La version portée par la
// ligne cached_funscripts sert de compare-and-swap pour les deux clés.
type CacheRepository struct {
	db *sql.DB
}

func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db}
}

func (r *CacheRepository) Load(ctx context.Context) (domain.FunscriptCache, int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.FunscriptCache{}, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var cache domain.FunscriptCache
	itemsJSON, version, err := getKV(ctx, tx, CachedFunscriptsKey)
	if err != nil {
		return domain.FunscriptCache{}, 0, err
	}
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &cache.Items); err != nil {
			return domain.FunscriptCache{}, 0, fmt.Errorf("decode %s: %w", CachedFunscriptsKey, err)
		}
	}

	selJSON, _, err := getKV(ctx, tx, SelectedTitleKey)
	if err != nil {
		return domain.FunscriptCache{}, 0, err
	}
	if len(selJSON) > 0 {
		// Valeur corrompue: on repart sans sélection.
		_ = json.Unmarshal(selJSON, &cache.SelectedTitle)
	}
	return cache, version, nil
}

func (r *CacheRepository) Save(ctx context.Context, cache domain.FunscriptCache, expected int64) (int64, error) {
	items := cache.Items
	if items == nil {
		items = []domain.Funscript{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return 0, err
	}
	selJSON, err := json.Marshal(cache.SelectedTitle)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	_, current, err := getKV(ctx, tx, CachedFunscriptsKey)
	if err != nil {
		return 0, err
	}
	if current != expected {
		return 0, ports.ErrConflict
	}
	next := current + 1
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := putKV(ctx, tx, CachedFunscriptsKey, itemsJSON, next, now); err != nil {
		return 0, err
	}
	if err := putKV(ctx, tx, SelectedTitleKey, selJSON, next, now); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

func getKV(ctx context.Context, tx *sql.Tx, key string) ([]byte, int64, error) {
	var (
		b       []byte
		version int64
	)
	err := tx.QueryRowContext(ctx, `SELECT value_json, version FROM kv_store WHERE key = ?`, key).Scan(&b, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	return b, version, nil
}

func putKV(ctx context.Context, tx *sql.Tx, key string, value []byte, version int64, now string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO kv_store(key, value_json, version, updated_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, version = excluded.version, updated_at = excluded.updated_at
	`, key, string(value), version, now)
	return err
}
