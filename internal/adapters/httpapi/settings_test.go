package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/howlsync/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/howlsync/internal/app"
	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
)

func TestSettingsHandler_PutCallsHook(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := sqlite.NewSettingsRepository(db.SQL)
	svc := app.NewSettingsService(repo, nil)

	var got domain.Settings
	h := NewSettingsHandler(svc, func(updated domain.Settings) {
		got = updated
	})

	r := chi.NewRouter()
	h.Routes(r)

	body := []byte(`{"serverAddress":"192.168.1.20","controlPort":4700,"syncDelay":250,"maxCachedScripts":99}`)
	req := httptest.NewRequest(http.MethodPut, "/settings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: want %d, got %d", http.StatusOK, rr.Code)
	}
	if got.ServerAddress != "http://192.168.1.20" {
		t.Fatalf("serverAddress: want normalized, got %q", got.ServerAddress)
	}
	if got.MaxCachedScripts != domain.MaxCachedScriptsLimit {
		t.Fatalf("maxCachedScripts: want %d, got %d", domain.MaxCachedScriptsLimit, got.MaxCachedScripts)
	}
}

func TestSettingsHandler_RejectsUndefinedAddress(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	h := NewSettingsHandler(app.NewSettingsService(sqlite.NewSettingsRepository(db.SQL), nil), nil)
	r := chi.NewRouter()
	h.Routes(r)

	req := httptest.NewRequest(http.MethodPut, "/settings", bytes.NewReader([]byte(`{"serverAddress":"undefined"}`)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: want %d, got %d", http.StatusBadRequest, rr.Code)
	}
}
