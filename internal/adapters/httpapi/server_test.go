package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/howlsync/internal/adapters/howl"
	"github.com/Guilhem-Bonnet/howlsync/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/howlsync/internal/adapters/scriptfetch"
	"github.com/Guilhem-Bonnet/howlsync/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/howlsync/internal/app"
	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
	"github.com/Guilhem-Bonnet/howlsync/internal/ports"
)

// howlStub enregistre les requêtes reçues par le faux service Howl.
type howlStub struct {
	mu     sync.Mutex
	paths  []string
	bodies []string
	status int
}

func (h *howlStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	h.mu.Lock()
	h.paths = append(h.paths, r.URL.Path)
	h.bodies = append(h.bodies, string(b))
	status := h.status
	h.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (h *howlStub) calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.paths...)
}

type testEnv struct {
	handler  http.Handler
	howl     *howlStub
	bus      *memorybus.Bus
	settings *app.SettingsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithFetcher(t, nil)
}

func newTestEnvWithFetcher(t *testing.T, fetcher ports.ScriptFetcher) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := zerolog.Nop()
	bus := memorybus.New()
	t.Cleanup(bus.Close)

	stub := &howlStub{}
	howlSrv := httptest.NewServer(stub)
	t.Cleanup(howlSrv.Close)

	settings := app.NewSettingsService(sqlite.NewSettingsRepository(db.SQL), bus)
	cache := app.NewCacheService(logger, sqlite.NewCacheRepository(db.SQL), bus, settings.Get)
	selection := app.NewSelectionService(logger, cache, bus)
	control := howl.NewClient(logger, settings.Get).WithBaseURL(howlSrv.URL)
	discovery := app.NewDiscoveryService(logger, cache, selection, fetcher, nil)
	playback := app.NewPlaybackService(logger, control, bus, settings.Get)
	t.Cleanup(playback.Close)
	publisher := app.NewSelectionPublisher(logger, bus, cache, control)

	srv := NewServer(logger, cache, selection, discovery, playback, publisher, settings, bus)
	return &testEnv{handler: srv.Router(), howl: stub, bus: bus, settings: settings}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func postScript(t *testing.T, e *testEnv, title string) {
	t.Helper()
	body := `{"metadata":{"title":"` + title + `"},"actions":[{"at":0,"pos":0},{"at":500,"pos":100}]}`
	if rr := e.do(t, http.MethodPost, "/api/v1/funscripts", body); rr.Code != http.StatusCreated {
		t.Fatalf("POST %s: want 201, got %d (%s)", title, rr.Code, rr.Body.String())
	}
}

func TestHealthAndVersion(t *testing.T) {
	e := newTestEnv(t)
	if rr := e.do(t, http.MethodGet, "/api/v1/health", ""); rr.Code != http.StatusOK {
		t.Fatalf("health: %d", rr.Code)
	}
	rr := e.do(t, http.MethodGet, "/api/v1/version", "")
	var info map[string]string
	decodeBody(t, rr, &info)
	if info["version"] == "" {
		t.Fatalf("expected version, got %v", info)
	}
}

func TestOpenAPI_ListsFunscriptRoutes(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodGet, "/api/v1/openapi.json", "")
	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	decodeBody(t, rr, &doc)
	for _, p := range []string{"/api/v1/funscripts", "/api/v1/selection", "/api/v1/player/load", "/api/v1/discoveries"} {
		if _, ok := doc.Paths[p]; !ok {
			t.Fatalf("missing path %s", p)
		}
	}
}

func TestFunscripts_CRUDAndOrder(t *testing.T) {
	e := newTestEnv(t)
	postScript(t, e, "first")
	postScript(t, e, "second")

	var list funscriptList
	decodeBody(t, e.do(t, http.MethodGet, "/api/v1/funscripts", ""), &list)
	if len(list.Items) != 2 || list.Items[0].Metadata.Title != "first" {
		t.Fatalf("unexpected list: %+v", list.Items)
	}
	decodeBody(t, e.do(t, http.MethodGet, "/api/v1/funscripts?order=recent", ""), &list)
	if list.Items[0].Metadata.Title != "second" {
		t.Fatalf("recent order: want second first, got %+v", list.Items)
	}

	var f domain.Funscript
	rr := e.do(t, http.MethodGet, "/api/v1/funscripts/second", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get: %d", rr.Code)
	}
	decodeBody(t, rr, &f)
	if len(f.Actions) != 2 {
		t.Fatalf("actions: %+v", f.Actions)
	}

	if rr := e.do(t, http.MethodGet, "/api/v1/funscripts/missing", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("missing: want 404, got %d", rr.Code)
	}

	var removed map[string]bool
	decodeBody(t, e.do(t, http.MethodDelete, "/api/v1/funscripts/first", ""), &removed)
	if !removed["removed"] {
		t.Fatalf("expected removed=true")
	}
	decodeBody(t, e.do(t, http.MethodDelete, "/api/v1/funscripts/first", ""), &removed)
	if removed["removed"] {
		t.Fatalf("second remove should be a no-op")
	}

	if rr := e.do(t, http.MethodDelete, "/api/v1/funscripts", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("clear: %d", rr.Code)
	}
	decodeBody(t, e.do(t, http.MethodGet, "/api/v1/funscripts", ""), &list)
	if len(list.Items) != 0 {
		t.Fatalf("expected empty cache, got %d", len(list.Items))
	}
}

func TestFunscripts_InvalidRecordIs400(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodPost, "/api/v1/funscripts", `{"metadata":{"title":"  "},"actions":[]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rr.Code)
	}
}

func TestFunscripts_EscapedTitlesInPath(t *testing.T) {
	e := newTestEnv(t)
	titles := []string{"AC/DC", "one, two", "100%"}
	for _, title := range titles {
		postScript(t, e, title)
	}
	for _, title := range titles {
		path := "/api/v1/funscripts/" + url.PathEscape(title)
		rr := e.do(t, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s: want 200, got %d (%s)", path, rr.Code, rr.Body.String())
		}
		var f domain.Funscript
		decodeBody(t, rr, &f)
		if f.Metadata.Title != title {
			t.Fatalf("GET %s: want %q, got %q", path, title, f.Metadata.Title)
		}
	}
	for _, title := range titles {
		path := "/api/v1/funscripts/" + url.PathEscape(title)
		var removed map[string]bool
		decodeBody(t, e.do(t, http.MethodDelete, path, ""), &removed)
		if !removed["removed"] {
			t.Fatalf("DELETE %s: expected removed=true", path)
		}
	}
	var list funscriptList
	decodeBody(t, e.do(t, http.MethodGet, "/api/v1/funscripts", ""), &list)
	if len(list.Items) != 0 {
		t.Fatalf("expected empty cache, got %+v", list.Items)
	}
}

func TestFunscripts_EvictionHonoursSettings(t *testing.T) {
	e := newTestEnv(t)
	if rr := e.do(t, http.MethodPut, "/api/v1/settings", `{"maxCachedScripts":2}`); rr.Code != http.StatusOK {
		t.Fatalf("settings: %d %s", rr.Code, rr.Body.String())
	}
	postScript(t, e, "a")
	postScript(t, e, "b")
	if rr := e.do(t, http.MethodPut, "/api/v1/selection", `{"title":"a"}`); rr.Code != http.StatusOK {
		t.Fatalf("select: %d", rr.Code)
	}
	postScript(t, e, "c")

	var list funscriptList
	decodeBody(t, e.do(t, http.MethodGet, "/api/v1/funscripts", ""), &list)
	if len(list.Items) != 2 || list.Items[0].Metadata.Title != "b" {
		t.Fatalf("unexpected items: %+v", list.Items)
	}
	if list.SelectedTitle != "" {
		t.Fatalf("dangling selection exposed: %q", list.SelectedTitle)
	}
}

func TestSelection_SelectAndMatch(t *testing.T) {
	e := newTestEnv(t)
	postScript(t, e, "Scene One")
	postScript(t, e, "Other")

	if rr := e.do(t, http.MethodPut, "/api/v1/selection", `{"title":"nope"}`); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown title: want 404, got %d", rr.Code)
	}
	if rr := e.do(t, http.MethodPut, "/api/v1/selection", `{"title":"Other","extra":1}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: want 400, got %d", rr.Code)
	}

	var sel selectionBody
	decodeBody(t, e.do(t, http.MethodPost, "/api/v1/selection/match", `{"videoTitle":"scene one.mp4"}`), &sel)
	if sel.Title != "Scene One" {
		t.Fatalf("match: got %q", sel.Title)
	}
	decodeBody(t, e.do(t, http.MethodGet, "/api/v1/selection", ""), &sel)
	if sel.Title != "Scene One" {
		t.Fatalf("current: got %q", sel.Title)
	}
}

func TestDiscoveries_SingleRecordIsSelected(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodPost, "/api/v1/discoveries", `{"videoTitle":"My Video","records":[{"metadata":{},"actions":[{"at":0,"pos":0}]}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("discover: %d %s", rr.Code, rr.Body.String())
	}
	var res app.DiscoveryResult
	decodeBody(t, rr, &res)
	if len(res.Cached) != 1 || res.Cached[0] != "My Video" || res.Selected != "My Video" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if rr := e.do(t, http.MethodPost, "/api/v1/discoveries", `{}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("empty discovery: want 400, got %d", rr.Code)
	}
}

func TestDiscoveries_VideoFromSiteAPI(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/videos/v42":
			_, _ = w.Write([]byte(`{"name":"Site Clip","duration":2,"script":{"url":"s/v42.csv","average_speed":10},"user":{"username":"maker"}}`))
		case "/api/assets/s/v42.csv":
			_, _ = w.Write([]byte("0,0\n500,100\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(site.Close)

	e := newTestEnvWithFetcher(t, scriptfetch.New(time.Second).WithVideoAPI(site.URL+"/api"))
	rr := e.do(t, http.MethodPost, "/api/v1/discoveries", `{"videoTitle":"site clip","videos":["v42","nope"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("discover: %d %s", rr.Code, rr.Body.String())
	}
	var res app.DiscoveryResult
	decodeBody(t, rr, &res)
	if len(res.Cached) != 1 || res.Cached[0] != "Site Clip" || res.Selected != "Site Clip" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Failed) != 1 || res.Failed[0].Source != "video:nope" {
		t.Fatalf("failed: %+v", res.Failed)
	}

	var f domain.Funscript
	decodeBody(t, e.do(t, http.MethodGet, "/api/v1/funscripts/"+url.PathEscape("Site Clip"), ""), &f)
	if f.Metadata.Duration != 2000 || f.Metadata.Creator != "maker" || len(f.Actions) != 2 {
		t.Fatalf("unexpected funscript: %+v", f)
	}
}

func TestPlayer_CommandsReachHowl(t *testing.T) {
	e := newTestEnv(t)
	if rr := e.do(t, http.MethodPut, "/api/v1/settings", `{"syncDelay":0}`); rr.Code != http.StatusOK {
		t.Fatalf("settings: %d", rr.Code)
	}
	postScript(t, e, "a")

	if rr := e.do(t, http.MethodPost, "/api/v1/player/load", `{"title":"a"}`); rr.Code != http.StatusOK {
		t.Fatalf("load: %d %s", rr.Code, rr.Body.String())
	}
	if rr := e.do(t, http.MethodPost, "/api/v1/player/start", `{"from":2}`); rr.Code != http.StatusOK {
		t.Fatalf("start: %d", rr.Code)
	}
	if rr := e.do(t, http.MethodPost, "/api/v1/player/seek", `{"position":10}`); rr.Code != http.StatusOK {
		t.Fatalf("seek: %d", rr.Code)
	}
	if rr := e.do(t, http.MethodPost, "/api/v1/player/stop", ""); rr.Code != http.StatusOK {
		t.Fatalf("stop: %d", rr.Code)
	}

	want := []string{"/load_funscript", "/start_player", "/seek", "/stop_player"}
	got := e.howl.calls()
	if len(got) != len(want) {
		t.Fatalf("calls: want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: want %s, got %s", i, want[i], got[i])
		}
	}
}

func TestPlayer_LoadRejectsInlineScript(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodPost, "/api/v1/player/load", `{"title":"a","funscript":{"actions":[]}}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rr.Code)
	}
	rr = e.do(t, http.MethodPost, "/api/v1/player/load", `{"title":"absent"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("uncached title: want 404, got %d", rr.Code)
	}
	if len(e.howl.calls()) != 0 {
		t.Fatalf("howl must not be called")
	}
}

func TestPlayer_InvalidSeekAndUpstreamFailure(t *testing.T) {
	e := newTestEnv(t)
	if rr := e.do(t, http.MethodPost, "/api/v1/player/seek", `{"position":-1}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("negative seek: want 400, got %d", rr.Code)
	}
	if rr := e.do(t, http.MethodPost, "/api/v1/player/seek", `{}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing position: want 400, got %d", rr.Code)
	}

	e.howl.mu.Lock()
	e.howl.status = http.StatusInternalServerError
	e.howl.mu.Unlock()

	rr := e.do(t, http.MethodPost, "/api/v1/player/stop", "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("upstream failure: want 502, got %d", rr.Code)
	}
	var body struct {
		Code string `json:"code"`
	}
	decodeBody(t, rr, &body)
	if body.Code != app.CodeHTTPStatus {
		t.Fatalf("code: want %s, got %s", app.CodeHTTPStatus, body.Code)
	}
}

func TestPlayer_VideoEventPlayStarts(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodPost, "/api/v1/player/events", `{"type":"play","currentTime":3,"paused":false}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("event: %d %s", rr.Code, rr.Body.String())
	}
	var st playerState
	decodeBody(t, rr, &st)
	if !st.Active {
		t.Fatalf("expected active player")
	}
	if rr := e.do(t, http.MethodPost, "/api/v1/player/events", `{"type":"bogus"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown event: want 400, got %d", rr.Code)
	}
}

func TestEvents_StreamsHelloAndBusEvents(t *testing.T) {
	e := newTestEnv(t)
	postScript(t, e, "a")

	srv := httptest.NewServer(e.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 4096)
	var seen strings.Builder
	readUntil := func(substr string) {
		t.Helper()
		for !strings.Contains(seen.String(), substr) {
			n, err := resp.Body.Read(buf)
			if err != nil {
				t.Fatalf("read events (waiting for %q, got %q): %v", substr, seen.String(), err)
			}
			seen.Write(buf[:n])
		}
	}

	readUntil("event: hello")
	readUntil(`"titles":["a"]`)

	if rr := e.do(t, http.MethodPut, "/api/v1/selection", `{"title":"a"}`); rr.Code != http.StatusOK {
		t.Fatalf("select: %d", rr.Code)
	}
	readUntil("event: funscript.selection")
}
