package app

import (
	"context"
	"errors"
	"sync"

	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
	"github.com/Guilhem-Bonnet/howlsync/internal/ports"
)

type memCacheRepo struct {
	mu      sync.Mutex
	cache   domain.FunscriptCache
	version int64

	loadErr error
	saveErr error
	// beforeSave simule une écriture concurrente d'un autre contexte.
	beforeSave func(r *memCacheRepo)
	saves      int
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{}
}

func (r *memCacheRepo) Load(ctx context.Context) (domain.FunscriptCache, int64, error) {
	if err := ctx.Err(); err != nil {
		return domain.FunscriptCache{}, 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return domain.FunscriptCache{}, 0, r.loadErr
	}
	return r.cache.Clone(), r.version, nil
}

func (r *memCacheRepo) Save(ctx context.Context, cache domain.FunscriptCache, expected int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if r.beforeSave != nil {
		hook := r.beforeSave
		r.beforeSave = nil
		hook(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return 0, r.saveErr
	}
	if r.version != expected {
		return 0, ports.ErrConflict
	}
	r.saves++
	r.version++
	r.cache = cache.Clone()
	return r.version, nil
}

// put écrit directement, comme un autre contexte.
func (r *memCacheRepo) put(cache domain.FunscriptCache) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = cache.Clone()
	r.version++
}

type recordingBus struct {
	mu     sync.Mutex
	events []ports.Event
	subs   []chan ports.Event
}

func (b *recordingBus) Publish(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	evt := ports.Event{Topic: topic, Payload: payload}
	b.events = append(b.events, evt)
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (b *recordingBus) Subscribe() (<-chan ports.Event, func()) {
	ch := make(chan ports.Event, 16)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch, func() {}
}

func (b *recordingBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Topic)
	}
	return out
}

func (b *recordingBus) last(topic string) (ports.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].Topic == topic {
			return b.events[i], true
		}
	}
	return ports.Event{}, false
}

type controlCall struct {
	Method   string
	Title    string
	Content  []byte
	Position float64
}

type fakeControl struct {
	mu    sync.Mutex
	calls []controlCall
	err   error
}

func (c *fakeControl) record(call controlCall) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return c.err
}

func (c *fakeControl) LoadFunscript(ctx context.Context, title string, content []byte) error {
	return c.record(controlCall{Method: "load", Title: title, Content: content})
}

func (c *fakeControl) StartPlayer(ctx context.Context, from float64) error {
	return c.record(controlCall{Method: "start", Position: from})
}

func (c *fakeControl) StopPlayer(ctx context.Context) error {
	return c.record(controlCall{Method: "stop"})
}

func (c *fakeControl) Seek(ctx context.Context, position float64) error {
	return c.record(controlCall{Method: "seek", Position: position})
}

func (c *fakeControl) snapshot() []controlCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]controlCall(nil), c.calls...)
}

type fakeFetcher struct {
	scripts   map[string]domain.Funscript
	timelines map[string][]domain.Action
	pages     map[string][]ports.ScriptLink
	videos    map[string]domain.Funscript
}

func (f *fakeFetcher) FetchVideo(ctx context.Context, videoID string) (domain.Funscript, error) {
	v, ok := f.videos[videoID]
	if !ok {
		return domain.Funscript{}, errors.New("no script")
	}
	return v, nil
}

func (f *fakeFetcher) ScanPage(ctx context.Context, pageURL string) ([]ports.ScriptLink, error) {
	links, ok := f.pages[pageURL]
	if !ok {
		return nil, errors.New("404")
	}
	return links, nil
}

func (f *fakeFetcher) FetchFunscript(ctx context.Context, url string) (domain.Funscript, error) {
	s, ok := f.scripts[url]
	if !ok {
		return domain.Funscript{}, errors.New("404")
	}
	return s, nil
}

func (f *fakeFetcher) FetchTimeline(ctx context.Context, url string) ([]domain.Action, error) {
	a, ok := f.timelines[url]
	if !ok {
		return nil, errors.New("404")
	}
	return a, nil
}

func settingsWithMax(max int) func(ctx context.Context) (domain.Settings, error) {
	return func(ctx context.Context) (domain.Settings, error) {
		s := domain.DefaultSettings()
		s.MaxCachedScripts = max
		return s, nil
	}
}

func script(title string) domain.Funscript {
	return domain.Funscript{Metadata: domain.Metadata{Title: title}, Actions: []domain.Action{{At: 0, Pos: 0}, {At: 500, Pos: 100}}}
}
