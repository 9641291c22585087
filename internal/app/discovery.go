package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
	"github.com/Guilhem-Bonnet/howlsync/internal/ports"
	"github.com/rs/zerolog"
)

const (
	DefaultFetchTimeout         = 2 * time.Minute
	DefaultMaxConcurrentFetches = 4
)

// TimelineSource référence une timeline "at,pos" à télécharger.
type TimelineSource struct {
	URL      string          `json:"url"`
	Metadata domain.Metadata `json:"metadata"`
}

// DiscoveryRequest regroupe ce qu'une page a révélé: scripts déjà
// décodés, liens vers des documents funscript, liens vers des timelines,
// pages HTML à parcourir pour y trouver des liens .funscript, identifiants
// de vidéos du site dont le script est lu via son API.
type DiscoveryRequest struct {
	VideoTitle string             `json:"videoTitle,omitempty"`
	Records    []domain.Funscript `json:"records,omitempty"`
	URLs       []string           `json:"urls,omitempty"`
	Timelines  []TimelineSource   `json:"timelines,omitempty"`
	Pages      []string           `json:"pages,omitempty"`
	Videos     []string           `json:"videos,omitempty"`
}

// Empty est vrai si la requête ne référence aucune source.
func (r DiscoveryRequest) Empty() bool {
	return len(r.Records) == 0 && len(r.URLs) == 0 && len(r.Timelines) == 0 && len(r.Pages) == 0 && len(r.Videos) == 0
}

type DiscoveryFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

type DiscoveryResult struct {
	Cached   []string           `json:"cached"`
	Failed   []DiscoveryFailure `json:"failed,omitempty"`
	Selected string             `json:"selected,omitempty"`
}

// DiscoveryService insère les résultats d'une découverte dans le cache puis
// applique la sélection implicite.
type DiscoveryService struct {
	logger    zerolog.Logger
	cache     *CacheService
	selection *SelectionService
	fetcher   ports.ScriptFetcher
	limiter   *DynamicLimiter

	FetchTimeout time.Duration
}

func NewDiscoveryService(logger zerolog.Logger, cache *CacheService, selection *SelectionService, fetcher ports.ScriptFetcher, limiter *DynamicLimiter) *DiscoveryService {
	if limiter == nil {
		limiter = NewDynamicLimiter(DefaultMaxConcurrentFetches)
	}
	return &DiscoveryService{
		logger:       logger,
		cache:        cache,
		selection:    selection,
		fetcher:      fetcher,
		limiter:      limiter,
		FetchTimeout: DefaultFetchTimeout,
	}
}

type fetched struct {
	source   string
	fallback string
	rec      domain.Funscript
	err      error
}

// scriptURL est une URL de document funscript et son titre de repli.
type scriptURL struct {
	url      string
	fallback string
}

// Discover parcourt les pages, télécharge les sources (en parallèle, sous le
// limiteur et un délai global), insère chaque script dans l'ordre de la requête, puis
// sélectionne implicitement. Rien n'est inséré pour une source en échec.
func (s *DiscoveryService) Discover(ctx context.Context, req DiscoveryRequest) (DiscoveryResult, error) {
	res := DiscoveryResult{Cached: []string{}}

	items := make([]fetched, 0, len(req.Records)+len(req.URLs)+len(req.Timelines)+len(req.Videos))
	for _, rec := range req.Records {
		items = append(items, fetched{source: "record", rec: rec})
	}
	timeout := s.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	urls, scanFailures := s.scanPages(fetchCtx, req)
	items = append(items, scanFailures...)
	items = append(items, s.fetchAll(fetchCtx, urls, req.Timelines, req.Videos)...)
	cancel()

	videoTitle := strings.TrimSpace(req.VideoTitle)
	for _, it := range items {
		if it.err != nil {
			res.Failed = append(res.Failed, DiscoveryFailure{Source: it.source, Error: it.err.Error()})
			s.logger.Warn().Err(it.err).Str("source", it.source).Msg("funscript discovery failed")
			continue
		}
		fallback := it.fallback
		if fallback == "" {
			fallback = videoTitle
		}
		stored, err := s.cache.InsertOrUpdate(ctx, it.rec.WithFallbackTitle(fallback))
		if err != nil && !applied(err) {
			res.Failed = append(res.Failed, DiscoveryFailure{Source: it.source, Error: err.Error()})
			continue
		}
		res.Cached = append(res.Cached, stored.Metadata.Title)
	}

	if len(res.Cached) == 0 {
		return res, nil
	}
	selected, err := s.selection.AutoSelect(ctx, req.VideoTitle)
	if err != nil && !applied(err) {
		return res, err
	}
	res.Selected = selected
	s.logger.Info().Int("cached", len(res.Cached)).Int("failed", len(res.Failed)).Str("selected", selected).Msg("discovery completed")
	return res, nil
}

// scanPages renvoie les URLs explicites de la requête suivies des liens
// trouvés dans ses pages (titre de repli: texte du lien).
func (s *DiscoveryService) scanPages(ctx context.Context, req DiscoveryRequest) ([]scriptURL, []fetched) {
	urls := make([]scriptURL, 0, len(req.URLs))
	for _, u := range req.URLs {
		urls = append(urls, scriptURL{url: u})
	}
	if len(req.Pages) == 0 {
		return urls, nil
	}

	scanner, ok := s.fetcher.(ports.PageScanner)
	if !ok {
		failures := make([]fetched, 0, len(req.Pages))
		for _, p := range req.Pages {
			failures = append(failures, fetched{source: p, err: &CodedError{Code: CodeInvalidParams, Message: "page scanning not supported"}})
		}
		return urls, failures
	}

	var failures []fetched
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		seen[u.url] = true
	}
	for _, page := range req.Pages {
		var links []ports.ScriptLink
		err := s.limiter.Do(ctx, func(ctx context.Context) error {
			var err error
			links, err = scanner.ScanPage(ctx, page)
			return err
		})
		if err != nil {
			failures = append(failures, fetched{source: page, err: err})
			continue
		}
		s.logger.Debug().Str("page", page).Int("links", len(links)).Msg("page scanned")
		for _, l := range links {
			if seen[l.URL] {
				continue
			}
			seen[l.URL] = true
			urls = append(urls, scriptURL{url: l.URL, fallback: l.Label})
		}
	}
	return urls, failures
}

func (s *DiscoveryService) fetchAll(ctx context.Context, urls []scriptURL, timelines []TimelineSource, videos []string) []fetched {
	n := len(urls) + len(timelines) + len(videos)
	if n == 0 {
		return nil
	}
	out := make([]fetched, n)
	if s.fetcher == nil {
		for i := range out {
			out[i] = fetched{source: "fetch", err: &CodedError{Code: CodeInvalidParams, Message: "no script fetcher configured"}}
		}
		return out
	}

	var wg sync.WaitGroup
	for i, u := range urls {
		i, u := i, u
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = fetched{source: u.url, fallback: u.fallback}
			out[i].err = s.limiter.Do(ctx, func(ctx context.Context) error {
				rec, err := s.fetcher.FetchFunscript(ctx, u.url)
				out[i].rec = rec
				return err
			})
		}()
	}
	for j, src := range timelines {
		i, src := len(urls)+j, src
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = fetched{source: src.URL}
			out[i].err = s.limiter.Do(ctx, func(ctx context.Context) error {
				actions, err := s.fetcher.FetchTimeline(ctx, src.URL)
				out[i].rec = domain.Funscript{Metadata: src.Metadata, Actions: actions}
				return err
			})
		}()
	}
	videoFetcher, _ := s.fetcher.(ports.VideoFetcher)
	for j, id := range videos {
		i, id := len(urls)+len(timelines)+j, id
		source := "video:" + id
		if videoFetcher == nil {
			out[i] = fetched{source: source, err: &CodedError{Code: CodeInvalidParams, Message: "video lookup not supported"}}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = fetched{source: source}
			out[i].err = s.limiter.Do(ctx, func(ctx context.Context) error {
				rec, err := videoFetcher.FetchVideo(ctx, id)
				out[i].rec = rec
				return err
			})
		}()
	}
	wg.Wait()
	return out
}
