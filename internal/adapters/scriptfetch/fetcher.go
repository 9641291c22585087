// Package scriptfetch télécharge les scripts référencés par les pages
// découvertes, avec un cache par URL pour éviter de retélécharger un script
// à chaque rechargement de page.
package scriptfetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultTTL             = 10 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute

	maxBodySize = 32 << 20
	userAgent   = "howlsync-server"
)

var (
	ErrRemote   = errors.New("remote script error")
	ErrNoScript = errors.New("video has no script")
	ErrNoAPI    = errors.New("video api not configured")
)

type Fetcher struct {
	client *http.Client
	cache  *gocache.Cache

	videoAPI string
}

func New(timeout time.Duration) *Fetcher {
	return NewWithTTL(timeout, DefaultTTL, DefaultCleanupInterval)
}

func NewWithTTL(timeout, ttl, cleanupInterval time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		cache:  gocache.New(ttl, cleanupInterval),
	}
}

// FetchFunscript récupère un document funscript JSON.
func (f *Fetcher) FetchFunscript(ctx context.Context, url string) (domain.Funscript, error) {
	key := "json:" + url
	if v, ok := f.cache.Get(key); ok {
		if fs, ok := v.(domain.Funscript); ok {
			return fs, nil
		}
	}
	body, err := f.get(ctx, url)
	if err != nil {
		return domain.Funscript{}, err
	}
	var fs domain.Funscript
	if err := json.Unmarshal(body, &fs); err != nil {
		return domain.Funscript{}, fmt.Errorf("decode funscript %s: %w", url, err)
	}
	fs = fs.Canonical()
	f.cache.Set(key, fs, gocache.DefaultExpiration)
	return fs, nil
}

// FetchTimeline récupère une timeline "at,pos" et la normalise. Un corps
// commençant par {"error" est une erreur du site distant.
func (f *Fetcher) FetchTimeline(ctx context.Context, url string) ([]domain.Action, error) {
	key := "csv:" + url
	if v, ok := f.cache.Get(key); ok {
		if actions, ok := v.([]domain.Action); ok {
			return append([]domain.Action(nil), actions...), nil
		}
	}
	body, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	text := string(body)
	if strings.HasPrefix(strings.TrimSpace(text), `{"error"`) {
		return nil, fmt.Errorf("%w: %s", ErrRemote, strings.TrimSpace(text))
	}
	actions := domain.ParseTimelineCSV(text)
	f.cache.Set(key, actions, gocache.DefaultExpiration)
	return append([]domain.Action(nil), actions...), nil
}

// WithVideoAPI fixe la racine de l'API du site vidéo (ex.
// https://faptap.net/api).
func (f *Fetcher) WithVideoAPI(base string) *Fetcher {
	f.videoAPI = strings.TrimRight(strings.TrimSpace(base), "/")
	return f
}

// videoData est la réponse de {api}/videos/{id}; seuls les champs utiles
// sont décodés.
type videoData struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	StreamURL   string  `json:"stream_url"`
	Duration    float64 `json:"duration"` // secondes
	Performers  []named `json:"performers"`
	Tags        []named `json:"tags"`
	Script      *struct {
		URL          string  `json:"url"`
		AverageSpeed float64 `json:"average_speed"`
	} `json:"script"`
	User *struct {
		Username string `json:"username"`
	} `json:"user"`
}

type named struct {
	Name string `json:"name"`
}

// FetchVideo lit les données de la vidéo puis sa timeline
// {api}/assets/{script.url}. ErrNoScript si la vidéo n'a pas de script ou
// si la timeline est vide.
func (f *Fetcher) FetchVideo(ctx context.Context, videoID string) (domain.Funscript, error) {
	if f.videoAPI == "" {
		return domain.Funscript{}, ErrNoAPI
	}
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return domain.Funscript{}, fmt.Errorf("%w: empty video id", ErrRemote)
	}

	body, err := f.get(ctx, f.videoAPI+"/videos/"+url.PathEscape(videoID))
	if err != nil {
		return domain.Funscript{}, err
	}
	var v videoData
	if err := json.Unmarshal(body, &v); err != nil {
		return domain.Funscript{}, fmt.Errorf("decode video %s: %w", videoID, err)
	}
	if v.Script == nil || v.Script.URL == "" {
		return domain.Funscript{}, fmt.Errorf("%w: %s", ErrNoScript, videoID)
	}

	actions, err := f.FetchTimeline(ctx, f.videoAPI+"/assets/"+strings.TrimLeft(v.Script.URL, "/"))
	if err != nil {
		return domain.Funscript{}, err
	}
	if len(actions) == 0 {
		return domain.Funscript{}, fmt.Errorf("%w: %s has an empty timeline", ErrNoScript, videoID)
	}
	return domain.Funscript{Metadata: v.metadata(videoID), Actions: actions}, nil
}

func (v videoData) metadata(videoID string) domain.Metadata {
	md := domain.Metadata{
		Title:        strings.TrimSpace(v.Name),
		Description:  v.Description,
		Performers:   names(v.Performers),
		VideoURL:     v.StreamURL,
		Tags:         names(v.Tags),
		Duration:     int64(math.Round(v.Duration * 1000)),
		AverageSpeed: v.Script.AverageSpeed,
	}
	if md.Title == "" {
		md.Title = "Video " + videoID
	}
	if v.User != nil {
		md.Creator = v.User.Username
	}
	return md
}

func names(in []named) []string {
	out := make([]string, 0, len(in))
	for _, n := range in {
		if n.Name != "" {
			out = append(out, n.Name)
		}
	}
	return out
}

// Forget retire une URL du cache.
func (f *Fetcher) Forget(url string) {
	f.cache.Delete("json:" + url)
	f.cache.Delete("csv:" + url)
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s returned %s", ErrRemote, url, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}
