// Package howl relaie les commandes de lecture vers le service Howl local
// (/load_funscript, /start_player, /stop_player, /seek).
package howl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/howlsync/internal/app"
	"github.com/Guilhem-Bonnet/howlsync/internal/domain"
	"github.com/rs/zerolog"
)

const userAgent = "howlsync-server"

type Client struct {
	logger   zerolog.Logger
	settings func(ctx context.Context) (domain.Settings, error)
	client   *http.Client
	baseURL  string
}

func NewClient(logger zerolog.Logger, settingsGetter func(ctx context.Context) (domain.Settings, error)) *Client {
	return &Client{
		logger:   logger,
		settings: settingsGetter,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// WithBaseURL force l'URL du service (tests), au lieu de serverAddress:controlPort.
func (c *Client) WithBaseURL(baseURL string) *Client {
	if strings.TrimSpace(baseURL) != "" {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
	return c
}

type loadRequest struct {
	Title     string `json:"title"`
	Funscript string `json:"funscript"`
}

func (c *Client) LoadFunscript(ctx context.Context, title string, content []byte) error {
	if len(content) == 0 || !json.Valid(content) {
		return &app.CodedError{Code: app.CodeInvalidParams, Message: "invalid funscript content"}
	}
	_, err := c.post(ctx, "/load_funscript", loadRequest{Title: title, Funscript: string(content)})
	return err
}

func (c *Client) StartPlayer(ctx context.Context, from float64) error {
	_, err := c.post(ctx, "/start_player", map[string]float64{"from": from})
	return err
}

func (c *Client) StopPlayer(ctx context.Context) error {
	_, err := c.post(ctx, "/stop_player", struct{}{})
	return err
}

func (c *Client) Seek(ctx context.Context, position float64) error {
	if position < 0 {
		return &app.CodedError{Code: app.CodeInvalidParams, Message: fmt.Sprintf("invalid seek position %v", position), Err: domain.ErrInvalidPosition}
	}
	_, err := c.post(ctx, "/seek", map[string]float64{"position": position})
	return err
}

// post envoie body en JSON. La réponse peut être du JSON ou du texte brut;
// elle est renvoyée telle quelle.
func (c *Client) post(ctx context.Context, endpoint string, body any) ([]byte, error) {
	url, err := c.url(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, &app.CodedError{Code: app.CodeInvalidParams, Message: "invalid control url", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug().Str("url", url).Msg("howl call")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &app.CodedError{Code: app.CodeNetworkError, Message: "howl unreachable", Err: err}
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, &app.CodedError{Code: app.CodeHTTPStatus, Message: "howl http error: " + resp.Status}
	}
	return out, nil
}

func (c *Client) url(ctx context.Context, endpoint string) (string, error) {
	if c.baseURL != "" {
		return c.baseURL + endpoint, nil
	}
	st := domain.DefaultSettings()
	if c.settings != nil {
		got, err := c.settings(ctx)
		if err != nil {
			return "", err
		}
		st = got
	}
	if strings.TrimSpace(st.ServerAddress) == "" {
		st.ServerAddress = domain.DefaultServerAddress
	}
	return st.ControlURL(endpoint), nil
}
