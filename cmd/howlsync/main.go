package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
	recent    bool

	discoverTitle  string
	discoverURLs   []string
	discoverPages  []string
	discoverVideos []string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "howlsync",
	Short:        "howlsync - pilote le cache de funscripts et le player Howl",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("HOWLSYNC_SERVER_URL", "http://127.0.0.1:4696"), "URL du serveur")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout HTTP")
	listCmd.Flags().BoolVar(&recent, "recent", false, "Plus récents d'abord")
	discoverCmd.Flags().StringVar(&discoverTitle, "title", "", "Titre de la vidéo (repli et sélection)")
	discoverCmd.Flags().StringSliceVar(&discoverURLs, "url", nil, "URL d'un document funscript")
	discoverCmd.Flags().StringSliceVar(&discoverPages, "page", nil, "Page HTML à parcourir")
	discoverCmd.Flags().StringSliceVar(&discoverVideos, "video", nil, "Identifiant de vidéo du site")

	rootCmd.AddCommand(
		getCmd("health", "Vérifie que le serveur répond", "/health"),
		getCmd("version", "Version du serveur", "/version"),
		getCmd("current", "Script sélectionné", "/selection"),
		getCmd("settings", "Réglages courants", "/settings"),
		listCmd,
		selectCmd,
		removeCmd,
		clearCmd,
		discoverCmd,
		startCmd,
		stopCmd,
		seekCmd,
	)
}

func getCmd(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(http.MethodGet, path, nil)
		},
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Liste les scripts en cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/funscripts"
		if recent {
			path += "?order=recent"
		}
		return call(http.MethodGet, path, nil)
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <title>",
	Short: "Sélectionne un script en cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(http.MethodPut, "/selection", map[string]string{"title": args[0]})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <title>",
	Short: "Retire un script du cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(http.MethodDelete, "/funscripts/"+url.PathEscape(args[0]), nil)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Vide le cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(http.MethodDelete, "/funscripts", nil)
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Télécharge des scripts et les ajoute au cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(discoverURLs)+len(discoverPages)+len(discoverVideos) == 0 {
			return fmt.Errorf("rien à découvrir: --url, --page ou --video requis")
		}
		return call(http.MethodPost, "/discoveries", map[string]any{
			"videoTitle": discoverTitle,
			"urls":       discoverURLs,
			"pages":      discoverPages,
			"videos":     discoverVideos,
		})
	},
}

var startCmd = &cobra.Command{
	Use:   "start [from]",
	Short: "Démarre le player (position en secondes)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from := 0.0
		if len(args) == 1 {
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("position invalide %q: %w", args[0], err)
			}
			from = v
		}
		return call(http.MethodPost, "/player/start", map[string]float64{"from": from})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Arrête le player",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(http.MethodPost, "/player/stop", nil)
	},
}

var seekCmd = &cobra.Command{
	Use:   "seek <position>",
	Short: "Positionne le player (secondes)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("position invalide %q: %w", args[0], err)
		}
		return call(http.MethodPost, "/player/seek", map[string]float64{"position": v})
	},
}

func call(method, path string, body any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, serverURL+"/api/v1"+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	printBody(b)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func printBody(b []byte) {
	if len(bytes.TrimSpace(b)) == 0 {
		return
	}
	var pretty any
	if err := json.Unmarshal(b, &pretty); err == nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(pretty)
		return
	}
	os.Stdout.Write(b)
	os.Stdout.Write([]byte("\n"))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
