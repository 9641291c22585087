package scriptfetch

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/Guilhem-Bonnet/howlsync/internal/ports"
)

const maxPageDepth = 2

var (
	reScriptAnchor = regexp.MustCompile(`(?is)<a\b[^>]*\bhref=['"]([^'"]+\.funscript(?:\?[^'"]*)?)['"][^>]*>(.*?)</a>`)
	reScriptAbs    = regexp.MustCompile(`(?i)(https?:)?//[^\s"'<>]+\.funscript(\?[^\s"'<>]*)?`)
	reTags         = regexp.MustCompile(`(?s)<[^>]*>`)

	reIframeSrc   = regexp.MustCompile(`(?i)<iframe[^>]+src=['"]([^'"]+)['"]`)
	reMetaRefresh = regexp.MustCompile(`(?i)<meta[^>]+http-equiv=['"]refresh['"][^>]+content=['"][^'"]*url=([^'">\s]+)[^'"]*['"]`)
)

// ScanPage télécharge une page et renvoie ses liens .funscript, dans l'ordre
// d'apparition et sans doublon. Sans lien, les iframes et meta refresh sont
// suivis (profondeur bornée).
func (f *Fetcher) ScanPage(ctx context.Context, pageURL string) ([]ports.ScriptLink, error) {
	return f.scanPage(ctx, pageURL, maxPageDepth)
}

func (f *Fetcher) scanPage(ctx context.Context, pageURL string, depth int) ([]ports.ScriptLink, error) {
	base, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid page url %q", pageURL)
	}
	body, err := f.get(ctx, base.String())
	if err != nil {
		return nil, err
	}
	text := string(body)

	links := extractScriptLinks(base, text)
	if len(links) > 0 || depth <= 0 {
		return links, nil
	}

	for _, re := range []*regexp.Regexp{reMetaRefresh, reIframeSrc} {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		next, ok := resolveRef(base, html.UnescapeString(m[1]))
		if !ok || next == base.String() {
			continue
		}
		if found, err := f.scanPage(ctx, next, depth-1); err == nil && len(found) > 0 {
			return found, nil
		}
	}
	return nil, nil
}

func extractScriptLinks(base *url.URL, text string) []ports.ScriptLink {
	var out []ports.ScriptLink
	seen := make(map[string]bool)
	add := func(ref, label string) {
		abs, ok := resolveRef(base, ref)
		if !ok || seen[abs] {
			return
		}
		seen[abs] = true
		if label == "" {
			label = labelFromURL(abs)
		}
		out = append(out, ports.ScriptLink{URL: abs, Label: label})
	}

	for _, m := range reScriptAnchor.FindAllStringSubmatch(text, -1) {
		add(html.UnescapeString(m[1]), anchorText(m[2]))
	}
	// URLs nues (JSON embarqué, scripts inline).
	for _, m := range reScriptAbs.FindAllString(normalizeTextForURLScan(text), -1) {
		add(m, "")
	}
	return out
}

func anchorText(inner string) string {
	s := reTags.ReplaceAllString(inner, " ")
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

// labelFromURL: nom de fichier sans extension.
func labelFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name, err := url.PathUnescape(path.Base(u.Path))
	if err != nil {
		name = path.Base(u.Path)
	}
	return strings.TrimSpace(strings.TrimSuffix(name, path.Ext(name)))
}

func normalizeTextForURLScan(s string) string {
	// Échappements JS/JSON courants.
	s = strings.ReplaceAll(s, `\/`, "/")
	s = strings.ReplaceAll(s, `\u0026`, "&")
	s = strings.ReplaceAll(s, `\u002F`, "/")
	s = strings.ReplaceAll(s, `\u003A`, ":")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return s
}

func resolveRef(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == nil {
		return "", false
	}
	if strings.HasPrefix(ref, "//") {
		return base.Scheme + ":" + ref, true
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(u)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}
