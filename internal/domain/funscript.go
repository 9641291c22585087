package domain

import (
	"path"
	"sort"
	"strings"
)

// FallbackTitle est utilisé quand une découverte ne fournit aucun titre exploitable.
const FallbackTitle = "cached funscript"

type Action struct {
	At  int `json:"at"`
	Pos int `json:"pos"`
}

type Metadata struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Performers   []string `json:"performers"`
	VideoURL     string   `json:"video_url"`
	Tags         []string `json:"tags"`
	Duration     int64    `json:"duration"` // millisecondes
	AverageSpeed float64  `json:"average_speed"`
	Creator      string   `json:"creator"`
}

// Funscript associe les métadonnées d'une vidéo à sa timeline d'actions.
type Funscript struct {
	Metadata Metadata `json:"metadata"`
	Actions  []Action `json:"actions"`
}

// TitleKey renvoie la clé d'identité d'un titre: extension retirée, espaces
// supprimés, minuscules. "Clip.funscript" et "clip" désignent le même script.
func TitleKey(title string) string {
	t := strings.TrimSpace(title)
	if ext := path.Ext(t); ext != "" && ext != t && !strings.ContainsAny(ext, " /") {
		t = strings.TrimSuffix(t, ext)
	}
	return strings.ToLower(strings.TrimSpace(t))
}

func (f Funscript) Key() string {
	return TitleKey(f.Metadata.Title)
}

func (f Funscript) Validate() error {
	if f.Key() == "" {
		return ErrInvalidRecord
	}
	return nil
}

// Canonical renvoie une copie avec un titre nettoyé, des slices non nil et
// des actions triées par at (tri stable).
func (f Funscript) Canonical() Funscript {
	out := f
	out.Metadata.Title = strings.TrimSpace(f.Metadata.Title)
	out.Metadata.Performers = append([]string{}, f.Metadata.Performers...)
	out.Metadata.Tags = append([]string{}, f.Metadata.Tags...)
	if out.Metadata.Duration < 0 {
		out.Metadata.Duration = 0
	}
	if out.Metadata.AverageSpeed < 0 {
		out.Metadata.AverageSpeed = 0
	}
	out.Actions = append([]Action{}, f.Actions...)
	sort.SliceStable(out.Actions, func(i, j int) bool { return out.Actions[i].At < out.Actions[j].At })
	return out
}

// WithFallbackTitle complète un titre absent avec fallback (puis FallbackTitle).
func (f Funscript) WithFallbackTitle(fallback string) Funscript {
	if strings.TrimSpace(f.Metadata.Title) != "" {
		return f
	}
	fallback = strings.TrimSpace(fallback)
	if fallback == "" {
		fallback = FallbackTitle
	}
	f.Metadata.Title = fallback
	return f
}
