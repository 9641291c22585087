package domain

// FunscriptCache est la valeur persistée partagée entre contextes: scripts
// récents (ordre d'insertion = récence) et titre sélectionné.
//
// Les méthodes mutent la valeur en place; la persistance est gérée par
// app.CacheService.
type FunscriptCache struct {
	Items         []Funscript `json:"items"`
	SelectedTitle string      `json:"selectedTitle,omitempty"`
}

func (c *FunscriptCache) index(title string) int {
	key := TitleKey(title)
	if key == "" {
		return -1
	}
	for i, f := range c.Items {
		if f.Key() == key {
			return i
		}
	}
	return -1
}

// InsertOrUpdate remplace le script de même titre (position conservée) ou
// l'ajoute en fin de liste, puis évince les plus anciens au-delà de max.
// L'éviction ne consulte pas la sélection: un titre sélectionné évincé reste
// pendant jusqu'à Reconcile.
func (c *FunscriptCache) InsertOrUpdate(rec Funscript, max int) (evicted []Funscript, err error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	rec = rec.Canonical()
	if i := c.index(rec.Metadata.Title); i >= 0 {
		c.Items[i] = rec
		// La sélection suit la nouvelle graphie du titre.
		if c.SelectedTitle != "" && TitleKey(c.SelectedTitle) == rec.Key() {
			c.SelectedTitle = rec.Metadata.Title
		}
	} else {
		c.Items = append(c.Items, rec)
	}
	max = ClampMaxCachedScripts(max)
	for len(c.Items) > max {
		evicted = append(evicted, c.Items[0])
		c.Items = c.Items[1:]
	}
	return evicted, nil
}

// Remove supprime le script portant ce titre. Renvoie false si absent.
func (c *FunscriptCache) Remove(title string) bool {
	i := c.index(title)
	if i < 0 {
		return false
	}
	removed := c.Items[i]
	c.Items = append(c.Items[:i:i], c.Items[i+1:]...)
	if c.SelectedTitle != "" && TitleKey(c.SelectedTitle) == removed.Key() {
		c.SelectedTitle = ""
	}
	return true
}

func (c *FunscriptCache) Clear() {
	c.Items = nil
	c.SelectedTitle = ""
}

func (c FunscriptCache) Get(title string) (Funscript, bool) {
	i := c.index(title)
	if i < 0 {
		return Funscript{}, false
	}
	return c.Items[i], true
}

// List renvoie une copie dans l'ordre d'insertion (le plus ancien d'abord).
func (c FunscriptCache) List() []Funscript {
	return append([]Funscript{}, c.Items...)
}

// Titles renvoie les titres dans l'ordre d'insertion.
func (c FunscriptCache) Titles() []string {
	out := make([]string, 0, len(c.Items))
	for _, f := range c.Items {
		out = append(out, f.Metadata.Title)
	}
	return out
}

// Select fixe la sélection sur le titre stocké correspondant.
func (c *FunscriptCache) Select(title string) (string, error) {
	i := c.index(title)
	if i < 0 {
		return "", ErrUnknownTitle
	}
	c.SelectedTitle = c.Items[i].Metadata.Title
	return c.SelectedTitle, nil
}

// Reconcile efface une sélection qui ne désigne plus aucun script.
// Renvoie le titre effacé, vide si rien n'a changé.
func (c *FunscriptCache) Reconcile() string {
	if c.SelectedTitle == "" || c.index(c.SelectedTitle) >= 0 {
		return ""
	}
	dangling := c.SelectedTitle
	c.SelectedTitle = ""
	return dangling
}

// MatchVideo renvoie le script dont le titre correspond à celui d'une vidéo.
func (c FunscriptCache) MatchVideo(videoTitle string) (Funscript, bool) {
	return c.Get(videoTitle)
}

// Clone renvoie une copie indépendante des slices.
func (c FunscriptCache) Clone() FunscriptCache {
	return FunscriptCache{Items: c.List(), SelectedTitle: c.SelectedTitle}
}
