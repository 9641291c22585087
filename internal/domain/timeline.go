package domain

import (
	"strconv"
	"strings"
)

// GapThreshold est l'écart (ms) au-delà duquel un point intermédiaire est inséré.
const GapThreshold = 3000

// NormalizeTimeline insère, pour chaque écart > GapThreshold entre deux points
// consécutifs, un seul point au milieu de l'écart qui conserve la position
// précédente.
//
// L'entrée n'est pas modifiée. 0 ou 1 point: renvoyé tel quel.
func NormalizeTimeline(actions []Action) []Action {
	if len(actions) < 2 {
		return append([]Action(nil), actions...)
	}
	out := make([]Action, 0, len(actions)+len(actions)/4)
	for i := 0; i < len(actions)-1; i++ {
		prev, curr := actions[i], actions[i+1]
		out = append(out, prev)
		if gap := curr.At - prev.At; gap > GapThreshold {
			out = append(out, Action{At: prev.At + gap/2, Pos: prev.Pos})
		}
	}
	return append(out, actions[len(actions)-1])
}

// ParseTimelineCSV lit une timeline au format "at,pos" (une paire par ligne).
// Les lignes vides ou non numériques sont ignorées avant normalisation.
func ParseTimelineCSV(text string) []Action {
	var actions []Action
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			continue
		}
		at, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			continue
		}
		pos, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			continue
		}
		actions = append(actions, Action{At: at, Pos: clampPos(pos)})
	}
	return NormalizeTimeline(actions)
}

func clampPos(pos int) int {
	if pos < 0 {
		return 0
	}
	if pos > 100 {
		return 100
	}
	return pos
}
