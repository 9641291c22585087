package domain

import "errors"

var (
	// ErrInvalidRecord: titre absent ou vide après nettoyage.
	ErrInvalidRecord = errors.New("invalid funscript record: missing title")
	// ErrUnknownTitle: sélection d'un titre absent du cache.
	ErrUnknownTitle = errors.New("unknown funscript title")
	// ErrEvictionInconsistency: le script sélectionné a été évincé. Récupérable
	// en effaçant la sélection.
	ErrEvictionInconsistency = errors.New("selected funscript evicted")
	ErrInvalidSettings       = errors.New("invalid settings")
	ErrInvalidPosition       = errors.New("invalid seek position")
)

// PersistenceError signale un échec de lecture/écriture du store partagé.
// L'état en mémoire n'est pas annulé.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return "persistence " + e.Op + " failed"
	}
	return "persistence " + e.Op + " failed: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }
