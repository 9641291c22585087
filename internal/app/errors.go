package app

import (
	"github.com/Guilhem-Bonnet/howlsync/internal/ports"
)

var (
	ErrNotFound = ports.ErrNotFound
	ErrConflict = ports.ErrConflict
)

// Codes stables renvoyés par le relais vers le service Howl.
const (
	CodeHTTPStatus    = "http_status"
	CodeNetworkError  = "network_error"
	CodeInvalidParams = "invalid_params"
)

// CodedError permet au relais control-plane de renvoyer un code d'erreur
// stable, exposé tel quel par l'API HTTP.
//
// Exemples de codes: invalid_params, http_status, network_error.
type CodedError struct {
	Code    string
	Message string
	Err     error
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }
