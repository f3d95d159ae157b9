package facade

import (
	"errors"
	"net/http"

	"github.com/mnohosten/agentstate/internal/engine"
	"github.com/mnohosten/agentstate/internal/storage"
)

// mapEngineError translates an engine/storage error kind (spec §7) into an
// HTTP status code and a stable error-type string for the response body.
func mapEngineError(err error) (status int, errorType string) {
	switch {
	case errors.Is(err, engine.ErrTxnNotFound):
		return http.StatusNotFound, "TxnNotFound"
	case errors.Is(err, engine.ErrTxnExpired):
		return http.StatusGone, "TxnExpired"
	case errors.Is(err, storage.ErrSnapshotVersionMismatch):
		return http.StatusInternalServerError, "SnapshotVersionMismatch"
	case errors.Is(err, storage.ErrDecode):
		return http.StatusInternalServerError, "DecodeError"
	case errors.Is(err, storage.ErrBackendIO):
		return http.StatusInternalServerError, "BackendIO"
	default:
		return http.StatusInternalServerError, "Internal"
	}
}
