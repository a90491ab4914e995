package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lightspan-ai/gateway/pkg/query"
)

type errorBody struct {
	Response string `json:"response"`
	Cause    string `json:"cause"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response body", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, response, cause string) {
	writeJSON(w, status, errorBody{Response: response, Cause: cause})
}

// writeHandlerError maps a pipeline error onto its HTTP response. Anything
// that is not a HandlerError becomes an opaque 500.
func writeHandlerError(w http.ResponseWriter, err error) {
	var herr *query.HandlerError
	if errors.As(err, &herr) {
		writeError(w, herr.StatusCode, herr.Response, herr.Cause)
		return
	}
	slog.Error("Unclassified handler error", "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
}
