package apiserver

import (
	"encoding/json"
	"net/http"

	"github.com/dosdebug/broker/internal/brokererr"
	"github.com/dosdebug/broker/internal/logging"
)

// writeError maps err to the HTTP surface's own status-code policy
// (spec.md §6: "400 (bad JSON / bad argument), 503 (no backend / no
// factory), 500 (underlying error message)") and writes the broker's
// JSON error envelope. This is deliberately independent of
// brokererr.Kind.HTTPStatus(), whose 501/504/502 mapping serves a
// different, already-locked-in caller (see DESIGN.md).
func writeError(w http.ResponseWriter, logger *logging.Logger, op string, err error) {
	status := http.StatusInternalServerError
	kind := ""

	if be, ok := err.(*brokererr.Error); ok {
		kind = string(be.Kind)
		switch be.Kind {
		case brokererr.KindArgument:
			status = http.StatusBadRequest
		case brokererr.KindConnection:
			if isNoBackendOrFactory(be) {
				status = http.StatusServiceUnavailable
			}
		}
	}

	if status >= 500 {
		logger.WithFields(logging.Fields{"op": op, "kind": kind}).WithError(err).Error("request failed")
	}

	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"kind":    kind,
			"message": err.Error(),
		},
	})
}

// isNoBackendOrFactory distinguishes the two conditions spec.md §6
// calls out as 503s (no backend attached, no factory configured) from
// an ordinary connection failure against a live backend, which is a 500.
func isNoBackendOrFactory(be *brokererr.Error) bool {
	return be.Op == "backend.get" || be.Op == "backend.build"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error": map[string]interface{}{
			"kind":    string(brokererr.KindArgument),
			"message": message,
		},
	})
}
