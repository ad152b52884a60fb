package httpapi

import (
	"encoding/json"
	"net/http"

	"exchange-core/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError translates an apperr.Kind into the matching HTTP status,
// falling back to 500 for errors that did not originate in the core's
// typed taxonomy.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.Classify(err) {
	case apperr.KindUnauthenticated:
		status = http.StatusUnauthorized
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindNotFound, apperr.KindUnknownInstrument:
		status = http.StatusNotFound
	case apperr.KindInsufficientFunds, apperr.KindDuplicateInstrument, apperr.KindValidation:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}

type okResponse struct {
	Success bool `json:"success"`
}
