package httptransport

import (
	"compress/gzip"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/c0deZ3R0/pixel-chunk/errors"
)

// respondWithJSON responds to an HTTP request with a JSON payload
func respondWithJSON(w http.ResponseWriter, r *http.Request, code int, payload interface{}, options *ServerOptions) {
	response, err := json.Marshal(payload)
	if err != nil {
		respondWithError(w, r, http.StatusInternalServerError, errors.KindInternal, "failed to marshal response", options)
		return
	}

	useCompression := false
	if options != nil && options.CompressionEnabled &&
		len(response) >= int(options.CompressionThreshold) {
		if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			useCompression = true
		}
	}

	w.Header().Set("Content-Type", "application/json")

	if useCompression {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(code)

		gz := gzip.NewWriter(w)
		defer gz.Close()
		gz.Write(response)
	} else {
		w.WriteHeader(code)
		w.Write(response)
	}
}

// respondWithError responds to an HTTP request with an error message
func respondWithError(w http.ResponseWriter, r *http.Request, code int, kind errors.Kind, message string, options *ServerOptions) {
	respondWithJSON(w, r, code, errorBody{Error: message, Kind: string(kind)}, options)
}

// statusFor maps an error kind to an HTTP status code.
func statusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindInvalid, errors.KindOutOfRange:
		return http.StatusBadRequest
	case errors.KindNoSuchProject, errors.KindNoSuchSnapshot:
		return http.StatusNotFound
	case errors.KindConcurrentModification, errors.KindInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
