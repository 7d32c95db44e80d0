package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"breedserve/internal/apperr"
	"breedserve/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse maps a service error to a status and payload. modelState is
// used to tell "not loaded yet" from "loading" for ModelNotReady.
func errorResponse(err error, modelState string) (int, types.ErrorResponse) {
	resp := types.ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError
	var he HTTPError
	if errors.As(err, &he) {
		status = he.StatusCode()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	kind := apperr.KindOf(err)
	resp.Kind = string(kind)
	switch kind {
	case apperr.ModelNotReady:
		resp.Status = "loading"
		if modelState == "uninitialized" {
			resp.Status = "not_loaded"
		}
	case apperr.ModelFailed, apperr.DependencyUnavailable:
		resp.Status = "error"
	case apperr.InvalidInput:
		resp.Status = "invalid_input"
	case apperr.Busy:
		resp.Status = "busy"
	}
	if ra := apperr.RetryAfterOf(err); ra > 0 {
		resp.RetryAfterSeconds = int(math.Ceil(ra.Seconds()))
	}
	resp.Code = status
	return status, resp
}

// writeError writes the mapped error, including a Retry-After header when
// the error carries a hint.
func writeError(w http.ResponseWriter, err error, modelState string) int {
	status, resp := errorResponse(err, modelState)
	if resp.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfterSeconds))
	}
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("queue")
	}
	writeJSON(w, status, resp)
	return status
}
