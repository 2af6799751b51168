package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/faucetdb/tokengate/internal/model"
	"github.com/faucetdb/tokengate/internal/remote"
	"github.com/faucetdb/tokengate/internal/server/middleware"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeRemoteError maps an error from a remote call to its HTTP status.
// Authorization failures carry only their status. Anything unclassified is
// logged and reported as a generic 500 so store details never reach the
// client.
func writeRemoteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var authErr *remote.AuthorizationError
	switch {
	case errors.As(err, &authErr):
		writeError(w, authErr.Status, authErr.Error())
	case errors.Is(err, remote.ErrModelNotFound),
		errors.Is(err, remote.ErrMethodNotFound),
		errors.Is(err, remote.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, remote.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.ErrorContext(r.Context(), "remote call failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryString extracts a string query parameter.
func queryString(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryObject decodes a JSON object passed as a query parameter, as in
// ?where={"color":"red"}. A missing parameter yields nil.
func queryObject(r *http.Request, key string) (map[string]interface{}, error) {
	val := queryString(r, key)
	if val == "" {
		return nil, nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(val), &obj); err != nil {
		return nil, errors.New(key + " must be a JSON object")
	}
	return obj, nil
}

// clampInt constrains val to be within [min, max].
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
