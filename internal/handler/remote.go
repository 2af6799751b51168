package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/faucetdb/tokengate/internal/model"
	"github.com/faucetdb/tokengate/internal/remote"
)

// maxPageSize bounds the limit accepted by the find route.
const maxPageSize = 1000

// RemoteHandler exposes model methods over REST routes and a generic invoke
// route. Every call goes through the dispatcher, so ACLs apply uniformly.
type RemoteHandler struct {
	dispatcher *remote.Dispatcher
	logger     *slog.Logger
}

// NewRemoteHandler creates a new RemoteHandler.
func NewRemoteHandler(dispatcher *remote.Dispatcher, logger *slog.Logger) *RemoteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteHandler{dispatcher: dispatcher, logger: logger}
}

// Find lists records matching an optional where filter.
// GET /api/v1/{model}?where={...}&limit=N&offset=N
func (h *RemoteHandler) Find(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	where, err := queryObject(r, "where")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	args := remote.Args{
		"where":  where,
		"limit":  clampInt(queryInt(r, "limit", 0), 0, maxPageSize),
		"offset": max(queryInt(r, "offset", 0), 0),
	}
	if where == nil {
		delete(args, "where")
	}

	res, ok := h.call(w, r, "find", args)
	if !ok {
		return
	}
	records, isList := res.([]remote.Record)
	if !isList {
		writeJSON(w, http.StatusOK, res)
		return
	}
	resource := make([]map[string]interface{}, len(records))
	for i, rec := range records {
		resource[i] = rec
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: resource,
		Meta: &model.ResponseMeta{
			Count:  len(resource),
			TookMs: float64(time.Since(start).Microseconds()) / 1000,
		},
	})
}

// Create stores a new record from the JSON body.
// POST /api/v1/{model}
func (h *RemoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	data, ok := readObject(w, r)
	if !ok {
		return
	}
	res, ok := h.call(w, r, "create", remote.Args{"data": data})
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Count returns the number of records matching an optional where filter.
// GET /api/v1/{model}/count
func (h *RemoteHandler) Count(w http.ResponseWriter, r *http.Request) {
	where, err := queryObject(r, "where")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	args := remote.Args{}
	if where != nil {
		args["where"] = where
	}
	if res, ok := h.call(w, r, "count", args); ok {
		writeJSON(w, http.StatusOK, res)
	}
}

// FindByID returns one record.
// GET /api/v1/{model}/{id}
func (h *RemoteHandler) FindByID(w http.ResponseWriter, r *http.Request) {
	if res, ok := h.call(w, r, "findById", remote.Args{"id": chi.URLParam(r, "id")}); ok {
		writeJSON(w, http.StatusOK, res)
	}
}

// Exists reports whether a record exists.
// GET /api/v1/{model}/{id}/exists
func (h *RemoteHandler) Exists(w http.ResponseWriter, r *http.Request) {
	if res, ok := h.call(w, r, "exists", remote.Args{"id": chi.URLParam(r, "id")}); ok {
		writeJSON(w, http.StatusOK, res)
	}
}

// UpdateByID merges the JSON body into a record.
// PATCH /api/v1/{model}/{id}
func (h *RemoteHandler) UpdateByID(w http.ResponseWriter, r *http.Request) {
	data, ok := readObject(w, r)
	if !ok {
		return
	}
	args := remote.Args{"id": chi.URLParam(r, "id"), "data": data}
	if res, ok := h.call(w, r, "updateById", args); ok {
		writeJSON(w, http.StatusOK, res)
	}
}

// DeleteByID removes a record.
// DELETE /api/v1/{model}/{id}
func (h *RemoteHandler) DeleteByID(w http.ResponseWriter, r *http.Request) {
	if res, ok := h.call(w, r, "deleteById", remote.Args{"id": chi.URLParam(r, "id")}); ok {
		writeJSON(w, http.StatusOK, res)
	}
}

// Invoke calls any method, or alias, of the model with the JSON body as its
// named arguments. An empty body means no arguments.
// POST /api/v1/{model}/invoke/{method}
func (h *RemoteHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	args, ok := readObject(w, r)
	if !ok {
		return
	}
	if res, ok := h.call(w, r, chi.URLParam(r, "method"), remote.Args(args)); ok {
		writeJSON(w, http.StatusOK, res)
	}
}

// call dispatches method on the model named in the route. It writes the error
// response itself and reports whether the caller should write a result.
func (h *RemoteHandler) call(w http.ResponseWriter, r *http.Request, method string, args remote.Args) (interface{}, bool) {
	res, err := h.dispatcher.InvokeMethod(r.Context(), chi.URLParam(r, "model"), method, args)
	if err != nil {
		writeRemoteError(w, r, h.logger, err)
		return nil, false
	}
	return res, true
}

// readObject decodes the body as a JSON object. An empty body yields an
// empty object.
func readObject(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	obj := map[string]interface{}{}
	if err := readJSON(r, &obj); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return nil, false
	}
	if obj == nil {
		obj = map[string]interface{}{}
	}
	return obj, true
}
