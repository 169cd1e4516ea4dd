// Package remote implements the driver contract across HTTP: a Handler
// exposes any local driver on the wire, and Client consumes such a peer
// as just another backend. The unified query serializes in its plain
// wire shape, and coded errors survive the transport round trip, so a
// remote backend is indistinguishable from a local one to callers.
package remote

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/driver"
	"github.com/strata-dev/strata/pkg/query"
)

// Handler serves a driver over HTTP.
type Handler struct {
	driver driver.Driver
	log    *logrus.Logger
	router *mux.Router
}

// NewHandler creates an HTTP handler exposing the given driver.
func NewHandler(d driver.Driver, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	h := &Handler{driver: d, log: log, router: mux.NewRouter()}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	v1 := h.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/capabilities", h.capabilities).Methods("GET")
	v1.HandleFunc("/entities/{entity}/query", h.find).Methods("POST")
	v1.HandleFunc("/entities/{entity}/count", h.count).Methods("POST")
	v1.HandleFunc("/entities/{entity}/records", h.create).Methods("POST")
	v1.HandleFunc("/entities/{entity}/records/{id}", h.findOne).Methods("GET")
	v1.HandleFunc("/entities/{entity}/records/{id}", h.update).Methods("PATCH")
	v1.HandleFunc("/entities/{entity}/records/{id}", h.delete).Methods("DELETE")
	v1.HandleFunc("/entities/{entity}/bulk/create", h.bulkCreate).Methods("POST")
	v1.HandleFunc("/entities/{entity}/bulk/update", h.bulkUpdate).Methods("POST")
	v1.HandleFunc("/entities/{entity}/bulk/delete", h.bulkDelete).Methods("POST")
}

func (h *Handler) capabilities(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.driver.Capabilities())
}

func (h *Handler) find(w http.ResponseWriter, r *http.Request) {
	entity := mux.Vars(r)["entity"]
	var q query.UnifiedQuery
	if !h.parseJSON(w, r, &q) {
		return
	}
	records, err := h.driver.Find(r.Context(), entity, &q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"data": records})
}

func (h *Handler) count(w http.ResponseWriter, r *http.Request) {
	entity := mux.Vars(r)["entity"]
	var body struct {
		Filters []any `json:"filters"`
	}
	if !h.parseJSON(w, r, &body) {
		return
	}
	filters, err := query.DecodeList(body.Filters)
	if err != nil {
		h.writeError(w, err)
		return
	}
	n, err := h.driver.Count(r.Context(), entity, filters)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"count": n})
}

func (h *Handler) findOne(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rec, err := h.driver.FindOne(r.Context(), vars["entity"], vars["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	entity := mux.Vars(r)["entity"]
	var data api.Record
	if !h.parseJSON(w, r, &data) {
		return
	}
	rec, err := h.driver.Create(r.Context(), entity, data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var data api.Record
	if !h.parseJSON(w, r, &data) {
		return
	}
	rec, err := h.driver.Update(r.Context(), vars["entity"], vars["id"], data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	deleted, err := h.driver.Delete(r.Context(), vars["entity"], vars["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *Handler) bulkCreate(w http.ResponseWriter, r *http.Request) {
	entity := mux.Vars(r)["entity"]
	var body struct {
		Items []api.Record `json:"items"`
	}
	if !h.parseJSON(w, r, &body) {
		return
	}
	records, err := driver.BulkCreate(r.Context(), h.driver, entity, body.Items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"data": records})
}

func (h *Handler) bulkUpdate(w http.ResponseWriter, r *http.Request) {
	entity := mux.Vars(r)["entity"]
	var body struct {
		Updates map[string]api.Record `json:"updates"`
	}
	if !h.parseJSON(w, r, &body) {
		return
	}
	records, err := driver.BulkUpdate(r.Context(), h.driver, entity, body.Updates)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"data": records})
}

func (h *Handler) bulkDelete(w http.ResponseWriter, r *http.Request) {
	entity := mux.Vars(r)["entity"]
	var body struct {
		IDs []string `json:"ids"`
	}
	if !h.parseJSON(w, r, &body) {
		return
	}
	deleted, err := driver.BulkDelete(r.Context(), h.driver, entity, body.IDs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *Handler) parseJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, api.NewError(api.ErrCodeValidation, "invalid request body: %v", err))
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Warn("failed to encode response")
	}
}

// errorBody is the wire shape of a coded error.
type errorBody struct {
	Code    api.ErrorCode `json:"code"`
	Message string        `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := api.CodeOf(err)
	if code == "" {
		code = api.ErrCodeDriver
	}
	h.writeJSON(w, statusForCode(code), errorBody{Code: code, Message: err.Error()})
}

func statusForCode(code api.ErrorCode) int {
	switch code {
	case api.ErrCodeValidation, api.ErrCodeUnsupportedOperator:
		return http.StatusBadRequest
	case api.ErrCodePermissionDenied:
		return http.StatusForbidden
	case api.ErrCodeNotFound:
		return http.StatusNotFound
	case api.ErrCodeDuplicateRecord:
		return http.StatusConflict
	case api.ErrCodeDriverUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusBadGateway
	}
}

func codeForStatus(status int) api.ErrorCode {
	switch status {
	case http.StatusBadRequest:
		return api.ErrCodeValidation
	case http.StatusForbidden:
		return api.ErrCodePermissionDenied
	case http.StatusNotFound:
		return api.ErrCodeNotFound
	case http.StatusConflict:
		return api.ErrCodeDuplicateRecord
	case http.StatusNotImplemented:
		return api.ErrCodeDriverUnsupported
	default:
		return api.ErrCodeDriver
	}
}
