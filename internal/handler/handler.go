package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/e2eq/querycore/internal/plan"
	"github.com/e2eq/querycore/internal/service"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type Handler struct {
	gw  *service.Gateway
	log logrus.FieldLogger
}

func New(gw *service.Gateway, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.WithField("component", "handler")
	}
	return &Handler{gw: gw, log: log}
}

// Register mounts the query routes on r.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/query").Subrouter()
	api.HandleFunc("/plan", h.Plan).Methods(http.MethodPost)
	api.HandleFunc("/compile", h.Compile).Methods(http.MethodPost)
	api.HandleFunc("/validate", h.Validate).Methods(http.MethodPost)
	api.HandleFunc("/find", h.Find).Methods(http.MethodPost)
	api.HandleFunc("/rootTypes", h.RootTypes).Methods(http.MethodGet)
	api.HandleFunc("/joins/{type}", h.Join).Methods(http.MethodGet)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (service.QueryRequest, bool) {
	var req service.QueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Malformed request body", err.Error())
		return req, false
	}
	if req.RootType == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "rootType is required", "")
		return req, false
	}
	return req, true
}

// Plan handles POST /api/query/plan
func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := h.gw.Plan(r.Context(), req)
	if err != nil {
		writeQueryError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Compile handles POST /api/query/compile
func (h *Handler) Compile(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	pq, err := h.gw.Compile(r.Context(), req)
	if err != nil {
		writeQueryError(w, h.log, err)
		return
	}
	resp, err := pq.Render()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to render plan", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Validate handles POST /api/query/validate
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	errs, err := h.gw.Validate(r.Context(), req)
	if err != nil {
		writeQueryError(w, h.log, err)
		return
	}
	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": len(errs) == 0, "errors": errs})
}

// Find handles POST /api/query/find
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	res, err := h.gw.Find(r.Context(), req)
	if err != nil {
		writeQueryError(w, h.log, err)
		return
	}
	docs, err := plan.ExtJSON(res.Documents)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to render results", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"planId":  res.PlanID,
		"mode":    res.Mode,
		"count":   len(res.Documents),
		"results": docs,
	})
}

// RootTypes handles GET /api/query/rootTypes
func (h *Handler) RootTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"rootTypes": h.gw.RootTypes()})
}

// Join handles GET /api/query/joins/{type}?path=
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	rootType := mux.Vars(r)["type"]
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "INVALID_PARAM", "path is required", "")
		return
	}
	spec, err := h.gw.ResolveJoin(r.Context(), rootType, path)
	if err != nil {
		writeQueryError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}
