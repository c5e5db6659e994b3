package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/webclip/audit"
	"github.com/hazyhaar/webclip/capture"
	"github.com/hazyhaar/webclip/hub"
	"github.com/hazyhaar/webclip/shield"
)

// newHTTPHandler builds the local panel-facing API.
func newHTTPHandler(svc *hub.Service, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range shield.APIStack(shield.DefaultRules()) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/captures", func(w http.ResponseWriter, req *http.Request) {
		list, err := svc.List(req.Context())
		if err != nil {
			// Degraded reads still carry the mirrored records.
			logger.Warn("http: list degraded", "error", err)
		}
		if list == nil {
			list = []capture.Record{}
		}
		writeJSON(w, http.StatusOK, list)
	})

	r.Delete("/captures/{id}", func(w http.ResponseWriter, req *http.Request) {
		if err := svc.Remove(req.Context(), chi.URLParam(req, "id")); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Delete("/captures", func(w http.ResponseWriter, req *http.Request) {
		if err := svc.Clear(req.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/audit", func(w http.ResponseWriter, req *http.Request) {
		f := &audit.Filter{}
		q := req.URL.Query()
		if op := q.Get("operation"); op != "" {
			f.Operation = &op
		}
		if st := q.Get("status"); st != "" {
			f.Status = &st
		}
		if lim := q.Get("limit"); lim != "" {
			n, err := strconv.Atoi(lim)
			if err != nil || n < 1 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
				return
			}
			f.Limit = n
		}
		entries, err := svc.Audit(req.Context(), f)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if entries == nil {
			entries = []*audit.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	})

	r.Post("/capture", func(w http.ResponseWriter, req *http.Request) {
		var in struct {
			URL  string `json:"url"`
			Type string `json:"type"`
		}
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if in.URL == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
			return
		}
		t := capture.TypeFullPage
		if in.Type != "" {
			t = capture.Type(in.Type)
		}
		if !t.Valid() || t.NeedsSelection() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "type must be fullpage or screenshot"})
			return
		}
		rec, err := svc.CaptureURL(req.Context(), in.URL, t)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
