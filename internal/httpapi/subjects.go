package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/facemood/internal/store"
)

const maxObservationLimit = 500

func (s *Server) handleGetSubject(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		respondError(w, http.StatusNotFound, "store_disabled", "no store configured")
		return
	}
	subject := s.deps.Matching.Canonical(chi.URLParam(r, "subject"))
	if subject == "" {
		respondError(w, http.StatusBadRequest, "invalid_subject", "missing subject")
		return
	}

	if s.cfg.AuthRequired {
		identity, err := s.identity(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		if s.deps.Matching.Canonical(identity) != subject {
			respondError(w, http.StatusForbidden, "forbidden", "token does not match subject")
			return
		}
	}

	obs, err := s.deps.Store.Latest(r.Context(), subject)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, obs)
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "subject_not_found", "no observation for subject")
	case errors.Is(err, store.ErrInvalidSubject):
		respondError(w, http.StatusBadRequest, "invalid_subject", err.Error())
	default:
		log.Printf("subjects: latest %q failed: %v", subject, err)
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", "store unavailable")
	}
}

func (s *Server) handleListObservations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		respondJSON(w, http.StatusOK, map[string]any{"observations": []store.Observation{}})
		return
	}
	if s.cfg.AuthRequired {
		if _, err := s.identity(r); err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized", "valid token required")
			return
		}
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxObservationLimit)
	}

	list, err := s.deps.Store.RecentObservations(r.Context(), limit)
	if err != nil {
		log.Printf("subjects: recent observations failed: %v", err)
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", "store unavailable")
		return
	}
	if list == nil {
		list = []store.Observation{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"observations": list})
}
