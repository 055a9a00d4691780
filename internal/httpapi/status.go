package httpapi

import (
	"fmt"
	"net/http"

	"github.com/ent0n29/facemood/internal/store"
)

type statusCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type statusResponse struct {
	Backends       Backends       `json:"backends"`
	PersistMode    store.Mode     `json:"persist_mode"`
	SubjectMatch   store.Matching `json:"subject_match"`
	PersistWindow  string         `json:"persist_window"`
	IdleTimeout    string         `json:"idle_timeout"`
	ActiveSessions int            `json:"active_sessions"`
	MaxSessions    int64          `json:"max_sessions"`
	AuthRequired   bool           `json:"auth_required"`
	Checks         []statusCheck  `json:"checks"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Backends:      s.deps.Backends,
		PersistMode:   s.cfg.PersistMode,
		SubjectMatch:  s.deps.Matching,
		PersistWindow: s.cfg.PersistWindow.String(),
		IdleTimeout:   s.cfg.SessionIdleTimeout.String(),
		AuthRequired:  s.cfg.AuthRequired,
	}
	if s.deps.Sessions != nil {
		resp.ActiveSessions = s.deps.Sessions.ActiveCount()
		resp.MaxSessions = s.deps.Sessions.Capacity()
		resp.PersistWindow = s.deps.Sessions.Window().String()
	}
	resp.Checks = s.statusChecks()
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) statusChecks() []statusCheck {
	b := s.deps.Backends
	checks := make([]statusCheck, 0, 5)

	switch b.Classifier {
	case "mock":
		checks = append(checks, statusCheck{
			ID:     "classifier",
			Status: "warn",
			Label:  "Emotion classifier",
			Detail: "mock (pixel statistics)",
			Fix:    "Set CLASSIFIER_URL to a model endpoint or build with -tags gocv and CLASSIFIER_MODE=gocv.",
		})
	case "":
		checks = append(checks, statusCheck{ID: "classifier", Status: "error", Label: "Emotion classifier", Detail: "not configured"})
	default:
		checks = append(checks, statusCheck{ID: "classifier", Status: "ok", Label: "Emotion classifier", Detail: b.Classifier})
	}

	detector := statusCheck{ID: "detector", Status: "ok", Label: "Face regions", Detail: b.Detector}
	if b.Detector == "full" {
		detector.Detail = "whole frame"
	}
	checks = append(checks, detector)

	switch {
	case s.cfg.PersistMode == store.ModeOff:
		checks = append(checks, statusCheck{
			ID:     "store",
			Status: "warn",
			Label:  "Persistence",
			Detail: "disabled",
			Fix:    "Set PERSIST_MODE=latest|eventlog|both to record observations.",
		})
	case b.Store == "memory":
		checks = append(checks, statusCheck{
			ID:     "store",
			Status: "warn",
			Label:  "Persistence",
			Detail: "in-memory only",
			Fix:    "Set DATABASE_URL, REDIS_URL or SQLITE_PATH to keep observations across restarts.",
		})
	default:
		checks = append(checks, statusCheck{
			ID:     "store",
			Status: "ok",
			Label:  "Persistence",
			Detail: fmt.Sprintf("%s (%s)", b.Store, s.cfg.PersistMode),
		})
	}

	switch {
	case s.deps.Auth != nil && s.cfg.AuthRequired:
		checks = append(checks, statusCheck{ID: "auth", Status: "ok", Label: "Session tokens", Detail: "required"})
	case s.deps.Auth != nil:
		checks = append(checks, statusCheck{ID: "auth", Status: "ok", Label: "Session tokens", Detail: "optional"})
	default:
		checks = append(checks, statusCheck{
			ID:     "auth",
			Status: "warn",
			Label:  "Session tokens",
			Detail: "disabled, subjects come from message usernames",
			Fix:    "Set AUTH_SECRET to bind sessions to token identities.",
		})
	}
	return checks
}
