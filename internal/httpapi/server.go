package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/facemood/internal/auth"
	"github.com/ent0n29/facemood/internal/config"
	"github.com/ent0n29/facemood/internal/observability"
	"github.com/ent0n29/facemood/internal/session"
	"github.com/ent0n29/facemood/internal/store"
)

// Backends names the resolved collaborators for status reporting.
type Backends struct {
	Classifier string `json:"classifier"`
	Detector   string `json:"detector"`
	Store      string `json:"store"`
}

// Deps are the collaborators the HTTP layer serves. Auth, Store, Metrics and
// Window may be nil.
type Deps struct {
	Sessions *session.Manager
	Runner   *session.Runner
	Store    store.Store
	Matching store.Matching
	Auth     auth.Gate
	Metrics  *observability.Metrics
	Window   *observability.StageWindow
	Backends Backends
}

type Server struct {
	cfg      config.Config
	deps     Deps
	upgrader websocket.Upgrader

	// done is closed by Shutdown so open sessions can say goodbye.
	done     chan struct{}
	doneOnce sync.Once
}

func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:  cfg,
		deps: deps,
		done: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 << 10,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleSessionWS)
	r.Get("/v1/session/ws", s.handleSessionWS)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/sessions", s.handleListSessions)
	r.Get("/v1/subjects/{subject}", s.handleGetSubject)
	r.Get("/v1/observations", s.handleListObservations)

	return r
}

// Shutdown asks every open session to close with a going-away frame. It does
// not wait; http.Server.Shutdown does not track hijacked connections.
func (s *Server) Shutdown() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	select {
	case <-s.done:
		respondError(w, http.StatusServiceUnavailable, "shutting_down", "server is shutting down")
		return
	default:
	}
	if s.deps.Runner == nil || s.deps.Sessions == nil {
		respondError(w, http.StatusServiceUnavailable, "not_configured", "session runner not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.deps.Sessions.ActiveCount(),
		"store_backend":   s.deps.Backends.Store,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Metrics == nil {
		respondError(w, http.StatusNotFound, "metrics_disabled", "metrics not configured")
		return
	}
	s.deps.Metrics.Handler().ServeHTTP(w, r)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Sessions == nil {
		respondJSON(w, http.StatusOK, map[string]any{"sessions": []session.Info{}})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": s.deps.Sessions.List()})
}

// identity resolves the caller's token. It returns "" with a nil error when
// no token was presented and auth is optional.
func (s *Server) identity(r *http.Request) (string, error) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if s.deps.Auth == nil {
		if s.cfg.AuthRequired {
			return "", auth.ErrUnauthorized
		}
		return "", nil
	}
	if token == "" {
		if s.cfg.AuthRequired {
			return "", auth.ErrUnauthorized
		}
		return "", nil
	}
	return s.deps.Auth.Validate(token)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
