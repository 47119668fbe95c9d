package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/dayroom/internal/config"
	"github.com/ent0n29/dayroom/internal/observability"
	"github.com/ent0n29/dayroom/internal/protocol"
	"github.com/ent0n29/dayroom/internal/session"
)

// Link is the voice link as seen by HUD collaborators: a read-only state and
// two push-to-talk entry points.
type Link interface {
	State() session.State
	Subscribe() (<-chan session.State, func())
	StartRecording()
	StopRecording()
}

type Server struct {
	cfg      config.Config
	link     Link
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, link Link, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		link:    link,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive the microphone.
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

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Route("/v1/link", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/record/start", s.handleRecordStart)
		r.Post("/record/stop", s.handleRecordStop)
		r.Get("/ws", s.handleLinkWS)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"device_mode": s.cfg.DeviceMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.link == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "voice link not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ready",
		"device_mode": s.cfg.DeviceMode,
		"link_status": s.link.State().Status,
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	if s.link == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "voice link not configured")
		return
	}
	respondJSON(w, http.StatusOK, stateResponse(s.link.State()))
}

// Start and stop are requests; the resulting transitions are observed via
// state or the websocket feed.
func (s *Server) handleRecordStart(w http.ResponseWriter, _ *http.Request) {
	if s.link == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "voice link not configured")
		return
	}
	s.link.StartRecording()
	respondJSON(w, http.StatusAccepted, stateResponse(s.link.State()))
}

func (s *Server) handleRecordStop(w http.ResponseWriter, _ *http.Request) {
	if s.link == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "voice link not configured")
		return
	}
	s.link.StopRecording()
	respondJSON(w, http.StatusAccepted, stateResponse(s.link.State()))
}

func stateResponse(st session.State) protocol.LinkState {
	return protocol.NewLinkState(st.ID, string(st.Status), st.ErrorMessage, st.ComplianceScore, st.TurnID, st.UpdatedAt)
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
