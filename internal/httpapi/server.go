package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/BrandonDHaskell/punchbridge/internal/health"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/store"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

type Dependencies struct {
	Logger    *log.Logger
	Addr      string
	AgentID   string
	Queue     store.PunchQueue
	Directory store.Directory
	Health    *health.Tracker
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux
	agentID    string
	queue      store.PunchQueue
	directory  store.Directory
	health     *health.Tracker
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	AgentID        string           `json:"agent_id"`
	Healthy        bool             `json:"healthy"`
	Queue          types.QueueStats `json:"queue"`
	DirectoryUsers int              `json:"directory_users"`
	Components     []health.State   `json:"components"`
	ServerTime     string           `json:"server_time"`
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:    d.Logger,
		mux:       mux,
		agentID:   d.AgentID,
		queue:     d.Queue,
		directory: d.Directory,
		health:    d.Health,
	}

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.logger.Printf("status: queue stats: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "queue unavailable")
		return
	}
	users, err := s.directory.Count(r.Context())
	if err != nil {
		s.logger.Printf("status: directory count: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "directory unavailable")
		return
	}

	resp := StatusResponse{
		AgentID:        s.agentID,
		Healthy:        s.health.Healthy(),
		Queue:          stats,
		DirectoryUsers: users,
		Components:     s.health.Snapshot(),
		ServerTime:     time.Now().UTC().Format(time.RFC3339),
	}

	if wantsProtobuf(r) {
		msg, err := statusToProto(resp)
		if err != nil {
			s.logger.Printf("status: proto: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if !s.health.Healthy() {
		writeError(w, http.StatusServiceUnavailable, "not_serving", "one or more components are down")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
