// Package api provides the HTTP observation and control surface for a
// running peer: shared files, download progress, search, reputation
// snapshots, and the share/download controls used by UIs and scripts.
package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chunkmesh-network/chunkmesh/internal/domain"
	"github.com/chunkmesh-network/chunkmesh/internal/health"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/reputation"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/wire"
)

// Peer is the surface the API exposes. The daemon's Supervisor
// implements it.
type Peer interface {
	ID() string
	Port() int
	MyFiles() []domain.FileDescriptor
	Downloads() (active map[string]domain.JobState, history []domain.JobState)
	Search(query string) ([]wire.SearchResult, error)
	Reputations() []reputation.Entry
	Share(path string) (domain.FileDescriptor, error)
	Download(hash, dest string) error
	Health() []health.Status
}

// Server is the peer's HTTP API server.
type Server struct {
	peer           Peer
	metricsEnabled bool
}

// NewServer creates an API server over a peer.
func NewServer(peer Peer) *Server {
	return &Server{peer: peer}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		checks := s.peer.Health()
		healthy := true
		for _, c := range checks {
			if !c.Healthy {
				healthy = false
			}
		}
		status := "ok"
		code := http.StatusOK
		if !healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": status, "checks": checks})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/my_files", s.handleMyFiles)
		r.Get("/downloads", s.handleDownloads)
		r.Get("/search", s.handleSearch)
		r.Get("/reputations", s.handleReputations)
		r.Post("/share", s.handleShare)
		r.Post("/download", s.handleDownload)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Observation Handlers ───────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"peer_id":      s.peer.ID(),
		"port":         s.peer.Port(),
		"shared_files": len(s.peer.MyFiles()),
	})
}

func (s *Server) handleMyFiles(w http.ResponseWriter, r *http.Request) {
	files := s.peer.MyFiles()
	if files == nil {
		files = []domain.FileDescriptor{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleDownloads(w http.ResponseWriter, r *http.Request) {
	active, history := s.peer.Downloads()
	if history == nil {
		history = []domain.JobState{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  active,
		"history": history,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusOK, []wire.SearchResult{})
		return
	}

	results, err := s.peer.Search(query)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if results == nil {
		results = []wire.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleReputations(w http.ResponseWriter, r *http.Request) {
	entries := s.peer.Reputations()
	if entries == nil {
		entries = []reputation.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ─── Control Handlers ───────────────────────────────────────────────────────

type shareRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "missing path")
		return
	}
	if _, err := os.Stat(req.Path); err != nil {
		writeError(w, http.StatusBadRequest, "invalid path provided")
		return
	}

	desc, err := s.peer.Share(req.Path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"hash":   desc.Hash,
		"name":   desc.Name,
	})
}

type downloadRequest struct {
	Hash            string `json:"hash"`
	DestinationPath string `json:"destination_path"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Hash == "" {
		writeError(w, http.StatusBadRequest, "missing hash")
		return
	}

	if err := s.peer.Download(req.Hash, req.DestinationPath); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Download started",
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"status":  "error",
		"message": msg,
	})
}
