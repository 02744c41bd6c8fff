// Package httpapi exposes the upload pipeline over HTTP.
package httpapi

import (
	"context"
	"embed"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"

	"deal-voice-notes/internal/logger"
	"deal-voice-notes/internal/pipeline"
	"deal-voice-notes/internal/scratch"
)

//go:embed static/index.html
var static embed.FS

// Runner executes one upload job.
type Runner interface {
	Run(ctx context.Context, sess pipeline.Session, job pipeline.UploadJob) (*pipeline.Result, error)
}

type Options struct {
	// MaxUploadBytes caps the /upload request body.
	MaxUploadBytes int64
	// OAuth enables /auth-google and its callback when non-nil.
	OAuth *oauth2.Config
}

type Server struct {
	runner  Runner
	scratch *scratch.Dir
	opts    Options
	log     *logger.Logger
}

func New(runner Runner, dir *scratch.Dir, opts Options, log *logger.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 100 << 20
	}
	return &Server{runner: runner, scratch: dir, opts: opts, log: log}
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/auth-google", s.handleAuthGoogle)
	mux.HandleFunc("/auth-google/callback", s.handleAuthCallback)
	mux.Handle("/metrics", promhttp.Handler())
	return requestLogger(s.log, mux)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		s.log.WithRequest(r).WithField("error", err.Error()).Error("index page missing")
		http.Error(w, "index page missing", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
