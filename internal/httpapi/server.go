package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/rlmlabs/rlmreview/internal/provider"
	"github.com/rlmlabs/rlmreview/internal/review"
	"github.com/rlmlabs/rlmreview/internal/rlm"
)

// Server wires the HTTP surface onto the Provider Gateway, RLM Controller,
// and Review Pipeline.
type Server struct {
	gateway    *provider.Gateway
	controller *rlm.Controller
	pipeline   *review.Pipeline
	suggester  *review.Suggester
	sessions   *sessionStore
	log        zerolog.Logger
}

// NewServer wires a Server from its collaborators.
func NewServer(gateway *provider.Gateway, controller *rlm.Controller, pipeline *review.Pipeline, suggester *review.Suggester, log zerolog.Logger) *Server {
	return &Server{
		gateway:    gateway,
		controller: controller,
		pipeline:   pipeline,
		suggester:  suggester,
		sessions:   newSessionStore(),
		log:        log,
	}
}

// Handler returns the http.Handler serving the API surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/github/load_pr", s.handleLoadPR)
	mux.HandleFunc("GET /api/github/file", s.handleFile)
	mux.HandleFunc("POST /api/diff/review", s.handleReview)
	mux.HandleFunc("POST /api/diff/ask/stream", s.handleAskStream)
	mux.HandleFunc("POST /api/suggestions", s.handleSuggestions)
	return s.withLogging(mux)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info().Str("method", r.Method).Str("path", r.URL.Path).Dur("duration", time.Since(start)).Msg("http request")
	})
}

// runSweeper periodically evicts sessions past their TTL. Call it in its
// own goroutine; it runs until ctx is cancelled.
func (s *Server) runSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sessions.sweep()
		}
	}
}

// RunSweeper starts the background session-expiry sweep; cancel ctx to
// stop it.
func (s *Server) RunSweeper(ctx context.Context) {
	go s.runSweeper(ctx, 5*time.Minute)
}
