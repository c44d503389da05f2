// Package devserver is a local stand-in for the ARGUS chat backend. It serves
// the same five endpoints with canned, chunked replies so the client can be
// run and tested without the real analytics engine.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"argus/internal/config"
	"argus/internal/logging"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// SessionCookie carries session affinity between requests.
const SessionCookie = "argus_session"

// Turn is one chat request as seen by a ReplyFunc.
type Turn struct {
	Message  string
	FilePath string
	// Number counts turns in the current session, starting at 1.
	Number int
}

// ReplyFunc produces the chunks written for a turn. Each element is written
// and flushed separately.
type ReplyFunc func(Turn) []string

// Options configures a Server.
type Options struct {
	UploadDir      string
	MetricsPath    string
	RatePerMinute  int
	Burst          int
	ChunkDelay     time.Duration
	WarnAfterTurns int
	// Reply overrides the canned replies.
	Reply ReplyFunc
	// Simulation overrides the simulation log lines.
	Simulation []string
}

// OptionsFromConfig maps the devserver config section to Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		UploadDir:      cfg.DevServer.UploadDir,
		MetricsPath:    cfg.DevServer.MetricsPath,
		RatePerMinute:  cfg.DevServer.RatePerMinute,
		Burst:          cfg.DevServer.Burst,
		ChunkDelay:     cfg.GetChunkDelay(),
		WarnAfterTurns: cfg.DevServer.WarnAfterTurns,
	}
}

type sessionState struct {
	turns int
}

// Server implements the backend contract.
type Server struct {
	opts    Options
	router  *mux.Router
	limiter *keyedLimiter

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// New creates a server and its upload directory.
func New(opts Options) (*Server, error) {
	if opts.UploadDir == "" {
		dir, err := os.MkdirTemp("", "argus-uploads-")
		if err != nil {
			return nil, fmt.Errorf("failed to create upload dir: %w", err)
		}
		opts.UploadDir = dir
	}
	if err := os.MkdirAll(opts.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	if opts.Reply == nil {
		opts.Reply = CannedReply
	}
	if opts.Simulation == nil {
		opts.Simulation = defaultSimulation
	}

	s := &Server{
		opts:     opts,
		limiter:  newKeyedLimiter(opts.RatePerMinute, opts.Burst),
		sessions: make(map[string]*sessionState),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger)

	r.Handle("/chat", s.limiter.middleware(http.HandlerFunc(s.handleChat))).Methods(http.MethodPost)
	r.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/run-simulation", s.handleSimulation).Methods(http.MethodGet)
	return r
}

// ServeHTTP makes Server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// UploadDir returns where uploads are stored.
func (s *Server) UploadDir() string {
	return s.opts.UploadDir
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.DevServer("listening on %s (uploads in %s)", addr, s.opts.UploadDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logging.DevServer("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// session returns the caller's session, issuing a cookie when it has none.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (string, *sessionState) {
	id := ""
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		id = c.Value
	} else {
		id = uuid.NewString()
		http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: id, Path: "/", HttpOnly: true})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		st = &sessionState{}
		s.sessions[id] = st
	}
	return id, st
}

// nextTurn advances the session's turn count. It reports whether the
// history crossed the summarization threshold on this turn.
func (s *Server) nextTurn(st *sessionState) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.turns++
	n := st.turns
	if s.opts.WarnAfterTurns > 0 && st.turns > s.opts.WarnAfterTurns {
		// Summarized history counts as one exchange.
		st.turns = 1
		return n, true
	}
	return n, false
}

func (s *Server) resetSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.WithRequestID(logging.CategoryDevServer, r.Header.Get("X-Request-ID")).
			Debug("%s %s took %v", r.Method, r.URL.Path, time.Since(start))
	})
}
