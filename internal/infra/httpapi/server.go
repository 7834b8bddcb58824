// Package httpapi exposes the relay to the robot's recorder and to operators
// over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"michi-relay/internal/application"
	"michi-relay/internal/domain"
)

const (
	defaultMaxAudioBytes = 10 * 1024 * 1024
	defaultMaxTextBytes  = 4096
)

// Relay is the slice of application.Relay the handlers need.
type Relay interface {
	DetectWake(ctx context.Context, audio []byte) (application.WakeResult, error)
	Process(ctx context.Context, audio []byte) (domain.Outcome, error)
	ProcessText(ctx context.Context, text string) (domain.Outcome, error)
	Transcripts(ctx context.Context, limit int) ([]application.Transcript, error)
}

// DeviceStatus reports whether the device channel is connected.
type DeviceStatus interface {
	Connected() bool
}

type Config struct {
	Addr      string
	AuthToken string
	// UploadDir, when set, receives a copy of the last clip as received.wav.
	UploadDir string
	// AudioDir holds conversation.mp3 served by GET /audio_response.
	AudioDir string
	// PublicURL prefixes audio_url; the request host is used when empty.
	PublicURL string

	RateLimit  int
	RateWindow time.Duration
	// MaxWait caps GET /talk_state?wait=.
	MaxWait time.Duration

	// Bodies over these limits are rejected with 413.
	MaxAudioBytes int64
	MaxTextBytes  int64

	// TrustProxy keys the rate limiter on X-Forwarded-For and X-Real-IP.
	// Only enable it behind a reverse proxy that overwrites those headers.
	TrustProxy bool
}

type Server struct {
	cfg         Config
	relay       Relay
	talk        *application.TalkState
	device      DeviceStatus
	logger      *slog.Logger
	mux         *http.ServeMux
	rateLimiter *RateLimiter

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	uploadMu sync.Mutex
}

func NewServer(cfg Config, relay Relay, talk *application.TalkState, device DeviceStatus, logger *slog.Logger) *Server {
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 30
	}
	if cfg.RateWindow == 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 30 * time.Second
	}
	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = defaultMaxAudioBytes
	}
	if cfg.MaxTextBytes <= 0 {
		cfg.MaxTextBytes = defaultMaxTextBytes
	}

	s := &Server{
		cfg:         cfg,
		relay:       relay,
		talk:        talk,
		device:      device,
		logger:      logger,
		mux:         http.NewServeMux(),
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow).TrustProxy(cfg.TrustProxy),
	}

	limited := func(h http.HandlerFunc) http.HandlerFunc {
		return s.rateLimiter.Middleware(s.authorize(h))
	}
	s.mux.HandleFunc("POST /detect_wakeword", limited(s.handleDetectWake))
	s.mux.HandleFunc("POST /process_input", limited(s.handleProcessInput))
	s.mux.HandleFunc("POST /text", limited(s.handleText))
	s.mux.HandleFunc("GET /audio_response", s.authorize(s.handleAudioResponse))
	s.mux.HandleFunc("GET /talk_state", s.authorize(s.handleTalkState))
	s.mux.HandleFunc("GET /transcripts", s.authorize(s.handleTranscripts))
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

// Handler returns the routes wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.mux)
}

// Start listens on cfg.Addr and serves in the background.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.cfg.MaxWait + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func(srv *http.Server) {
		s.logger.Info("HTTP server starting", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}(s.server)

	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := s.server.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}

	s.server = nil
	s.listener = nil
	return nil
}

func (s *Server) authorize(next http.HandlerFunc) http.HandlerFunc {
	if s.cfg.AuthToken == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.cfg.AuthToken {
			loggerFrom(r.Context(), s.logger).Warn("unauthorized request", "remote_addr", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}
