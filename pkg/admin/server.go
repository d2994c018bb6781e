package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wenli/memekeeper/pkg/store"
)

const defaultMaxUploadSize = 10 << 20

// Server is the admin panel HTTP server. It exposes the repository
// management API, the configuration endpoints and a websocket feed of
// library changes.
type Server struct {
	options        ServerOptions
	server         *http.Server
	store          *store.Store
	configs        ConfigProvider
	metricsHandler http.Handler
	hub            *Hub
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a new admin server
func NewServer(options ServerOptions, st *store.Store, configs ConfigProvider, metricsHandler http.Handler, logger zerolog.Logger) (*Server, error) {
	// Set defaults
	if options.Port == 0 {
		options.Port = 5000
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.MaxUploadSize == 0 {
		options.MaxUploadSize = defaultMaxUploadSize
	}

	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if configs == nil {
		return nil, fmt.Errorf("config provider is required")
	}

	s := &Server{
		options:        options,
		store:          st,
		configs:        configs,
		metricsHandler: metricsHandler,
		hub:            NewHub(logger),
		logger:         logger.With().Str("component", "admin").Logger(),
		startTime:      time.Now(),
	}

	// Push a library snapshot to websocket clients whenever the store changes
	st.OnChange(func() {
		s.hub.Broadcast(newEvent("library.changed", map[string]interface{}{
			"count": st.Count(),
		}))
	})

	return s, nil
}

// Start starts the admin server
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.wrap("/", s.handleIndex))
	mux.HandleFunc("/upload", s.wrap("/upload", s.handleUpload))
	mux.HandleFunc("/delete", s.wrap("/delete", s.handleDelete))
	mux.HandleFunc("/batch_delete", s.wrap("/batch_delete", s.handleBatchDelete))
	mux.HandleFunc("/update_tag", s.wrap("/update_tag", s.handleUpdateTag))
	mux.HandleFunc("/list", s.wrap("/list", s.handleList))
	mux.HandleFunc("/get_config", s.wrap("/get_config", s.handleGetConfig))
	mux.HandleFunc("/update_config", s.wrap("/update_config", s.handleUpdateConfig))
	mux.HandleFunc("/images/", s.wrap("/images", s.handleImage))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.hub.HandleWS)

	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: mux,
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting admin server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start admin server: %w", err)
	}

	return nil
}

// Stop gracefully stops the admin server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down admin server")

	// Wait for in-flight requests with timeout
	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.hub.Close()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown admin server: %w", err)
	}

	s.logger.Info().Msg("Admin server stopped")
	return nil
}

// Hub returns the websocket event hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// wrap adds shutdown rejection, in-flight tracking and request accounting
// around a handler
func (s *Server) wrap(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}
		s.shutdownMu.RUnlock()

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		handler(recorder, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("Admin request completed")

		if s.options.Observer != nil {
			s.options.Observer(endpoint, recorder.status)
		}
	}
}

// statusRecorder captures the response status for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			s.logger.Error().Err(err).Msg("Failed to encode response")
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
