// Package enginetest offers an in-memory impairment engine that serves the
// control API over HTTP, for testing clients.
package enginetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/impairlab/impairctl/pkg/impairment"
)

// Stats are the counters reported by the server
type Stats struct {
	Processed  uint64 `json:"processed"`
	Dropped    uint64 `json:"dropped"`
	Delayed    uint64 `json:"delayed"`
	Duplicated uint64 `json:"duplicated"`
	Tampered   uint64 `json:"tampered"`
	OutOfOrder uint64 `json:"out_of_order"`
	QueueSize  uint64 `json:"queue_size"`
}

// Request is a request received by the server
type Request struct {
	Method    string
	Path      string
	RequestID string
	UserAgent string
}

// Response overrides the response of an endpoint
type Response struct {
	StatusCode int
	Body       string
}

// Server simulates an engine
type Server struct {
	mutex     sync.Mutex
	config    impairment.Wire
	running   bool
	stats     Stats
	overrides map[string]Response
	requests  []Request
	srv       *httptest.Server
}

// NewServer starts a Server simulating a stopped engine with the default configuration.
// The server must be closed when no longer needed.
func NewServer() *Server {
	s := &Server{
		config:    impairment.Default().ToWire(),
		overrides: map[string]Response{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/config", s.getConfig)
	mux.HandleFunc("POST /api/config", s.setConfig)
	mux.HandleFunc("POST /api/start", s.start)
	mux.HandleFunc("POST /api/stop", s.stop)
	mux.HandleFunc("GET /api/stats", s.getStats)
	mux.HandleFunc("POST /api/reset-stats", s.resetStats)

	s.srv = httptest.NewServer(s.record(mux))

	return s
}

// URL returns the base url of the control API
func (s *Server) URL() string {
	return s.srv.URL + "/api"
}

// Close shuts down the server
func (s *Server) Close() {
	s.srv.Close()
}

// Override makes the endpoint at path (e.g. "/api/stop") return the given response.
// An empty Response removes the override.
func (s *Server) Override(path string, resp Response) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if resp == (Response{}) {
		delete(s.overrides, path)
		return
	}

	s.overrides[path] = resp
}

// SetRunning sets the run state of the engine
func (s *Server) SetRunning(running bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.running = running
}

// Running returns the run state of the engine
func (s *Server) Running() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.running
}

// SetStats sets the counters of the engine
func (s *Server) SetStats(stats Stats) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stats = stats
}

// SetConfig sets the configuration of the engine
func (s *Server) SetConfig(config impairment.Config) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.config = config.ToWire()
}

// Config returns the configuration of the engine
func (s *Server) Config() impairment.Config {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.config.Config()
}

// Requests returns the requests received
func (s *Server) Requests() []Request {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make([]Request, len(s.requests))
	copy(out, s.requests)

	return out
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mutex.Lock()
		s.requests = append(s.requests, Request{
			Method:    r.Method,
			Path:      r.URL.Path,
			RequestID: r.Header.Get("X-Request-ID"),
			UserAgent: r.UserAgent(),
		})
		override, found := s.overrides[r.URL.Path]
		s.mutex.Unlock()

		if found {
			w.WriteHeader(override.StatusCode)
			_, _ = io.WriteString(w, override.Body)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (s *Server) getConfig(w http.ResponseWriter, _ *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	writeJSON(w, http.StatusOK, s.config)
}

// decodeConfig decodes the config in the request body, if any, over the current one
func (s *Server) decodeConfig(r *http.Request) (impairment.Wire, error) {
	s.mutex.Lock()
	config := s.config
	s.mutex.Unlock()

	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		return config, err
	}

	err = json.Unmarshal(body, &config)

	return config, err
}

func (s *Server) setConfig(w http.ResponseWriter, r *http.Request) {
	config, err := s.decodeConfig(r)
	if err != nil {
		writeError(w, err)
		return
	}

	s.mutex.Lock()
	s.config = config
	s.mutex.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	config, err := s.decodeConfig(r)
	if err != nil {
		writeError(w, err)
		return
	}

	s.mutex.Lock()
	s.config = config
	s.running = true
	s.mutex.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) stop(w http.ResponseWriter, _ *http.Request) {
	s.mutex.Lock()
	s.running = false
	s.mutex.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) getStats(w http.ResponseWriter, _ *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	writeJSON(w, http.StatusOK, struct {
		Stats
		Running bool `json:"running"`
	}{
		Stats:   s.stats,
		Running: s.running,
	})
}

func (s *Server) resetStats(w http.ResponseWriter, _ *http.Request) {
	s.mutex.Lock()
	s.stats = Stats{}
	s.mutex.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
