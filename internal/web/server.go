// Package web provides the HTTP status page and management API for the
// relay-controller daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/sweeney/relay-controller/internal/dht"
	"github.com/sweeney/relay-controller/internal/logic"
	"github.com/sweeney/relay-controller/internal/settings"
	"github.com/sweeney/relay-controller/internal/status"
	"github.com/sweeney/relay-controller/internal/timing"
)

// Scheduler is the part of logic.Scheduler the API drives.
type Scheduler interface {
	State() logic.State
	Counts() logic.EventCounts
	SetEnabled(enabled bool, nowMs uint32)
	SetDurations(onMs, offMs, nowMs uint32)
	Override(on bool, nowMs uint32)
}

// Sampler takes a sensor sample.
type Sampler interface {
	Sample(ctx context.Context) (dht.Reading, error)
}

// Deps are the collaborators the server reads from and writes to.
type Deps struct {
	Tracker   *status.Tracker
	Scheduler Scheduler
	Sampler   Sampler
	Settings  *settings.Store
	Clock     timing.Clock
	Metrics   http.Handler // optional; served at /metrics
}

// Server serves the status page and the management API over HTTP.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	deps       Deps
}

// New creates a Server listening on addr.
func New(addr string, deps Deps) *Server {
	s := &Server{deps: deps}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sensor", s.handleSensor).Methods(http.MethodGet)
	api.HandleFunc("/relay", s.handleRelay).Methods(http.MethodPost)
	api.HandleFunc("/timer", s.handleTimerGet).Methods(http.MethodGet)
	api.HandleFunc("/timer", s.handleTimerPost).Methods(http.MethodPost)
	api.HandleFunc("/hostname", s.handleHostnameGet).Methods(http.MethodGet)
	api.HandleFunc("/hostname", s.handleHostnamePost).Methods(http.MethodPost)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}
	s.router = r

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handlers.LoggingHandler(os.Stdout, cors(r)),
	}
	return s
}

// Handler returns the full handler chain. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.refresh()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.deps.Tracker.Snapshot())
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	s.refresh()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.deps.Tracker.Snapshot()))
}

// refresh copies the live scheduler state into the tracker so pages never
// lag behind an API change made since the last tick.
func (s *Server) refresh() {
	if s.deps.Scheduler == nil {
		return
	}
	s.deps.Tracker.UpdateSchedule(s.deps.Scheduler.State(), s.deps.Scheduler.Counts())
}
