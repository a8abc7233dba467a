// Package adminapi exposes the CORE's read-only introspection surface
// over REST and WebSocket (SPEC_FULL §6.5 expansion) — it never carries
// a syscall path, only observes state the gateway already owns.
// Grounded on the teacher's internal/api (mux router + CORS middleware,
// JSON handlers) and internal/websocket/dag_streamer.go (a register/
// unregister/broadcast hub feeding connected clients).
package adminapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orbital/kernel/internal/auditbus"
	"github.com/orbital/kernel/internal/gateway"
	"github.com/orbital/kernel/internal/kerntypes"
	"github.com/orbital/kernel/internal/telemetry"
)

// Server is the admin HTTP/WebSocket surface.
type Server struct {
	gw      *gateway.Gateway
	bus     auditbus.Bus
	metrics *telemetry.Registry
	logger  *slog.Logger
	hub     *hub
}

// New constructs a Server. bus and metrics are optional — a nil bus
// disables WS /v1/stream, a nil metrics registry leaves GET /v1/metrics
// unregistered.
func New(gw *gateway.Gateway, bus auditbus.Bus, metrics *telemetry.Registry) *Server {
	s := &Server{
		gw:      gw,
		bus:     bus,
		metrics: metrics,
		logger:  slog.Default().With("component", "adminapi"),
	}
	if bus != nil {
		s.hub = newHub(bus, s.logger)
		go s.hub.run()
	}
	return s
}

// Router builds the mux.Router serving every admin endpoint, with the
// teacher's permissive dev-mode CORS middleware carried over verbatim
// since this is a read-only introspection surface, not a write API.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/v1/processes", s.handleProcesses).Methods(http.MethodGet)
	r.HandleFunc("/v1/commits", s.handleCommits).Methods(http.MethodGet)
	r.HandleFunc("/v1/syslog", s.handleSyslog).Methods(http.MethodGet)
	r.HandleFunc("/v1/cap/{pid}/{slot}", s.handleCapInfo).Methods(http.MethodGet)
	r.HandleFunc("/v1/integrity", s.handleIntegrity).Methods(http.MethodGet)
	r.HandleFunc("/v1/stream", s.handleStream)

	if s.metrics != nil {
		r.Handle("/v1/metrics", promhttp.HandlerFor(s.metrics.Gatherer(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("adminapi: failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// PS equivalent.
func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.gw.ProcessList())
}

// CommitLog tail, paginated by ?from=<seq>.
func (s *Server) handleCommits(w http.ResponseWriter, r *http.Request) {
	from := parseUintParam(r, "from", 0)
	all := s.gw.Commits()
	if from >= uint64(len(all)) {
		writeJSON(w, []kerntypes.Commit{})
		return
	}
	writeJSON(w, all[from:])
}

// SysLog tail, filtered by ?since=<id>.
func (s *Server) handleSyslog(w http.ResponseWriter, r *http.Request) {
	since := parseUintParam(r, "since", 0)
	writeJSON(w, s.gw.SysLogSince(since))
}

// CAP_INFO equivalent.
func (s *Server) handleCapInfo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pid, err := strconv.ParseUint(vars["pid"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	slot, err := strconv.ParseUint(vars["slot"], 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	info, err := s.gw.CapInfo(kerntypes.ProcessId(pid), kerntypes.CapSlot(slot))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, info)
}

// VerifyIntegrity, surfaced as a cheap liveness/integrity probe distinct
// from the full internal/verifyjob replay-and-compare pass.
func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"ok": s.gw.VerifyIntegrity()})
}

func parseUintParam(r *http.Request, name string, def uint64) uint64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// Serve starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("admin api listening", "addr", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
