package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/dynres"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/secrets"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/tracker"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Server exposes the tracker verbs, the admin verbs, and operator
// read-only endpoints over JSON/HTTP. The tracker itself never sees HTTP
// types; this layer hands it typed records plus the remote peer address.
type Server struct {
	svc     *tracker.Service
	runtime *config.Runtime
	dynamic *dynres.Table
	keys    *secrets.Manager
	store   storage.Store
	logger  zerolog.Logger

	mux  *http.ServeMux
	http *http.Server

	// clients bounds concurrent agent-verb handlers, the transport-level
	// worker pool the tracker is sized for.
	clients chan struct{}
}

// NewServer wires the HTTP surface. store may be nil; admin updates then
// apply in memory only.
func NewServer(cfg config.Config, svc *tracker.Service, runtime *config.Runtime, dynamic *dynres.Table, keys *secrets.Manager, store storage.Store) *Server {
	threads := cfg.ClientThreads
	if threads <= 0 {
		threads = config.DefaultClientThreads
	}
	s := &Server{
		svc:     svc,
		runtime: runtime,
		dynamic: dynamic,
		keys:    keys,
		store:   store,
		logger:  log.WithComponent("api"),
		mux:     http.NewServeMux(),
		clients: make(chan struct{}, threads),
	}

	// Tracker verbs
	s.handle("POST /v1/tracker/register", "register", s.limited(s.registerHandler))
	s.handle("POST /v1/tracker/heartbeat", "heartbeat", s.limited(s.heartbeatHandler))
	s.handle("POST /v1/tracker/unregister", "unregister", s.limited(s.unregisterHandler))

	// Operator surface
	s.handle("GET /v1/nodes", "nodes", s.listNodesHandler)
	s.handle("POST /v1/nodes/{node}/decommission", "decommission", s.decommissionHandler)

	// Admin verbs
	s.handle("POST /v1/admin/resources", "admin_resources", s.updateResourcesHandler)
	s.handle("GET /v1/admin/resources", "admin_resources", s.listResourcesHandler)
	s.handle("POST /v1/admin/admission", "admin_admission", s.updateAdmissionHandler)
	s.handle("POST /v1/admin/pacing", "admin_pacing", s.updatePacingHandler)
	s.handle("POST /v1/admin/keys/{kind}/roll", "admin_keys", s.rollKeyHandler)
	s.handle("POST /v1/admin/keys/{kind}/activate", "admin_keys", s.activateKeyHandler)
	s.handle("POST /v1/admin/credentials", "admin_credentials", s.updateCredentialsHandler)

	// Health and metrics
	s.mux.HandleFunc("GET /health", s.healthHandler)
	s.mux.HandleFunc("GET /ready", s.readyHandler)
	s.mux.Handle("GET /metrics", metrics.Handler())

	return s
}

// handle registers an instrumented route.
func (s *Server) handle(pattern, route string, fn http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		timer.ObserveDurationVec(metrics.APIRequestDuration, route)
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

// limited gates a handler on the client worker pool.
func (s *Server) limited(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.clients <- struct{}{}
		defer func() { <-s.clients }()
		fn(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Start begins serving on addr and blocks until shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("Tracker API listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Handler returns the mux for embedding in tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func decode[T any](w http.ResponseWriter, r *http.Request) (*T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return nil, false
	}
	return &v, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[types.RegisterRequest](w, r)
	if !ok {
		return
	}
	resp, err := s.svc.Register(req, r.RemoteAddr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) heartbeatHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[types.HeartbeatRequest](w, r)
	if !ok {
		return
	}
	resp, err := s.svc.Heartbeat(req, r.RemoteAddr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) unregisterHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[types.UnregisterRequest](w, r)
	if !ok {
		return
	}
	resp, err := s.svc.Unregister(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listNodesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Registry().Summaries())
}

func (s *Server) decommissionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseNodeID(r.PathValue("node"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid node id: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.svc.DecommissionNode(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "decommissioning"})
}

func (s *Server) updateResourcesHandler(w http.ResponseWriter, r *http.Request) {
	entries, ok := decode[[]types.DynamicResourceEntry](w, r)
	if !ok {
		return
	}
	if err := s.dynamic.Update(*entries); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ConfigUpdatesTotal.WithLabelValues("resources").Inc()
	s.logger.Info().Int("overrides", len(*entries)).Msg("Dynamic resource table updated")
	writeJSON(w, http.StatusOK, map[string]int{"overrides": len(*entries)})
}

func (s *Server) listResourcesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dynamic.Entries())
}

func (s *Server) updateAdmissionHandler(w http.ResponseWriter, r *http.Request) {
	adm, ok := decode[config.AdmissionConfig](w, r)
	if !ok {
		return
	}
	if s.store != nil {
		if err := s.store.SaveAdmission(*adm); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	s.runtime.UpdateAdmission(*adm)
	metrics.ConfigUpdatesTotal.WithLabelValues("admission").Inc()
	s.logger.Info().
		Int("include", len(adm.IncludeHosts)).
		Int("exclude", len(adm.ExcludeHosts)).
		Str("min_version", adm.MinNodeVersion).
		Msg("Admission configuration updated")
	writeJSON(w, http.StatusOK, adm)
}

func (s *Server) updatePacingHandler(w http.ResponseWriter, r *http.Request) {
	pacing, ok := decode[config.PacingConfig](w, r)
	if !ok {
		return
	}
	s.runtime.UpdatePacing(*pacing)
	metrics.ConfigUpdatesTotal.WithLabelValues("pacing").Inc()
	writeJSON(w, http.StatusOK, s.runtime.Pacing())
}

func keyKind(raw string) (secrets.KeyKind, error) {
	switch raw {
	case string(secrets.KeyKindContainerToken):
		return secrets.KeyKindContainerToken, nil
	case string(secrets.KeyKindNMToken):
		return secrets.KeyKindNMToken, nil
	}
	return "", fmt.Errorf("unknown key kind %q", raw)
}

func (s *Server) rollKeyHandler(w http.ResponseWriter, r *http.Request) {
	kind, err := keyKind(r.PathValue("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key, err := s.keys.RollNext(kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ConfigUpdatesTotal.WithLabelValues("keys").Inc()
	s.logger.Info().Str("kind", string(kind)).Int64("key_id", key.KeyID).Msg("Rolled next master key")
	writeJSON(w, http.StatusOK, map[string]int64{"key_id": key.KeyID})
}

func (s *Server) activateKeyHandler(w http.ResponseWriter, r *http.Request) {
	kind, err := keyKind(r.PathValue("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.keys.ActivateNext(kind); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	metrics.ConfigUpdatesTotal.WithLabelValues("keys").Inc()
	writeJSON(w, http.StatusOK, map[string]int64{"key_id": s.keys.CurrentKey(kind).KeyID})
}

func (s *Server) updateCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	creds, ok := decode[map[string][]byte](w, r)
	if !ok {
		return
	}
	seq := s.svc.Credentials().Update(*creds)
	metrics.ConfigUpdatesTotal.WithLabelValues("credentials").Inc()
	writeJSON(w, http.StatusOK, map[string]int64{"token_sequence_no": seq})
}
