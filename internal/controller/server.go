package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"peerctl/internal/api"
	"peerctl/internal/daemon"
	"peerctl/internal/metrics"
	"peerctl/internal/model"
	"peerctl/internal/registry"
)

const maxEventsLimit = 1000

// EventSource serves the recent event journal.
type EventSource interface {
	Recent(ctx context.Context, limit int) ([]model.Event, error)
}

type Options struct {
	Listen   string
	Registry *registry.Registry
	// Journal is optional; without it /events answers 404.
	Journal EventSource
	// Inspector is optional; with it /server-info reports live peers.
	Inspector daemon.Inspector
	Metrics   *metrics.Collector
	Logger    *slog.Logger
}

// Server provides the peerctl HTTP API.
type Server struct {
	listen    string
	reg       *registry.Registry
	journal   EventSource
	inspector daemon.Inspector
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewServer constructs the API server.
func NewServer(opts Options) (*Server, error) {
	if opts.Registry == nil {
		return nil, errors.New("controller: registry is required")
	}
	s := &Server{
		listen:    opts.Listen,
		reg:       opts.Registry,
		journal:   opts.Journal,
		inspector: opts.Inspector,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Handler returns the routed handler with request logging and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "GET /{$}", s.handleStatus)
	s.handle(mux, "GET /peers", s.handlePeers)
	s.handle(mux, "POST /add-peer", s.handleAddPeer)
	s.handle(mux, "GET /peer/{name}", s.handleGetPeer)
	s.handle(mux, "DELETE /peer/{name}", s.handleRemovePeer)
	s.handle(mux, "GET /server-info", s.handleServerInfo)
	s.handle(mux, "POST /reload-wireguard", s.handleReload)
	s.handle(mux, "GET /events", s.handleEvents)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return withRequestID(mux)
}

// ListenAndServe runs the HTTP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("peerctl listening", "addr", s.listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.StatusResponse{
		Status:              "running",
		WireGuardConfigPath: s.reg.ConfigPath(),
	})
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	names, err := s.reg.ListPeers()
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleAddPeer(w http.ResponseWriter, r *http.Request) {
	var req api.AddPeerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, registry.CodeValidation, err.Error())
		return
	}
	if req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, registry.CodeValidation, "peer name is required")
		return
	}

	peer, err := s.reg.AddPeer(r.Context(), req.Name)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.AddPeerResponse{
		Message:    fmt.Sprintf("peer %s added", peer.Name),
		PeerName:   peer.Name,
		IPAddress:  peer.Address,
		ConfigFile: peer.ConfigFile,
		PublicKey:  peer.PublicKey,
	})
}

// peerName sanitizes the {name} path value. A name with nothing left after
// sanitizing cannot match any peer, so it is answered as not found.
func peerName(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.PathValue("name")
	name := registry.Sanitize(raw)
	if name == "" {
		writeJSONError(w, http.StatusNotFound, registry.CodeNotFound, fmt.Sprintf("peer %q not found", raw))
		return "", false
	}
	return name, true
}

func (s *Server) handleGetPeer(w http.ResponseWriter, r *http.Request) {
	name, ok := peerName(w, r)
	if !ok {
		return
	}
	peer, err := s.reg.Get(name)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.PeerConfigResponse{PeerName: peer.Name, Config: peer.ClientConfig})
}

func (s *Server) handleRemovePeer(w http.ResponseWriter, r *http.Request) {
	name, ok := peerName(w, r)
	if !ok {
		return
	}
	if err := s.reg.RemovePeer(r.Context(), name); err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.MessageResponse{Message: fmt.Sprintf("peer %s removed", name)})
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	info := s.reg.ServerInfo(r.Context())
	resp := api.ServerInfoResponse{
		ServerPublicKey:     info.Identity.PublicKey,
		Endpoint:            info.Identity.Endpoint,
		ServerConfigExists:  info.ServerConfigExists,
		PublicKeyFileExists: info.PublicKeyFileExists,
		PeersDirExists:      info.StoreRootExists,
		PeerCount:           info.PeerCount,
		Path:                info.ConfigPath,
		Network:             info.Network.String(),
	}
	if info.IdentityErr != nil {
		resp.Error = info.IdentityErr.Error()
	}
	if s.inspector != nil {
		live, err := s.inspector.LivePeers(r.Context())
		if err != nil {
			s.logger.Debug("live peer inspection failed", "error", err)
		} else {
			n := len(live)
			resp.LivePeers = &n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	res, err := s.reg.Restart(r.Context())
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	if !res.OK() {
		msg := res.Outcome
		if res.Err != nil {
			msg = res.Err.Error()
		}
		writeJSONError(w, http.StatusInternalServerError, "daemon_"+res.Outcome, msg)
		return
	}
	writeJSON(w, http.StatusOK, api.ReloadResponse{
		Message:    "wireguard restarted",
		DurationMs: res.Duration.Milliseconds(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSONError(w, http.StatusNotFound, "journal_disabled", "event journal is disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxEventsLimit {
			writeJSONError(w, http.StatusBadRequest, registry.CodeValidation,
				fmt.Sprintf("limit must be 1-%d", maxEventsLimit))
			return
		}
		limit = n
	}

	items, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("journal query failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, registry.CodeInternal, err.Error())
		return
	}
	out := make([]api.Event, 0, len(items))
	for _, ev := range items {
		out = append(out, api.Event{
			Timestamp:  ev.Timestamp,
			Kind:       ev.Kind,
			Peer:       ev.Peer,
			Address:    ev.Address,
			Outcome:    ev.Outcome,
			Detail:     ev.Detail,
			DurationMs: ev.Duration.Milliseconds(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	code := registry.Code(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "code", code, "error", err)
	}
	writeJSONError(w, status, code, err.Error())
}

func statusFor(code string) int {
	switch code {
	case registry.CodeValidation, registry.CodeConflict:
		return http.StatusBadRequest
	case registry.CodeNotFound:
		return http.StatusNotFound
	case registry.CodeExhausted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}
