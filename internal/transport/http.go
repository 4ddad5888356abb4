// Package transport exposes the Tool execution RPC from spec.md §6: the
// single HTTP JSON boundary this daemon's core touches. HTTP routing
// beyond this one endpoint (the admin web UI, Prometheus/OTel
// endpoints) is out of scope per spec §1 and is left to the operator's
// own reverse proxy or a separate process.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/arcweave/dispatchd/internal/daemon"
	"github.com/arcweave/dispatchd/pkg/dispatchmodel"
)

// executeRequest is spec.md §6's Tool execution RPC request, with one
// addition: User identifies the caller for the RBAC gate (§4.7), which
// spec.md's wire format leaves to the caller-identity layer it treats
// as an external collaborator. When absent, the frame's TenantID is
// used as the RBAC subject instead.
type executeRequest struct {
	Tool    string                     `json:"tool"`
	Input   json.RawMessage            `json:"input"`
	Context dispatchmodel.ContextFrame `json:"context"`
	User    string                     `json:"user,omitempty"`
}

// executeResponse mirrors spec.md §6's response shape exactly, renaming
// only ToolResult.ExecutionTimeMS to the documented execution_time key.
type executeResponse struct {
	Success       bool                       `json:"success"`
	Output        json.RawMessage            `json:"output,omitempty"`
	Error         string                     `json:"error,omitempty"`
	ExecutionTime uint64                     `json:"execution_time"`
	ContextUsed   dispatchmodel.ContextFrame `json:"context_used"`
}

// Server hosts the tool execution RPC over HTTP.
type Server struct {
	d        *daemon.Daemon
	logger   *slog.Logger
	http     *http.Server
	listener net.Listener
}

// NewServer builds an HTTP transport bound to d, listening on addr
// (e.g. ":50550").
func NewServer(d *daemon.Daemon, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	s := &Server{d: d, logger: logger}
	mux.HandleFunc("/v1/tools/execute", s.handleExecute)
	mux.HandleFunc("/healthz", s.handleHealthz)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts accepting connections and blocks until ctx is
// canceled, at which point it shuts the server down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	s.listener = listener

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	user := req.User
	if user == "" {
		user = req.Context.TenantID
	}

	result := s.d.ExecuteTool(r.Context(), user, req.Tool, req.Input, req.Context)

	resp := executeResponse{
		Success:       result.Success,
		Output:        result.Output,
		Error:         result.Error,
		ExecutionTime: result.ExecutionTimeMS,
		ContextUsed:   result.ContextUsed,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode tool execution response", "error", err)
	}
}
