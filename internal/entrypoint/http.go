package entrypoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	errx "github.com/sap-order-agent/server/internal/core/error"
	logx "github.com/sap-order-agent/server/pkg/logger"
)

const maxRequestBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter exposes the handler as POST /invocations with a GET /ping health check.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invocations", h.handleInvocation)
	mux.HandleFunc("GET /ping", handlePing)
	return requestLogging(mux)
}

func (h *Handler) handleInvocation(w http.ResponseWriter, r *http.Request) {
	var p Payload
	if err := decodeJSONBody(r, &p); err != nil {
		appErr := errx.New(err, http.StatusBadRequest, errx.InvalidPayloadMessage)
		writeJSON(w, appErr.Status, errorResponse{Error: appErr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, h.Handle(r.Context(), p))
}

func handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Healthy"})
}

func decodeJSONBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Warn().Err(err).Msg("write response failed")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logx.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// Server owns the HTTP listener lifecycle.
type Server struct {
	server *http.Server
	// watcherDone is closed once the shutdown watcher of the last Start exits.
	watcherDone chan struct{}
}

func NewServer(addr string, h *Handler) *Server {
	return &Server{server: &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start serves until Shutdown is called or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	stopped := make(chan struct{})
	defer close(stopped)
	s.watcherDone = make(chan struct{})
	go func(done chan<- struct{}) {
		defer close(done)
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = s.server.Shutdown(shutdownCtx)
		case <-stopped:
		}
	}(s.watcherDone)

	logx.Info().Str("addr", s.server.Addr).Msg("listening")
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
