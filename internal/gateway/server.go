// Package gateway exposes a remote.Backend as the HTTP RPC interface the rest
// client speaks.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Veraticus/pocket-ledger/internal/remote"
)

// ErrNoSecret is returned by New without a signing secret.
var ErrNoSecret = errors.New("gateway needs a jwt secret")

const shutdownTimeout = 10 * time.Second

// Server serves the four remote procedures over HTTP.
type Server struct {
	backend remote.Backend
	logger  *slog.Logger
	now     func() time.Time
	secret  []byte
}

// New creates a server in front of backend. Requests must carry a bearer
// token signed with secret.
func New(backend remote.Backend, secret []byte, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("gateway needs a backend")
	}
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		backend: backend,
		secret:  secret,
		logger:  logger.With("component", "gateway"),
		now:     time.Now,
	}, nil
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.health)

	rpc := r.Group("/rpc")
	rpc.Use(s.auth())
	{
		rpc.POST("/"+remote.ProcApplyBatch, s.applyBatch)
		rpc.POST("/"+remote.ProcCreateTransfer, s.createTransfer)
		rpc.POST("/"+remote.ProcEditTransfer, s.editTransfer)
		rpc.POST("/"+remote.ProcRevertTransfer, s.revertTransfer)
	}
	return r
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("gateway failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("gateway shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
