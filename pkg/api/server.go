// Package api serves the decision submission API used by reviewers to approve
// or deny suspended requests.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gm-agent-org/mcp-guard/pkg/api/middleware"
	"github.com/gm-agent-org/mcp-guard/pkg/consent"
	"github.com/gm-agent-org/mcp-guard/pkg/gateway"
	"github.com/gm-agent-org/mcp-guard/pkg/policy"
)

// DefaultAddr binds the API to loopback only.
const DefaultAddr = "127.0.0.1:8787"

// Version is reported by the health endpoint.
var Version = "dev"

// HTTPConfig defines the HTTP server settings.
type HTTPConfig struct {
	Enable bool   `yaml:"enable" envconfig:"ENABLE"`
	Addr   string `yaml:"addr" envconfig:"ADDR"`
	APIKey string `yaml:"api_key" envconfig:"API_KEY"`
}

// Approvals is the consent queue as seen by reviewers.
type Approvals interface {
	List() []consent.Approval
	Get(id string) (consent.Approval, bool)
	Decide(id string, approve bool) error
}

// Reloader re-reads the policy file.
type Reloader interface {
	Path() string
	Reload() (*policy.RuleSet, error)
}

// Cache is the approval cache.
type Cache interface {
	Len() int
	Prune() int
	Clear()
	TTL() time.Duration
}

// Backend holds what the handlers operate on. Reloader and Stats may be nil.
type Backend struct {
	Approvals Approvals
	Cache     Cache
	Reloader  Reloader
	Stats     func() gateway.Stats
}

// Server hosts the Gin engine.
type Server struct {
	engine  *gin.Engine
	config  HTTPConfig
	backend Backend
	log     *slog.Logger
}

// NewServer constructs the HTTP API server.
func NewServer(cfg HTTPConfig, backend Backend, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "api")

	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Logger(log))

	srv := &Server{
		engine:  engine,
		config:  cfg,
		backend: backend,
		log:     log,
	}

	srv.setupRoutes()

	return srv
}

// Engine returns the underlying Gin engine (for http.Server).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr returns the configured address.
func (s *Server) Addr() string {
	return s.config.Addr
}

// Serve listens on the configured address until ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx ends, then shuts down gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	s.log.Info("http api listening", "addr", ln.Addr().String())
	if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	s.log.Info("http api stopped")
	return nil
}
