// Package diag implements the C1 diagnostics server (SPEC_FULL.md §B):
// a JSON-only HTTP surface exposing `/healthz`, `/metrics`, and
// `/debug/state`, explicitly not a user-facing web UI (spec §1's web-UI
// Non-goal is untouched — no templates, no HTML, every response is
// application/json or the Prometheus exposition format). Grounded on the
// teacher's applications/httpapi package, which builds its mux the same
// way (a slice of routes mounted onto an engine) but never actually
// imports gin; this package activates the teacher's dormant
// gin-gonic/gin dependency since a real request router belongs to a
// second, independent HTTP surface in this daemon distinct from C5's
// tmux control plane.
package diag

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orchestratord/orchestratord/internal/health"
	"github.com/orchestratord/orchestratord/internal/metrics"
	"github.com/orchestratord/orchestratord/internal/obslog"
	"github.com/orchestratord/orchestratord/internal/statefile"
	"github.com/orchestratord/orchestratord/internal/trust"
)

// StateProvider supplies the read-only views /debug/state renders.
// Implemented directly by the supervisor, kept as a narrow interface
// here so this package never imports the supervisor (which depends on
// diag, not the other way around).
type StateProvider interface {
	StateSnapshot() statefile.State
	LastHealth() health.CheckAllResult
	TrustSummaries(ctx context.Context) ([]trust.Summary, error)
}

// Server is the diagnostics HTTP surface. Implements system.Service.
type Server struct {
	addr     string
	provider StateProvider
	log      *obslog.Logger
	srv      *http.Server
}

// NewServer builds a Server bound to addr (e.g. "127.0.0.1:9091", spec's
// default per SPEC_FULL.md's config overlay).
func NewServer(addr string, provider StateProvider, log *obslog.Logger) *Server {
	return &Server{addr: addr, provider: provider, log: log}
}

func (s *Server) Name() string { return "diag.Server" }

// Start builds the gin engine and begins serving in the background.
// Per spec's JSON-only constraint, gin.New() is used rather than
// gin.Default() so no HTML-rendering middleware is ever registered.
func (s *Server) Start(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	engine.GET("/debug/state", s.handleDebugState)

	s.srv = &http.Server{Addr: s.addr, Handler: engine}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.log != nil {
				s.log.WithError(err).Error("diagnostics server exited")
			}
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	last := s.provider.LastHealth()
	status := http.StatusOK
	if last.CorrelatedFailure {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"downServices":      last.DownServices,
		"correlatedFailure": last.CorrelatedFailure,
	})
}

func (s *Server) handleDebugState(c *gin.Context) {
	snap := s.provider.StateSnapshot()
	trustSummaries, err := s.provider.TrustSummaries(c.Request.Context())
	if err != nil {
		trustSummaries = nil
	}
	c.JSON(http.StatusOK, gin.H{
		"lastScan":             snap.LastScan,
		"lastDigest":           snap.LastDigest,
		"runtimeAutonomyLevel": snap.RuntimeAutonomyLevel,
		"stateVersion":         snap.StateVersion,
		"recentDecisions":      snap.AIDecisionHistory,
		"recentExecutions":     snap.ExecutionHistory,
		"recentEvaluations":    snap.EvaluationHistory,
		"healthRestartHistory": snap.HealthRestartHistory,
		"trust":                trustSummaries,
	})
}
