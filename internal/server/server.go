// Package server exposes the operator HTTP API: orphan reports, recovery
// transaction creation and health.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stocksync/internal/core/apperror"
	"stocksync/internal/domain/orphan"
	"stocksync/internal/domain/recovery"
	"stocksync/pkg/logger"
)

// Pinger is the health probe dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the HTTP layer.
type Server struct {
	engine   *gin.Engine
	http     *http.Server
	detector *orphan.Detector
	builder  *recovery.Builder
	db       Pinger
	log      *logger.Logger
}

// New builds the server and its routes.
func New(
	port string,
	detector *orphan.Detector,
	builder *recovery.Builder,
	db Pinger,
	development bool,
	log *logger.Logger,
) *Server {
	if !development {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	s := &Server{
		engine:   engine,
		detector: detector,
		builder:  builder,
		db:       db,
		log:      log.WithComponent("http"),
	}

	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())

	engine.GET("/healthz", s.handleHealth)

	api := engine.Group("/api/v1")
	{
		api.GET("/orphans", s.handleOrphans)
		api.POST("/recoveries", s.handleCreateRecovery)
	}

	s.http = &http.Server{
		Addr:              ":" + port,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Infow("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestLogger logs each request with latency and status.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Infow("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleOrphans runs an orphan scan. An optional since query parameter
// (RFC 3339) overrides the default 30 day cutoff.
func (s *Server) handleOrphans(c *gin.Context) {
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.renderError(c, apperror.NewValidation("since must be RFC 3339").
				WithDetail("since", raw))
			return
		}
		since = &t
	}

	report, err := s.detector.FindOrphans(c.Request.Context(), since)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// handleCreateRecovery creates a recovery transaction for orphaned units.
// The builder returns a structured result; failures come back as 422 with
// the collected errors rather than a bare error string.
func (s *Server) handleCreateRecovery(c *gin.Context) {
	var req recovery.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, apperror.NewValidation("invalid request body").
			WithDetail("error", err.Error()))
		return
	}

	result := s.builder.CreateRecoveryTransaction(c.Request.Context(), req)
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// renderError maps domain errors to HTTP responses.
func (s *Server) renderError(c *gin.Context, err error) {
	status := apperror.GetHTTPStatus(err)

	if appErr, ok := apperror.AsAppError(err); ok {
		c.JSON(status, gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
			"details": appErr.Details,
		})
		return
	}

	s.log.Errorw("unhandled error", "error", err)
	c.JSON(status, gin.H{"code": "internal", "message": "internal error"})
}
