// Package api serves the read-mostly HTTP surface over the run index:
// a health endpoint, run listings and lookups, and a synchronous
// run-submission endpoint.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/triadworks/triad/pkg/database"
	"github.com/triadworks/triad/pkg/fault"
	"github.com/triadworks/triad/pkg/models"
	"github.com/triadworks/triad/pkg/pipeline"
	"github.com/triadworks/triad/pkg/services"
	"github.com/triadworks/triad/pkg/version"
)

// Runner executes one pipeline run. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, issue *models.Issue, opts pipeline.RunOptions) (*pipeline.RunState, error)
}

// Server is the HTTP API server.
type Server struct {
	db     *database.Client
	runs   *services.RunService
	runner Runner
	logger *slog.Logger
}

// NewServer wires the HTTP API.
func NewServer(db *database.Client, runs *services.RunService, runner Runner) *Server {
	return &Server{
		db:     db,
		runs:   runs,
		runner: runner,
		logger: slog.Default().With("component", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.health)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/runs", s.createRun)
		v1.GET("/runs", s.listRuns)
		v1.GET("/runs/:id", s.getRun)
		v1.GET("/runs/:id/result", s.getResult)
	}
	return router
}

// Listen serves the API until ctx is canceled, then shuts down
// gracefully with a drain timeout.
func (s *Server) Listen(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("HTTP API shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	if err := s.db.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"version": version.Full(),
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": version.Full(),
	})
}

// statusFor maps error kinds to HTTP statuses.
func statusFor(err error) int {
	switch fault.KindOf(err) {
	case fault.KindInvalidInput:
		return http.StatusBadRequest
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindUpstreamFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) renderError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"error": err.Error(),
		"kind":  fault.KindOf(err),
	})
}
