// Package server exposes the converter over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pfrederiksen/canyon-gpx/internal/config"
	"github.com/pfrederiksen/canyon-gpx/internal/converter"
	"github.com/pfrederiksen/canyon-gpx/internal/logger"
	"github.com/pfrederiksen/canyon-gpx/internal/metrics"
)

const (
	gpxContentType = "application/gpx+xml; charset=utf-8"
	regionPath     = "/api/dc_to_gpx_lieu"

	// writeSlack is added to the region timeout for writing the response.
	writeSlack = 30 * time.Second
)

// Converter is the conversion pipeline served by the HTTP handlers
type Converter interface {
	Convert(ctx context.Context, req converter.Request) (*converter.Result, error)
	ConvertRegion(ctx context.Context, listingURL string) (*converter.Result, error)
}

// Server serves GPX conversions over HTTP
type Server struct {
	conv          Converter
	listingURL    string
	regionTimeout time.Duration
	debug         bool
	cfg           config.ServerConfig
}

// New creates a Server
func New(conv Converter, cfg *config.Config) *Server {
	return &Server{
		conv:          conv,
		listingURL:    cfg.Region.ListingURL,
		regionTimeout: cfg.Region.TimeoutDuration(),
		debug:         logger.ParseLevel(cfg.Log.Level) == logger.LevelDebug,
		cfg:           cfg.Server,
	}
}

// Router builds the gin engine with all routes
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), cors(), metrics.Middleware())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong", "status": "ok"})
	})
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	{
		api.GET("/dc_to_gpx", s.handleCanyon)
		api.GET("/generate-gpx", s.handleCanyon)
	}
	r.GET(regionPath, s.handleRegion)

	return r
}

// Handler wraps the router so the region route gets a write deadline of
// region.timeout instead of server.write_timeout.
func (s *Server) Handler() http.Handler {
	router := s.Router()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == regionPath {
			rc := http.NewResponseController(w)
			err := rc.SetWriteDeadline(time.Now().Add(s.regionTimeout + writeSlack))
			if err != nil && !errors.Is(err, http.ErrNotSupported) {
				logger.Warn("Cannot extend write deadline", logger.Fields{"error": err.Error()})
			}
		}
		router.ServeHTTP(w, r)
	})
}

// ginMode keeps gin's route and request debug output for debug logging only
func ginMode(debug bool) string {
	if debug {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	gin.SetMode(ginMode(s.debug))

	srv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", logger.Fields{"addr": srv.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listening on %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	logger.Info("Server shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (s *Server) handleCanyon(c *gin.Context) {
	req := converter.Request{
		ID:  c.Query("id"),
		URL: c.Query("url"),
	}

	result, err := s.conv.Convert(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, logger.Fields{"id": req.ID, "url": req.URL})
		return
	}
	writeGPX(c, result)
}

func (s *Server) handleRegion(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.regionTimeout)
	defer cancel()

	result, err := s.conv.ConvertRegion(ctx, s.listingURL)
	if err != nil {
		writeError(c, err, logger.Fields{"listing_url": s.listingURL})
		return
	}
	writeGPX(c, result)
}

func (s *Server) handleHealth(c *gin.Context) {
	snapshot, err := metrics.Snapshot()
	if err != nil {
		logger.Error("Gathering metrics failed", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"metrics": snapshot,
	})
}

func writeGPX(c *gin.Context, result *converter.Result) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", result.Filename))
	c.Data(http.StatusOK, gpxContentType, result.GPX)
}

// writeError maps pipeline errors to HTTP responses. Unexpected errors are
// logged and answered with a generic message.
func writeError(c *gin.Context, err error, fields logger.Fields) {
	switch {
	case errors.Is(err, converter.ErrInvalidInput):
		c.String(http.StatusBadRequest, "Invalid input: no valid canyon identifier given")
	case errors.Is(err, converter.ErrSourceUnavailable):
		c.String(http.StatusNotFound, "Topo not found")
	case errors.Is(err, converter.ErrNoWaypoints):
		c.String(http.StatusNotFound, "No waypoints found for this canyon")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("GPX generation timed out", fields)
		c.String(http.StatusGatewayTimeout, "GPX generation timed out")
	default:
		logger.Error("GPX generation failed", fields, err)
		c.String(http.StatusInternalServerError, "Failed to generate the GPX file")
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
