package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pbaille/moods/internal/journal"
	"github.com/pbaille/moods/internal/logger"
)

// shutdownTimeout bounds how long in-flight requests may take once Run is cancelled
const shutdownTimeout = 10 * time.Second

// Server handles HTTP requests for the mood journal API
type Server struct {
	journal   *journal.Journal
	analytics *journal.Analytics
	log       *logger.Logger
	addr      string
	echo      *echo.Echo
}

// New creates a new API server
func New(j *journal.Journal, a *journal.Analytics, addr string, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	s := &Server{
		journal:   j,
		analytics: a,
		log:       log.WithComponent("api"),
		addr:      addr,
	}
	s.echo = s.setupEcho()
	return s
}

// Handler exposes the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = 10 * time.Second
	// No read or write timeouts: websocket connections are long-lived.
	e.Server.IdleTimeout = 120 * time.Second

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID)
			return nil
		},
	}))

	s.registerRoutes(e)
	return e
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/health", s.health)

	// Entries
	entries := e.Group("/entries")
	{
		entries.GET("", s.listEntries)
		entries.POST("", s.addEntry)
		entries.GET("/latest", s.latestEntry)
		entries.GET("/:id", s.getEntry)
	}

	e.GET("/search", s.searchEntries)

	// Tags
	tags := e.Group("/tags")
	{
		tags.GET("", s.listTags)
		tags.POST("", s.resolveTag)
	}

	e.GET("/analytics", s.getAnalytics)
	e.GET("/stats", s.getStats)

	// Live projections
	ws := e.Group("/ws")
	{
		ws.GET("/entries", s.streamEntries)
		ws.GET("/tags", s.streamTags)
		ws.GET("/analytics", s.streamAnalytics)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	serverErrors := make(chan error, 1)
	go func() {
		s.log.Info("api listening", "addr", s.addr)
		serverErrors <- s.echo.Start(s.addr)
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		s.log.Info("shutting down api")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			s.log.Error("graceful shutdown failed", "error", err)
			return s.echo.Close()
		}
		s.log.Info("api stopped")
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
