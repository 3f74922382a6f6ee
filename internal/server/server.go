// Package server exposes the REST API, the live websocket feed, and the
// operational endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rish-kun/alphastream/config"
	"github.com/rish-kun/alphastream/internal/metrics"
)

// Server wires the echo instance to its dependencies.
type Server struct {
	echo   *echo.Echo
	store  APIStore
	runner TaskSubmitter
	hub    *Hub
	met    *metrics.Set
	logger *log.Logger
}

func New(st APIStore, runner TaskSubmitter, hub *Hub, met *metrics.Set) *Server {
	s := &Server{
		store:  st,
		runner: runner,
		hub:    hub,
		met:    met,
		logger: log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}
	s.echo = s.buildEcho()
	return s
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", s.handleHealthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/ws", echo.WrapHandler(http.HandlerFunc(s.hub.Handle)))

	api := e.Group("/api")
	research := api.Group("/research")
	research.POST("/stock/:ticker", s.handleResearchStock)
	research.POST("/portfolio/:id", s.handleResearchPortfolio)
	research.POST("/topic", s.handleResearchTopic)
	research.GET("/status/:task_id", s.handleResearchStatus)

	api.GET("/news/latest", s.handleLatestNews)
	stocks := api.Group("/stocks")
	stocks.GET("/:ticker/metrics", s.handleStockMetrics)
	stocks.GET("/:ticker/sentiment", s.handleStockSentiment)

	return e
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, cfg config.ServerConfig) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(cfg.Address)
	}()
	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		return s.echo.Shutdown(context.Background())
	}
}

// Echo exposes the underlying instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealthz(c echo.Context) error {
	if pinger, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		if err := pinger.Ping(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "database unreachable")
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}
