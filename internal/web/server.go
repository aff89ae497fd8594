/*
Package web serves the plan form, the JSON API and the live status
WebSocket over Echo.
*/
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"smart-health/internal/metrics"
	"smart-health/internal/planner"
)

// PlanService is what the handlers need from the application.
type PlanService interface {
	GeneratePlan(ctx context.Context, profile planner.Profile, report planner.StatusFunc) (*planner.PlanResult, error)
	Usage(ctx context.Context, days int) ([]metrics.DailyUsage, []metrics.ModelUsage, error)
	Health() metrics.SysHealth
}

// Options tunes the HTTP front end.
type Options struct {
	Port string
	// RateLimitRPS bounds plan requests per client IP. Zero disables the limiter.
	RateLimitRPS float64
}

// Server defines the configuration and dependencies for the HTTP service.
type Server struct {
	svc  PlanService
	opts Options

	// Echo is the underlying web framework instance.
	*echo.Echo
}

// NewServer builds the Echo instance and registers every route.
func NewServer(svc PlanService, opts Options) *Server {
	if opts.Port == "" {
		opts.Port = "8080"
	}
	s := &Server{svc: svc, opts: opts, Echo: echo.New()}
	s.HideBanner = true
	s.HidePort = true
	s.RegisterRoutes()
	return s
}

// Mount exposes an extra handler, such as a bot webhook, under path.
func (s *Server) Mount(path string, h http.Handler) {
	s.Any(path, echo.WrapHandler(h))
}

// HTTPServer wraps the router in an http.Server with production timeouts.
// WriteTimeout is generous because a plan may wait out several backoffs.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", s.opts.Port),
		Handler:           s,
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}
}
