package web

import (
	"embed"
	"html/template"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer is a custom html/template renderer for Echo framework
type TemplateRenderer struct {
	templates *template.Template
}

// Render renders a template document
func (t *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

func (s *Server) RegisterRoutes() {
	s.Use(middleware.Recover())
	s.Use(LoggerMiddleware)

	s.Renderer = &TemplateRenderer{
		templates: template.Must(template.ParseFS(templatesFS, "templates/*.html")),
	}

	s.GET("/", s.indexHandler)
	s.GET("/health", s.healthHandler)
	s.GET("/api/metrics", s.metricsHandler)

	plans := s.Group("")
	if s.opts.RateLimitRPS > 0 {
		plans.Use(RateLimiter(s.opts.RateLimitRPS))
	}
	plans.POST("/api/plan", s.planHandler)
	plans.GET("/ws/plan", s.planSocketHandler)
}

// LoggerMiddleware tags every request with an id and puts a request-scoped
// logger in both the Echo context and the request context.
func LoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		requestID := req.Header.Get(echo.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Response().Header().Set(echo.HeaderXRequestID, requestID)

		logger := log.With().Str("request_id", requestID).Logger()
		c.Set("logger", &logger)
		c.SetRequest(req.WithContext(logger.WithContext(req.Context())))

		// Resolve the error here so the logged status is the one sent.
		if err := next(c); err != nil {
			c.Error(err)
		}
		logger.Info().
			Str("method", req.Method).
			Str("path", c.Path()).
			Int("status", c.Response().Status).
			Str("remote_ip", c.RealIP()).
			Msg("request")
		return nil
	}
}

// RateLimiter limits requests per client IP with a token bucket.
func RateLimiter(rps float64) echo.MiddlewareFunc {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:  rate.Limit(rps),
			Burst: burst,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			loggerFrom(c).Warn().Str("ip", identifier).Msg("rate limit exceeded")
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, please try again later")
		},
	})
}

func loggerFrom(c echo.Context) *zerolog.Logger {
	if l, ok := c.Get("logger").(*zerolog.Logger); ok {
		return l
	}
	return &log.Logger
}
