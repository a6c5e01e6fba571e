package web

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aluiziolira/keiba-shutuba/logger"
)

// NewServer wires the routes of h onto a fresh echo instance. A nil
// gatherer leaves /metrics unregistered.
func NewServer(h *Handler, gatherer prometheus.Gatherer, log *zap.Logger) *echo.Echo {
	log = logger.OrNop(log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.Int("status", v.Status),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			switch {
			case v.Status >= 500:
				log.Error("http request", fields...)
			case v.Status >= 400:
				log.Warn("http request", fields...)
			default:
				log.Info("http request", fields...)
			}
			return nil
		},
	}))
	e.Use(echomw.Recover())

	e.GET("/", h.Index)
	e.POST("/shutuba", h.Generate)
	e.GET("/api/entries", h.Entries)
	e.GET("/healthz", h.Health)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return e
}
