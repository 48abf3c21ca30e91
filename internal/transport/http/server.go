// Package http provides the HTTP server implementation for the replay service.
package http

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/xiaot623/gogo/replay/internal/config"
	"github.com/xiaot623/gogo/replay/internal/hub"
	"github.com/xiaot623/gogo/replay/internal/service"
	v1 "github.com/xiaot623/gogo/replay/internal/transport/http/v1"
)

// NewServer creates and configures the replay HTTP server.
func NewServer(svc *service.Service, h *hub.Hub, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(ParseLogLevel(cfg.LogLevel))

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Register Routes
	v1.NewHandler(svc, h, cfg).RegisterRoutes(e)

	return e
}

// ParseLogLevel maps LOG_LEVEL onto echo's logger levels. Unknown values
// fall back to INFO.
func ParseLogLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}
