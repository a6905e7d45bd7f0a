package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/qapulse/internal/platform/version"
)

const (
	startupCheckTimeout   = 2 * time.Second
	readinessCheckTimeout = 5 * time.Second

	broadcastCheckName = "broadcast"
)

var errRegistryUnresponsive = errors.New("broadcast registry is not responding")

// HealthCheck is a named dependency check run by the startup and readiness endpoints.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthReport struct {
	Status      string            `json:"status"`
	Viewers     int               `json:"viewers"`
	Checks      map[string]string `json:"checks"`
	FailedCheck string            `json:"failed_check,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleStartup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), startupCheckTimeout)
	defer cancel()

	return s.writeHealthReport(c, s.runHealthChecks(ctx))
}

// handleLiveness reports uptime only; it checks no dependency.
func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status": "ok",
		"uptime": s.clock.Since(s.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessCheckTimeout)
	defer cancel()

	return s.writeHealthReport(c, s.runHealthChecks(ctx))
}

// runHealthChecks checks the broadcast registry and then every configured
// dependency. All checks run; the first failure is reported as failed_check.
func (s *Server) runHealthChecks(ctx context.Context) healthReport {
	report := healthReport{Status: "ready", Checks: make(map[string]string, len(s.healthChecks)+1)}

	fail := func(name string, err error) {
		slog.WarnContext(ctx, "Health check failed", "check", name, "error", err)
		report.Checks[name] = err.Error()
		if report.FailedCheck == "" {
			report.Status = "unhealthy"
			report.FailedCheck = name
			report.Error = err.Error()
		}
	}

	report.Viewers = s.registry.ClientCount()
	if report.Viewers < 0 {
		report.Viewers = 0
		fail(broadcastCheckName, errRegistryUnresponsive)
	} else {
		report.Checks[broadcastCheckName] = "ok"
	}

	for _, hc := range s.healthChecks {
		if err := hc.Check(ctx); err != nil {
			fail(hc.Name, err)
			continue
		}
		report.Checks[hc.Name] = "ok"
	}
	return report
}

func (s *Server) writeHealthReport(c echo.Context, report healthReport) error {
	status := http.StatusOK
	if report.FailedCheck != "" {
		status = http.StatusServiceUnavailable
	}
	if err := c.JSON(status, report); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
