package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
)

const maxInboundMessageSize = 4096

// handleWebSocket upgrades a viewer and hands the connection to the registry,
// which owns all writes. This goroutine only drains inbound frames so control
// frames are processed and a client close is noticed.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		slog.DebugContext(c.Request().Context(), "WebSocket upgrade failed", "error", err)
		return nil
	}

	if err := s.registry.Register(conn); err != nil {
		slog.WarnContext(c.Request().Context(), "WebSocket registration rejected", "remote_addr", c.RealIP(), "error", err)
		// A timed-out registration may still be applied later.
		s.registry.Unregister(conn)
		return nil
	}
	defer s.registry.Unregister(conn)

	conn.SetReadLimit(maxInboundMessageSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}
