package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/qapulse/internal/domain"
	apperrors "github.com/pscheid92/qapulse/internal/platform/errors"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       int64       `json:"id"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     domain.Role `json:"role"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").Wrap(err)
	}

	user, err := s.app.Register(c.Request().Context(), req.Username, req.Email, req.Password)
	if err != nil {
		return err
	}

	resp := userResponse{ID: user.ID, Username: user.Username, Email: user.Email, Role: user.Role}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write user response: %w", err)
	}
	return nil
}

// handleToken implements the OAuth2 password grant form exchange.
func (s *Server) handleToken(c echo.Context) error {
	username := c.FormValue("username")
	password := c.FormValue("password")
	if username == "" || password == "" {
		return apperrors.ValidationError("username and password are required")
	}

	token, err := s.app.Login(c.Request().Context(), username, password)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	if err := c.JSON(http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"}); err != nil {
		return fmt.Errorf("failed to write token response: %w", err)
	}
	return nil
}
