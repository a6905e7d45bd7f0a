package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/qapulse/internal/domain"
	"github.com/pscheid92/qapulse/internal/platform/correlation"
	apperrors "github.com/pscheid92/qapulse/internal/platform/errors"
)

const (
	actorKey             = "actor"
	correlationIDHeader  = "X-Correlation-ID"
	bearerPrefix         = "bearer "
	maxCorrelationIDSize = 64
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(correlationIDHeader)
		if id == "" || len(id) > maxCorrelationIDSize {
			id = correlation.NewID()
		}
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlationIDHeader, id)
		return next(c)
	}
}

// optionalAuth attaches the caller when a bearer token is sent. A request
// without one proceeds anonymously; a bad token is rejected.
func (s *Server) optionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := bearerToken(c)
		if !ok {
			return next(c)
		}
		if err := s.attachActor(c, token); err != nil {
			return err
		}
		return next(c)
	}
}

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := bearerToken(c)
		if !ok {
			return domain.ErrUnauthenticated
		}
		if err := s.attachActor(c, token); err != nil {
			return err
		}
		return next(c)
	}
}

func (s *Server) attachActor(c echo.Context, token string) error {
	actor, err := s.app.Authenticate(c.Request().Context(), token)
	if err != nil {
		return err
	}
	c.Set(actorKey, actor)
	return nil
}

func actorFrom(c echo.Context) *domain.Actor {
	actor, _ := c.Get(actorKey).(*domain.Actor)
	return actor
}

func bearerToken(c echo.Context) (string, bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			// Echo errors not already translated go to echo's own handler.
			var structuredErr *apperrors.Error
			var httpErr *echo.HTTPError
			if !errors.As(err, &structuredErr) && errors.As(err, &httpErr) {
				return err
			}

			return HandleError(c, err)
		}
	}
}

// translateDomainError maps domain failures onto client-facing errors. Unknown
// errors pass through and become internal errors.
func translateDomainError(err error) error {
	switch {
	case errors.Is(err, domain.ErrQuestionNotFound):
		return apperrors.NotFoundError("question not found").Wrap(err)
	case errors.Is(err, domain.ErrUserNotFound):
		return apperrors.NotFoundError("user not found").Wrap(err)
	case errors.Is(err, domain.ErrUnauthenticated):
		return apperrors.UnauthorizedError("could not validate credentials").Wrap(err)
	case errors.Is(err, domain.ErrBadCredentials):
		return apperrors.UnauthorizedError(domain.ErrBadCredentials.Error()).Wrap(err)
	case errors.Is(err, domain.ErrForbidden):
		return apperrors.ForbiddenError("not enough permissions").Wrap(err)
	case errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrMissingField):
		return apperrors.ValidationError(err.Error()).Wrap(err)
	case errors.Is(err, domain.ErrUserExists):
		return apperrors.ConflictError(domain.ErrUserExists.Error()).Wrap(err)
	default:
		return err
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if actor := actorFrom(c); actor != nil {
		attrs = append(attrs, "user_id", actor.UserID)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeUnauthorized, apperrors.TypeForbidden:
		slog.InfoContext(ctx, "Access denied", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	structuredErr := apperrors.AsStructuredError(translateDomainError(err))
	logError(c, structuredErr)
	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}
