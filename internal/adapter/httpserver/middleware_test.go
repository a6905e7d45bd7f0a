package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/qapulse/internal/domain"
	"github.com/pscheid92/qapulse/internal/platform/correlation"
	apperrors "github.com/pscheid92/qapulse/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareWithStructuredError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return apperrors.ValidationError("invalid input").WithField("field", "content")
	})

	err := handler(c)
	require.NoError(t, err) // ErrorHandlingMiddleware handles the error, doesn't return it

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid input", resp.Error)
	assert.Equal(t, apperrors.TypeValidation, resp.Type)
	assert.Equal(t, "content", resp.Context["field"])
}

func TestMiddlewareWithStandardError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return errors.New("standard error")
	})

	err := handler(c)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, apperrors.TypeInternal, resp.Type)
}

func TestMiddlewareWithNoError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "success")
	})

	err := handler(c)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", rec.Body.String())
}

func TestMiddlewarePassesEchoErrorsThrough(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return echo.ErrMethodNotAllowed
	})

	err := handler(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusMethodNotAllowed, httpErr.Code)
}

func TestMiddlewareTranslatesDomainErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   apperrors.ErrorType
	}{
		{"question not found", domain.ErrQuestionNotFound, http.StatusNotFound, apperrors.TypeNotFound},
		{"user not found", domain.ErrUserNotFound, http.StatusNotFound, apperrors.TypeNotFound},
		{"unauthenticated", domain.ErrUnauthenticated, http.StatusUnauthorized, apperrors.TypeUnauthorized},
		{"bad credentials", domain.ErrBadCredentials, http.StatusUnauthorized, apperrors.TypeUnauthorized},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, apperrors.TypeForbidden},
		{"empty content", domain.ErrEmptyContent, http.StatusBadRequest, apperrors.TypeValidation},
		{"invalid status", domain.ErrInvalidStatus, http.StatusBadRequest, apperrors.TypeValidation},
		{"missing field", domain.ErrMissingField, http.StatusBadRequest, apperrors.TypeValidation},
		{"user exists", domain.ErrUserExists, http.StatusConflict, apperrors.TypeConflict},
		{"wrapped", fmt.Errorf("failed to load question: %w", domain.ErrQuestionNotFound), http.StatusNotFound, apperrors.TypeNotFound},
		{"external", apperrors.ExternalError("classifier failed", errors.New("timeout")), http.StatusBadGateway, apperrors.TypeExternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
				return tt.err
			})

			err := handler(c)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp apperrors.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantType, resp.Type)
		})
	}
}

func TestHandleErrorWithNil(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := HandleError(c, nil)
	assert.NoError(t, err)
	assert.Zero(t, rec.Body.Len())
}

func TestCorrelationMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when absent", "", false},
		{"propagated when sent", "req-123", true},
		{"replaced when oversized", string(make([]byte, maxCorrelationIDSize+1)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.incoming != "" {
				req.Header.Set(correlationIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var seen string
			handler := correlationMiddleware(func(c echo.Context) error {
				seen, _ = correlation.ID(c.Request().Context())
				return nil
			})

			require.NoError(t, handler(c))
			require.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get(correlationIDHeader))
			if tt.keep {
				assert.Equal(t, tt.incoming, seen)
			} else {
				assert.NotEqual(t, tt.incoming, seen)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer abc.def", "abc.def", true},
		{"bearer abc.def", "abc.def", true},
		{"BEARER   abc.def  ", "abc.def", true},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			got, ok := bearerToken(c)

			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequireAuth(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	tests := []struct {
		name      string
		token     string
		wantErr   error
		wantActor *domain.Actor
	}{
		{"missing", "", domain.ErrUnauthenticated, nil},
		{"invalid", "forged", domain.ErrUnauthenticated, nil},
		{"guest", guestToken, nil, guestActor},
		{"admin", adminToken, nil, adminActor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.token != "" {
				req.Header.Set(echo.HeaderAuthorization, "Bearer "+tt.token)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			var got *domain.Actor
			called := false
			err := srv.requireAuth(func(c echo.Context) error {
				called = true
				got = actorFrom(c)
				return nil
			})(c)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.False(t, called)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantActor, got)
		})
	}
}

func TestOptionalAuth_NoTokenIsAnonymous(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/questions", nil), httptest.NewRecorder())

	called := false
	err := srv.optionalAuth(func(c echo.Context) error {
		called = true
		assert.Nil(t, actorFrom(c))
		return nil
	})(c)

	require.NoError(t, err)
	assert.True(t, called)
}
