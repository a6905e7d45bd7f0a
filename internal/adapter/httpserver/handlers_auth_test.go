package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/qapulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func formHeaders() map[string]string {
	return map[string]string{echo.HeaderContentType: echo.MIMEApplicationForm}
}

func TestRegister(t *testing.T) {
	app := &mockAppService{
		registerFn: func(_ context.Context, username, email, password string) (*domain.User, error) {
			assert.Equal(t, "s3cret", password)
			return &domain.User{ID: 9, Username: username, Email: email, PasswordHash: "$2a$hash", Role: domain.RoleGuest}, nil
		},
	}
	srv := newTestServer(t, app)

	rec := doRequest(t, srv, http.MethodPost, "/auth/register",
		strings.NewReader(`{"username":"dana","email":"dana@example.com","password":"s3cret"}`), jsonHeaders(""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":9,"username":"dana","email":"dana@example.com","role":"guest"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "hash")
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"duplicate", domain.ErrUserExists, http.StatusConflict},
		{"missing field", domain.ErrMissingField, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := &mockAppService{
				registerFn: func(context.Context, string, string, string) (*domain.User, error) {
					return nil, tt.serviceErr
				},
			}
			srv := newTestServer(t, app)

			rec := doRequest(t, srv, http.MethodPost, "/auth/register",
				strings.NewReader(`{"username":"dana","email":"dana@example.com","password":"x"}`), jsonHeaders(""))

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestToken(t *testing.T) {
	app := &mockAppService{
		loginFn: func(_ context.Context, username, password string) (string, error) {
			if username == "dana" && password == "s3cret" {
				return "signed.jwt.token", nil
			}
			return "", domain.ErrBadCredentials
		},
	}
	srv := newTestServer(t, app)

	t.Run("valid credentials", func(t *testing.T) {
		form := url.Values{"username": {"dana"}, "password": {"s3cret"}}
		rec := doRequest(t, srv, http.MethodPost, "/auth/token", strings.NewReader(form.Encode()), formHeaders())

		require.Equal(t, http.StatusOK, rec.Code)
		var resp tokenResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "signed.jwt.token", resp.AccessToken)
		assert.Equal(t, "bearer", resp.TokenType)
		assert.Equal(t, "no-store", rec.Header().Get(echo.HeaderCacheControl))
	})

	t.Run("bad credentials", func(t *testing.T) {
		form := url.Values{"username": {"dana"}, "password": {"wrong"}}
		rec := doRequest(t, srv, http.MethodPost, "/auth/token", strings.NewReader(form.Encode()), formHeaders())

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, domain.ErrBadCredentials.Error(), decodeError(t, rec.Body.Bytes()).Error)
	})

	t.Run("missing password", func(t *testing.T) {
		form := url.Values{"username": {"dana"}}
		rec := doRequest(t, srv, http.MethodPost, "/auth/token", strings.NewReader(form.Encode()), formHeaders())

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
