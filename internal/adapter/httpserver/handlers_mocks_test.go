package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/qapulse/internal/domain"
	"github.com/pscheid92/qapulse/internal/platform/config"
)

// --- Mock implementations ---

type mockAppService struct {
	createQuestionFn func(ctx context.Context, actor *domain.Actor, content string, anonymous bool) (*domain.Question, error)
	answerQuestionFn func(ctx context.Context, actor *domain.Actor, questionID int64, content string) (*domain.Answer, error)
	updateStatusFn   func(ctx context.Context, actor *domain.Actor, questionID int64, status string) (*domain.Question, error)
	listQuestionsFn  func(ctx context.Context, offset, limit int) ([]domain.QuestionWithAnswers, error)
	suggestAnswerFn  func(ctx context.Context, actor *domain.Actor, questionID int64) (string, error)
	registerFn       func(ctx context.Context, username, email, password string) (*domain.User, error)
	loginFn          func(ctx context.Context, username, password string) (string, error)
	authenticateFn   func(ctx context.Context, token string) (*domain.Actor, error)
}

func (m *mockAppService) CreateQuestion(ctx context.Context, actor *domain.Actor, content string, anonymous bool) (*domain.Question, error) {
	if m.createQuestionFn != nil {
		return m.createQuestionFn(ctx, actor, content, anonymous)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) AnswerQuestion(ctx context.Context, actor *domain.Actor, questionID int64, content string) (*domain.Answer, error) {
	if m.answerQuestionFn != nil {
		return m.answerQuestionFn(ctx, actor, questionID, content)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) UpdateStatus(ctx context.Context, actor *domain.Actor, questionID int64, status string) (*domain.Question, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, actor, questionID, status)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) ListQuestions(ctx context.Context, offset, limit int) ([]domain.QuestionWithAnswers, error) {
	if m.listQuestionsFn != nil {
		return m.listQuestionsFn(ctx, offset, limit)
	}
	return nil, nil
}

func (m *mockAppService) SuggestAnswer(ctx context.Context, actor *domain.Actor, questionID int64) (string, error) {
	if m.suggestAnswerFn != nil {
		return m.suggestAnswerFn(ctx, actor, questionID)
	}
	return "", errors.New("not implemented")
}

func (m *mockAppService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, username, email, password)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) Login(ctx context.Context, username, password string) (string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return "", domain.ErrBadCredentials
}

func (m *mockAppService) Authenticate(ctx context.Context, token string) (*domain.Actor, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, token)
	}
	switch token {
	case adminToken:
		return adminActor, nil
	case guestToken:
		return guestActor, nil
	default:
		return nil, domain.ErrUnauthenticated
	}
}

type mockRegistry struct {
	registerFn func(conn *websocket.Conn) error
	registered chan *websocket.Conn
	released   chan *websocket.Conn
	clients    int
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{
		registered: make(chan *websocket.Conn, 4),
		released:   make(chan *websocket.Conn, 4),
	}
}

func (m *mockRegistry) Register(conn *websocket.Conn) error {
	if m.registerFn != nil {
		if err := m.registerFn(conn); err != nil {
			return err
		}
	}
	m.registered <- conn
	return nil
}

func (m *mockRegistry) Unregister(conn *websocket.Conn) {
	_ = conn.Close()
	m.released <- conn
}

func (m *mockRegistry) ClientCount() int {
	return m.clients
}

// --- Fixtures ---

const (
	adminToken = "admin-token"
	guestToken = "guest-token"
)

var (
	adminActor = &domain.Actor{UserID: 1, Username: "admin", Role: domain.RoleAdmin}
	guestActor = &domain.Actor{UserID: 7, Username: "guest", Role: domain.RoleGuest}
	fixedTime  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type testServerOption func(*Server)

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(s *Server) { s.healthChecks = checks }
}

func withRegistry(r connectionRegistry) testServerOption {
	return func(s *Server) { s.registry = r }
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "development",
		Port:                    "0",
		JWTSecret:               strings.Repeat("s", 32),
		TokenTTL:                30 * time.Minute,
		MaxWebSocketConnections: 10,
		CORSAllowOrigins:        "https://qa.example.com",
		AuthRateLimit:           100,
	}
}

func newTestServer(t *testing.T, app appService, opts ...testServerOption) *Server {
	t.Helper()
	srv := NewServer(testConfig(), app, newMockRegistry(), prometheus.NewRegistry(), nil, clockwork.NewFakeClockAt(fixedTime))
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// doRequest runs a request through the full middleware chain.
func doRequest(t *testing.T, srv *Server, method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func jsonHeaders(token string) map[string]string {
	h := map[string]string{echo.HeaderContentType: echo.MIMEApplicationJSON}
	if token != "" {
		h[echo.HeaderAuthorization] = "Bearer " + token
	}
	return h
}

func authHeader(token string) map[string]string {
	return map[string]string{echo.HeaderAuthorization: "Bearer " + token}
}
