package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/qapulse/internal/adapter/metrics"
	"github.com/pscheid92/qapulse/internal/domain"
	"github.com/pscheid92/qapulse/internal/platform/config"
)

type appService interface {
	CreateQuestion(ctx context.Context, actor *domain.Actor, content string, anonymous bool) (*domain.Question, error)
	AnswerQuestion(ctx context.Context, actor *domain.Actor, questionID int64, content string) (*domain.Answer, error)
	UpdateStatus(ctx context.Context, actor *domain.Actor, questionID int64, status string) (*domain.Question, error)
	ListQuestions(ctx context.Context, offset, limit int) ([]domain.QuestionWithAnswers, error)
	SuggestAnswer(ctx context.Context, actor *domain.Actor, questionID int64) (string, error)
	Register(ctx context.Context, username, email, password string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	Authenticate(ctx context.Context, token string) (*domain.Actor, error)
}

// connectionRegistry owns upgraded viewer connections until they are unregistered.
type connectionRegistry interface {
	Register(conn *websocket.Conn) error
	Unregister(conn *websocket.Conn)
	// ClientCount returns -1 when the registry does not answer.
	ClientCount() int
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app      appService
	registry connectionRegistry
	upgrader websocket.Upgrader

	httpMetrics    *metrics.HTTPMetrics
	metricsHandler http.Handler

	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time
}

func NewServer(cfg *config.Config, app appService, registry connectionRegistry, reg *prometheus.Registry, healthChecks []HealthCheck, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:     e,
		config:   cfg,
		app:      app,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     newCheckOrigin(cfg.AllowedOrigins(), !cfg.IsProduction()),
		},
		httpMetrics:    metrics.NewHTTPMetrics(reg),
		metricsHandler: metrics.Handler(reg),
		healthChecks:   healthChecks,
		clock:          clock,
		startTime:      clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Handler exposes the routed echo instance.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
