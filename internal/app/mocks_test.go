package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/qapulse/internal/adapter/metrics"
	"github.com/pscheid92/qapulse/internal/domain"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

func (p *recordingPublisher) waitForEvents(t *testing.T, n int) []domain.Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(p.Events()) >= n }, 2*time.Second, 5*time.Millisecond)
	return p.Events()
}

type mockClassifier struct {
	mu         sync.Mutex
	calls      int
	classifyFn func(ctx context.Context, text string) (string, error)
}

func (m *mockClassifier) Classify(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.classifyFn != nil {
		return m.classifyFn(ctx, text)
	}
	return "Neutral", nil
}

func (m *mockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockSuggester struct {
	suggestFn func(ctx context.Context, question string) (string, error)
}

func (m *mockSuggester) Suggest(ctx context.Context, question string) (string, error) {
	if m.suggestFn != nil {
		return m.suggestFn(ctx, question)
	}
	return "", fmt.Errorf("not implemented")
}

type enqueued struct {
	questionID int64
	content    string
}

type mockEnqueuer struct {
	mu    sync.Mutex
	tasks []enqueued
}

func (m *mockEnqueuer) Enqueue(_ context.Context, questionID int64, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, enqueued{questionID, content})
}

type mockTokens struct {
	issueFn  func(user *domain.User) (string, error)
	verifyFn func(token string) (*domain.Actor, error)
}

func (m *mockTokens) Issue(user *domain.User) (string, error) {
	if m.issueFn != nil {
		return m.issueFn(user)
	}
	return fmt.Sprintf("token-%d", user.ID), nil
}

func (m *mockTokens) Verify(token string) (*domain.Actor, error) {
	if m.verifyFn != nil {
		return m.verifyFn(token)
	}
	return nil, fmt.Errorf("not implemented")
}

// mockQuestionRepo delegates to fallback unless a func field overrides the call.
type mockQuestionRepo struct {
	fallback          domain.QuestionRepository
	createFn          func(ctx context.Context, q *domain.Question) (*domain.Question, error)
	settleSentimentFn func(ctx context.Context, id int64, sentiment domain.Sentiment) (bool, error)
}

func (m *mockQuestionRepo) Create(ctx context.Context, q *domain.Question) (*domain.Question, error) {
	if m.createFn != nil {
		return m.createFn(ctx, q)
	}
	return m.fallback.Create(ctx, q)
}

func (m *mockQuestionRepo) GetByID(ctx context.Context, id int64) (*domain.Question, error) {
	return m.fallback.GetByID(ctx, id)
}

func (m *mockQuestionRepo) List(ctx context.Context, offset, limit int) ([]domain.Question, error) {
	return m.fallback.List(ctx, offset, limit)
}

func (m *mockQuestionRepo) UpdateStatus(ctx context.Context, id int64, status domain.QuestionStatus) (*domain.Question, error) {
	return m.fallback.UpdateStatus(ctx, id, status)
}

func (m *mockQuestionRepo) SettleSentiment(ctx context.Context, id int64, sentiment domain.Sentiment) (bool, error) {
	if m.settleSentimentFn != nil {
		return m.settleSentimentFn(ctx, id, sentiment)
	}
	return m.fallback.SettleSentiment(ctx, id, sentiment)
}

func (m *mockQuestionRepo) ListUnsettled(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Question, error) {
	return m.fallback.ListUnsettled(ctx, createdBefore, limit)
}

type mockLock struct {
	mu         sync.Mutex
	acquire    bool
	acquireErr error
	released   int
}

func (m *mockLock) TryAcquire(context.Context) (bool, error) {
	return m.acquire, m.acquireErr
}

func (m *mockLock) Release(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released++
	return nil
}

func newEnrichmentMetrics() *metrics.EnrichmentMetrics {
	return metrics.NewEnrichmentMetrics(prometheus.NewRegistry())
}

var (
	guest = &domain.Actor{UserID: 100, Username: "guest", Role: domain.RoleGuest}
	admin = &domain.Actor{UserID: 1, Username: "admin", Role: domain.RoleAdmin}
)

func statusUpdate(t *testing.T, event domain.Event) domain.StatusUpdateData {
	t.Helper()
	require.Equal(t, domain.EventStatusUpdate, event.Type)
	data, ok := event.Data.(domain.StatusUpdateData)
	require.True(t, ok, "unexpected payload %T", event.Data)
	return data
}
