package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pscheid92/qapulse/internal/domain"
	"github.com/pscheid92/qapulse/internal/platform/auth"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 100

	SuggestionFallback = "Suggestion unavailable at this time."
)

type enrichmentQueue interface {
	Enqueue(ctx context.Context, questionID int64, content string)
}

type tokenService interface {
	Issue(user *domain.User) (string, error)
	Verify(token string) (*domain.Actor, error)
}

// Service is the application layer. Every mutation checks the actor first,
// persists second and publishes last, so a rejected call changes nothing and
// broadcasts nothing.
type Service struct {
	questions domain.QuestionRepository
	answers   domain.AnswerRepository
	users     domain.UserRepository
	publisher domain.EventPublisher
	enricher  enrichmentQueue
	suggester domain.Suggester
	tokens    tokenService

	suggestGroup singleflight.Group
}

// NewService creates the application service. suggester may be nil when no
// text-generation backend is configured.
func NewService(questions domain.QuestionRepository, answers domain.AnswerRepository, users domain.UserRepository, publisher domain.EventPublisher, enricher enrichmentQueue, suggester domain.Suggester, tokens tokenService) *Service {
	return &Service{
		questions: questions,
		answers:   answers,
		users:     users,
		publisher: publisher,
		enricher:  enricher,
		suggester: suggester,
		tokens:    tokens,
	}
}

// CreateQuestion stores a new question with sentiment pending, announces it,
// and schedules enrichment. Anyone may ask; the author is recorded only for
// authenticated, non-anonymous questions.
func (s *Service) CreateQuestion(ctx context.Context, actor *domain.Actor, content string, anonymous bool) (*domain.Question, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.ErrEmptyContent
	}

	q := &domain.Question{
		Content:     content,
		Status:      domain.StatusPending,
		IsAnonymous: anonymous || !actor.Authenticated(),
		Sentiment:   domain.SentimentAnalyzing,
	}
	if !q.IsAnonymous {
		authorID := actor.UserID
		q.UserID = &authorID
	}

	created, err := s.questions.Create(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	s.publisher.Publish(ctx, domain.NewQuestionEvent(created))
	s.enricher.Enqueue(ctx, created.ID, created.Content)

	slog.InfoContext(ctx, "Question created", "question_id", created.ID, "anonymous", created.IsAnonymous)
	return created, nil
}

// AnswerQuestion appends an answer. Only authenticated users may answer.
func (s *Service) AnswerQuestion(ctx context.Context, actor *domain.Actor, questionID int64, content string) (*domain.Answer, error) {
	if !actor.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.ErrEmptyContent
	}

	answer, err := s.answers.Create(ctx, &domain.Answer{
		QuestionID: questionID,
		UserID:     actor.UserID,
		Content:    content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}

	s.publisher.Publish(ctx, domain.NewAnswerEvent(answer))
	return answer, nil
}

// UpdateStatus changes a question's status. Admin only. rawStatus is
// matched case-insensitively, and only after the role check.
func (s *Service) UpdateStatus(ctx context.Context, actor *domain.Actor, questionID int64, rawStatus string) (*domain.Question, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	status, err := domain.ParseQuestionStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	q, err := s.questions.UpdateStatus(ctx, questionID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	s.publisher.Publish(ctx, domain.StatusChangedEvent(q.ID, q.Status))
	slog.InfoContext(ctx, "Question status changed", "question_id", q.ID, "status", q.Status, "admin_id", actor.UserID)
	return q, nil
}

// ListQuestions returns a page of questions with their answers in display
// order. limit is clamped to [1, MaxListLimit].
func (s *Service) ListQuestions(ctx context.Context, offset, limit int) ([]domain.QuestionWithAnswers, error) {
	offset = max(offset, 0)
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	questions, err := s.questions.List(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	domain.SortForDisplay(questions)

	ids := make([]int64, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	answers, err := s.answers.ListByQuestionIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}

	rows := make([]domain.QuestionWithAnswers, len(questions))
	for i, q := range questions {
		rows[i] = domain.QuestionWithAnswers{Question: q, Answers: answers[q.ID]}
	}
	return rows, nil
}

// SuggestAnswer drafts an answer for an admin. Generation failures degrade to
// SuggestionFallback. Concurrent requests for one question share a call.
func (s *Service) SuggestAnswer(ctx context.Context, actor *domain.Actor, questionID int64) (string, error) {
	if err := requireAdmin(actor); err != nil {
		return "", err
	}

	q, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return "", err
	}
	if s.suggester == nil {
		return SuggestionFallback, nil
	}

	v, _, _ := s.suggestGroup.Do(strconv.FormatInt(q.ID, 10), func() (any, error) {
		suggestion, err := s.suggester.Suggest(ctx, q.Content)
		suggestion = strings.TrimSpace(suggestion)
		if err != nil || suggestion == "" {
			slog.WarnContext(ctx, "Suggestion failed, using fallback", "question_id", q.ID, "error", err)
			return SuggestionFallback, nil
		}
		return suggestion, nil
	})
	return v.(string), nil
}

// Register creates a guest account. Admins are only created out of band.
func (s *Service) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, domain.ErrMissingField
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleGuest,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.InfoContext(ctx, "User registered", "user_id", user.ID)
	return user, nil
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", domain.ErrBadCredentials
	}
	if err != nil {
		return "", fmt.Errorf("failed to load user: %w", err)
	}

	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return "", domain.ErrBadCredentials
		}
		return "", err
	}

	return s.tokens.Issue(user)
}

// Authenticate resolves a bearer token to the current state of its user, so
// a promotion or removal takes effect before the token expires.
func (s *Service) Authenticate(ctx context.Context, token string) (*domain.Actor, error) {
	claimed, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}

	user, err := s.users.GetByID(ctx, claimed.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	return &domain.Actor{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

func requireAdmin(actor *domain.Actor) error {
	if !actor.Authenticated() {
		return domain.ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}
