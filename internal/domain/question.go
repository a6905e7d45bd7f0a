package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type QuestionStatus string

const (
	StatusPending   QuestionStatus = "Pending"
	StatusAnswered  QuestionStatus = "Answered"
	StatusEscalated QuestionStatus = "Escalated"
)

// ParseQuestionStatus accepts a status name case-insensitively.
func ParseQuestionStatus(s string) (QuestionStatus, error) {
	for _, status := range []QuestionStatus{StatusPending, StatusAnswered, StatusEscalated} {
		if strings.EqualFold(strings.TrimSpace(s), string(status)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

type Sentiment string

const (
	SentimentAnalyzing Sentiment = "Analyzing..."
	SentimentPositive  Sentiment = "Positive"
	SentimentNeutral   Sentiment = "Neutral"
	SentimentNegative  Sentiment = "Negative"
)

// Settled reports whether s is a terminal label. Settled sentiment never changes.
func (s Sentiment) Settled() bool {
	return s == SentimentPositive || s == SentimentNeutral || s == SentimentNegative
}

type Question struct {
	ID          int64
	Content     string
	CreatedAt   time.Time
	Status      QuestionStatus
	UserID      *int64
	IsAnonymous bool
	Sentiment   Sentiment
}

type Answer struct {
	ID         int64
	QuestionID int64
	UserID     int64
	Content    string
	CreatedAt  time.Time
}

type QuestionWithAnswers struct {
	Question
	Answers []Answer
}

type QuestionRepository interface {
	// Create assigns ID and CreatedAt and persists q as given.
	Create(ctx context.Context, q *Question) (*Question, error)
	GetByID(ctx context.Context, id int64) (*Question, error)
	// List returns questions newest first.
	List(ctx context.Context, offset, limit int) ([]Question, error)
	UpdateStatus(ctx context.Context, id int64, status QuestionStatus) (*Question, error)
	// SettleSentiment sets the sentiment only while it is still SentimentAnalyzing.
	// It reports false, without error, when the question is gone or already settled.
	SettleSentiment(ctx context.Context, id int64, sentiment Sentiment) (bool, error)
	// ListUnsettled returns questions still SentimentAnalyzing that were created
	// before the cutoff, oldest first.
	ListUnsettled(ctx context.Context, createdBefore time.Time, limit int) ([]Question, error)
}

type AnswerRepository interface {
	// Create returns ErrQuestionNotFound when the question does not exist.
	Create(ctx context.Context, a *Answer) (*Answer, error)
	ListByQuestionIDs(ctx context.Context, questionIDs []int64) (map[int64][]Answer, error)
}
