package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/qapulse/internal/domain"
)

// questionColumns must match the Scan order in scanQuestion.
const questionColumns = `id, content, created_at, status, user_id, is_anonymous, sentiment`

type QuestionRepo struct {
	pool *pgxpool.Pool
}

func NewQuestionRepo(pool *pgxpool.Pool) *QuestionRepo {
	return &QuestionRepo{pool: pool}
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var (
		q         domain.Question
		status    string
		sentiment string
	)
	err := row.Scan(&q.ID, &q.Content, &q.CreatedAt, &status, &q.UserID, &q.IsAnonymous, &sentiment)
	q.Status = domain.QuestionStatus(status)
	q.Sentiment = domain.Sentiment(sentiment)
	q.CreatedAt = q.CreatedAt.UTC()
	return q, err
}

func (r *QuestionRepo) Create(ctx context.Context, q *domain.Question) (*domain.Question, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO questions (content, status, user_id, is_anonymous, sentiment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+questionColumns,
		q.Content, string(q.Status), q.UserID, q.IsAnonymous, string(q.Sentiment))

	created, err := scanQuestion(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert question: %w", err)
	}
	return &created, nil
}

func (r *QuestionRepo) GetByID(ctx context.Context, id int64) (*domain.Question, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)

	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return &q, nil
}

func (r *QuestionRepo) List(ctx context.Context, offset, limit int) ([]domain.Question, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+questionColumns+`
		FROM questions
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return collectQuestions(rows)
}

func (r *QuestionRepo) UpdateStatus(ctx context.Context, id int64, status domain.QuestionStatus) (*domain.Question, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE questions SET status = $2
		WHERE id = $1
		RETURNING `+questionColumns, id, string(status))

	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	return &q, nil
}

func (r *QuestionRepo) SettleSentiment(ctx context.Context, id int64, sentiment domain.Sentiment) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE questions SET sentiment = $2
		WHERE id = $1 AND sentiment = $3`,
		id, string(sentiment), string(domain.SentimentAnalyzing))
	if err != nil {
		return false, fmt.Errorf("failed to settle sentiment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *QuestionRepo) ListUnsettled(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Question, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+questionColumns+`
		FROM questions
		WHERE sentiment = $1 AND created_at < $2
		ORDER BY created_at, id
		LIMIT $3`, string(domain.SentimentAnalyzing), createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled questions: %w", err)
	}
	return collectQuestions(rows)
}

func collectQuestions(rows pgx.Rows) ([]domain.Question, error) {
	questions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Question, error) {
		return scanQuestion(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan questions: %w", err)
	}
	return questions, nil
}
