package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/qapulse/internal/domain"
)

type AnswerRepo struct {
	pool *pgxpool.Pool
}

func NewAnswerRepo(pool *pgxpool.Pool) *AnswerRepo {
	return &AnswerRepo{pool: pool}
}

func (r *AnswerRepo) Create(ctx context.Context, a *domain.Answer) (*domain.Answer, error) {
	created := *a
	err := r.pool.QueryRow(ctx, `
		INSERT INTO answers (question_id, user_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		a.QuestionID, a.UserID, a.Content).Scan(&created.ID, &created.CreatedAt)

	if code, constraint := pgErrorCode(err); code == pgForeignKeyViolation {
		if constraint == "answers_user_id_fkey" {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert answer: %w", err)
	}

	created.CreatedAt = created.CreatedAt.UTC()
	return &created, nil
}

func (r *AnswerRepo) ListByQuestionIDs(ctx context.Context, questionIDs []int64) (map[int64][]domain.Answer, error) {
	out := make(map[int64][]domain.Answer, len(questionIDs))
	if len(questionIDs) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, question_id, user_id, content, created_at
		FROM answers
		WHERE question_id = ANY($1)
		ORDER BY created_at, id`, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}

	answers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Answer, error) {
		var a domain.Answer
		err := row.Scan(&a.ID, &a.QuestionID, &a.UserID, &a.Content, &a.CreatedAt)
		a.CreatedAt = a.CreatedAt.UTC()
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan answers: %w", err)
	}

	for _, a := range answers {
		out[a.QuestionID] = append(out[a.QuestionID], a)
	}
	return out, nil
}
