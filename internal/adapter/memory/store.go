// Package memory provides in-process repositories for single-instance mode and tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/qapulse/internal/domain"
)

// Store holds questions, answers and users behind one mutex so that the
// answer-to-question reference and the sentiment guard are checked atomically.
type Store struct {
	clock clockwork.Clock

	mu        sync.Mutex
	questions map[int64]domain.Question
	answers   map[int64][]domain.Answer
	users     map[int64]domain.User
	lastID    int64
}

func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		clock:     clock,
		questions: make(map[int64]domain.Question),
		answers:   make(map[int64][]domain.Answer),
		users:     make(map[int64]domain.User),
	}
}

func (s *Store) nextID() int64 {
	s.lastID++
	return s.lastID
}

// DeleteQuestion removes a question and its answers.
func (s *Store) DeleteQuestion(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.questions, id)
	delete(s.answers, id)
}

// Questions returns the question repository view of the store.
func (s *Store) Questions() *QuestionRepo { return &QuestionRepo{s} }

// Answers returns the answer repository view of the store.
func (s *Store) Answers() *AnswerRepo { return &AnswerRepo{s} }

// Users returns the user repository view of the store.
func (s *Store) Users() *UserRepo { return &UserRepo{s} }

type QuestionRepo struct{ s *Store }

func (r *QuestionRepo) Create(_ context.Context, q *domain.Question) (*domain.Question, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored := *q
	stored.ID = r.s.nextID()
	stored.CreatedAt = r.s.clock.Now().UTC()
	r.s.questions[stored.ID] = stored
	return &stored, nil
}

func (r *QuestionRepo) GetByID(_ context.Context, id int64) (*domain.Question, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	q, ok := r.s.questions[id]
	if !ok {
		return nil, domain.ErrQuestionNotFound
	}
	return &q, nil
}

func (r *QuestionRepo) List(_ context.Context, offset, limit int) ([]domain.Question, error) {
	r.s.mu.Lock()
	all := make([]domain.Question, 0, len(r.s.questions))
	for _, q := range r.s.questions {
		all = append(all, q)
	}
	r.s.mu.Unlock()

	slices.SortFunc(all, func(a, b domain.Question) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if offset >= len(all) {
		return []domain.Question{}, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (r *QuestionRepo) UpdateStatus(_ context.Context, id int64, status domain.QuestionStatus) (*domain.Question, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	q, ok := r.s.questions[id]
	if !ok {
		return nil, domain.ErrQuestionNotFound
	}
	q.Status = status
	r.s.questions[id] = q
	return &q, nil
}

func (r *QuestionRepo) SettleSentiment(_ context.Context, id int64, sentiment domain.Sentiment) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	q, ok := r.s.questions[id]
	if !ok || q.Sentiment != domain.SentimentAnalyzing {
		return false, nil
	}
	q.Sentiment = sentiment
	r.s.questions[id] = q
	return true, nil
}

func (r *QuestionRepo) ListUnsettled(_ context.Context, createdBefore time.Time, limit int) ([]domain.Question, error) {
	r.s.mu.Lock()
	var stale []domain.Question
	for _, q := range r.s.questions {
		if q.Sentiment == domain.SentimentAnalyzing && q.CreatedAt.Before(createdBefore) {
			stale = append(stale, q)
		}
	}
	r.s.mu.Unlock()

	slices.SortFunc(stale, func(a, b domain.Question) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

type AnswerRepo struct{ s *Store }

func (r *AnswerRepo) Create(_ context.Context, a *domain.Answer) (*domain.Answer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.questions[a.QuestionID]; !ok {
		return nil, domain.ErrQuestionNotFound
	}

	stored := *a
	stored.ID = r.s.nextID()
	stored.CreatedAt = r.s.clock.Now().UTC()
	r.s.answers[a.QuestionID] = append(r.s.answers[a.QuestionID], stored)
	return &stored, nil
}

func (r *AnswerRepo) ListByQuestionIDs(_ context.Context, questionIDs []int64) (map[int64][]domain.Answer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make(map[int64][]domain.Answer, len(questionIDs))
	for _, id := range questionIDs {
		if answers := r.s.answers[id]; len(answers) > 0 {
			out[id] = slices.Clone(answers)
		}
	}
	return out, nil
}

type UserRepo struct{ s *Store }

func (r *UserRepo) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return nil, domain.ErrUserExists
		}
	}

	stored := *u
	stored.ID = r.s.nextID()
	stored.CreatedAt = r.s.clock.Now().UTC()
	r.s.users[stored.ID] = stored
	return &stored, nil
}

func (r *UserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Username, username) {
			return &u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *UserRepo) UpsertAdmin(_ context.Context, username, email, passwordHash string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, u := range r.s.users {
		if strings.EqualFold(u.Username, username) {
			u.Role = domain.RoleAdmin
			u.PasswordHash = passwordHash
			r.s.users[id] = u
			return &u, nil
		}
	}

	u := domain.User{
		ID:           r.s.nextID(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         domain.RoleAdmin,
		CreatedAt:    r.s.clock.Now().UTC(),
	}
	r.s.users[u.ID] = u
	return &u, nil
}
