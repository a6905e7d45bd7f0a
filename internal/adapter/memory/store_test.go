package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/qapulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuestion(content string) *domain.Question {
	return &domain.Question{Content: content, Status: domain.StatusPending, IsAnonymous: true, Sentiment: domain.SentimentAnalyzing}
}

func TestQuestionRepo_CreateAssignsIDAndTimestamp(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := NewStore(clock).Questions()

	q, err := repo.Create(context.Background(), newQuestion("first"))
	require.NoError(t, err)
	assert.NotZero(t, q.ID)
	assert.Equal(t, clock.Now().UTC(), q.CreatedAt)

	got, err := repo.GetByID(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Content)
}

func TestQuestionRepo_GetByIDMissing(t *testing.T) {
	repo := NewStore(clockwork.NewFakeClock()).Questions()
	_, err := repo.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
}

func TestQuestionRepo_ListNewestFirstWithPagination(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	repo := NewStore(clock).Questions()

	for _, content := range []string{"a", "b", "c"} {
		_, err := repo.Create(ctx, newQuestion(content))
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	page, err := repo.List(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].Content)
	assert.Equal(t, "b", page[1].Content)

	page, err = repo.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].Content)

	page, err = repo.List(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestQuestionRepo_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewStore(clockwork.NewFakeClock()).Questions()
	q, err := repo.Create(ctx, newQuestion("x"))
	require.NoError(t, err)

	updated, err := repo.UpdateStatus(ctx, q.ID, domain.StatusEscalated)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEscalated, updated.Status)
	assert.Equal(t, domain.SentimentAnalyzing, updated.Sentiment)

	_, err = repo.UpdateStatus(ctx, 999, domain.StatusAnswered)
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
}

func TestQuestionRepo_SettleSentimentOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore(clockwork.NewFakeClock())
	repo := store.Questions()
	q, err := repo.Create(ctx, newQuestion("x"))
	require.NoError(t, err)

	settled, err := repo.SettleSentiment(ctx, q.ID, domain.SentimentPositive)
	require.NoError(t, err)
	assert.True(t, settled)

	settled, err = repo.SettleSentiment(ctx, q.ID, domain.SentimentNegative)
	require.NoError(t, err)
	assert.False(t, settled)

	got, err := repo.GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SentimentPositive, got.Sentiment)
}

func TestQuestionRepo_SettleSentimentDeletedQuestion(t *testing.T) {
	ctx := context.Background()
	store := NewStore(clockwork.NewFakeClock())
	q, err := store.Questions().Create(ctx, newQuestion("x"))
	require.NoError(t, err)
	store.DeleteQuestion(q.ID)

	settled, err := store.Questions().SettleSentiment(ctx, q.ID, domain.SentimentNeutral)
	require.NoError(t, err)
	assert.False(t, settled)
}

func TestQuestionRepo_ConcurrentSettleOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	repo := NewStore(clockwork.NewFakeClock()).Questions()
	q, err := repo.Create(ctx, newQuestion("x"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := repo.SettleSentiment(ctx, q.ID, domain.SentimentNeutral); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestAnswerRepo_CreateRequiresQuestion(t *testing.T) {
	ctx := context.Background()
	store := NewStore(clockwork.NewFakeClock())

	_, err := store.Answers().Create(ctx, &domain.Answer{QuestionID: 404, UserID: 1, Content: "orphan"})
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)

	q, err := store.Questions().Create(ctx, newQuestion("x"))
	require.NoError(t, err)
	a, err := store.Answers().Create(ctx, &domain.Answer{QuestionID: q.ID, UserID: 1, Content: "yes"})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)

	byQuestion, err := store.Answers().ListByQuestionIDs(ctx, []int64{q.ID, 404})
	require.NoError(t, err)
	assert.Len(t, byQuestion[q.ID], 1)
	assert.NotContains(t, byQuestion, int64(404))
}

func TestUserRepo_CreateRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewStore(clockwork.NewFakeClock()).Users()

	u, err := repo.Create(ctx, &domain.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h", Role: domain.RoleGuest})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &domain.User{Username: "ALICE", Email: "other@example.com"})
	assert.ErrorIs(t, err, domain.ErrUserExists)
	_, err = repo.Create(ctx, &domain.User{Username: "bob", Email: "alice@example.com"})
	assert.ErrorIs(t, err, domain.ErrUserExists)

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = repo.GetByID(ctx, 12345)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUserRepo_UpsertAdminCreatesOrPromotes(t *testing.T) {
	ctx := context.Background()
	repo := NewStore(clockwork.NewFakeClock()).Users()

	guest, err := repo.Create(ctx, &domain.User{Username: "admin", Email: "admin@example.com", PasswordHash: "old", Role: domain.RoleGuest})
	require.NoError(t, err)

	promoted, err := repo.UpsertAdmin(ctx, "admin", "ignored@example.com", "new")
	require.NoError(t, err)
	assert.Equal(t, guest.ID, promoted.ID)
	assert.Equal(t, domain.RoleAdmin, promoted.Role)
	assert.Equal(t, "new", promoted.PasswordHash)
	assert.Equal(t, "admin@example.com", promoted.Email)

	created, err := repo.UpsertAdmin(ctx, "root", "root@example.com", "h")
	require.NoError(t, err)
	assert.NotEqual(t, guest.ID, created.ID)
	assert.Equal(t, domain.RoleAdmin, created.Role)
}

func TestQuestionRepo_ListUnsettled(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := NewStore(clock).Questions()

	old, err := repo.Create(ctx, newQuestion("old"))
	require.NoError(t, err)
	clock.Advance(time.Second)
	settled, err := repo.Create(ctx, newQuestion("settled"))
	require.NoError(t, err)
	_, err = repo.SettleSentiment(ctx, settled.ID, domain.SentimentPositive)
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	_, err = repo.Create(ctx, newQuestion("fresh"))
	require.NoError(t, err)

	stale, err := repo.ListUnsettled(ctx, clock.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
}
