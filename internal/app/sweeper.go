package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/qapulse/internal/domain"
)

const (
	sweepInterval  = time.Minute
	sweepBatchSize = 100
	sweepTimeout   = 30 * time.Second
)

// SweepLock gives one instance at a time the right to sweep.
type SweepLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Sweeper settles questions whose enrichment never finished, for example
// because the process stopped mid-task. They settle to Neutral through the
// same conditional update the Enricher uses, so a late enrichment and the
// sweeper cannot both win.
type Sweeper struct {
	questions  domain.QuestionRepository
	publisher  domain.EventPublisher
	lock       SweepLock
	staleAfter time.Duration
	clock      clockwork.Clock
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewSweeper creates a sweeper. staleAfter must exceed the classifier timeout.
// lock may be nil for single-instance deployments.
func NewSweeper(questions domain.QuestionRepository, publisher domain.EventPublisher, lock SweepLock, staleAfter time.Duration, clock clockwork.Clock) *Sweeper {
	return &Sweeper{
		questions:  questions,
		publisher:  publisher,
		lock:       lock,
		staleAfter: staleAfter,
		clock:      clock,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	defer close(s.doneCh)

	ticker := s.clock.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if _, err := s.Sweep(ctx); err != nil {
				slog.Error("Sentiment sweep failed", "error", err)
			}
		case <-s.stopCh:
			slog.Info("Sentiment sweeper stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// Sweep settles one batch of stale questions and returns how many it settled.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	if s.lock != nil {
		acquired, err := s.lock.TryAcquire(ctx)
		if err != nil {
			return 0, err
		}
		if !acquired {
			slog.Debug("Another instance is sweeping")
			return 0, nil
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("Failed to release sweep lock", "error", err)
			}
		}()
	}

	stale, err := s.questions.ListUnsettled(ctx, s.clock.Now().Add(-s.staleAfter), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list unsettled questions: %w", err)
	}

	count := 0
	for _, q := range stale {
		settled, err := s.questions.SettleSentiment(ctx, q.ID, domain.SentimentNeutral)
		if err != nil {
			return count, fmt.Errorf("failed to settle question %d: %w", q.ID, err)
		}
		if !settled {
			continue
		}
		s.publisher.Publish(ctx, domain.SentimentSettledEvent(q.ID, domain.SentimentNeutral))
		count++
	}

	if count > 0 {
		slog.Info("Settled stale sentiments", "count", count)
	}
	return count, nil
}
