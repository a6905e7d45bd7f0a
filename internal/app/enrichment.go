package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/qapulse/internal/adapter/metrics"
	"github.com/pscheid92/qapulse/internal/domain"
	"github.com/pscheid92/qapulse/internal/platform/correlation"
)

const settleTimeout = 5 * time.Second

var errClassifierDisabled = errors.New("classifier disabled")

// Enricher classifies new questions in the background and settles their
// sentiment exactly once. It makes one classification attempt per question;
// any failure settles to Neutral.
type Enricher struct {
	questions  domain.QuestionRepository
	classifier domain.Classifier
	publisher  domain.EventPublisher
	timeout    time.Duration
	clock      clockwork.Clock
	metrics    *metrics.EnrichmentMetrics

	wg sync.WaitGroup
}

// NewEnricher creates an enricher. questions must be a handle that does not
// depend on any request, since tasks outlive the request that started them.
// classifier may be nil, in which case every question settles to Neutral.
func NewEnricher(questions domain.QuestionRepository, classifier domain.Classifier, publisher domain.EventPublisher, timeout time.Duration, clock clockwork.Clock, m *metrics.EnrichmentMetrics) *Enricher {
	return &Enricher{
		questions:  questions,
		classifier: classifier,
		publisher:  publisher,
		timeout:    timeout,
		clock:      clock,
		metrics:    m,
	}
}

// Enqueue starts enrichment for a committed question and returns immediately.
// The task keeps the request's correlation ID but not its cancellation.
func (e *Enricher) Enqueue(ctx context.Context, questionID int64, content string) {
	taskCtx := correlation.Detach(ctx)

	e.wg.Add(1)
	e.metrics.InFlight.Inc()
	go func() {
		defer e.wg.Done()
		defer e.metrics.InFlight.Dec()
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(taskCtx, "Enrichment panic recovered", "question_id", questionID, "panic", r)
				e.metrics.Tasks.WithLabelValues("error").Inc()
			}
		}()

		e.enrich(taskCtx, questionID, content)
	}()
}

// Wait blocks until all started tasks finish or ctx is done.
func (e *Enricher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Enricher) enrich(ctx context.Context, questionID int64, content string) {
	sentiment, err := e.classify(ctx, content)
	result := "classified"
	if err != nil {
		slog.WarnContext(ctx, "Sentiment classification failed, using fallback", "question_id", questionID, "error", err)
		result = "fallback"
	}

	settleCtx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()

	settled, err := e.questions.SettleSentiment(settleCtx, questionID, sentiment)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to store sentiment", "question_id", questionID, "error", err)
		e.metrics.Tasks.WithLabelValues("error").Inc()
		return
	}
	if !settled {
		slog.DebugContext(ctx, "Question gone or already settled", "question_id", questionID)
		e.metrics.Tasks.WithLabelValues("skipped").Inc()
		return
	}

	e.publisher.Publish(ctx, domain.SentimentSettledEvent(questionID, sentiment))
	e.metrics.Tasks.WithLabelValues(result).Inc()
	slog.DebugContext(ctx, "Sentiment settled", "question_id", questionID, "sentiment", sentiment)
}

// classify returns a settled label. On error the label is Neutral.
func (e *Enricher) classify(ctx context.Context, content string) (domain.Sentiment, error) {
	if e.classifier == nil {
		return domain.SentimentNeutral, errClassifierDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := e.clock.Now()
	raw, err := e.classifier.Classify(ctx, content)
	e.metrics.ClassifyDuration.Observe(e.clock.Since(start).Seconds())
	if err != nil {
		return domain.SentimentNeutral, err
	}
	return NormalizeSentiment(raw), nil
}

// NormalizeSentiment maps raw classifier output onto a settled label. Case,
// surrounding whitespace and punctuation are ignored; anything else is Neutral.
func NormalizeSentiment(raw string) domain.Sentiment {
	label := strings.TrimFunc(raw, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})

	for _, s := range []domain.Sentiment{domain.SentimentPositive, domain.SentimentNegative, domain.SentimentNeutral} {
		if strings.EqualFold(label, string(s)) {
			return s
		}
	}
	return domain.SentimentNeutral
}
