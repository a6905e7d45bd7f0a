// Package classifier talks to an OpenAI-compatible chat-completions API to
// label question sentiment and to draft answer suggestions.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pscheid92/qapulse/internal/adapter/metrics"
)

const (
	sentimentPrompt  = "You are a sentiment analyzer. Reply with exactly one word: Positive, Negative, or Neutral."
	suggestionPrompt = "You are a helpful support assistant. Suggest a concise answer to the user's question. If the question is vague, ask for clarification."

	breakerFailures = 5
	breakerDelay    = 30 * time.Second
)

var ErrEmptyCompletion = errors.New("completion has no content")

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client implements domain.Classifier and domain.Suggester. After repeated
// failures its circuit breaker rejects calls without contacting the API.
type Client struct {
	api     openai.Client
	model   string
	cb      circuitbreaker.CircuitBreaker[any]
	clock   clockwork.Clock
	metrics *metrics.ClassifierMetrics
}

// New creates a client. breakerMetrics may be nil.
func New(cfg Config, clock clockwork.Clock, m *metrics.ClassifierMetrics, breakerMetrics *metrics.CircuitBreakerMetrics) *Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/") + "/"
	api := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout, Transport: tr}),
		// One attempt per question; the sweeper covers failures.
		option.WithMaxRetries(0),
	)

	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(breakerFailures).
		WithDelay(breakerDelay).
		WithSuccessThreshold(1).
		OnStateChanged(breakerMetrics.OnStateChanged("classifier")).
		Build()

	return &Client{
		api:     api,
		model:   cfg.Model,
		cb:      cb,
		clock:   clock,
		metrics: m,
	}
}

// Classify returns the raw one-word label the model chose for text.
func (c *Client) Classify(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, "classify", sentimentPrompt, "Analyze sentiment: "+text)
}

// Suggest drafts an answer to question.
func (c *Client) Suggest(ctx context.Context, question string) (string, error) {
	return c.complete(ctx, "suggest", suggestionPrompt, question)
}

func (c *Client) complete(ctx context.Context, operation, system, user string) (string, error) {
	if !c.cb.TryAcquirePermit() {
		c.metrics.Requests.WithLabelValues(operation, "rejected").Inc()
		return "", fmt.Errorf("%s: %w", operation, circuitbreaker.ErrOpen)
	}

	start := c.clock.Now()
	content, err := c.chat(ctx, system, user)
	c.metrics.RequestDuration.WithLabelValues(operation).Observe(c.clock.Since(start).Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		// A caller giving up is not the API's fault.
		if errors.Is(ctx.Err(), context.Canceled) {
			c.cb.RecordSuccess()
		} else {
			c.cb.RecordError(err)
		}
		c.metrics.Requests.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("%s: %w", operation, err)
	}

	c.cb.RecordSuccess()
	c.metrics.Requests.WithLabelValues(operation, "ok").Inc()
	return content, nil
}

func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// State reports the breaker state for readiness reporting.
func (c *Client) State() circuitbreaker.State {
	return c.cb.State()
}
