package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	"github.com/openai/openai-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/qapulse/internal/adapter/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *metrics.ClassifierMetrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := metrics.NewClassifierMetrics(prometheus.NewRegistry())
	c := New(Config{
		BaseURL: srv.URL + "/v1",
		APIKey:  "sk-test",
		Model:   "test-model",
		Timeout: 2 * time.Second,
	}, clockwork.NewRealClock(), m, nil)
	return c, m
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func completion(content string) string {
	return fmt.Sprintf(`{"id":"cmpl-1","object":"chat.completion","created":1,"model":"test-model","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%q}}]}`, content)
}

func TestClassify_SendsPromptAndReturnsLabel(t *testing.T) {
	var got chatRequest
	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, completion("  Positive\n"))
	})

	label, err := c.Classify(context.Background(), "I love this product")
	require.NoError(t, err)
	assert.Equal(t, "Positive", label)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, sentimentPrompt, got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "Analyze sentiment: I love this product", got.Messages[1].Content)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Requests.WithLabelValues("classify", "ok")), 0)
}

func TestSuggest_UsesQuestionVerbatim(t *testing.T) {
	var got chatRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, completion("Restart the router."))
	})

	suggestion, err := c.Suggest(context.Background(), "My internet is down")
	require.NoError(t, err)
	assert.Equal(t, "Restart the router.", suggestion)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, suggestionPrompt, got.Messages[0].Content)
	assert.Equal(t, "My internet is down", got.Messages[1].Content)
}

func TestComplete_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			check: func(t *testing.T, err error) {
				var apiErr *openai.Error
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
			},
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			},
			check: func(t *testing.T, err error) {
				var apiErr *openai.Error
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, `{"id":"cmpl-1","object":"chat.completion","choices":[]}`)
			},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrEmptyCompletion) },
		},
		{
			name: "blank content",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, completion("   "))
			},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrEmptyCompletion) },
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, `{"choices":`)
			},
			check: func(t *testing.T, err error) { assert.NotErrorIs(t, err, ErrEmptyCompletion) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, m := newTestClient(t, tt.handler)

			_, err := c.Classify(context.Background(), "text")
			require.Error(t, err)
			tt.check(t, err)
			assert.InDelta(t, 1, testutil.ToFloat64(m.Requests.WithLabelValues("classify", "error")), 0)
		})
	}
}

// blockingHandler holds requests until release is closed or the client goes
// away. The body is drained first so the server notices a disconnect.
func blockingHandler(release <-chan struct{}) http.HandlerFunc {
	return func(_ http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}
}

// newBlockingClient releases held requests before the server shuts down.
func newBlockingClient(t *testing.T) *Client {
	t.Helper()
	release := make(chan struct{})
	c, _ := newTestClient(t, blockingHandler(release))
	t.Cleanup(func() { close(release) })
	return c
}

func TestComplete_RespectsContextDeadline(t *testing.T) {
	c := newBlockingClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Classify(ctx, "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestComplete_BreakerOpensAndFailsFast(t *testing.T) {
	var hits atomic.Int32
	c, m := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for range breakerFailures {
		_, err := c.Classify(context.Background(), "text")
		require.Error(t, err)
	}
	require.Equal(t, circuitbreaker.OpenState, c.State())

	_, err := c.Suggest(context.Background(), "question")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(breakerFailures), hits.Load(), "open breaker must not reach the API")
	assert.InDelta(t, 1, testutil.ToFloat64(m.Requests.WithLabelValues("suggest", "rejected")), 0)
}

func TestComplete_CallerCancellationDoesNotTripBreaker(t *testing.T) {
	c := newBlockingClient(t)

	for range breakerFailures + 1 {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(5 * time.Millisecond)
			cancel()
		}()
		_, err := c.Classify(ctx, "text")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, circuitbreaker.ClosedState, c.State())
}
