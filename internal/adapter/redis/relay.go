package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/qapulse/internal/adapter/metrics"
	"github.com/pscheid92/qapulse/internal/domain"
	"github.com/pscheid92/qapulse/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

const (
	eventChannel   = "qapulse:events"
	publishTimeout = 2 * time.Second

	subscribeInitialBackoff = 500 * time.Millisecond
	subscribeMaxBackoff     = 30 * time.Second
)

type localBroadcaster interface {
	BroadcastRaw(data []byte) bool
}

// envelope tags a relayed frame with the instance that produced it, so that
// instance does not deliver it twice.
type envelope struct {
	Origin string          `json:"origin"`
	Event  json.RawMessage `json:"event"`
}

// Relay fans events out across instances. Every event goes to this
// instance's viewers directly and to the other instances over Redis pub/sub.
type Relay struct {
	rdb     *goredis.Client
	local   localBroadcaster
	origin  string
	clock   clockwork.Clock
	metrics *metrics.RelayMetrics
}

func NewRelay(rdb *goredis.Client, local localBroadcaster, clock clockwork.Clock, m *metrics.RelayMetrics) *Relay {
	return &Relay{
		rdb:     rdb,
		local:   local,
		origin:  uuid.NewString(),
		clock:   clock,
		metrics: m,
	}
}

// Publish implements domain.EventPublisher. When Redis is unreachable the
// event still reaches local viewers. The publish outlives a cancelled caller,
// since the change it announces has already been committed.
func (r *Relay) Publish(ctx context.Context, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal event", "type", event.Type, "error", err)
		return
	}
	r.local.BroadcastRaw(data)

	payload, err := json.Marshal(envelope{Origin: r.origin, Event: data})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal relay envelope", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.rdb.Publish(ctx, eventChannel, payload).Err(); err != nil {
		slog.WarnContext(ctx, "Failed to relay event, delivered locally only", "type", event.Type, "error", err)
		r.metrics.Published.WithLabelValues("error").Inc()
		r.metrics.LocalFallbacks.Inc()
		return
	}
	r.metrics.Published.WithLabelValues("ok").Inc()
}

// Start subscribes to the event channel and feeds frames from other
// instances to local viewers until ctx is cancelled. A failed subscribe is
// retried with backoff, so a Redis outage at startup only delays delivery.
func (r *Relay) Start(ctx context.Context) error {
	policy := retry.Policy{
		MaxAttempts:    math.MaxInt,
		InitialBackoff: subscribeInitialBackoff,
		MaxBackoff:     subscribeMaxBackoff,
		Clock:          r.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			r.metrics.SubscribeRetries.Inc()
			slog.Warn("Event relay subscribe failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
	untilStopped := func(error) retry.Action {
		if ctx.Err() != nil {
			return retry.Stop
		}
		return retry.Retry
	}

	pubsub, err := retry.Do(ctx, policy, untilStopped, r.subscribe)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer func() { _ = pubsub.Close() }()
	slog.Info("Event relay subscribed", "channel", eventChannel, "origin", r.origin)

	// go-redis reconnects the subscription on its own from here on.
	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handleMessage(msg.Payload)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Relay) subscribe(ctx context.Context) (*goredis.PubSub, error) {
	pubsub := r.rdb.Subscribe(ctx, eventChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", eventChannel, err)
	}
	return pubsub, nil
}

func (r *Relay) handleMessage(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil || len(env.Event) == 0 {
		slog.Warn("Dropping malformed relay message", "error", err)
		return
	}
	if env.Origin == r.origin {
		return
	}

	r.metrics.Received.Inc()
	r.local.BroadcastRaw(env.Event)
}
