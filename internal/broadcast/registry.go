package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/qapulse/internal/adapter/metrics"
	"github.com/pscheid92/qapulse/internal/domain"
)

const (
	commandTimeout  = 5 * time.Second  // max wait to hand a command to the actor
	stopTimeout     = 10 * time.Second // graceful shutdown budget
	commandCapacity = 256
)

const (
	evictSlow       = "slow_client"
	evictWriteError = "write_error"
	evictClosed     = "closed"
)

var (
	ErrRegistryStopped = errors.New("registry stopped")
	ErrTooManyClients  = errors.New("max websocket connections reached")
)

type clients map[*websocket.Conn]*clientWriter

type registryCmd interface{ isRegistryCmd() }

type baseRegistryCmd struct{}

func (baseRegistryCmd) isRegistryCmd() {}

type registerCmd struct {
	baseRegistryCmd
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseRegistryCmd
	connection *websocket.Conn
	reason     string
}

type broadcastCmd struct {
	baseRegistryCmd
	data []byte
}

type clientCountCmd struct {
	baseRegistryCmd
	replyChannel chan int
}

type stopCmd struct {
	baseRegistryCmd
}

// Registry owns the set of live viewer connections and fans events out to them.
type Registry struct {
	cmdCh       chan registryCmd
	clock       clockwork.Clock
	clients     clients
	maxClients  int
	metrics     *metrics.WebSocketMetrics
	done        chan struct{}
	stopOnce    sync.Once
	stopTimeout time.Duration
}

// NewRegistry starts the registry actor. maxClients bounds the number of live
// connections on this instance.
func NewRegistry(clock clockwork.Clock, maxClients int, m *metrics.WebSocketMetrics) *Registry {
	r := &Registry{
		cmdCh:       make(chan registryCmd, commandCapacity),
		clock:       clock,
		clients:     make(clients),
		maxClients:  maxClients,
		metrics:     m,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go r.run()
	return r
}

// Register adds a live connection. Past events are not replayed. When the
// connection limit is reached the connection is closed and ErrTooManyClients
// is returned.
func (r *Registry) Register(conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	if !r.send(registerCmd{connection: conn, errorChannel: errCh}) {
		_ = conn.Close()
		return fmt.Errorf("register: %w", ErrRegistryStopped)
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-r.done:
		select {
		case err := <-errCh:
			return err
		default:
		}
		_ = conn.Close()
		return fmt.Errorf("register: %w", ErrRegistryStopped)
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes conn and closes it. Unknown connections are ignored.
func (r *Registry) Unregister(conn *websocket.Conn) {
	r.evict(conn, evictClosed)
}

// Broadcast serializes event once and queues it for every live connection.
// It never fails the caller; problems are logged.
func (r *Registry) Broadcast(ctx context.Context, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal event", "event_type", event.Type, "error", err)
		return
	}
	if !r.BroadcastRaw(data) {
		slog.WarnContext(ctx, "Dropped event, registry did not accept it", "event_type", event.Type)
	}
}

// Publish implements domain.EventPublisher for single-instance deployments.
func (r *Registry) Publish(ctx context.Context, event domain.Event) {
	r.Broadcast(ctx, event)
}

// BroadcastRaw queues an already serialized event for every live connection.
// It reports whether the registry accepted the event.
func (r *Registry) BroadcastRaw(data []byte) bool {
	if r.send(broadcastCmd{data: data}) {
		return true
	}
	r.metrics.DroppedBroadcasts.Inc()
	return false
}

// ClientCount returns the number of live connections, or -1 if the registry
// did not answer in time.
func (r *Registry) ClientCount() int {
	replyCh := make(chan int, 1)
	if !r.send(clientCountCmd{replyChannel: replyCh}) {
		return -1
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-r.done:
		return -1
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every connection with a close frame and waits for the actor to
// exit, bounded by the stop timeout. Calling Stop more than once is safe.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		if !r.send(stopCmd{}) {
			return
		}

		timeout := r.clock.NewTimer(r.stopTimeout)
		defer timeout.Stop()

		select {
		case <-r.done:
			slog.Info("Registry stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Registry stop timeout exceeded", "timeout", r.stopTimeout)
		}
	})
}

func (r *Registry) evict(conn *websocket.Conn, reason string) {
	if !r.send(unregisterCmd{connection: conn, reason: reason}) {
		_ = conn.Close()
	}
}

// send hands cmd to the actor. It reports false when the registry has stopped
// or the command channel stayed full for commandTimeout.
func (r *Registry) send(cmd registryCmd) bool {
	select {
	case <-r.done:
		return false
	default:
	}

	select {
	case r.cmdCh <- cmd:
		return true
	default:
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case r.cmdCh <- cmd:
		return true
	case <-r.done:
		return false
	case <-timer.Chan():
		slog.Warn("Registry command channel full", "command_type", fmt.Sprintf("%T", cmd), "capacity", cap(r.cmdCh))
		return false
	}
}

func (r *Registry) run() {
	defer close(r.done)
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Registry panic recovered", "panic", rec)
			r.closeAllClients("Server error")
		}
	}()

	for cmd := range r.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			r.handleRegister(c)
		case unregisterCmd:
			r.handleUnregister(c.connection, c.reason)
		case broadcastCmd:
			r.handleBroadcast(c.data)
		case clientCountCmd:
			c.replyChannel <- len(r.clients)
		case stopCmd:
			r.handleStop()
			return
		default:
			slog.Warn("Registry received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (r *Registry) handleRegister(c registerCmd) {
	if len(r.clients) >= r.maxClients {
		slog.Warn("Rejecting client: max connections reached", "max_clients", r.maxClients)
		r.metrics.RejectedConnections.Inc()
		_ = c.connection.Close()
		c.errorChannel <- fmt.Errorf("%w (%d)", ErrTooManyClients, r.maxClients)
		return
	}

	onFailure := func(conn *websocket.Conn) { r.evict(conn, evictWriteError) }
	r.clients[c.connection] = newClientWriter(c.connection, r.clock, onFailure)
	r.metrics.ActiveConnections.Set(float64(len(r.clients)))

	slog.Debug("Client registered", "total_clients", len(r.clients))
	c.errorChannel <- nil
}

func (r *Registry) handleUnregister(conn *websocket.Conn, reason string) {
	cw, exists := r.clients[conn]
	if !exists {
		return
	}

	cw.stop()
	delete(r.clients, conn)

	r.metrics.ActiveConnections.Set(float64(len(r.clients)))
	if reason != evictClosed {
		r.metrics.Evictions.WithLabelValues(reason).Inc()
	}

	slog.Debug("Client unregistered", "reason", reason, "remaining_clients", len(r.clients))
}

// handleBroadcast delivers data to the snapshot of connections held at the
// moment the command is processed. A full buffer evicts that client only.
func (r *Registry) handleBroadcast(data []byte) {
	var slow []*websocket.Conn
	for conn, writer := range r.clients {
		if !writer.enqueue(data) {
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		slog.Warn("Disconnecting slow client", "remote_addr", conn.RemoteAddr().String())
		r.handleUnregister(conn, evictSlow)
	}

	r.metrics.MessagesBroadcast.Inc()
}

func (r *Registry) handleStop() {
	total := len(r.clients)
	slog.Info("Registry shutting down", "total_clients", total)
	r.closeAllClients("Server shutting down")
	slog.Info("Registry shutdown complete", "disconnected_clients", total)
}

// closeAllClients closes every connection with a close frame carrying reason.
func (r *Registry) closeAllClients(reason string) {
	for conn, cw := range r.clients {
		cw.stopGraceful(reason)
		delete(r.clients, conn)
	}
	r.metrics.ActiveConnections.Set(0)
}
