// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package notifier pushes asynchronous events to the orchestrator:
// agent registration, inbound MQTT messages, unsolicited disconnects.
// Delivery is fire-and-forget through a bounded queue with a worker
// pool and a circuit breaker; drops are logged, never fatal.
package notifier

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/sony/gobreaker"

	"github.com/absmach/mqtt-agent/config"
	"github.com/absmach/mqtt-agent/conn"
	"github.com/absmach/mqtt-agent/server/otel"
)

// maxRetryInterval caps the exponential backoff between delivery
// attempts.
const maxRetryInterval = 30 * time.Second

type eventJob struct {
	kind    string
	send    func(ctx context.Context) error
	attempt int
}

// Notifier delivers agent events to the orchestrator. It implements
// conn.Notifier. A Notifier with no configured URL drops every event
// with a debug log, which keeps standalone runs working.
type Notifier struct {
	cfg     config.NotifierConfig
	agentID string
	address string
	client  *Client
	metrics *otel.Metrics
	logger  *slog.Logger

	eventQueue chan eventJob
	breaker    *gobreaker.CircuitBreaker
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates the notifier and starts its worker pool. address is the
// agent's own control listen address, announced at registration.
func New(cfg config.NotifierConfig, agentID, address string, httpClient *http.Client, metrics *otel.Metrics, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	ctx, cancel := context.WithCancel(context.Background())

	n := &Notifier{
		cfg:        cfg,
		agentID:    agentID,
		address:    address,
		metrics:    metrics,
		logger:     logger,
		eventQueue: make(chan eventJob, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	if cfg.URL != "" {
		n.client = NewClient(httpClient, cfg.URL)
	}

	n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "orchestrator",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("notifier circuit breaker state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	for i := 0; i < cfg.Workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}

	logger.Info("notifier started",
		slog.Int("workers", cfg.Workers),
		slog.Int("queue_size", cfg.QueueSize),
		slog.String("url", cfg.URL))

	return n
}

// RegisterAgent announces the agent to the orchestrator. Called once
// at startup, synchronously.
func (n *Notifier) RegisterAgent(ctx context.Context) error {
	if n.client == nil {
		return nil
	}
	req := &RegisterRequest{AgentID: n.agentID, Address: n.address}
	_, err := n.client.registerAgent.CallUnary(ctx, connect.NewRequest(req))
	return err
}

// DiscoveryAgent re-announces the agent's control address.
func (n *Notifier) DiscoveryAgent(ctx context.Context) error {
	if n.client == nil {
		return nil
	}
	req := &DiscoveryRequest{AgentID: n.agentID, Address: n.address}
	_, err := n.client.discoveryAgent.CallUnary(ctx, connect.NewRequest(req))
	return err
}

// UnregisterAgent reports shutdown with the given reason.
func (n *Notifier) UnregisterAgent(ctx context.Context, reason string) error {
	if n.client == nil {
		return nil
	}
	req := &UnregisterRequest{AgentID: n.agentID, Reason: reason}
	_, err := n.client.unregisterAgent.CallUnary(ctx, connect.NewRequest(req))
	return err
}

// OnReceiveMqttMessage queues an inbound message event.
func (n *Notifier) OnReceiveMqttMessage(connectionID int, msg *conn.Message) {
	event := &MessageEvent{AgentID: n.agentID, ConnectionID: connectionID, Message: msg}
	n.enqueue(eventJob{
		kind: "message",
		send: func(ctx context.Context) error {
			_, err := n.client.onMessage.CallUnary(ctx, connect.NewRequest(event))
			return err
		},
	})
}

// OnMqttDisconnect queues an unsolicited disconnect event.
func (n *Notifier) OnMqttDisconnect(connectionID int, info *conn.DisconnectInfo, errText string) {
	event := &DisconnectEvent{AgentID: n.agentID, ConnectionID: connectionID, Disconnect: info, Error: errText}
	n.enqueue(eventJob{
		kind: "disconnect",
		send: func(ctx context.Context) error {
			_, err := n.client.onDisconnect.CallUnary(ctx, connect.NewRequest(event))
			return err
		},
	})
}

// enqueue adds a job, dropping the oldest queued event when full.
func (n *Notifier) enqueue(job eventJob) {
	if n.client == nil {
		n.logger.Debug("no orchestrator configured, event dropped",
			slog.String("kind", job.kind))
		return
	}

	select {
	case n.eventQueue <- job:
		return
	default:
	}

	select {
	case dropped := <-n.eventQueue:
		n.logger.Warn("notifier queue full, oldest event dropped",
			slog.String("kind", dropped.kind))
		n.recordEvent(dropped.kind, false)
	default:
	}
	select {
	case n.eventQueue <- job:
	default:
		n.logger.Error("notifier queue full, event dropped",
			slog.String("kind", job.kind))
		n.recordEvent(job.kind, false)
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			return
		case job := <-n.eventQueue:
			n.processJob(job)
		}
	}
}

// processJob delivers one event through the breaker, retrying with
// exponential backoff until the attempts are exhausted.
func (n *Notifier) processJob(job eventJob) {
	_, err := n.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
		defer cancel()
		return nil, job.send(ctx)
	})
	if err == nil {
		n.recordEvent(job.kind, true)
		n.logger.Debug("event delivered", slog.String("kind", job.kind))
		return
	}

	if job.attempt < n.cfg.MaxAttempts-1 {
		job.attempt++
		delay := n.retryDelay(job.attempt)

		n.logger.Debug("event delivery failed, retrying",
			slog.String("kind", job.kind),
			slog.Int("attempt", job.attempt),
			slog.Duration("retry_after", delay),
			slog.String("error", err.Error()))

		time.AfterFunc(delay, func() {
			select {
			case n.eventQueue <- job:
			default:
				n.logger.Error("failed to requeue event for retry",
					slog.String("kind", job.kind))
				n.recordEvent(job.kind, false)
			}
		})
		return
	}

	n.logger.Error("event delivery failed after max attempts",
		slog.String("kind", job.kind),
		slog.Int("attempts", job.attempt+1),
		slog.String("error", err.Error()))
	n.recordEvent(job.kind, false)
}

func (n *Notifier) retryDelay(attempt int) time.Duration {
	delay := n.cfg.InitialInterval
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxRetryInterval {
			return maxRetryInterval
		}
	}
	return delay
}

func (n *Notifier) recordEvent(kind string, delivered bool) {
	if n.metrics == nil {
		return
	}
	n.metrics.RecordEvent(context.Background(), kind, delivered)
}

// Close gracefully shuts down the notifier.
func (n *Notifier) Close() error {
	n.logger.Info("shutting down notifier")

	n.cancel()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.logger.Info("notifier stopped gracefully")
	case <-time.After(n.cfg.ShutdownTimeout):
		n.logger.Warn("notifier shutdown timeout, some events may be lost",
			slog.Int("queue_depth", len(n.eventQueue)))
	}

	return nil
}
