// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Notifier receives events the agent cannot correlate with a pending
// request: inbound messages and broker initiated disconnects.
type Notifier interface {
	OnReceiveMqttMessage(connectionID int, msg *Message)
	OnMqttDisconnect(connectionID int, info *DisconnectInfo, errText string)
}

// Connection is a single MQTT session driven by the control surface.
// Each operation kind has at most one in-flight request; completions
// from the wire client resolve the matching slot.
type Connection struct {
	id      int
	params  *Params
	wire    wireClient
	state   *stateManager
	pending *pendingSet

	notifier Notifier
	logger   *slog.Logger
	closing  atomic.Bool
}

// NewConnection builds a connection for the given parameters. The wire
// client is chosen by protocol version; no network activity happens
// until Start.
func NewConnection(params *Params, notifier Notifier, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !params.Version.Valid() {
		return nil, ErrInvalidVersion
	}

	c := &Connection{
		params:   params,
		state:    newStateManager(),
		pending:  newPendingSet(),
		notifier: notifier,
		logger:   logger.With(slog.String("client_id", params.ClientID)),
	}

	if params.Version != V50 && (len(params.UserProperties) > 0 || params.RequestResponseInfo != nil) {
		c.logger.Warn("MQTT v5 connect properties are not supported on this protocol level, dropping")
		params.UserProperties = nil
		params.RequestResponseInfo = nil
	}

	events := wireEvents{
		onConnack:      c.handleConnack,
		onDisconnected: c.handleDisconnected,
		onPubAck:       c.handlePubAck,
		onSubAck:       c.handleSubAck,
		onUnsubAck:     c.handleUnsubAck,
		onMessage:      c.handleMessage,
	}

	switch params.Version {
	case V50:
		c.wire = newPahoV5(params, events, c.logger)
	case V311:
		c.wire = newPahoV311(params, events, c.logger)
	}

	return c, nil
}

// SetID binds the registry id. Called exactly once, at registration.
func (c *Connection) SetID(id int) {
	c.id = id
	c.logger = c.logger.With(slog.Int("connection_id", id))
}

// ID returns the registry id.
func (c *Connection) ID() int {
	return c.id
}

// Version returns the protocol level of the connection.
func (c *Connection) Version() Version {
	return c.params.Version
}

// State returns the current connection state.
func (c *Connection) State() State {
	return c.state.get()
}

// Start establishes the MQTT session. Refusals, timeouts and transport
// failures are reported inside the result rather than as an error; a
// non-nil error means the request could not even be issued.
func (c *Connection) Start(timeout time.Duration) (*ConnectResult, error) {
	if !c.state.transition(StateDisconnected, StateConnecting) {
		return nil, fmt.Errorf("%w: state %s", ErrAlreadyConnected, c.state.get())
	}

	op, err := c.pending.add(opConnect)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("connecting",
		slog.String("address", c.params.Addr()),
		slog.String("version", c.params.Version.String()))

	if err := c.wire.Connect(timeout); err != nil {
		c.pending.discard(op)
		c.state.set(StateDisconnected)
		return &ConnectResult{Err: err.Error()}, nil
	}

	result, err := op.wait(timeout)
	if err == ErrTimeout {
		c.pending.discard(op)
		c.state.set(StateDisconnected)
		_ = c.wire.Close()
		c.logger.Warn("connect timed out", slog.Duration("timeout", timeout))
		return &ConnectResult{Err: "connect timeout error"}, nil
	}

	ack, _ := result.(*ConnAckInfo)
	if err != nil {
		c.state.set(StateDisconnected)
		_ = c.wire.Close()
		c.logger.Warn("connect failed", slog.String("error", err.Error()))
		return &ConnectResult{ConnAck: ack, Err: err.Error()}, nil
	}

	c.state.set(StateConnected)
	c.logger.Info("connected", slog.String("address", c.params.Addr()))
	return &ConnectResult{Connected: true, ConnAck: ack}, nil
}

// Disconnect sends DISCONNECT and waits for the transport teardown.
// On 3.1.1 the reason code and properties cannot be sent and are
// dropped with a warning.
func (c *Connection) Disconnect(timeout time.Duration, reason byte, props []UserProperty) error {
	if !c.closing.CompareAndSwap(false, true) {
		c.logger.Warn("DISCONNECT was not sent on the dead connection")
		return nil
	}
	c.state.set(StateDisconnecting)

	if c.params.Version != V50 && reason != 0 {
		c.logger.Warn("disconnect reason code is not supported on this protocol level, dropping",
			slog.Int("reason", int(reason)))
		reason = 0
	}
	props = stripUserProps(c.params.Version, props, "disconnect", c.logger)

	op, err := c.pending.add(opDisconnect)
	if err != nil {
		return err
	}

	if err := c.wire.Disconnect(reason, props); err != nil {
		c.pending.discard(op)
		c.finish()
		return fmt.Errorf("couldn't disconnect from MQTT broker: %w", err)
	}

	if _, err := op.wait(timeout); err != nil {
		if err == ErrTimeout {
			c.pending.discard(op)
		}
		c.finish()
		return fmt.Errorf("couldn't disconnect from MQTT broker: %w", err)
	}

	c.finish()
	c.logger.Info("disconnected")
	return nil
}

// Publish sends a message and waits for the broker reply. Fails fast
// when the session is not established.
func (c *Connection) Publish(timeout time.Duration, msg *Message) (*PubAckInfo, error) {
	if err := c.stateCheck(); err != nil {
		return nil, err
	}

	if c.params.Version != V50 && msg.hasV5Properties() {
		c.logger.Warn("MQTT v5 publish properties are not supported on this protocol level, dropping",
			slog.String("topic", msg.Topic))
		msg = msg.Copy()
		msg.PayloadFormat = nil
		msg.MessageExpiry = nil
		msg.ResponseTopic = nil
		msg.CorrelationData = nil
		msg.ContentType = nil
		msg.UserProperties = nil
	}

	op, err := c.pending.add(opPublish)
	if err != nil {
		return nil, err
	}

	if err := c.wire.Publish(msg); err != nil {
		c.pending.discard(op)
		return nil, fmt.Errorf("couldn't publish: %w", err)
	}

	result, err := op.wait(timeout)
	if err != nil {
		if err == ErrTimeout {
			c.pending.discard(op)
			return nil, fmt.Errorf("publish: %w", ErrTimeout)
		}
		return nil, fmt.Errorf("couldn't publish: %w", err)
	}

	ack, _ := result.(*PubAckInfo)
	c.logger.Debug("published",
		slog.String("topic", msg.Topic),
		slog.Int("qos", int(msg.QoS)))
	return ack, nil
}

// Subscribe requests the given subscriptions and waits for the SUBACK.
// Reply codes preserve the order of the request.
func (c *Connection) Subscribe(timeout time.Duration, subs []Subscription, props []UserProperty) (*SubAckInfo, error) {
	if err := c.stateCheck(); err != nil {
		return nil, err
	}
	props = stripUserProps(c.params.Version, props, "subscribe", c.logger)

	op, err := c.pending.add(opSubscribe)
	if err != nil {
		return nil, err
	}

	if err := c.wire.Subscribe(subs, props); err != nil {
		c.pending.discard(op)
		return nil, fmt.Errorf("couldn't subscribe: %w", err)
	}

	result, err := op.wait(timeout)
	if err != nil {
		if err == ErrTimeout {
			c.pending.discard(op)
			return nil, fmt.Errorf("subscribe: %w", ErrTimeout)
		}
		return nil, fmt.Errorf("couldn't subscribe: %w", err)
	}

	ack, _ := result.(*SubAckInfo)
	return ack, nil
}

// Unsubscribe removes the given filters and waits for the UNSUBACK.
// On 3.1.1 the broker sends no per-filter codes; success codes are
// fabricated so the reply shape stays uniform.
func (c *Connection) Unsubscribe(timeout time.Duration, filters []string, props []UserProperty) (*SubAckInfo, error) {
	if err := c.stateCheck(); err != nil {
		return nil, err
	}
	props = stripUserProps(c.params.Version, props, "unsubscribe", c.logger)

	op, err := c.pending.add(opUnsubscribe)
	if err != nil {
		return nil, err
	}

	if err := c.wire.Unsubscribe(filters, props); err != nil {
		c.pending.discard(op)
		return nil, fmt.Errorf("couldn't unsubscribe: %w", err)
	}

	result, err := op.wait(timeout)
	if err != nil {
		if err == ErrTimeout {
			c.pending.discard(op)
			return nil, fmt.Errorf("unsubscribe: %w", ErrTimeout)
		}
		return nil, fmt.Errorf("couldn't unsubscribe: %w", err)
	}

	ack, _ := result.(*SubAckInfo)
	return ack, nil
}

// Close tears the connection down without a DISCONNECT exchange and
// fails every in-flight operation.
func (c *Connection) Close() error {
	c.closing.Store(true)
	c.state.set(StateClosed)
	c.pending.clear(ErrClosed)
	return c.wire.Close()
}

func (c *Connection) stateCheck() error {
	if c.closing.Load() {
		return ErrClosing
	}
	if !c.state.isConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *Connection) finish() {
	c.state.set(StateDisconnected)
	c.pending.clear(ErrClosing)
	_ = c.wire.Close()
}

// --- wire event handlers ---

func (c *Connection) handleConnack(ack *ConnAckInfo, err error) {
	c.pending.complete(opConnect, ack, err)
}

// handleDisconnected resolves a pending disconnect when one is open.
// Otherwise the session dropped on the broker's initiative and the
// orchestrator is informed, unless the agent is closing the
// connection itself.
func (c *Connection) handleDisconnected(info *DisconnectInfo, err error) {
	if c.pending.complete(opDisconnect, info, err) {
		return
	}
	if c.closing.Load() {
		return
	}

	c.state.set(StateDisconnected)
	c.pending.clear(ErrNotConnected)

	errText := ""
	if err != nil {
		errText = err.Error()
	}
	c.logger.Warn("connection lost", slog.String("error", errText))
	if c.notifier != nil {
		c.notifier.OnMqttDisconnect(c.id, info, errText)
	}
}

func (c *Connection) handlePubAck(ack *PubAckInfo, err error) {
	c.pending.complete(opPublish, ack, err)
}

func (c *Connection) handleSubAck(ack *SubAckInfo, err error) {
	c.pending.complete(opSubscribe, ack, err)
}

func (c *Connection) handleUnsubAck(ack *SubAckInfo, err error) {
	c.pending.complete(opUnsubscribe, ack, err)
}

func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("message received",
		slog.String("topic", msg.Topic),
		slog.Int("qos", int(msg.QoS)),
		slog.Int("payload_size", len(msg.Payload)))
	if c.notifier != nil {
		c.notifier.OnReceiveMqttMessage(c.id, msg)
	}
}
