// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package control is the RPC surface the test orchestrator drives.
// Requests are validated eagerly, before any connection is touched;
// protocol outcomes and failures are mapped onto RPC statuses.
package control

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/absmach/mqtt-agent/conn"
	"github.com/absmach/mqtt-agent/credentials"
	"github.com/absmach/mqtt-agent/server/otel"
)

// maxSubscriptionID is the largest MQTT v5 subscription identifier.
const maxSubscriptionID = 268435455

// Validation errors.
var (
	errEmptyClientID         = errors.New("empty clientId")
	errEmptyHost             = errors.New("empty host")
	errInvalidPort           = errors.New("invalid port, must be in range [1, 65535]")
	errInvalidKeepAlive      = errors.New("invalid keepalive, must be 0 or in range [5, 65535]")
	errInvalidConnectTimeout = errors.New("invalid connect timeout, must be >= 1")
	errInvalidTimeout        = errors.New("invalid timeout, must be >= 1")
	errEmptyCA               = errors.New("empty CA")
	errEmptyCert             = errors.New("empty certificate")
	errEmptyKey              = errors.New("empty private key")
	errMissingMessage        = errors.New("missing message")
	errEmptyTopic            = errors.New("empty topic")
	errInvalidQoS            = errors.New("invalid QoS, must be in range [0, 2]")
	errInvalidReason         = errors.New("invalid disconnect reason, must be in range [0, 255]")
	errEmptySubscriptions    = errors.New("empty subscriptions list")
	errEmptyFilter           = errors.New("empty filter")
	errEmptyFilters          = errors.New("empty filters list")
	errInvalidRetain         = errors.New("invalid retain handling, must be in range [0, 2]")
	errInvalidSubID          = errors.New("invalid subscription id, must be in range [1, 268435455]")
)

// Handler implements the agent control procedures.
type Handler struct {
	registry *conn.Registry
	notifier conn.Notifier
	creds    *credentials.Store
	metrics  *otel.Metrics
	shutdown func(reason string)
	logger   *slog.Logger
}

// NewHandler creates the control handler. metrics and shutdown may be
// nil when the corresponding wiring is disabled.
func NewHandler(registry *conn.Registry, notifier conn.Notifier, creds *credentials.Store, metrics *otel.Metrics, shutdown func(reason string), logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		notifier: notifier,
		creds:    creds,
		metrics:  metrics,
		shutdown: shutdown,
		logger:   logger,
	}
}

// ShutdownAgent asks the whole process to terminate.
func (h *Handler) ShutdownAgent(ctx context.Context, req *connect.Request[ShutdownRequest]) (*connect.Response[ShutdownReply], error) {
	h.logger.Info("shutdown requested", slog.String("reason", req.Msg.Reason))
	if h.shutdown != nil {
		go h.shutdown(req.Msg.Reason)
	}
	return connect.NewResponse(&ShutdownReply{}), nil
}

// CreateMqttConnection establishes a new MQTT connection and registers
// it. Refused and timed out attempts are reported inside the reply;
// the failed connection is disposed and its id is never reused.
func (h *Handler) CreateMqttConnection(ctx context.Context, req *connect.Request[ConnectRequest]) (*connect.Response[ConnectReply], error) {
	msg := req.Msg
	if err := validateConnect(msg); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	params := &conn.Params{
		ClientID:            msg.ClientID,
		Host:                msg.Host,
		Port:                uint16(msg.Port),
		KeepAlive:           uint16(msg.KeepAlive),
		CleanSession:        msg.CleanSession,
		Version:             conn.Version(msg.ProtocolVersion),
		UserProperties:      msg.Properties,
		RequestResponseInfo: msg.RequestResponseInformation,
	}
	if msg.TLS != nil {
		tlsCfg, err := h.creds.ClientTLSConfig([]byte(msg.TLS.CA), []byte(msg.TLS.Cert), []byte(msg.TLS.Key))
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		params.TLS = tlsCfg
	}

	c, err := conn.NewConnection(params, h.notifier, h.logger)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	id := h.registry.Register(c)

	start := time.Now()
	result, err := c.Start(time.Duration(msg.Timeout) * time.Second)
	if err != nil {
		h.dispose(id)
		h.record(ctx, "connect", err, start)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	reply := &ConnectReply{
		ConnectionID: id,
		Connected:    result.Connected,
		ConnAck:      result.ConnAck,
		Error:        result.Err,
	}
	if !result.Connected {
		h.dispose(id)
		h.record(ctx, "connect", errors.New(result.Err), start)
		return connect.NewResponse(reply), nil
	}

	h.record(ctx, "connect", nil, start)
	if h.metrics != nil {
		h.metrics.AddConnections(ctx, 1)
	}
	return connect.NewResponse(reply), nil
}

// PublishMqtt publishes one message on an open connection.
func (h *Handler) PublishMqtt(ctx context.Context, req *connect.Request[PublishRequest]) (*connect.Response[PublishReply], error) {
	msg := req.Msg
	if err := validatePublish(msg); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	c, err := h.registry.Get(msg.ConnectionID)
	if err != nil {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}

	start := time.Now()
	ack, err := c.Publish(time.Duration(msg.Timeout)*time.Second, msg.Message)
	h.record(ctx, "publish", err, start)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	reply := &PublishReply{}
	if ack != nil {
		reply.PubAckInfo = *ack
	}
	return connect.NewResponse(reply), nil
}

// SubscribeMqtt adds subscriptions on an open connection.
func (h *Handler) SubscribeMqtt(ctx context.Context, req *connect.Request[SubscribeRequest]) (*connect.Response[SubscribeReply], error) {
	msg := req.Msg
	if err := validateSubscribe(msg); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	c, err := h.registry.Get(msg.ConnectionID)
	if err != nil {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}

	start := time.Now()
	ack, err := c.Subscribe(time.Duration(msg.Timeout)*time.Second, msg.Subscriptions, msg.Properties)
	h.record(ctx, "subscribe", err, start)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	reply := &SubscribeReply{}
	if ack != nil {
		reply.SubAckInfo = *ack
	}
	return connect.NewResponse(reply), nil
}

// UnsubscribeMqtt removes subscriptions on an open connection.
func (h *Handler) UnsubscribeMqtt(ctx context.Context, req *connect.Request[UnsubscribeRequest]) (*connect.Response[SubscribeReply], error) {
	msg := req.Msg
	if err := validateUnsubscribe(msg); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	c, err := h.registry.Get(msg.ConnectionID)
	if err != nil {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}

	start := time.Now()
	ack, err := c.Unsubscribe(time.Duration(msg.Timeout)*time.Second, msg.Filters, msg.Properties)
	h.record(ctx, "unsubscribe", err, start)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	reply := &SubscribeReply{}
	if ack != nil {
		reply.SubAckInfo = *ack
	}
	return connect.NewResponse(reply), nil
}

// CloseMqttConnection disconnects and disposes a connection. The id is
// unregistered first, so concurrent callers observe not-found from
// that point on.
func (h *Handler) CloseMqttConnection(ctx context.Context, req *connect.Request[CloseRequest]) (*connect.Response[CloseReply], error) {
	msg := req.Msg
	if msg.Reason < 0 || msg.Reason > 255 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errInvalidReason)
	}
	if msg.Timeout < 1 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errInvalidTimeout)
	}

	c, err := h.registry.Unregister(msg.ConnectionID)
	if err != nil {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	if h.metrics != nil {
		h.metrics.AddConnections(ctx, -1)
	}

	start := time.Now()
	err = c.Disconnect(time.Duration(msg.Timeout)*time.Second, byte(msg.Reason), msg.Properties)
	h.record(ctx, "disconnect", err, start)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&CloseReply{}), nil
}

func (h *Handler) dispose(id int) {
	c, err := h.registry.Unregister(id)
	if err != nil {
		return
	}
	if err := c.Close(); err != nil {
		h.logger.Warn("failed to dispose connection",
			slog.Int("connection_id", id),
			slog.String("error", err.Error()))
	}
}

func (h *Handler) record(ctx context.Context, op string, err error, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordOperation(ctx, op, err == nil, time.Since(start))
}

// --- request validation ---

func validateConnect(msg *ConnectRequest) error {
	if msg.ClientID == "" {
		return errEmptyClientID
	}
	if msg.Host == "" {
		return errEmptyHost
	}
	if msg.Port < 1 || msg.Port > 65535 {
		return errInvalidPort
	}
	if msg.KeepAlive != 0 && (msg.KeepAlive < 5 || msg.KeepAlive > 65535) {
		return errInvalidKeepAlive
	}
	// Checked on the int; a byte conversion first would let values
	// congruent to 4 or 5 mod 256 wrap into a valid version.
	if msg.ProtocolVersion != int(conn.V311) && msg.ProtocolVersion != int(conn.V50) {
		return conn.ErrInvalidVersion
	}
	if msg.Timeout < 1 {
		return errInvalidConnectTimeout
	}
	if msg.TLS != nil {
		if msg.TLS.CA == "" {
			return errEmptyCA
		}
		if msg.TLS.Cert == "" {
			return errEmptyCert
		}
		if msg.TLS.Key == "" {
			return errEmptyKey
		}
	}
	return nil
}

func validatePublish(msg *PublishRequest) error {
	if msg.Timeout < 1 {
		return errInvalidTimeout
	}
	if msg.Message == nil {
		return errMissingMessage
	}
	if msg.Message.Topic == "" {
		return errEmptyTopic
	}
	if msg.Message.QoS > 2 {
		return errInvalidQoS
	}
	return nil
}

func validateSubscribe(msg *SubscribeRequest) error {
	if msg.Timeout < 1 {
		return errInvalidTimeout
	}
	if len(msg.Subscriptions) == 0 {
		return errEmptySubscriptions
	}
	if msg.SubscriptionID != nil && (*msg.SubscriptionID < 1 || *msg.SubscriptionID > maxSubscriptionID) {
		return errInvalidSubID
	}
	for _, sub := range msg.Subscriptions {
		if sub.Filter == "" {
			return errEmptyFilter
		}
		if sub.QoS > 2 {
			return errInvalidQoS
		}
		if sub.RetainHandling > 2 {
			return errInvalidRetain
		}
	}
	return nil
}

func validateUnsubscribe(msg *UnsubscribeRequest) error {
	if msg.Timeout < 1 {
		return errInvalidTimeout
	}
	if len(msg.Filters) == 0 {
		return errEmptyFilters
	}
	for _, f := range msg.Filters {
		if f == "" {
			return errEmptyFilter
		}
	}
	return nil
}
