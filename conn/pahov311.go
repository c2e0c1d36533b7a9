// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// pahoV311 drives an MQTT 3.1.1 session over eclipse/paho.mqtt.golang.
// The protocol has no reason codes or properties; replies are padded
// with zero codes so both protocol levels report the same shape.
type pahoV311 struct {
	params *Params
	events wireEvents
	logger *slog.Logger

	mu      sync.Mutex
	client  mqtt.Client
	closing atomic.Bool
}

func newPahoV311(params *Params, events wireEvents, logger *slog.Logger) *pahoV311 {
	return &pahoV311{
		params: params,
		events: events,
		logger: logger,
	}
}

func (w *pahoV311) Connect(timeout time.Duration) error {
	scheme := "tcp"
	if w.params.TLS != nil {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s", scheme, w.params.Addr())).
		SetClientID(w.params.ClientID).
		SetCleanSession(w.params.CleanSession).
		SetKeepAlive(time.Duration(w.params.KeepAlive) * time.Second).
		SetConnectTimeout(timeout).
		SetAutoReconnect(false).
		SetProtocolVersion(4).
		SetDefaultPublishHandler(w.messageReceived).
		SetConnectionLostHandler(w.connectionLost)
	if w.params.TLS != nil {
		opts.SetTLSConfig(w.params.TLS)
	}

	client := mqtt.NewClient(opts)
	w.mu.Lock()
	w.client = client
	w.mu.Unlock()

	go func() {
		token := client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			w.events.onConnack(nil, err)
			return
		}

		ack := &ConnAckInfo{ReasonCode: intPtr(0)}
		if ct, ok := token.(*mqtt.ConnectToken); ok {
			ack.SessionPresent = boolPtr(ct.SessionPresent())
		}
		w.events.onConnack(ack, nil)
	}()
	return nil
}

func (w *pahoV311) Disconnect(reason byte, props []UserProperty) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}
	w.closing.Store(true)

	go func() {
		client.Disconnect(250)
		w.events.onDisconnected(nil, nil)
	}()
	return nil
}

func (w *pahoV311) Publish(msg *Message) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	go func() {
		token := client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
		token.Wait()
		if err := token.Error(); err != nil {
			w.events.onPubAck(nil, err)
			return
		}
		w.events.onPubAck(&PubAckInfo{ReasonCode: intPtr(0)}, nil)
	}()
	return nil
}

func (w *pahoV311) Subscribe(subs []Subscription, props []UserProperty) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	// SubscribeMultiple takes a map, so a filter listed twice collapses
	// into one wire entry carrying the last requested QoS. The reply
	// below still has one code per request slot; duplicates report the
	// single granted code.
	filters := make(map[string]byte, len(subs))
	for _, sub := range subs {
		filters[sub.Filter] = sub.QoS
	}

	go func() {
		token := client.SubscribeMultiple(filters, nil)
		token.Wait()
		if err := token.Error(); err != nil {
			w.events.onSubAck(nil, err)
			return
		}

		// SUBACK return codes are the granted QoS per filter, reported
		// in request order.
		ack := &SubAckInfo{ReasonCodes: make([]int, 0, len(subs))}
		if st, ok := token.(*mqtt.SubscribeToken); ok {
			granted := st.Result()
			for _, sub := range subs {
				ack.ReasonCodes = append(ack.ReasonCodes, int(granted[sub.Filter]))
			}
		}
		w.events.onSubAck(ack, nil)
	}()
	return nil
}

func (w *pahoV311) Unsubscribe(filters []string, props []UserProperty) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	go func() {
		token := client.Unsubscribe(filters...)
		token.Wait()
		if err := token.Error(); err != nil {
			w.events.onUnsubAck(nil, err)
			return
		}

		// UNSUBACK carries no per-filter codes at this protocol level;
		// fabricate a success code for each filter.
		ack := &SubAckInfo{ReasonCodes: make([]int, len(filters))}
		w.events.onUnsubAck(ack, nil)
	}()
	return nil
}

func (w *pahoV311) Close() error {
	w.closing.Store(true)
	w.mu.Lock()
	client := w.client
	w.client = nil
	w.mu.Unlock()

	if client != nil && client.IsConnectionOpen() {
		client.Disconnect(0)
	}
	return nil
}

// --- library callbacks ---

func (w *pahoV311) messageReceived(_ mqtt.Client, m mqtt.Message) {
	w.events.onMessage(&Message{
		Topic:   m.Topic(),
		Payload: m.Payload(),
		QoS:     m.Qos(),
		Retain:  m.Retained(),
	})
}

func (w *pahoV311) connectionLost(_ mqtt.Client, err error) {
	if w.closing.Load() {
		return
	}
	w.events.onDisconnected(nil, err)
}
