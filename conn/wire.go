// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

import "time"

// wireEvents are the completion callbacks a wire client fires. The
// callbacks are invoked from the transport's goroutines; a completion
// that arrives after its operation slot was abandoned is discarded.
type wireEvents struct {
	onConnack      func(ack *ConnAckInfo, err error)
	onDisconnected func(info *DisconnectInfo, err error)
	onPubAck       func(ack *PubAckInfo, err error)
	onSubAck       func(ack *SubAckInfo, err error)
	onUnsubAck     func(ack *SubAckInfo, err error)
	onMessage      func(msg *Message)
}

// wireClient abstracts the protocol level MQTT transport. Methods
// fire the request and return quickly; outcomes arrive via wireEvents.
type wireClient interface {
	// Connect dials the broker and sends CONNECT. The outcome,
	// including dial failures and refused CONNACKs, is delivered
	// through onConnack.
	Connect(timeout time.Duration) error

	// Disconnect sends DISCONNECT and tears the transport down.
	// Completion is delivered through onDisconnected.
	Disconnect(reason byte, props []UserProperty) error

	// Publish sends the message. The broker reply (or a synthetic
	// success for QoS 0) is delivered through onPubAck.
	Publish(msg *Message) error

	// Subscribe sends SUBSCRIBE; the SUBACK arrives via onSubAck.
	Subscribe(subs []Subscription, props []UserProperty) error

	// Unsubscribe sends UNSUBSCRIBE; the UNSUBACK arrives via
	// onUnsubAck.
	Unsubscribe(filters []string, props []UserProperty) error

	// Close releases the transport without a DISCONNECT exchange.
	Close() error
}
