// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package control

import "github.com/absmach/mqtt-agent/conn"

// TLSSettings carries PEM encoded TLS material inline in the request.
// All three fields are required together.
type TLSSettings struct {
	CA   string `json:"ca"`
	Cert string `json:"cert"`
	Key  string `json:"key"`
}

// ConnectRequest asks the agent to establish a new MQTT connection.
// ProtocolVersion is the MQTT protocol level: 4 for 3.1.1, 5 for 5.0.
// Timeout is in seconds.
type ConnectRequest struct {
	ClientID        string       `json:"clientId"`
	Host            string       `json:"host"`
	Port            int          `json:"port"`
	KeepAlive       int          `json:"keepalive"`
	CleanSession    bool         `json:"cleanSession"`
	ProtocolVersion int          `json:"protocolVersion"`
	TLS             *TLSSettings `json:"tls,omitempty"`
	Timeout         int          `json:"timeout"`

	Properties                 []conn.UserProperty `json:"properties,omitempty"`
	RequestResponseInformation *bool               `json:"requestResponseInformation,omitempty"`
}

// ConnectReply reports the outcome of a connection attempt. Refused or
// timed out attempts come back with Connected=false and Error set; the
// RPC itself still succeeds.
type ConnectReply struct {
	ConnectionID int               `json:"connectionId"`
	Connected    bool              `json:"connected"`
	ConnAck      *conn.ConnAckInfo `json:"connAck,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// PublishRequest publishes one message on an open connection.
type PublishRequest struct {
	ConnectionID int           `json:"connectionId"`
	Timeout      int           `json:"timeout"`
	Message      *conn.Message `json:"msg"`
}

// PublishReply carries the broker's PUBACK contents.
type PublishReply struct {
	conn.PubAckInfo
}

// SubscribeRequest adds subscriptions on an open connection. The
// optional subscription identifier is validated but not forwarded.
type SubscribeRequest struct {
	ConnectionID   int                 `json:"connectionId"`
	Timeout        int                 `json:"timeout"`
	SubscriptionID *int                `json:"subscriptionId,omitempty"`
	Subscriptions  []conn.Subscription `json:"subscriptions"`
	Properties     []conn.UserProperty `json:"properties,omitempty"`
}

// SubscribeReply carries per-filter reason codes in request order. It
// is shared by subscribe and unsubscribe.
type SubscribeReply struct {
	conn.SubAckInfo
}

// UnsubscribeRequest removes subscriptions on an open connection.
type UnsubscribeRequest struct {
	ConnectionID int                 `json:"connectionId"`
	Timeout      int                 `json:"timeout"`
	Filters      []string            `json:"filters"`
	Properties   []conn.UserProperty `json:"properties,omitempty"`
}

// CloseRequest disconnects and disposes a connection.
type CloseRequest struct {
	ConnectionID int                 `json:"connectionId"`
	Reason       int                 `json:"reason"`
	Timeout      int                 `json:"timeout"`
	Properties   []conn.UserProperty `json:"properties,omitempty"`
}

// CloseReply is empty; errors travel as RPC statuses.
type CloseReply struct{}

// ShutdownRequest asks the whole agent to terminate.
type ShutdownRequest struct {
	Reason string `json:"reason"`
}

// ShutdownReply is empty.
type ShutdownReply struct{}
