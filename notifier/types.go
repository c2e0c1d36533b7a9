// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package notifier

import "github.com/absmach/mqtt-agent/conn"

// RegisterRequest announces a started agent to the orchestrator.
type RegisterRequest struct {
	AgentID string `json:"agentId"`
	Address string `json:"address"`
}

// DiscoveryRequest re-announces the agent's control address.
type DiscoveryRequest struct {
	AgentID string `json:"agentId"`
	Address string `json:"address"`
}

// UnregisterRequest reports agent shutdown with its reason.
type UnregisterRequest struct {
	AgentID string `json:"agentId"`
	Reason  string `json:"reason"`
}

// MessageEvent carries an inbound MQTT message to the orchestrator.
type MessageEvent struct {
	AgentID      string        `json:"agentId"`
	ConnectionID int           `json:"connectionId"`
	Message      *conn.Message `json:"msg"`
}

// DisconnectEvent reports an unsolicited disconnect.
type DisconnectEvent struct {
	AgentID      string               `json:"agentId"`
	ConnectionID int                  `json:"connectionId"`
	Disconnect   *conn.DisconnectInfo `json:"disconnect,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// Ack is the empty reply to every notification.
type Ack struct{}
