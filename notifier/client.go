// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package notifier

import (
	"connectrpc.com/connect"

	"github.com/absmach/mqtt-agent/pkg/codec"
)

// ServiceName is the fully qualified orchestrator discovery service.
const ServiceName = "mqtt.v1.MqttAgentDiscovery"

// Discovery procedure paths.
const (
	RegisterAgentProcedure        = "/" + ServiceName + "/RegisterAgent"
	DiscoveryAgentProcedure       = "/" + ServiceName + "/DiscoveryAgent"
	UnregisterAgentProcedure      = "/" + ServiceName + "/UnregisterAgent"
	OnReceiveMqttMessageProcedure = "/" + ServiceName + "/OnReceiveMqttMessage"
	OnMqttDisconnectProcedure     = "/" + ServiceName + "/OnMqttDisconnect"
)

// Client holds the hand-wired connect clients for every discovery
// procedure.
type Client struct {
	registerAgent   *connect.Client[RegisterRequest, Ack]
	discoveryAgent  *connect.Client[DiscoveryRequest, Ack]
	unregisterAgent *connect.Client[UnregisterRequest, Ack]
	onMessage       *connect.Client[MessageEvent, Ack]
	onDisconnect    *connect.Client[DisconnectEvent, Ack]
}

// NewClient builds a discovery client against the given base URL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append(opts, connect.WithCodec(codec.JSON()))

	return &Client{
		registerAgent:   connect.NewClient[RegisterRequest, Ack](httpClient, baseURL+RegisterAgentProcedure, opts...),
		discoveryAgent:  connect.NewClient[DiscoveryRequest, Ack](httpClient, baseURL+DiscoveryAgentProcedure, opts...),
		unregisterAgent: connect.NewClient[UnregisterRequest, Ack](httpClient, baseURL+UnregisterAgentProcedure, opts...),
		onMessage:       connect.NewClient[MessageEvent, Ack](httpClient, baseURL+OnReceiveMqttMessageProcedure, opts...),
		onDisconnect:    connect.NewClient[DisconnectEvent, Ack](httpClient, baseURL+OnMqttDisconnectProcedure, opts...),
	}
}
