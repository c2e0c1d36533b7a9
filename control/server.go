// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"net/http"

	"connectrpc.com/connect"

	"github.com/absmach/mqtt-agent/pkg/codec"
)

// ServiceName is the fully qualified control service name.
const ServiceName = "mqtt.v1.MqttClientControl"

// Control procedure paths.
const (
	ShutdownAgentProcedure        = "/" + ServiceName + "/ShutdownAgent"
	CreateMqttConnectionProcedure = "/" + ServiceName + "/CreateMqttConnection"
	PublishMqttProcedure          = "/" + ServiceName + "/PublishMqtt"
	SubscribeMqttProcedure        = "/" + ServiceName + "/SubscribeMqtt"
	UnsubscribeMqttProcedure      = "/" + ServiceName + "/UnsubscribeMqtt"
	CloseMqttConnectionProcedure  = "/" + ServiceName + "/CloseMqttConnection"
)

// NewMux mounts every control procedure on a fresh ServeMux.
func NewMux(h *Handler, opts ...connect.HandlerOption) *http.ServeMux {
	opts = append(opts, connect.WithCodec(codec.JSON()))

	mux := http.NewServeMux()
	mux.Handle(ShutdownAgentProcedure, connect.NewUnaryHandler(ShutdownAgentProcedure, h.ShutdownAgent, opts...))
	mux.Handle(CreateMqttConnectionProcedure, connect.NewUnaryHandler(CreateMqttConnectionProcedure, h.CreateMqttConnection, opts...))
	mux.Handle(PublishMqttProcedure, connect.NewUnaryHandler(PublishMqttProcedure, h.PublishMqtt, opts...))
	mux.Handle(SubscribeMqttProcedure, connect.NewUnaryHandler(SubscribeMqttProcedure, h.SubscribeMqtt, opts...))
	mux.Handle(UnsubscribeMqttProcedure, connect.NewUnaryHandler(UnsubscribeMqttProcedure, h.UnsubscribeMqtt, opts...))
	mux.Handle(CloseMqttConnectionProcedure, connect.NewUnaryHandler(CloseMqttConnectionProcedure, h.CloseMqttConnection, opts...))
	return mux
}
