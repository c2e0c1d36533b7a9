// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"crypto/tls"
	"net"
	"strconv"
)

// Params describes a single MQTT connection to establish. It is built
// by the control surface and not modified afterwards.
type Params struct {
	ClientID     string
	Host         string
	Port         uint16
	KeepAlive    uint16
	CleanSession bool
	Version      Version

	// TLS is nil for plain TCP connections.
	TLS *tls.Config

	// MQTT v5 CONNECT properties.
	UserProperties      []UserProperty
	RequestResponseInfo *bool
}

// Addr returns the broker address in host:port form.
func (p *Params) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port)))
}
