// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"log/slog"

	"github.com/eclipse/paho.golang/paho"
)

// UserProperty is a single MQTT v5 user property. Duplicate keys are
// allowed and order is preserved on the wire.
type UserProperty struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// toPahoUser converts user properties to the wire representation,
// keeping order. Returns nil for an empty list.
func toPahoUser(props []UserProperty) paho.UserProperties {
	if len(props) == 0 {
		return nil
	}
	out := make(paho.UserProperties, 0, len(props))
	for _, p := range props {
		out = append(out, paho.UserProperty{Key: p.Key, Value: p.Value})
	}
	return out
}

// fromPahoUser converts wire user properties back, keeping order.
func fromPahoUser(u paho.UserProperties) []UserProperty {
	if len(u) == 0 {
		return nil
	}
	out := make([]UserProperty, 0, len(u))
	for _, p := range u {
		out = append(out, UserProperty{Key: p.Key, Value: p.Value})
	}
	return out
}

// stripUserProps drops user properties on protocol levels that cannot
// carry them. The drop is logged once per call site.
func stripUserProps(version Version, props []UserProperty, where string, logger *slog.Logger) []UserProperty {
	if version == V50 || len(props) == 0 {
		return props
	}
	logger.Warn("user properties are not supported on this protocol level, dropping",
		slog.String("operation", where),
		slog.String("version", version.String()),
		slog.Int("count", len(props)))
	return nil
}
