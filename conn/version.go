// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

// Version is the MQTT protocol level requested for a connection.
type Version byte

const (
	V311 Version = 4
	V50  Version = 5
)

// String returns the protocol name.
func (v Version) String() string {
	switch v {
	case V311:
		return "3.1.1"
	case V50:
		return "5.0"
	default:
		return "unknown"
	}
}

// Valid reports whether the version is one the agent can speak.
func (v Version) Valid() bool {
	return v == V311 || v == V50
}
