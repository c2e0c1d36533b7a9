// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

import "errors"

// Connection errors.
var (
	ErrNotConnected     = errors.New("MQTT client is not in connected state")
	ErrClosing          = errors.New("MQTT connection is closing")
	ErrAlreadyConnected = errors.New("MQTT client already connected")
	ErrClosed           = errors.New("MQTT connection has been closed")

	// Operation errors.
	ErrTimeout            = errors.New("operation timed out")
	ErrOperationInFlight  = errors.New("operation of the same kind is already in flight")
	ErrConnectionNotFound = errors.New("connection doesn't found")

	// Configuration errors.
	ErrInvalidVersion = errors.New("invalid MQTT protocol version (must be 4 or 5)")
)
