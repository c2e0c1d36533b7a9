// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the JSON codec shared by the control server
// and the notifier client. Procedures are hand-wired over plain Go
// structs, so the stock protobuf codecs do not apply.
package codec

import (
	"encoding/json"

	"connectrpc.com/connect"
)

type jsonCodec struct{}

// JSON returns a connect codec that marshals plain Go structs.
func JSON() connect.Codec {
	return jsonCodec{}
}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(message any) ([]byte, error) {
	return json.Marshal(message)
}

func (jsonCodec) Unmarshal(data []byte, message any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, message)
}
