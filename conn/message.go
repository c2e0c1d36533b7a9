// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

// Message is an MQTT application message, outbound or inbound.
// MQTT v5 only fields use pointers so that absence survives the
// round trip to the control plane untouched.
type Message struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
	QoS     byte   `json:"qos"`
	Retain  bool   `json:"retain"`

	// MQTT v5 publish properties.
	PayloadFormat   *bool          `json:"payloadFormatIndicator,omitempty"`
	MessageExpiry   *uint32        `json:"messageExpiryInterval,omitempty"`
	ResponseTopic   *string        `json:"responseTopic,omitempty"`
	CorrelationData []byte         `json:"correlationData,omitempty"`
	ContentType     *string        `json:"contentType,omitempty"`
	UserProperties  []UserProperty `json:"userProperties,omitempty"`
}

// hasV5Properties reports whether any v5 only field is set.
func (m *Message) hasV5Properties() bool {
	return m.PayloadFormat != nil ||
		m.MessageExpiry != nil ||
		m.ResponseTopic != nil ||
		m.CorrelationData != nil ||
		m.ContentType != nil ||
		len(m.UserProperties) > 0
}

// Copy returns a deep copy of the message.
func (m *Message) Copy() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Payload != nil {
		cp.Payload = make([]byte, len(m.Payload))
		copy(cp.Payload, m.Payload)
	}
	if m.CorrelationData != nil {
		cp.CorrelationData = make([]byte, len(m.CorrelationData))
		copy(cp.CorrelationData, m.CorrelationData)
	}
	if m.PayloadFormat != nil {
		v := *m.PayloadFormat
		cp.PayloadFormat = &v
	}
	if m.MessageExpiry != nil {
		v := *m.MessageExpiry
		cp.MessageExpiry = &v
	}
	if m.ResponseTopic != nil {
		v := *m.ResponseTopic
		cp.ResponseTopic = &v
	}
	if m.ContentType != nil {
		v := *m.ContentType
		cp.ContentType = &v
	}
	if m.UserProperties != nil {
		cp.UserProperties = make([]UserProperty, len(m.UserProperties))
		copy(cp.UserProperties, m.UserProperties)
	}
	return &cp
}
