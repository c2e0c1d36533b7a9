// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

// ConnAckInfo is a snapshot of a CONNACK packet. Every field is
// optional; a nil pointer means the broker did not send the property.
type ConnAckInfo struct {
	SessionPresent *bool   `json:"sessionPresent,omitempty"`
	ReasonCode     *int    `json:"reasonCode,omitempty"`
	ReasonString   *string `json:"reasonString,omitempty"`

	SessionExpiryInterval *uint32 `json:"sessionExpiryInterval,omitempty"`
	ReceiveMaximum        *uint16 `json:"receiveMaximum,omitempty"`
	MaximumQoS            *int    `json:"maximumQos,omitempty"`
	RetainAvailable       *bool   `json:"retainAvailable,omitempty"`
	MaximumPacketSize     *uint32 `json:"maximumPacketSize,omitempty"`
	AssignedClientID      *string `json:"assignedClientId,omitempty"`
	TopicAliasMaximum     *uint16 `json:"topicAliasMaximum,omitempty"`

	WildcardSubscriptionsAvailable   *bool `json:"wildcardSubscriptionsAvailable,omitempty"`
	SubscriptionIdentifiersAvailable *bool `json:"subscriptionIdentifiersAvailable,omitempty"`
	SharedSubscriptionsAvailable     *bool `json:"sharedSubscriptionsAvailable,omitempty"`

	ServerKeepAlive     *uint16        `json:"serverKeepAlive,omitempty"`
	ResponseInformation *string        `json:"responseInformation,omitempty"`
	ServerReference     *string        `json:"serverReference,omitempty"`
	UserProperties      []UserProperty `json:"userProperties,omitempty"`
}

// ConnectResult is the outcome of a connection attempt. Refusals and
// timeouts are carried in Err rather than raised, so the control
// surface can report them as data.
type ConnectResult struct {
	Connected bool
	ConnAck   *ConnAckInfo
	Err       string
}

// DisconnectInfo is a snapshot of a DISCONNECT packet received from
// the broker, or of the reason the connection went down.
type DisconnectInfo struct {
	ReasonCode            *int           `json:"reasonCode,omitempty"`
	SessionExpiryInterval *uint32        `json:"sessionExpiryInterval,omitempty"`
	ReasonString          *string        `json:"reasonString,omitempty"`
	ServerReference       *string        `json:"serverReference,omitempty"`
	UserProperties        []UserProperty `json:"userProperties,omitempty"`
}

// PubAckInfo is the broker's reply to a PUBLISH.
type PubAckInfo struct {
	ReasonCode     *int           `json:"reasonCode,omitempty"`
	ReasonString   *string        `json:"reasonString,omitempty"`
	UserProperties []UserProperty `json:"userProperties,omitempty"`
}

// SubAckInfo is the broker's reply to a SUBSCRIBE or UNSUBSCRIBE.
// ReasonCodes preserves the order of the requested filters.
type SubAckInfo struct {
	ReasonCodes    []int          `json:"reasonCodes"`
	ReasonString   *string        `json:"reasonString,omitempty"`
	UserProperties []UserProperty `json:"userProperties,omitempty"`
}

// Subscription is a single entry of a SUBSCRIBE request.
type Subscription struct {
	Filter            string `json:"filter"`
	QoS               byte   `json:"qos"`
	NoLocal           bool   `json:"noLocal"`
	RetainAsPublished bool   `json:"retainAsPublished"`
	RetainHandling    byte   `json:"retainHandling"`
}

func boolPtr(v bool) *bool { return &v }

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func u16Ptr(v uint16) *uint16 { return &v }

func u32Ptr(v uint32) *uint32 { return &v }
