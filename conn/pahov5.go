// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"
)

// pahoV5 drives an MQTT 5.0 session over eclipse/paho.golang. The
// library wants an established net.Conn, so dialing is part of
// Connect here.
type pahoV5 struct {
	params *Params
	events wireEvents
	logger *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	client  *paho.Client
	closing atomic.Bool
}

func newPahoV5(params *Params, events wireEvents, logger *slog.Logger) *pahoV5 {
	return &pahoV5{
		params: params,
		events: events,
		logger: logger,
	}
}

func (w *pahoV5) Connect(timeout time.Duration) error {
	go func() {
		dialer := net.Dialer{Timeout: timeout}

		var (
			netConn net.Conn
			err     error
		)
		if w.params.TLS != nil {
			netConn, err = tls.DialWithDialer(&dialer, "tcp", w.params.Addr(), w.params.TLS)
		} else {
			netConn, err = dialer.Dial("tcp", w.params.Addr())
		}
		if err != nil {
			w.events.onConnack(nil, err)
			return
		}

		client := paho.NewClient(paho.ClientConfig{
			Conn: netConn,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				w.publishReceived,
			},
			OnServerDisconnect: w.serverDisconnect,
			OnClientError:      w.clientError,
		})

		w.mu.Lock()
		w.conn = netConn
		w.client = client
		w.mu.Unlock()

		cp := w.connectPacket()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		ca, err := client.Connect(ctx, cp)
		w.events.onConnack(connackToInfo(ca), err)
	}()
	return nil
}

// connectPacket translates the connection parameters into a CONNECT
// packet.
func (w *pahoV5) connectPacket() *paho.Connect {
	cp := &paho.Connect{
		ClientID:   w.params.ClientID,
		CleanStart: w.params.CleanSession,
		KeepAlive:  w.params.KeepAlive,
	}
	if len(w.params.UserProperties) > 0 || w.params.RequestResponseInfo != nil {
		cp.Properties = &paho.ConnectProperties{
			User: toPahoUser(w.params.UserProperties),
		}
		if w.params.RequestResponseInfo != nil {
			cp.Properties.RequestResponseInfo = *w.params.RequestResponseInfo
		}
	}
	return cp
}

func (w *pahoV5) Disconnect(reason byte, props []UserProperty) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}
	w.closing.Store(true)

	go func() {
		d := &paho.Disconnect{ReasonCode: reason}
		if len(props) > 0 {
			d.Properties = &paho.DisconnectProperties{User: toPahoUser(props)}
		}
		if err := client.Disconnect(d); err != nil {
			w.logger.Warn("DISCONNECT was not sent on the dead connection",
				slog.String("error", err.Error()))
		}
		w.events.onDisconnected(nil, nil)
	}()
	return nil
}

func (w *pahoV5) Publish(msg *Message) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	p := &paho.Publish{
		Topic:   msg.Topic,
		Payload: msg.Payload,
		QoS:     msg.QoS,
		Retain:  msg.Retain,
	}
	if msg.hasV5Properties() {
		p.Properties = &paho.PublishProperties{
			CorrelationData: msg.CorrelationData,
			MessageExpiry:   msg.MessageExpiry,
			User:            toPahoUser(msg.UserProperties),
		}
		if msg.PayloadFormat != nil {
			var v byte
			if *msg.PayloadFormat {
				v = 1
			}
			p.Properties.PayloadFormat = &v
		}
		if msg.ResponseTopic != nil {
			p.Properties.ResponseTopic = *msg.ResponseTopic
		}
		if msg.ContentType != nil {
			p.Properties.ContentType = *msg.ContentType
		}
	}

	go func() {
		resp, err := client.Publish(context.Background(), p)
		if resp == nil {
			w.events.onPubAck(nil, err)
			return
		}

		// Non-success reason codes travel inside the reply, not as an
		// error, so the control surface can report them verbatim.
		ack := &PubAckInfo{ReasonCode: intPtr(int(resp.ReasonCode))}
		if resp.Properties != nil {
			if resp.Properties.ReasonString != "" {
				ack.ReasonString = strPtr(resp.Properties.ReasonString)
			}
			ack.UserProperties = fromPahoUser(resp.Properties.User)
		}
		w.events.onPubAck(ack, nil)
	}()
	return nil
}

func (w *pahoV5) Subscribe(subs []Subscription, props []UserProperty) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	s := &paho.Subscribe{
		Subscriptions: make([]paho.SubscribeOptions, 0, len(subs)),
	}
	for _, sub := range subs {
		s.Subscriptions = append(s.Subscriptions, paho.SubscribeOptions{
			Topic:             sub.Filter,
			QoS:               sub.QoS,
			NoLocal:           sub.NoLocal,
			RetainAsPublished: sub.RetainAsPublished,
			RetainHandling:    sub.RetainHandling,
		})
	}
	if len(props) > 0 {
		s.Properties = &paho.SubscribeProperties{User: toPahoUser(props)}
	}

	go func() {
		sa, err := client.Subscribe(context.Background(), s)
		if sa == nil {
			w.events.onSubAck(nil, err)
			return
		}

		ack := &SubAckInfo{ReasonCodes: make([]int, 0, len(sa.Reasons))}
		for _, code := range sa.Reasons {
			ack.ReasonCodes = append(ack.ReasonCodes, int(code))
		}
		if sa.Properties != nil {
			if sa.Properties.ReasonString != "" {
				ack.ReasonString = strPtr(sa.Properties.ReasonString)
			}
			ack.UserProperties = fromPahoUser(sa.Properties.User)
		}
		w.events.onSubAck(ack, nil)
	}()
	return nil
}

func (w *pahoV5) Unsubscribe(filters []string, props []UserProperty) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	u := &paho.Unsubscribe{Topics: filters}
	if len(props) > 0 {
		u.Properties = &paho.UnsubscribeProperties{User: toPahoUser(props)}
	}

	go func() {
		ua, err := client.Unsubscribe(context.Background(), u)
		if ua == nil {
			w.events.onUnsubAck(nil, err)
			return
		}

		ack := &SubAckInfo{ReasonCodes: make([]int, 0, len(ua.Reasons))}
		for _, code := range ua.Reasons {
			ack.ReasonCodes = append(ack.ReasonCodes, int(code))
		}
		if ua.Properties != nil {
			if ua.Properties.ReasonString != "" {
				ack.ReasonString = strPtr(ua.Properties.ReasonString)
			}
			ack.UserProperties = fromPahoUser(ua.Properties.User)
		}
		w.events.onUnsubAck(ack, nil)
	}()
	return nil
}

func (w *pahoV5) Close() error {
	w.closing.Store(true)
	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.client = nil
	w.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// --- library callbacks ---

func (w *pahoV5) publishReceived(pr paho.PublishReceived) (bool, error) {
	pkt := pr.Packet
	msg := &Message{
		Topic:   pkt.Topic,
		Payload: pkt.Payload,
		QoS:     pkt.QoS,
		Retain:  pkt.Retain,
	}
	if p := pkt.Properties; p != nil {
		if p.PayloadFormat != nil {
			msg.PayloadFormat = boolPtr(*p.PayloadFormat != 0)
		}
		if p.MessageExpiry != nil {
			msg.MessageExpiry = u32Ptr(*p.MessageExpiry)
		}
		if p.ResponseTopic != "" {
			msg.ResponseTopic = strPtr(p.ResponseTopic)
		}
		msg.CorrelationData = p.CorrelationData
		if p.ContentType != "" {
			msg.ContentType = strPtr(p.ContentType)
		}
		msg.UserProperties = fromPahoUser(p.User)
	}
	w.events.onMessage(msg)
	return true, nil
}

func (w *pahoV5) serverDisconnect(d *paho.Disconnect) {
	if w.closing.Load() {
		return
	}
	info := &DisconnectInfo{ReasonCode: intPtr(int(d.ReasonCode))}
	if p := d.Properties; p != nil {
		if p.SessionExpiryInterval != nil {
			info.SessionExpiryInterval = u32Ptr(*p.SessionExpiryInterval)
		}
		if p.ReasonString != "" {
			info.ReasonString = strPtr(p.ReasonString)
		}
		if p.ServerReference != "" {
			info.ServerReference = strPtr(p.ServerReference)
		}
		info.UserProperties = fromPahoUser(p.User)
	}
	w.events.onDisconnected(info, nil)
}

func (w *pahoV5) clientError(err error) {
	if w.closing.Load() {
		return
	}
	w.events.onDisconnected(nil, err)
}

func connackToInfo(ca *paho.Connack) *ConnAckInfo {
	if ca == nil {
		return nil
	}
	info := &ConnAckInfo{
		SessionPresent: boolPtr(ca.SessionPresent),
		ReasonCode:     intPtr(int(ca.ReasonCode)),
	}
	p := ca.Properties
	if p == nil {
		return info
	}

	if p.SessionExpiryInterval != nil {
		info.SessionExpiryInterval = u32Ptr(*p.SessionExpiryInterval)
	}
	if p.ReceiveMaximum != nil {
		info.ReceiveMaximum = u16Ptr(*p.ReceiveMaximum)
	}
	if p.MaximumQoS != nil {
		info.MaximumQoS = intPtr(int(*p.MaximumQoS))
	}
	if p.MaximumPacketSize != nil {
		info.MaximumPacketSize = u32Ptr(*p.MaximumPacketSize)
	}
	if p.TopicAliasMaximum != nil {
		info.TopicAliasMaximum = u16Ptr(*p.TopicAliasMaximum)
	}
	if p.ServerKeepAlive != nil {
		info.ServerKeepAlive = u16Ptr(*p.ServerKeepAlive)
	}
	if p.AssignedClientID != "" {
		info.AssignedClientID = strPtr(p.AssignedClientID)
	}
	if p.ReasonString != "" {
		info.ReasonString = strPtr(p.ReasonString)
	}
	if p.ResponseInfo != "" {
		info.ResponseInformation = strPtr(p.ResponseInfo)
	}
	if p.ServerReference != "" {
		info.ServerReference = strPtr(p.ServerReference)
	}
	info.RetainAvailable = boolPtr(p.RetainAvailable)
	info.WildcardSubscriptionsAvailable = boolPtr(p.WildcardSubAvailable)
	info.SubscriptionIdentifiersAvailable = boolPtr(p.SubIDAvailable)
	info.SharedSubscriptionsAvailable = boolPtr(p.SharedSubAvailable)
	info.UserProperties = fromPahoUser(p.User)

	return info
}
