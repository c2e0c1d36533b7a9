// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeWire is a scriptable wire client. Completions are fired through
// the connection's handlers the way a real transport would, from a
// separate goroutine.
type fakeWire struct {
	c *Connection

	mu         sync.Mutex
	silent     bool
	connectErr error
	connack    *ConnAckInfo
	connackErr error
	pubAck     *PubAckInfo
	pubErr     error
	subAck     *SubAckInfo
	subErr     error
	unsubAck   *SubAckInfo
	unsubErr   error

	published   []*Message
	subscribed  [][]Subscription
	subProps    [][]UserProperty
	disconnects []byte
	closed      bool
}

func (f *fakeWire) Connect(timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	if f.silent {
		return nil
	}
	ack, err := f.connack, f.connackErr
	go f.c.handleConnack(ack, err)
	return nil
}

func (f *fakeWire) Disconnect(reason byte, props []UserProperty) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, reason)
	if f.silent {
		return nil
	}
	go f.c.handleDisconnected(nil, nil)
	return nil
}

func (f *fakeWire) Publish(msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	if f.silent {
		return nil
	}
	ack, err := f.pubAck, f.pubErr
	go f.c.handlePubAck(ack, err)
	return nil
}

func (f *fakeWire) Subscribe(subs []Subscription, props []UserProperty) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, subs)
	f.subProps = append(f.subProps, props)
	if f.silent {
		return nil
	}
	ack, err := f.subAck, f.subErr
	go f.c.handleSubAck(ack, err)
	return nil
}

func (f *fakeWire) Unsubscribe(filters []string, props []UserProperty) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.silent {
		return nil
	}
	ack, err := f.unsubAck, f.unsubErr
	go f.c.handleUnsubAck(ack, err)
	return nil
}

func (f *fakeWire) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// recordingNotifier captures async events for assertions.
type recordingNotifier struct {
	mu          sync.Mutex
	messages    []*Message
	messageIDs  []int
	disconnects []string
}

func (n *recordingNotifier) OnReceiveMqttMessage(id int, msg *Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	n.messageIDs = append(n.messageIDs, id)
}

func (n *recordingNotifier) OnMqttDisconnect(id int, info *DisconnectInfo, errText string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnects = append(n.disconnects, errText)
}

func (n *recordingNotifier) disconnectCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.disconnects)
}

func newTestConnection(t *testing.T, version Version) (*Connection, *fakeWire, *recordingNotifier) {
	t.Helper()

	notifier := &recordingNotifier{}
	c, err := NewConnection(&Params{
		ClientID: "test-client",
		Host:     "localhost",
		Port:     1883,
		Version:  version,
	}, notifier, nil)
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}

	wire := &fakeWire{c: c, connack: &ConnAckInfo{ReasonCode: intPtr(0)}}
	c.wire = wire
	return c, wire, notifier
}

func startConnection(t *testing.T, c *Connection) {
	t.Helper()
	result, err := c.Start(time.Second)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !result.Connected {
		t.Fatalf("expected connected result, got error %q", result.Err)
	}
}

func TestConnectionStart(t *testing.T) {
	c, _, _ := newTestConnection(t, V50)

	startConnection(t, c)
	if c.State() != StateConnected {
		t.Errorf("expected connected state, got %s", c.State())
	}
}

func TestConnectionStartRefused(t *testing.T) {
	c, wire, _ := newTestConnection(t, V50)
	wire.connack = &ConnAckInfo{ReasonCode: intPtr(135)}
	wire.connackErr = errors.New("connection refused: not authorized")

	result, err := c.Start(time.Second)
	if err != nil {
		t.Fatalf("refusals must be reported in the result, not raised: %v", err)
	}
	if result.Connected {
		t.Error("expected connected=false")
	}
	if result.Err == "" {
		t.Error("expected error text in the result")
	}
	if result.ConnAck == nil || *result.ConnAck.ReasonCode != 135 {
		t.Errorf("expected the refused CONNACK to be passed through, got %+v", result.ConnAck)
	}
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected state, got %s", c.State())
	}
}

func TestConnectionStartTimeout(t *testing.T) {
	c, wire, _ := newTestConnection(t, V50)
	wire.silent = true

	result, err := c.Start(20 * time.Millisecond)
	if err != nil {
		t.Fatalf("timeouts must be reported in the result, not raised: %v", err)
	}
	if result.Connected {
		t.Error("expected connected=false")
	}
	if result.Err != "connect timeout error" {
		t.Errorf("unexpected error text: %q", result.Err)
	}

	wire.mu.Lock()
	closed := wire.closed
	wire.mu.Unlock()
	if !closed {
		t.Error("expected the transport to be released after a connect timeout")
	}
}

func TestConnectionStartTwice(t *testing.T) {
	c, _, _ := newTestConnection(t, V50)
	startConnection(t, c)

	if _, err := c.Start(time.Second); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestPublishNotConnected(t *testing.T) {
	c, _, _ := newTestConnection(t, V50)

	_, err := c.Publish(time.Second, &Message{Topic: "a/b"})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestPublish(t *testing.T) {
	c, wire, _ := newTestConnection(t, V50)
	wire.pubAck = &PubAckInfo{ReasonCode: intPtr(16), ReasonString: strPtr("no matching subscribers")}
	startConnection(t, c)

	ack, err := c.Publish(time.Second, &Message{Topic: "a/b", Payload: []byte("hi"), QoS: 1})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if ack == nil || *ack.ReasonCode != 16 {
		t.Errorf("expected the broker reply to be passed through, got %+v", ack)
	}
}

func TestPublishRejectsConcurrentSameKind(t *testing.T) {
	c, wire, _ := newTestConnection(t, V50)
	startConnection(t, c)
	wire.silent = true

	done := make(chan error, 1)
	go func() {
		_, err := c.Publish(500*time.Millisecond, &Message{Topic: "a/b"})
		done <- err
	}()

	// Wait for the first publish to open its slot.
	deadline := time.Now().Add(time.Second)
	for c.pending.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first publish never became pending")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := c.Publish(time.Second, &Message{Topic: "c/d"}); !errors.Is(err, ErrOperationInFlight) {
		t.Errorf("expected ErrOperationInFlight, got %v", err)
	}

	c.handlePubAck(&PubAckInfo{ReasonCode: intPtr(0)}, nil)
	if err := <-done; err != nil {
		t.Errorf("first publish should still resolve: %v", err)
	}
}

func TestPublishTimeoutDiscardsSlot(t *testing.T) {
	c, wire, _ := newTestConnection(t, V50)
	startConnection(t, c)
	wire.silent = true

	_, err := c.Publish(10*time.Millisecond, &Message{Topic: "a/b"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// A completion arriving after the timeout must be ignored and the
	// slot must be free for the next operation.
	c.handlePubAck(&PubAckInfo{ReasonCode: intPtr(0)}, nil)

	wire.mu.Lock()
	wire.silent = false
	wire.mu.Unlock()
	if _, err := c.Publish(time.Second, &Message{Topic: "a/b"}); err != nil {
		t.Errorf("slot should be free after timeout: %v", err)
	}
}

func TestPublishDropsV5PropsOn311(t *testing.T) {
	c, wire, _ := newTestConnection(t, V311)
	startConnection(t, c)

	msg := &Message{
		Topic:         "a/b",
		ResponseTopic: strPtr("reply/here"),
		ContentType:   strPtr("application/json"),
		UserProperties: []UserProperty{
			{Key: "k", Value: "v"},
		},
	}
	if _, err := c.Publish(time.Second, msg); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	wire.mu.Lock()
	sent := wire.published[0]
	wire.mu.Unlock()
	if sent.hasV5Properties() {
		t.Errorf("v5 properties should be dropped on 3.1.1, got %+v", sent)
	}
	if msg.ResponseTopic == nil {
		t.Error("the caller's message must not be mutated")
	}
}

func TestSubscribeStripsPropsOn311(t *testing.T) {
	c, wire, _ := newTestConnection(t, V311)
	wire.subAck = &SubAckInfo{ReasonCodes: []int{1}}
	startConnection(t, c)

	subs := []Subscription{{Filter: "a/#", QoS: 1}}
	props := []UserProperty{{Key: "k", Value: "v"}}
	ack, err := c.Subscribe(time.Second, subs, props)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if len(ack.ReasonCodes) != 1 || ack.ReasonCodes[0] != 1 {
		t.Errorf("unexpected reason codes: %v", ack.ReasonCodes)
	}

	wire.mu.Lock()
	sentProps := wire.subProps[0]
	wire.mu.Unlock()
	if sentProps != nil {
		t.Errorf("user properties should be stripped on 3.1.1, got %v", sentProps)
	}
}

func TestUnsubscribe(t *testing.T) {
	c, wire, _ := newTestConnection(t, V50)
	wire.unsubAck = &SubAckInfo{ReasonCodes: []int{0, 17}}
	startConnection(t, c)

	ack, err := c.Unsubscribe(time.Second, []string{"a/#", "b/#"}, nil)
	if err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if len(ack.ReasonCodes) != 2 || ack.ReasonCodes[1] != 17 {
		t.Errorf("unexpected reason codes: %v", ack.ReasonCodes)
	}
}

func TestDisconnect(t *testing.T) {
	c, wire, _ := newTestConnection(t, V50)
	startConnection(t, c)

	if err := c.Disconnect(time.Second, 4, nil); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected state, got %s", c.State())
	}

	wire.mu.Lock()
	reasons := wire.disconnects
	wire.mu.Unlock()
	if len(reasons) != 1 || reasons[0] != 4 {
		t.Errorf("expected reason 4 on the wire, got %v", reasons)
	}

	// A second disconnect on a dead connection is a logged no-op.
	if err := c.Disconnect(time.Second, 0, nil); err != nil {
		t.Errorf("second disconnect should be a no-op: %v", err)
	}
}

func TestDisconnectDropsReasonOn311(t *testing.T) {
	c, wire, _ := newTestConnection(t, V311)
	startConnection(t, c)

	if err := c.Disconnect(time.Second, 4, []UserProperty{{Key: "k", Value: "v"}}); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	wire.mu.Lock()
	reasons := wire.disconnects
	wire.mu.Unlock()
	if len(reasons) != 1 || reasons[0] != 0 {
		t.Errorf("reason code should be dropped on 3.1.1, got %v", reasons)
	}
}

func TestServerDisconnectNotifies(t *testing.T) {
	c, _, notifier := newTestConnection(t, V50)
	startConnection(t, c)

	info := &DisconnectInfo{ReasonCode: intPtr(142), ReasonString: strPtr("session taken over")}
	c.handleDisconnected(info, nil)

	if notifier.disconnectCount() != 1 {
		t.Fatalf("expected 1 disconnect event, got %d", notifier.disconnectCount())
	}
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected state, got %s", c.State())
	}
	if _, err := c.Publish(time.Second, &Message{Topic: "a/b"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after a lost session, got %v", err)
	}
}

func TestServerDisconnectSuppressedWhileClosing(t *testing.T) {
	c, _, notifier := newTestConnection(t, V50)
	startConnection(t, c)

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	c.handleDisconnected(nil, errors.New("EOF"))

	if notifier.disconnectCount() != 0 {
		t.Errorf("no disconnect event expected during teardown, got %d", notifier.disconnectCount())
	}
}

func TestCloseFailsPendingOps(t *testing.T) {
	c, wire, _ := newTestConnection(t, V50)
	startConnection(t, c)
	wire.silent = true

	done := make(chan error, 1)
	go func() {
		_, err := c.Publish(5*time.Second, &Message{Topic: "a/b"})
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for c.pending.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("publish never became pending")
		}
		time.Sleep(time.Millisecond)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := c.Publish(time.Second, &Message{Topic: "a/b"}); !errors.Is(err, ErrClosing) {
		t.Errorf("expected ErrClosing after Close, got %v", err)
	}
}

func TestInboundMessageNotifies(t *testing.T) {
	c, _, notifier := newTestConnection(t, V50)
	c.SetID(7)
	startConnection(t, c)

	c.handleMessage(&Message{Topic: "a/b", Payload: []byte("x"), QoS: 1})

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.messages) != 1 {
		t.Fatalf("expected 1 message event, got %d", len(notifier.messages))
	}
	if notifier.messageIDs[0] != 7 {
		t.Errorf("expected connection id 7, got %d", notifier.messageIDs[0])
	}
	if notifier.messages[0].Topic != "a/b" {
		t.Errorf("unexpected topic %q", notifier.messages[0].Topic)
	}
}

func TestNewConnectionInvalidVersion(t *testing.T) {
	_, err := NewConnection(&Params{ClientID: "c", Host: "h", Port: 1, Version: Version(3)}, nil, nil)
	if !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("expected ErrInvalidVersion, got %v", err)
	}
}

func TestNewConnectionDropsV5ParamsOn311(t *testing.T) {
	params := &Params{
		ClientID:            "c",
		Host:                "h",
		Port:                1,
		Version:             V311,
		UserProperties:      []UserProperty{{Key: "a", Value: "b"}},
		RequestResponseInfo: boolPtr(true),
	}

	c, err := NewConnection(params, nil, nil)
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}
	if len(c.params.UserProperties) != 0 {
		t.Errorf("expected connect user properties to be dropped, got %+v", c.params.UserProperties)
	}
	if c.params.RequestResponseInfo != nil {
		t.Error("expected request response info to be dropped")
	}
}

func TestNewConnectionKeepsV5ParamsOn50(t *testing.T) {
	params := &Params{
		ClientID:            "c",
		Host:                "h",
		Port:                1,
		Version:             V50,
		UserProperties:      []UserProperty{{Key: "a", Value: "b"}},
		RequestResponseInfo: boolPtr(true),
	}

	c, err := NewConnection(params, nil, nil)
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}
	if len(c.params.UserProperties) != 1 {
		t.Errorf("expected connect user properties to survive, got %+v", c.params.UserProperties)
	}
	if c.params.RequestResponseInfo == nil || !*c.params.RequestResponseInfo {
		t.Error("expected request response info to survive")
	}
}
