// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

import "testing"

func TestStateTransition(t *testing.T) {
	sm := newStateManager()

	if sm.get() != StateDisconnected {
		t.Fatalf("expected initial state disconnected, got %s", sm.get())
	}

	if !sm.transition(StateDisconnected, StateConnecting) {
		t.Error("transition disconnected -> connecting should succeed")
	}
	if sm.transition(StateDisconnected, StateConnecting) {
		t.Error("transition from stale state should fail")
	}

	sm.set(StateConnected)
	if !sm.isConnected() {
		t.Error("expected connected")
	}

	if !sm.transitionFrom(StateDisconnecting, StateConnecting, StateConnected) {
		t.Error("transitionFrom should match the current state")
	}

	sm.set(StateClosed)
	if !sm.isClosed() {
		t.Error("expected closed")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateDisconnected:  "disconnected",
		StateConnecting:    "connecting",
		StateConnected:     "connected",
		StateDisconnecting: "disconnecting",
		StateClosed:        "closed",
		State(99):          "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("state %d: expected %q, got %q", state, want, got)
		}
	}
}
