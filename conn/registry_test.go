// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"errors"
	"testing"
)

func registryConn(t *testing.T) *Connection {
	t.Helper()
	c, err := NewConnection(&Params{ClientID: "c", Host: "localhost", Port: 1883, Version: V50}, nil, nil)
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}
	c.wire = &fakeWire{c: c}
	return c
}

func TestRegistryMonotonicIDs(t *testing.T) {
	r := NewRegistry(nil)

	first := r.Register(registryConn(t))
	second := r.Register(registryConn(t))
	if first != 0 || second != 1 {
		t.Fatalf("expected ids 0 and 1, got %d and %d", first, second)
	}

	if _, err := r.Unregister(first); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}

	// Released ids are never handed out again.
	third := r.Register(registryConn(t))
	if third != 2 {
		t.Errorf("expected id 2, got %d", third)
	}
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry(nil)

	c := registryConn(t)
	id := r.Register(c)

	got, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != c {
		t.Error("Get returned a different connection")
	}
	if got.ID() != id {
		t.Errorf("expected bound id %d, got %d", id, got.ID())
	}

	if _, err := r.Get(42); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("expected ErrConnectionNotFound, got %v", err)
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry(nil)
	id := r.Register(registryConn(t))

	if _, err := r.Unregister(id); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	if _, err := r.Get(id); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("expected ErrConnectionNotFound after unregister, got %v", err)
	}
	if _, err := r.Unregister(id); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("expected ErrConnectionNotFound on double unregister, got %v", err)
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry(nil)

	conns := []*Connection{registryConn(t), registryConn(t), registryConn(t)}
	for _, c := range conns {
		r.Register(c)
	}
	if r.Count() != 3 {
		t.Fatalf("expected 3 connections, got %d", r.Count())
	}

	r.CloseAll()
	if r.Count() != 0 {
		t.Errorf("expected empty registry, got %d", r.Count())
	}
	for _, c := range conns {
		if c.State() != StateClosed {
			t.Errorf("expected closed state, got %s", c.State())
		}
	}
}
