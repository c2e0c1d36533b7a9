// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"log/slog"
	"testing"
)

func TestUserPropertiesRoundTrip(t *testing.T) {
	props := []UserProperty{
		{Key: "region", Value: "eu-west-1"},
		{Key: "region", Value: "us-east-1"},
		{Key: "stage", Value: "beta"},
	}

	back := fromPahoUser(toPahoUser(props))
	if len(back) != len(props) {
		t.Fatalf("expected %d properties, got %d", len(props), len(back))
	}
	for i, p := range props {
		if back[i] != p {
			t.Errorf("property %d: expected %+v, got %+v", i, p, back[i])
		}
	}
}

func TestUserPropertiesEmpty(t *testing.T) {
	if toPahoUser(nil) != nil {
		t.Error("expected nil wire properties for empty input")
	}
	if fromPahoUser(nil) != nil {
		t.Error("expected nil properties for empty input")
	}
}

func TestStripUserProps(t *testing.T) {
	logger := slog.Default()
	props := []UserProperty{{Key: "k", Value: "v"}}

	if got := stripUserProps(V50, props, "publish", logger); len(got) != 1 {
		t.Errorf("v5 should keep properties, got %v", got)
	}
	if got := stripUserProps(V311, props, "publish", logger); got != nil {
		t.Errorf("3.1.1 should drop properties, got %v", got)
	}
	if got := stripUserProps(V311, nil, "publish", logger); got != nil {
		t.Errorf("empty input should stay empty, got %v", got)
	}
}

func TestVersionValid(t *testing.T) {
	if !V311.Valid() || !V50.Valid() {
		t.Error("known versions should be valid")
	}
	if Version(3).Valid() {
		t.Error("unknown version should be invalid")
	}
	if V311.String() != "3.1.1" || V50.String() != "5.0" {
		t.Errorf("unexpected version names: %s, %s", V311, V50)
	}
}
