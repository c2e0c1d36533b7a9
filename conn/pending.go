// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"sync"
	"time"
)

// opKind identifies the kind of pending operation. A connection keeps
// at most one open slot per kind.
type opKind int

const (
	opConnect opKind = iota
	opDisconnect
	opPublish
	opSubscribe
	opUnsubscribe
)

// String returns the operation name.
func (k opKind) String() string {
	switch k {
	case opConnect:
		return "connect"
	case opDisconnect:
		return "disconnect"
	case opPublish:
		return "publish"
	case opSubscribe:
		return "subscribe"
	case opUnsubscribe:
		return "unsubscribe"
	default:
		return "unknown"
	}
}

// pendingOp represents an in-flight operation waiting for its
// completion callback.
type pendingOp struct {
	kind    opKind
	done    chan struct{}
	err     error
	result  interface{}
	created time.Time
}

// pendingSet manages the per-kind operation slots.
type pendingSet struct {
	mu   sync.Mutex
	open map[opKind]*pendingOp
}

func newPendingSet() *pendingSet {
	return &pendingSet{
		open: make(map[opKind]*pendingOp),
	}
}

// add opens a slot for the given kind. A second concurrent operation
// of the same kind is rejected.
func (ps *pendingSet) add(kind opKind) (*pendingOp, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.open[kind]; exists {
		return nil, ErrOperationInFlight
	}

	op := &pendingOp{
		kind:    kind,
		done:    make(chan struct{}),
		created: time.Now(),
	}
	ps.open[kind] = op
	return op, nil
}

// complete resolves the open slot for the given kind. A completion
// arriving after the slot was abandoned is a harmless no-op and
// returns false.
func (ps *pendingSet) complete(kind opKind, result interface{}, err error) bool {
	ps.mu.Lock()
	op, exists := ps.open[kind]
	if exists {
		delete(ps.open, kind)
	}
	ps.mu.Unlock()

	if exists && op != nil {
		op.result = result
		op.err = err
		close(op.done)
		return true
	}
	return false
}

// discard abandons a slot without resolving it, but only if it still
// holds the same operation. Used after a wait timeout.
func (ps *pendingSet) discard(op *pendingOp) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if cur, exists := ps.open[op.kind]; exists && cur == op {
		delete(ps.open, op.kind)
	}
}

// clear resolves every open slot with the given error.
func (ps *pendingSet) clear(err error) {
	ps.mu.Lock()
	open := ps.open
	ps.open = make(map[opKind]*pendingOp)
	ps.mu.Unlock()

	for _, op := range open {
		op.err = err
		close(op.done)
	}
}

// count returns the number of in-flight operations.
func (ps *pendingSet) count() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.open)
}

// wait blocks until the operation completes or the timeout fires.
func (op *pendingOp) wait(timeout time.Duration) (interface{}, error) {
	select {
	case <-op.done:
		return op.result, op.err
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}
