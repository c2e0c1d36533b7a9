// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"log/slog"
	"sync"
)

// Registry tracks live connections by id. Ids are assigned
// monotonically starting at zero and are never reused, so a stale id
// can only miss, never hit a different connection.
type Registry struct {
	mu     sync.Mutex
	nextID int
	conns  map[int]*Connection
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[int]*Connection),
		logger: logger,
	}
}

// Register assigns the next id to the connection and returns it.
func (r *Registry) Register(c *Connection) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	c.SetID(id)
	r.conns[id] = c

	r.logger.Debug("connection registered", slog.Int("connection_id", id))
	return id
}

// Get returns the connection with the given id.
func (r *Registry) Get(id int) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	return c, nil
}

// Unregister atomically removes and returns the connection. After it
// returns, the id can no longer be resolved by concurrent callers.
func (r *Registry) Unregister(id int) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	delete(r.conns, id)

	r.logger.Debug("connection unregistered", slog.Int("connection_id", id))
	return c, nil
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll tears down every live connection. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[int]*Connection)
	r.mu.Unlock()

	for _, c := range conns {
		if err := c.Close(); err != nil {
			r.logger.Warn("failed to close connection",
				slog.Int("connection_id", c.ID()),
				slog.String("error", err.Error()))
		}
	}
	if len(conns) > 0 {
		r.logger.Info("closed all connections", slog.Int("count", len(conns)))
	}
}
