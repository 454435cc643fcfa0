// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package actor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
)

// ReasonActorStopped is sent to clients whose actor was unloaded
const ReasonActorStopped = "actor stopped"

// Instance is an actor loaded on its leader process.
//
// All actor callbacks go through the instance lock. The connection table has
// its own lock so that an actor can enumerate or close connections from
// within a callback.
type Instance struct {
	mu      sync.Mutex
	connsMu sync.RWMutex

	actorID     string
	name        string
	key         []string
	actor       Actor
	actx        *Context
	logger      log.Logger
	connections map[string]*Connection

	started *atomic.Bool
	stopped *atomic.Bool
}

// NewInstance wraps actor for the given identity. Nothing runs until Start.
func NewInstance(actorID, name string, key []string, actor Actor, logger log.Logger) *Instance {
	instance := &Instance{
		actorID:     actorID,
		name:        name,
		key:         slices.Clone(key),
		actor:       actor,
		logger:      logger,
		connections: make(map[string]*Connection),
		started:     atomic.NewBool(false),
		stopped:     atomic.NewBool(false),
	}

	instance.actx = &Context{
		actorID:  actorID,
		name:     name,
		key:      instance.key,
		logger:   logger,
		instance: instance,
	}
	return instance
}

// ActorID returns the actor ID
func (i *Instance) ActorID() string {
	return i.actorID
}

// Name returns the actor name
func (i *Instance) Name() string {
	return i.name
}

// Key returns a copy of the actor key
func (i *Instance) Key() []string {
	return slices.Clone(i.key)
}

// Actor returns the wrapped actor
func (i *Instance) Actor() Actor {
	return i.actor
}

// IsRunning reports whether the instance is started and not yet stopped
func (i *Instance) IsRunning() bool {
	return i.started.Load() && !i.stopped.Load()
}

// Start runs PreStart. Calling Start again is a no-op.
func (i *Instance) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.stopped.Load() {
		return gerrors.ErrActorStopped
	}

	if i.started.Load() {
		return nil
	}

	if err := i.guard(func() error { return i.actor.PreStart(ctx, i.actx) }); err != nil {
		return fmt.Errorf("actor (%s) failed to start: %w", i.actorID, err)
	}

	i.started.Store(true)
	i.logger.Debugf("actor (%s) started", i.actorID)
	return nil
}

// Stop disconnects every client, calling OnDisconnect for each, then runs PostStop.
// Stop runs at most once; later calls return nil.
func (i *Instance) Stop(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.stopped.CompareAndSwap(false, true) {
		return nil
	}

	if !i.started.Load() {
		return nil
	}

	i.connsMu.Lock()
	conns := make([]*Connection, 0, len(i.connections))
	for _, conn := range i.connections {
		conns = append(conns, conn)
	}
	clear(i.connections)
	i.connsMu.Unlock()

	for _, conn := range conns {
		if !conn.markClosed() {
			continue
		}

		if err := conn.driver.Disconnect(ctx, conn.id, ReasonActorStopped); err != nil {
			i.logger.Warnf("actor (%s) failed to disconnect connection (%s): %v", i.actorID, conn.id, err)
		}

		_ = i.guard(func() error {
			i.actor.OnDisconnect(ctx, conn)
			return nil
		})
	}

	if err := i.guard(func() error { return i.actor.PostStop(ctx) }); err != nil {
		return fmt.Errorf("actor (%s) failed to stop: %w", i.actorID, err)
	}

	i.logger.Debugf("actor (%s) stopped", i.actorID)
	return nil
}

// PrepareConnection runs the actor's PrepareConnection hook
func (i *Instance) PrepareConnection(ctx context.Context, params []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.ready(); err != nil {
		return err
	}
	return i.guard(func() error { return i.actor.PrepareConnection(ctx, params) })
}

// CreateConnection registers a connection, sends its init frame and runs OnConnect.
//
// Creating a connection that already exists with the same token returns the
// existing one without side effect. A different token is a protocol error.
func (i *Instance) CreateConnection(ctx context.Context, connID, token string, driver ConnDriver) (*Connection, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.ready(); err != nil {
		return nil, err
	}

	i.connsMu.Lock()
	if existing, ok := i.connections[connID]; ok {
		i.connsMu.Unlock()
		if !existing.MatchToken(token) {
			return nil, gerrors.NewProtocolError(fmt.Errorf("connection (%s): %w", connID, gerrors.ErrConnTokenMismatch))
		}
		return existing, nil
	}

	conn := newConnection(connID, token, driver, i)
	i.connections[connID] = conn
	i.connsMu.Unlock()

	frame, err := EncodeInitFrame(InitFrame{ConnectionID: connID})
	if err != nil {
		i.discard(conn)
		return nil, err
	}

	if err := driver.SendMessage(ctx, connID, frame); err != nil {
		i.discard(conn)
		return nil, fmt.Errorf("connection (%s): failed to send init frame: %w", connID, err)
	}

	if err := i.guard(func() error { return i.actor.OnConnect(ctx, conn) }); err != nil {
		i.discard(conn)
		if conn.markClosed() {
			if derr := driver.Disconnect(ctx, connID, err.Error()); derr != nil {
				err = multierr.Append(err, derr)
			}
		}
		return nil, fmt.Errorf("connection (%s) rejected: %w", connID, err)
	}
	return conn, nil
}

// ProcessMessage hands payload to the actor after checking the connection token
func (i *Instance) ProcessMessage(ctx context.Context, connID, token string, payload []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.ready(); err != nil {
		return err
	}

	conn, ok := i.Connection(connID)
	if !ok {
		return fmt.Errorf("connection (%s): %w", connID, gerrors.ErrConnectionNotFound)
	}

	if !conn.MatchToken(token) {
		return gerrors.NewProtocolError(fmt.Errorf("connection (%s): %w", connID, gerrors.ErrConnTokenMismatch))
	}

	return i.guard(func() error { return i.actor.Receive(ctx, conn, payload) })
}

// RemoveConnection drops a connection the client went away from and runs OnDisconnect
func (i *Instance) RemoveConnection(ctx context.Context, connID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.ready(); err != nil {
		return err
	}

	i.connsMu.Lock()
	conn, ok := i.connections[connID]
	delete(i.connections, connID)
	i.connsMu.Unlock()

	if !ok || !conn.markClosed() {
		return fmt.Errorf("connection (%s): %w", connID, gerrors.ErrConnectionNotFound)
	}

	return i.guard(func() error {
		i.actor.OnDisconnect(ctx, conn)
		return nil
	})
}

// Connection returns the open connection with connID
func (i *Instance) Connection(connID string) (*Connection, bool) {
	i.connsMu.RLock()
	defer i.connsMu.RUnlock()
	conn, ok := i.connections[connID]
	return conn, ok
}

// Connections returns a snapshot of the open connections
func (i *Instance) Connections() []*Connection {
	i.connsMu.RLock()
	defer i.connsMu.RUnlock()
	conns := make([]*Connection, 0, len(i.connections))
	for _, conn := range i.connections {
		conns = append(conns, conn)
	}
	return conns
}

func (i *Instance) ready() error {
	if i.stopped.Load() {
		return fmt.Errorf("actor (%s): %w", i.actorID, gerrors.ErrActorStopped)
	}
	if !i.started.Load() {
		return fmt.Errorf("actor (%s): %w", i.actorID, gerrors.ErrActorNotInitialized)
	}
	return nil
}

func (i *Instance) forget(connID string) {
	i.connsMu.Lock()
	delete(i.connections, connID)
	i.connsMu.Unlock()
}

func (i *Instance) discard(conn *Connection) {
	i.connsMu.Lock()
	if current, ok := i.connections[conn.id]; ok && current == conn {
		delete(i.connections, conn.id)
	}
	i.connsMu.Unlock()
}

// guard runs fn and turns a panic into a PanicError
func (i *Instance) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if perr, ok := r.(error); ok {
				var pe *gerrors.PanicError
				if errors.As(perr, &pe) {
					err = pe
					return
				}
				_, file, line, _ := runtime.Caller(2)
				err = gerrors.NewPanicError(fmt.Errorf("%w at %s[%d]", perr, file, line))
				return
			}
			err = gerrors.NewPanicError(fmt.Errorf("%#v", r))
		}
	}()
	return fn()
}
