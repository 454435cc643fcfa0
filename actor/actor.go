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

// Package actor defines the contract of user actors and the runtime that
// hosts one loaded actor on its leader process.
package actor

import (
	"context"
)

// Actor defines the contract of a distributed actor.
//
// An actor is addressed by its ID and runs on exactly one process of the
// cluster at a time: the process holding its lease. Clients reach it through
// connections that may be opened on any process; the runtime relays their
// traffic to the leader.
//
// ## Execution Model
//   - Every callback of one actor runs under the same lock: an actor never
//     observes two callbacks at once.
//   - A callback must not block on traffic from its own connections.
//   - Panics in callbacks are recovered and reported as errors.
//
// ## Example
//
//	type Counter struct{ total int }
//
//	func (c *Counter) PreStart(ctx context.Context, actx *Context) error { return nil }
//
//	func (c *Counter) PrepareConnection(ctx context.Context, params []byte) error { return nil }
//
//	func (c *Counter) OnConnect(ctx context.Context, conn *Connection) error { return nil }
//
//	func (c *Counter) Receive(ctx context.Context, conn *Connection, payload []byte) error {
//	    c.total++
//	    return conn.Send(ctx, []byte(strconv.Itoa(c.total)))
//	}
//
//	func (c *Counter) OnDisconnect(ctx context.Context, conn *Connection) {}
//
//	func (c *Counter) PostStop(ctx context.Context) error { return nil }
type Actor interface {
	// PreStart is called once when the actor is loaded on its leader.
	// The Context stays valid until PostStop returns.
	// Returning an error aborts the load.
	PreStart(ctx context.Context, actx *Context) error

	// PrepareConnection is called with the client supplied parameters before a
	// connection is created. Returning an error rejects the connection.
	PrepareConnection(ctx context.Context, params []byte) error

	// OnConnect is called once the connection is registered and its init frame sent.
	// Returning an error closes the connection.
	OnConnect(ctx context.Context, conn *Connection) error

	// Receive handles a payload sent by the client of conn.
	Receive(ctx context.Context, conn *Connection, payload []byte) error

	// OnDisconnect is called when a client connection goes away.
	// It is not called for connections the actor closed itself.
	OnDisconnect(ctx context.Context, conn *Connection)

	// PostStop is called once when the actor is unloaded.
	// This is the last chance to persist state.
	PostStop(ctx context.Context) error
}

// Factory creates a fresh actor value
type Factory func() Actor
