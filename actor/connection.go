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
	"crypto/subtle"

	"go.uber.org/atomic"

	gerrors "github.com/tochemey/coordinate/errors"
)

// ConnDriver carries traffic of a connection back to its client.
// On a leader it usually publishes to the node the client is attached to.
type ConnDriver interface {
	// SendMessage delivers payload to the client of connID
	SendMessage(ctx context.Context, connID string, payload []byte) error
	// Disconnect tells the client of connID the connection is gone
	Disconnect(ctx context.Context, connID, reason string) error
}

// Connection is a client attached to a loaded actor
type Connection struct {
	id       string
	token    string
	driver   ConnDriver
	instance *Instance
	closed   *atomic.Bool
}

func newConnection(id, token string, driver ConnDriver, instance *Instance) *Connection {
	return &Connection{
		id:       id,
		token:    token,
		driver:   driver,
		instance: instance,
		closed:   atomic.NewBool(false),
	}
}

// ID returns the connection ID
func (c *Connection) ID() string {
	return c.id
}

// MatchToken reports whether token is the connection token.
// The comparison runs in constant time.
func (c *Connection) MatchToken(token string) bool {
	return subtle.ConstantTimeCompare([]byte(c.token), []byte(token)) == 1
}

// Send delivers payload to the client
func (c *Connection) Send(ctx context.Context, payload []byte) error {
	if c.closed.Load() {
		return gerrors.ErrConnectionClosed
	}
	return c.driver.SendMessage(ctx, c.id, payload)
}

// Close detaches the client with reason.
// The actor's OnDisconnect is not called for it.
func (c *Connection) Close(ctx context.Context, reason string) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.instance.forget(c.id)
	return c.driver.Disconnect(ctx, c.id, reason)
}

// IsClosed reports whether the connection was closed
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// markClosed flags the connection closed without notifying the client
func (c *Connection) markClosed() bool {
	return c.closed.CompareAndSwap(false, true)
}
