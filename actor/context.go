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
	"slices"

	"go.uber.org/multierr"

	"github.com/tochemey/coordinate/log"
)

// Context gives an actor access to its identity and connections
type Context struct {
	actorID  string
	name     string
	key      []string
	logger   log.Logger
	instance *Instance
}

// ActorID returns the ID of the actor
func (x *Context) ActorID() string {
	return x.actorID
}

// Name returns the name the actor was created with
func (x *Context) Name() string {
	return x.name
}

// Key returns a copy of the actor key
func (x *Context) Key() []string {
	return slices.Clone(x.key)
}

// Logger returns the actor logger
func (x *Context) Logger() log.Logger {
	return x.logger
}

// Connections returns the open connections
func (x *Context) Connections() []*Connection {
	return x.instance.Connections()
}

// Broadcast sends payload to every open connection.
// Failures do not stop the broadcast; they are returned combined.
func (x *Context) Broadcast(ctx context.Context, payload []byte) error {
	var err error
	for _, conn := range x.instance.Connections() {
		err = multierr.Append(err, conn.Send(ctx, payload))
	}
	return err
}
