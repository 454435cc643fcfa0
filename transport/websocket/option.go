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

package websocket

import (
	"time"

	"github.com/tochemey/coordinate/log"
)

// Option configures the Server
type Option interface {
	// Apply sets the Option value of a Server
	Apply(server *Server)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(server *Server)

func (f OptionFunc) Apply(server *Server) {
	f(server)
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(server *Server) {
		server.logger = logger
	})
}

// WithPath sets the HTTP path clients connect on. It defaults to /ws
func WithPath(path string) Option {
	return OptionFunc(func(server *Server) {
		server.path = path
	})
}

// WithWriteTimeout bounds every write to a client socket
func WithWriteTimeout(timeout time.Duration) Option {
	return OptionFunc(func(server *Server) {
		server.writeTimeout = timeout
	})
}

// WithReadLimit sets the largest message accepted from a client
func WithReadLimit(limit int64) Option {
	return OptionFunc(func(server *Server) {
		server.readLimit = limit
	})
}
