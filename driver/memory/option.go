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

package memory

import (
	"time"

	"github.com/tochemey/coordinate/log"
)

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a hub.
	Apply(hub *Hub)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(hub *Hub)

// Apply applies the hub's option
func (f OptionFunc) Apply(hub *Hub) {
	f(hub)
}

// WithClock sets the time source used to evaluate lease expiry
func WithClock(clock func() time.Time) Option {
	return OptionFunc(func(hub *Hub) {
		hub.clock = clock
	})
}

// WithBufferSize sets the capacity of every subscription channel
func WithBufferSize(size int) Option {
	return OptionFunc(func(hub *Hub) {
		hub.bufferSize = size
	})
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(hub *Hub) {
		hub.logger = logger
	})
}
